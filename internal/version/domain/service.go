package domain

import (
	"context"
	"encoding/json"
	"errors"

	"gorm.io/gorm"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*PackVersion, error)
	Get(ctx context.Context, packName, version string) (*PackVersion, error)
	List(ctx context.Context, packName string) ([]PackVersion, error)
	GetLatest(ctx context.Context, packName string) (*PackVersion, error)
	Exists(ctx context.Context, packName, version string) (bool, error)
	Delete(ctx context.Context, packName, version string) error
	NextVersion(ctx context.Context, packName string) (string, error)
	Keys(ctx context.Context) ([]Key, error)
	WithTx(tx *gorm.DB) Service
}

type CreateRequest struct {
	PackName   string
	Version    string
	Integrity  string
	TarballURL string
	Size       int64
	Manifest   json.RawMessage
	FileCount  int
	Changelog  *string
}

var (
	ErrInvalidPackName = errors.New("invalid_pack_name")
	ErrInvalidVersion  = errors.New("invalid_version")
	ErrConflict        = errors.New("version_conflict")
	ErrNotFound        = errors.New("version_not_found")
)
