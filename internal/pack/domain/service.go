package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/packhub/pkg/db/pagination"
	"gorm.io/gorm"
)

type Service interface {
	Get(ctx context.Context, name string) (*Response, error)
	List(ctx context.Context, req ListRequest) (*ListResponse, error)
	Update(ctx context.Context, actor, name string, req UpdateRequest) (*Response, error)
	Delete(ctx context.Context, actor, name string) error
	Upsert(ctx context.Context, author string, meta Metadata) (*Pack, bool, error)
	RecordDownload(ctx context.Context, name string) error
	WithTx(tx *gorm.DB) Service
}

// Metadata is the pack-level slice of a manifest refreshed on every publish.
type Metadata struct {
	Name         string
	Description  *string
	Homepage     *string
	Repository   *string
	License      *string
	Tags         []string
	Targets      []string
	Features     []string
	Dependencies []string
	Conflicts    []string
}

type ListRequest struct {
	pagination.Pagination
	Query string `form:"q"`
}

type UpdateRequest struct {
	Description *string   `json:"description"`
	Homepage    *string   `json:"homepage"`
	Repository  *string   `json:"repository"`
	License     *string   `json:"license"`
	Tags        *[]string `json:"tags"`
	Targets     *[]string `json:"targets"`
	Features    *[]string `json:"features"`
}

type Response struct {
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Author       string    `json:"author"`
	Homepage     *string   `json:"homepage,omitempty"`
	Repository   *string   `json:"repository,omitempty"`
	License      *string   `json:"license,omitempty"`
	Tags         []string  `json:"tags"`
	Targets      []string  `json:"targets"`
	Features     []string  `json:"features"`
	Dependencies []string  `json:"dependencies"`
	Conflicts    []string  `json:"conflicts"`
	Downloads    int64     `json:"downloads"`
	Rating       float64   `json:"rating"`
	Featured     bool      `json:"featured"`
	Verified     bool      `json:"verified"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type ListResponse struct {
	Items    []Response          `json:"items"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

var (
	ErrInvalidName = errors.New("invalid_name")
	ErrNotFound    = errors.New("pack_not_found")
	ErrForbidden   = errors.New("pack_forbidden")
)
