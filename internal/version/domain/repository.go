package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, v *PackVersion) error
	Find(ctx context.Context, db *gorm.DB, packName, version string) (*PackVersion, error)
	ListByPack(ctx context.Context, db *gorm.DB, packName string) ([]PackVersion, error)
	Latest(ctx context.Context, db *gorm.DB, packName string) (*PackVersion, error)
	Delete(ctx context.Context, db *gorm.DB, packName, version string) (int64, error)
	ListKeys(ctx context.Context, db *gorm.DB) ([]Key, error)
}
