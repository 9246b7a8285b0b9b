package domain

import (
	"context"

	"gorm.io/gorm"
)

type ListFilter struct {
	After string
	Limit int
	Query string
}

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, pack *Pack) (bool, error)
	Update(ctx context.Context, db *gorm.DB, pack *Pack) error
	FindByName(ctx context.Context, db *gorm.DB, name string) (*Pack, error)
	// FindSimilar returns packs whose name equals folded once '-', '_' and '.' are removed.
	FindSimilar(ctx context.Context, db *gorm.DB, folded string) ([]Pack, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Pack, error)
	ListAll(ctx context.Context, db *gorm.DB) ([]Pack, error)
	IncrementDownloads(ctx context.Context, db *gorm.DB, name string) error
	DeleteCascade(ctx context.Context, db *gorm.DB, name string) error
}
