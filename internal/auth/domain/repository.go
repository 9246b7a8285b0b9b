package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, token *APIToken) error
	FindByHash(ctx context.Context, db *gorm.DB, hash string) (*APIToken, error)
	Touch(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
	Revoke(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	ListByUser(ctx context.Context, db *gorm.DB, username string) ([]APIToken, error)
}
