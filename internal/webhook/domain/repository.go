package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, hook *Webhook) error
	Update(ctx context.Context, db *gorm.DB, hook *Webhook) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Webhook, error)
	ListByPack(ctx context.Context, db *gorm.DB, packName string) ([]Webhook, error)
	ListActive(ctx context.Context, db *gorm.DB, packName string) ([]Webhook, error)
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	InsertDelivery(ctx context.Context, db *gorm.DB, delivery *Delivery) error
	ListDeliveries(ctx context.Context, db *gorm.DB, webhookID snowflake.ID, limit int) ([]Delivery, error)
}
