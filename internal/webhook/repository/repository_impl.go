package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/packhub/internal/webhook/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, hook *domain.Webhook) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO webhooks (id, pack_name, url, secret, events, active, created_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		hook.ID,
		hook.PackName,
		hook.URL,
		hook.Secret,
		hook.Events,
		hook.Active,
		hook.CreatedBy,
		hook.CreatedAt,
		hook.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, hook *domain.Webhook) error {
	return db.WithContext(ctx).Exec(
		`UPDATE webhooks SET url = ?, secret = ?, events = ?, active = ?, updated_at = ? WHERE id = ?`,
		hook.URL,
		hook.Secret,
		hook.Events,
		hook.Active,
		hook.UpdatedAt,
		hook.ID,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Webhook, error) {
	var items []domain.Webhook
	if err := db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&items).Error; err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (r *repo) ListByPack(ctx context.Context, db *gorm.DB, packName string) ([]domain.Webhook, error) {
	var items []domain.Webhook
	err := db.WithContext(ctx).
		Where("pack_name = ?", packName).
		Order("created_at ASC").
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListActive(ctx context.Context, db *gorm.DB, packName string) ([]domain.Webhook, error) {
	var items []domain.Webhook
	err := db.WithContext(ctx).
		Where("pack_name = ? AND active = ?", packName, true).
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// Delete removes the webhook and its delivery log. Callers run it inside a
// transaction.
func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	if err := db.WithContext(ctx).Exec(`DELETE FROM webhook_deliveries WHERE webhook_id = ?`, id).Error; err != nil {
		return err
	}
	return db.WithContext(ctx).Exec(`DELETE FROM webhooks WHERE id = ?`, id).Error
}

func (r *repo) InsertDelivery(ctx context.Context, db *gorm.DB, d *domain.Delivery) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO webhook_deliveries (id, webhook_id, delivery_id, event, payload, response_status, response_body,
		   success, error, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID,
		d.WebhookID,
		d.DeliveryID,
		d.Event,
		d.Payload,
		d.ResponseStatus,
		d.ResponseBody,
		d.Success,
		d.Error,
		d.DurationMs,
		d.CreatedAt,
	).Error
}

func (r *repo) ListDeliveries(ctx context.Context, db *gorm.DB, webhookID snowflake.ID, limit int) ([]domain.Delivery, error) {
	var items []domain.Delivery
	err := db.WithContext(ctx).
		Where("webhook_id = ?", webhookID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
