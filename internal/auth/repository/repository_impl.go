package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/packhub/internal/auth/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, token *domain.APIToken) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO api_tokens (id, username, token_hash, name, is_active, expires_at, last_used_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		token.ID,
		token.Username,
		token.TokenHash,
		token.Name,
		token.IsActive,
		token.ExpiresAt,
		token.LastUsedAt,
		token.CreatedAt,
	).Error
}

func (r *repo) FindByHash(ctx context.Context, db *gorm.DB, hash string) (*domain.APIToken, error) {
	var tokens []domain.APIToken
	err := db.WithContext(ctx).
		Where("token_hash = ?", hash).
		Limit(1).
		Find(&tokens).Error
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, nil
	}
	return &tokens[0], nil
}

func (r *repo) Touch(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE api_tokens SET last_used_at = ? WHERE id = ?`,
		at,
		id,
	).Error
}

func (r *repo) Revoke(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE api_tokens SET is_active = ? WHERE id = ?`,
		false,
		id,
	).Error
}

func (r *repo) ListByUser(ctx context.Context, db *gorm.DB, username string) ([]domain.APIToken, error) {
	var tokens []domain.APIToken
	err := db.WithContext(ctx).
		Where("username = ?", username).
		Order("created_at DESC").
		Find(&tokens).Error
	return tokens, err
}
