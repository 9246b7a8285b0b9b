package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/bwmarrin/snowflake"
)

// APIToken stores the hash of a pre-issued bearer credential.
type APIToken struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	Username   string       `gorm:"type:text;not null;index"`
	TokenHash  string       `gorm:"column:token_hash;type:text;not null;uniqueIndex:ux_api_tokens_hash"`
	Name       string       `gorm:"type:text;not null"`
	IsActive   bool         `gorm:"column:is_active;not null;default:true"`
	ExpiresAt  *time.Time   `gorm:"column:expires_at"`
	LastUsedAt *time.Time   `gorm:"column:last_used_at"`
	CreatedAt  time.Time    `gorm:"not null"`
}

func (APIToken) TableName() string { return "api_tokens" }

// HashToken hashes a raw credential the same way at issue and lookup time.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
