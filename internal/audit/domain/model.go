package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// AuditLog is one recorded registry mutation.
type AuditLog struct {
	ID         snowflake.ID      `json:"id" gorm:"primaryKey"`
	Actor      string            `json:"actor" gorm:"type:text;not null;index"`
	Action     string            `json:"action" gorm:"type:text;not null"`
	TargetType string            `json:"target_type" gorm:"column:target_type;type:text;not null"`
	TargetID   string            `json:"target_id" gorm:"column:target_id;type:text;not null"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty"`
	RequestID  *string           `json:"request_id,omitempty" gorm:"column:request_id"`
	IPAddress  *string           `json:"ip_address,omitempty" gorm:"column:ip_address"`
	CreatedAt  time.Time         `json:"created_at" gorm:"not null"`
}

func (AuditLog) TableName() string { return "audit_logs" }
