package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Webhook subscribes a URL to events of one pack.
type Webhook struct {
	ID        snowflake.ID                `json:"id" gorm:"primaryKey"`
	PackName  string                      `json:"pack_name" gorm:"type:text;not null;index"`
	URL       string                      `json:"url" gorm:"type:text;not null"`
	Secret    *string                     `json:"-" gorm:"type:text"`
	Events    datatypes.JSONSlice[string] `json:"events"`
	Active    bool                        `json:"active" gorm:"not null;default:true"`
	CreatedBy string                      `json:"created_by" gorm:"type:text;not null"`
	CreatedAt time.Time                   `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time                   `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Webhook) TableName() string { return "webhooks" }

// Delivery is the write-once record of one notification attempt.
type Delivery struct {
	ID             snowflake.ID   `json:"id" gorm:"primaryKey"`
	WebhookID      snowflake.ID   `json:"webhook_id" gorm:"not null;index"`
	DeliveryID     string         `json:"delivery_id" gorm:"type:text;not null"`
	Event          string         `json:"event" gorm:"type:text;not null"`
	Payload        datatypes.JSON `json:"payload" gorm:"not null"`
	ResponseStatus int            `json:"response_status"`
	ResponseBody   string         `json:"response_body" gorm:"type:text"`
	Success        bool           `json:"success" gorm:"not null;default:false"`
	Error          string         `json:"error,omitempty" gorm:"type:text"`
	DurationMs     int64          `json:"duration_ms"`
	CreatedAt      time.Time      `json:"created_at" gorm:"not null;index"`
}

func (Delivery) TableName() string { return "webhook_deliveries" }
