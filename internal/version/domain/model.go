package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// PackVersion is an immutable release of a pack. Rows are never updated.
type PackVersion struct {
	ID         snowflake.ID   `json:"id" gorm:"primaryKey"`
	PackName   string         `json:"pack_name" gorm:"type:text;not null;uniqueIndex:ux_pack_versions_pack_version,priority:1"`
	Version    string         `json:"version" gorm:"type:text;not null;uniqueIndex:ux_pack_versions_pack_version,priority:2"`
	Integrity  string         `json:"integrity" gorm:"type:text;not null"`
	TarballURL string         `json:"tarball_url" gorm:"column:tarball_url;type:text;not null"`
	Size       int64          `json:"size" gorm:"not null"`
	Manifest   datatypes.JSON `json:"manifest" gorm:"not null"`
	FileCount  int            `json:"file_count" gorm:"not null;default:0"`
	Changelog  *string        `json:"changelog,omitempty" gorm:"type:text"`
	CreatedAt  time.Time      `json:"created_at" gorm:"not null;index"`
}

func (PackVersion) TableName() string { return "pack_versions" }

// Key identifies a stored tarball.
type Key struct {
	PackName string
	Version  string
}
