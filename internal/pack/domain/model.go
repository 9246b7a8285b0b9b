package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Pack is the mutable catalog row for a published artifact.
type Pack struct {
	Name         string                      `json:"name" gorm:"primaryKey;type:text"`
	Description  string                      `json:"description" gorm:"type:text;not null;default:''"`
	Author       string                      `json:"author" gorm:"type:text;not null;index"`
	Homepage     *string                     `json:"homepage,omitempty" gorm:"type:text"`
	Repository   *string                     `json:"repository,omitempty" gorm:"type:text"`
	License      *string                     `json:"license,omitempty" gorm:"type:text"`
	Tags         datatypes.JSONSlice[string] `json:"tags"`
	Targets      datatypes.JSONSlice[string] `json:"targets"`
	Features     datatypes.JSONSlice[string] `json:"features"`
	Dependencies datatypes.JSONSlice[string] `json:"dependencies"`
	Conflicts    datatypes.JSONSlice[string] `json:"conflicts"`
	Downloads    int64                       `json:"downloads" gorm:"not null;default:0"`
	Rating       float64                     `json:"rating" gorm:"not null;default:0"`
	Featured     bool                        `json:"featured" gorm:"not null;default:false"`
	Verified     bool                        `json:"verified" gorm:"not null;default:false"`
	CreatedAt    time.Time                   `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time                   `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Pack) TableName() string { return "packs" }

// Dependent is a pack that lists another pack among its dependencies.
type Dependent struct {
	Name      string `json:"name"`
	Downloads int64  `json:"downloads"`
}
