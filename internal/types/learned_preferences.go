package types

import (
	"time"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// UserLearnedPreferences is the single authoritative per-user profile.
// IsAdapted is never stored: it is derived at read time from the user's
// first-seen date and TotalActions.
type UserLearnedPreferences struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	User         *User          `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
	TotalActions int            `gorm:"column:total_actions;not null;default:0" json:"total_actions"`
	Preferences  datatypes.JSON `gorm:"type:jsonb;column:preferences" json:"preferences"`
	CreatedAt    time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null" json:"updated_at"`
}

func (UserLearnedPreferences) TableName() string { return "user_learned_preferences" }

// LearnedPreferences is the document stored in the jsonb column and
// returned to clients.
type LearnedPreferences struct {
	Pricing  PricingPreferences  `json:"pricing"`
	Scope    ScopePreferences    `json:"scope"`
	Photos   PhotoPreferences    `json:"photos"`
	Workflow WorkflowPreferences `json:"workflow"`
}

type PricingPreferences struct {
	DefaultAdjustmentPercent float64            `json:"default_adjustment_percent"`
	ByJobType                map[string]float64 `json:"by_job_type,omitempty"`
	ByRegion                 map[string]float64 `json:"by_region,omitempty"`
}

type ScopePreferences struct {
	AlwaysAdd       []string            `json:"always_add,omitempty"`
	AlwaysRemove    []string            `json:"always_remove,omitempty"`
	AddByJobType    map[string][]string `json:"add_by_job_type,omitempty"`
	RemoveByJobType map[string][]string `json:"remove_by_job_type,omitempty"`
}

type PhotoPreferences struct {
	// Keys are 1-based upload positions rendered as strings, jsonb maps
	// only take string keys.
	CategoryByPosition map[string]string   `json:"category_by_position,omitempty"`
	CaptionsByCategory map[string][]string `json:"captions_by_category,omitempty"`
}

type WorkflowPreferences struct {
	CommonJobTypes []string `json:"common_job_types,omitempty"`
	CommonAreas    []string `json:"common_areas,omitempty"`
	AvgPhotoCount  float64  `json:"avg_photo_count"`
	AvgScopeCount  float64  `json:"avg_scope_count"`
}
