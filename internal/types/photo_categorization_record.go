package types

import (
	"time"
	"github.com/google/uuid"
)

// PhotoCategorizationRecord is one row per photo_categorize action,
// written by the action logger alongside the raw event. Position is
// 1-based upload order within the job.
type PhotoCategorizationRecord struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	Trade        string    `gorm:"column:trade;not null;index" json:"trade"`
	JobType      string    `gorm:"column:job_type;not null;index" json:"job_type"`
	Position     int       `gorm:"column:position;not null" json:"position"`
	Category     string    `gorm:"column:category;not null" json:"category"`
	Caption      string    `gorm:"column:caption" json:"caption"`
	AutoAssigned bool      `gorm:"column:auto_assigned;not null;default:false" json:"auto_assigned"`
	UserModified bool      `gorm:"column:user_modified;not null;default:false" json:"user_modified"`
	CreatedAt    time.Time `gorm:"not null;index" json:"created_at"`
}

func (PhotoCategorizationRecord) TableName() string { return "photo_categorization_learning" }
