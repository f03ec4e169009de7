package types

import (
	"time"
	"github.com/google/uuid"
)

// PricingPattern rows come in two shapes sharing one table:
// per-event rows (UserID set, one row per recorded price adjustment)
// and aggregate rows (UserID null) holding an averaged adjustment for
// a zip or trade-wide key, with SampleCount filled in.
type PricingPattern struct {
	ID                uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID            *uuid.UUID `gorm:"type:uuid;index" json:"user_id,omitempty"`
	Trade             string     `gorm:"column:trade;not null;index" json:"trade"`
	JobType           string     `gorm:"column:job_type;not null;index" json:"job_type"`
	JobSize           int        `gorm:"column:job_size;not null;default:2" json:"job_size"`
	Zip               string     `gorm:"column:zip;index" json:"zip"`
	SuggestedLow      int        `gorm:"column:suggested_low" json:"suggested_low"`
	SuggestedHigh     int        `gorm:"column:suggested_high" json:"suggested_high"`
	FinalLow          int        `gorm:"column:final_low" json:"final_low"`
	FinalHigh         int        `gorm:"column:final_high" json:"final_high"`
	AdjustmentPercent float64    `gorm:"column:adjustment_percent;not null;default:0" json:"adjustment_percent"`
	SampleCount       int        `gorm:"column:sample_count;not null;default:1" json:"sample_count"`
	CreatedAt         time.Time  `gorm:"not null;index" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"not null" json:"updated_at"`
}

func (PricingPattern) TableName() string { return "pricing_pattern" }
