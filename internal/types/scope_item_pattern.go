package types

import (
	"time"
	"github.com/google/uuid"
)

// ScopeItemPattern aggregates scope add/remove behavior per
// (trade, job type, scope item, optional zip). Counters only ever
// grow; the aggregator adds new window counts onto them.
type ScopeItemPattern struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Trade         string    `gorm:"column:trade;not null;uniqueIndex:idx_scope_pattern_key" json:"trade"`
	JobType       string    `gorm:"column:job_type;not null;uniqueIndex:idx_scope_pattern_key" json:"job_type"`
	ScopeItem     string    `gorm:"column:scope_item;not null;uniqueIndex:idx_scope_pattern_key" json:"scope_item"`
	Zip           string    `gorm:"column:zip;uniqueIndex:idx_scope_pattern_key" json:"zip"`
	AddedCount    int       `gorm:"column:added_count;not null;default:0" json:"added_count"`
	RemovedCount  int       `gorm:"column:removed_count;not null;default:0" json:"removed_count"`
	ModifiedCount int       `gorm:"column:modified_count;not null;default:0" json:"modified_count"`
	WonCount      int       `gorm:"column:won_count;not null;default:0" json:"won_count"`
	LostCount     int       `gorm:"column:lost_count;not null;default:0" json:"lost_count"`
	FromTemplate  bool      `gorm:"column:from_template;not null;default:false" json:"from_template"`
	CreatedAt     time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time `gorm:"not null" json:"updated_at"`
}

func (ScopeItemPattern) TableName() string { return "scope_item_pattern" }
