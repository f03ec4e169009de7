package types

import "time"

// AggregationWatermark records, per aggregation job, the created_at of
// the newest action-log row a completed pass has consumed. Re-running a
// pass only picks up rows after the watermark, so scope counters are
// not double-counted on replays.
type AggregationWatermark struct {
	JobName     string    `gorm:"column:job_name;primaryKey" json:"job_name"`
	LastEventAt time.Time `gorm:"column:last_event_at;not null" json:"last_event_at"`
	UpdatedAt   time.Time `gorm:"not null" json:"updated_at"`
}

func (AggregationWatermark) TableName() string { return "aggregation_watermark" }
