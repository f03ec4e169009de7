package types

import (
	"time"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	DraftRunQueued    = "queued"
	DraftRunRunning   = "running"
	DraftRunSucceeded = "succeeded"
	DraftRunFailed    = "failed"
)

// DraftRun is one queued draft-generation job for a proposal. The
// idempotency key is unique, so a retried create POST lands on the
// existing run instead of queueing a duplicate.
type DraftRun struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	ProposalID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"proposal_id"`
	IdempotencyKey string         `gorm:"column:idempotency_key;not null;uniqueIndex" json:"idempotency_key"`
	Status         string         `gorm:"column:status;not null;index" json:"status"`
	Attempts       int            `gorm:"column:attempts;not null;default:0" json:"attempts"`
	Error          string         `gorm:"column:error" json:"error"`
	LastErrorAt    *time.Time     `gorm:"column:last_error_at" json:"last_error_at,omitempty"`
	LockedAt       *time.Time     `gorm:"column:locked_at;index" json:"locked_at,omitempty"`
	HeartbeatAt    *time.Time     `gorm:"column:heartbeat_at;index" json:"heartbeat_at,omitempty"`
	Result         datatypes.JSON `gorm:"type:jsonb;column:result" json:"result"`
	CreatedAt      time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null" json:"updated_at"`
}

func (DraftRun) TableName() string { return "draft_run" }
