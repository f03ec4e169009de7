package types

import (
	"time"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	ProposalStatusDraft = "draft"
	ProposalStatusSent  = "sent"
	ProposalStatusWon   = "won"
	ProposalStatusLost  = "lost"
)

// Proposal is the slice of the proposal table the learning pipeline
// touches: context tags, the scope item list, the base price band and
// the eventual outcome. The full proposal/billing surface lives
// elsewhere.
type Proposal struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	User       *User          `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
	Title      string         `gorm:"column:title" json:"title"`
	Trade      string         `gorm:"column:trade;not null;index" json:"trade"`
	JobType    string         `gorm:"column:job_type;not null;index" json:"job_type"`
	JobSize    int            `gorm:"column:job_size;not null;default:2" json:"job_size"`
	Zip        string         `gorm:"column:zip;index" json:"zip"`
	City       string         `gorm:"column:city" json:"city"`
	State      string         `gorm:"column:state" json:"state"`
	Status     string         `gorm:"column:status;not null;default:draft;index" json:"status"`
	ScopeItems datatypes.JSON `gorm:"type:jsonb;column:scope_items" json:"scope_items"`
	BaseLow    int            `gorm:"column:base_low" json:"base_low"`
	BaseHigh   int            `gorm:"column:base_high" json:"base_high"`
	FinalValue *float64       `gorm:"column:final_value" json:"final_value,omitempty"`
	CreatedAt  time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"not null" json:"updated_at"`
}

func (Proposal) TableName() string { return "proposal" }
