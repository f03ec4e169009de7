package types

import (
	"time"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Action types recorded in the user action log. Frequency is the signal,
// so repeated identical actions are stored as separate rows.
const (
	ActionPhotoCategorize       = "photo_categorize"
	ActionScopeAdd              = "scope_add"
	ActionScopeRemove           = "scope_remove"
	ActionScopeEdit             = "scope_edit"
	ActionPriceAdjust           = "price_adjust"
	ActionPriceAcceptSuggestion = "price_accept_suggestion"
	ActionOptionEnable          = "option_enable"
	ActionOptionDisable         = "option_disable"
	ActionOptionSelect          = "option_select"
	ActionProposalCreate        = "proposal_create"
	ActionProposalSend          = "proposal_send"
	ActionProposalWon           = "proposal_won"
	ActionProposalLost          = "proposal_lost"
	ActionTemplateUse           = "template_use"
	ActionTemplateCustomize     = "template_customize"
)

const (
	OutcomePending = "pending"
	OutcomeWon     = "won"
	OutcomeLost    = "lost"
)

// UserActionEvent is one row in the append-only action log. Rows are
// immutable once written except for the outcome columns, which are
// back-filled when the proposal's fate becomes known.
type UserActionEvent struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	User         *User          `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
	ProposalID   *uuid.UUID     `gorm:"type:uuid;index" json:"proposal_id,omitempty"`
	ActionType   string         `gorm:"column:action_type;not null;index" json:"action_type"`
	Trade        string         `gorm:"column:trade;index" json:"trade"`
	JobType      string         `gorm:"column:job_type;index" json:"job_type"`
	Zip          string         `gorm:"column:zip;index" json:"zip"`
	City         string         `gorm:"column:city" json:"city"`
	State        string         `gorm:"column:state" json:"state"`
	Neighborhood string         `gorm:"column:neighborhood" json:"neighborhood"`
	Payload      datatypes.JSON `gorm:"type:jsonb;column:payload" json:"payload"`
	Outcome      string         `gorm:"column:outcome;default:pending;index" json:"outcome"`
	OutcomeValue *float64       `gorm:"column:outcome_value" json:"outcome_value,omitempty"`
	CreatedAt    time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null" json:"updated_at"`
}

func (UserActionEvent) TableName() string { return "user_action_log" }

// Typed payload shapes for the action types the aggregator reads back.
// Everything else rides through as opaque JSON.

type ScopeEditPayload struct {
	ScopeItem    string `json:"scope_item"`
	FromTemplate bool   `json:"from_template,omitempty"`
}

type PriceAdjustPayload struct {
	SuggestedLow  int `json:"suggested_low"`
	SuggestedHigh int `json:"suggested_high"`
	FinalLow      int `json:"final_low"`
	FinalHigh     int `json:"final_high"`
	JobSize       int `json:"job_size"`
}

type PhotoCategorizePayload struct {
	Position     int    `json:"position"`
	Category     string `json:"category"`
	Caption      string `json:"caption,omitempty"`
	AutoAssigned bool   `json:"auto_assigned,omitempty"`
	UserModified bool   `json:"user_modified,omitempty"`
}
