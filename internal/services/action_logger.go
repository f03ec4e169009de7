package services

import (
  "context"
  "encoding/json"
  "strings"
  "time"
  "github.com/google/uuid"
  "gorm.io/datatypes"
  "gorm.io/gorm"
  "github.com/scopegen/scopegen-backend/internal/knowledge"
  "github.com/scopegen/scopegen-backend/internal/logger"
  "github.com/scopegen/scopegen-backend/internal/repos"
  "github.com/scopegen/scopegen-backend/internal/requestdata"
  "github.com/scopegen/scopegen-backend/internal/types"
)

// ActionContext carries the tags every tracked action is filed under.
type ActionContext struct {
  Trade        string `json:"trade"`
  JobType      string `json:"job_type"`
  Zip          string `json:"zip"`
  City         string `json:"city"`
  State        string `json:"state"`
  Neighborhood string `json:"neighborhood"`
}

type ActionInput struct {
  ActionType string         `json:"action_type" binding:"required"`
  ProposalID *uuid.UUID     `json:"proposal_id,omitempty"`
  Context    ActionContext  `json:"context"`
  Payload    map[string]any `json:"payload,omitempty"`
}

var knownActionTypes = map[string]bool{
  types.ActionPhotoCategorize:       true,
  types.ActionScopeAdd:              true,
  types.ActionScopeRemove:           true,
  types.ActionScopeEdit:             true,
  types.ActionPriceAdjust:           true,
  types.ActionPriceAcceptSuggestion: true,
  types.ActionOptionEnable:          true,
  types.ActionOptionDisable:         true,
  types.ActionOptionSelect:          true,
  types.ActionProposalCreate:        true,
  types.ActionProposalSend:          true,
  types.ActionProposalWon:           true,
  types.ActionProposalLost:          true,
  types.ActionTemplateUse:           true,
  types.ActionTemplateCustomize:     true,
}

// ActionLogger appends to the user action log. Logging must never
// break the caller's main flow, so neither method returns an error:
// failures are logged and swallowed.
type ActionLogger interface {
  LogAction(ctx context.Context, input ActionInput)
  UpdateOutcome(ctx context.Context, proposalID uuid.UUID, outcome string, finalValue *float64)
}

type actionLogger struct {
  db        *gorm.DB
  log       *logger.Logger
  eventRepo repos.UserActionEventRepo
  priceRepo repos.PricingPatternRepo
  photoRepo repos.PhotoCategorizationRepo
}

func NewActionLogger(
  db *gorm.DB,
  baseLog *logger.Logger,
  eventRepo repos.UserActionEventRepo,
  priceRepo repos.PricingPatternRepo,
  photoRepo repos.PhotoCategorizationRepo,
) ActionLogger {
  return &actionLogger{
    db:        db,
    log:       baseLog.With("service", "ActionLogger"),
    eventRepo: eventRepo,
    priceRepo: priceRepo,
    photoRepo: photoRepo,
  }
}

func (s *actionLogger) LogAction(ctx context.Context, input ActionInput) {
  rd := requestdata.GetRequestData(ctx)
  if rd == nil || rd.UserID == uuid.Nil {
    s.log.Debug("Dropping action without authenticated user", "action_type", input.ActionType)
    return
  }
  actionType := strings.TrimSpace(strings.ToLower(input.ActionType))
  if !knownActionTypes[actionType] {
    s.log.Debug("Dropping unknown action type", "action_type", input.ActionType)
    return
  }

  payload := datatypes.JSON(nil)
  if input.Payload != nil {
    raw, err := json.Marshal(input.Payload)
    if err != nil {
      s.log.Warn("Could not marshal action payload, storing without it", "action_type", actionType, "error", err)
    } else {
      payload = datatypes.JSON(raw)
    }
  }

  now := time.Now().UTC()
  event := &types.UserActionEvent{
    ID:           uuid.New(),
    UserID:       rd.UserID,
    ProposalID:   input.ProposalID,
    ActionType:   actionType,
    Trade:        knowledge.Normalize(input.Context.Trade),
    JobType:      knowledge.Normalize(input.Context.JobType),
    Zip:          strings.TrimSpace(input.Context.Zip),
    City:         strings.TrimSpace(input.Context.City),
    State:        strings.TrimSpace(input.Context.State),
    Neighborhood: strings.TrimSpace(input.Context.Neighborhood),
    Payload:      payload,
    Outcome:      types.OutcomePending,
    CreatedAt:    now,
    UpdatedAt:    now,
  }
  if _, err := s.eventRepo.Create(ctx, nil, []*types.UserActionEvent{event}); err != nil {
    s.log.Error("Failed to append action event", "action_type", actionType, "user_id", rd.UserID.String(), "error", err)
    return
  }

  // Side tables for the read layer. Best effort, same as the log itself.
  switch actionType {
  case types.ActionPriceAdjust:
    s.recordPriceAdjust(ctx, event)
  case types.ActionPhotoCategorize:
    s.recordPhotoCategorization(ctx, event)
  }
}

func (s *actionLogger) recordPriceAdjust(ctx context.Context, event *types.UserActionEvent) {
  var payload types.PriceAdjustPayload
  if err := json.Unmarshal(event.Payload, &payload); err != nil {
    s.log.Warn("price_adjust payload did not parse, skipping pricing row", "error", err)
    return
  }
  jobSize := payload.JobSize
  if jobSize < 1 || jobSize > 3 {
    jobSize = 2
  }
  userID := event.UserID
  row := &types.PricingPattern{
    ID:                uuid.New(),
    UserID:            &userID,
    Trade:             event.Trade,
    JobType:           event.JobType,
    JobSize:           jobSize,
    Zip:               event.Zip,
    SuggestedLow:      payload.SuggestedLow,
    SuggestedHigh:     payload.SuggestedHigh,
    FinalLow:          payload.FinalLow,
    FinalHigh:         payload.FinalHigh,
    AdjustmentPercent: AdjustmentPercent(payload.SuggestedLow, payload.SuggestedHigh, payload.FinalLow, payload.FinalHigh),
    CreatedAt:         event.CreatedAt,
    UpdatedAt:         event.CreatedAt,
  }
  if err := s.priceRepo.CreateEvents(ctx, nil, []*types.PricingPattern{row}); err != nil {
    s.log.Error("Failed to record pricing pattern row", "user_id", event.UserID.String(), "error", err)
  }
}

func (s *actionLogger) recordPhotoCategorization(ctx context.Context, event *types.UserActionEvent) {
  var payload types.PhotoCategorizePayload
  if err := json.Unmarshal(event.Payload, &payload); err != nil {
    s.log.Warn("photo_categorize payload did not parse, skipping photo row", "error", err)
    return
  }
  if payload.Position < 1 || payload.Category == "" {
    return
  }
  record := &types.PhotoCategorizationRecord{
    ID:           uuid.New(),
    UserID:       event.UserID,
    Trade:        event.Trade,
    JobType:      event.JobType,
    Position:     payload.Position,
    Category:     strings.TrimSpace(strings.ToLower(payload.Category)),
    Caption:      strings.TrimSpace(payload.Caption),
    AutoAssigned: payload.AutoAssigned,
    UserModified: payload.UserModified,
    CreatedAt:    event.CreatedAt,
  }
  if err := s.photoRepo.Create(ctx, nil, []*types.PhotoCategorizationRecord{record}); err != nil {
    s.log.Error("Failed to record photo categorization row", "user_id", event.UserID.String(), "error", err)
  }
}

func (s *actionLogger) UpdateOutcome(ctx context.Context, proposalID uuid.UUID, outcome string, finalValue *float64) {
  if proposalID == uuid.Nil {
    return
  }
  if outcome != types.OutcomeWon && outcome != types.OutcomeLost && outcome != types.OutcomePending {
    s.log.Warn("Ignoring unknown outcome", "outcome", outcome, "proposal_id", proposalID.String())
    return
  }
  if err := s.eventRepo.UpdateOutcomeByProposalID(ctx, nil, proposalID, outcome, finalValue); err != nil {
    s.log.Error("Failed to backfill action outcomes", "proposal_id", proposalID.String(), "error", err)
  }
}

// AdjustmentPercent derives how far the final band moved from the
// suggested band, comparing midpoints.
func AdjustmentPercent(suggestedLow, suggestedHigh, finalLow, finalHigh int) float64 {
  suggestedMid := float64(suggestedLow+suggestedHigh) / 2
  finalMid := float64(finalLow+finalHigh) / 2
  if suggestedMid == 0 {
    return 0
  }
  return (finalMid/suggestedMid - 1) * 100
}
