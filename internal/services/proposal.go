package services

import (
  "context"
  "encoding/json"
  "fmt"
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

type CreateProposalInput struct {
  Title      string   `json:"title"`
  Trade      string   `json:"trade" binding:"required"`
  JobType    string   `json:"job_type" binding:"required"`
  JobSize    int      `json:"job_size"`
  Zip        string   `json:"zip"`
  City       string   `json:"city"`
  State      string   `json:"state"`
  ScopeItems []string `json:"scope_items"`
  BaseLow    int      `json:"base_low"`
  BaseHigh   int      `json:"base_high"`
}

type CloseProposalInput struct {
  Outcome    string   `json:"outcome" binding:"required"`
  FinalValue *float64 `json:"final_value,omitempty"`
}

type ProposalService interface {
  Create(ctx context.Context, input CreateProposalInput) (*types.Proposal, error)
  GetByID(ctx context.Context, id uuid.UUID) (*types.Proposal, error)
  ListMine(ctx context.Context) ([]*types.Proposal, error)
  Send(ctx context.Context, id uuid.UUID) (*types.Proposal, error)
  Close(ctx context.Context, id uuid.UUID, input CloseProposalInput) (*types.Proposal, error)
}

type proposalService struct {
  db           *gorm.DB
  log          *logger.Logger
  proposalRepo repos.ProposalRepo
  actions      ActionLogger
}

func NewProposalService(
  db *gorm.DB,
  baseLog *logger.Logger,
  proposalRepo repos.ProposalRepo,
  actions ActionLogger,
) ProposalService {
  return &proposalService{
    db:           db,
    log:          baseLog.With("service", "ProposalService"),
    proposalRepo: proposalRepo,
    actions:      actions,
  }
}

var ErrProposalNotFound = fmt.Errorf("proposal not found")

func (s *proposalService) Create(ctx context.Context, input CreateProposalInput) (*types.Proposal, error) {
  rd := requestdata.GetRequestData(ctx)
  if rd == nil || rd.UserID == uuid.Nil {
    return nil, fmt.Errorf("not authenticated")
  }
  if input.JobSize < 1 || input.JobSize > 3 {
    input.JobSize = 2
  }
  scopeJSON := datatypes.JSON(nil)
  if input.ScopeItems != nil {
    raw, err := json.Marshal(input.ScopeItems)
    if err != nil {
      return nil, err
    }
    scopeJSON = datatypes.JSON(raw)
  }
  proposal := &types.Proposal{
    ID:         uuid.New(),
    UserID:     rd.UserID,
    Title:      input.Title,
    Trade:      knowledge.Normalize(input.Trade),
    JobType:    knowledge.Normalize(input.JobType),
    JobSize:    input.JobSize,
    Zip:        input.Zip,
    City:       input.City,
    State:      input.State,
    Status:     types.ProposalStatusDraft,
    ScopeItems: scopeJSON,
    BaseLow:    input.BaseLow,
    BaseHigh:   input.BaseHigh,
  }
  created, err := s.proposalRepo.Create(ctx, nil, []*types.Proposal{proposal})
  if err != nil {
    return nil, err
  }

  s.actions.LogAction(ctx, ActionInput{
    ActionType: types.ActionProposalCreate,
    ProposalID: &proposal.ID,
    Context: ActionContext{
      Trade:   proposal.Trade,
      JobType: proposal.JobType,
      Zip:     proposal.Zip,
      City:    proposal.City,
      State:   proposal.State,
    },
  })
  return created[0], nil
}

// getOwned loads a proposal and checks it belongs to the caller.
func (s *proposalService) getOwned(ctx context.Context, id uuid.UUID) (*types.Proposal, error) {
  rd := requestdata.GetRequestData(ctx)
  if rd == nil || rd.UserID == uuid.Nil {
    return nil, fmt.Errorf("not authenticated")
  }
  proposals, err := s.proposalRepo.GetByIDs(ctx, nil, []uuid.UUID{id})
  if err != nil {
    return nil, err
  }
  if len(proposals) == 0 || proposals[0] == nil || proposals[0].UserID != rd.UserID {
    return nil, ErrProposalNotFound
  }
  return proposals[0], nil
}

func (s *proposalService) GetByID(ctx context.Context, id uuid.UUID) (*types.Proposal, error) {
  return s.getOwned(ctx, id)
}

func (s *proposalService) ListMine(ctx context.Context) ([]*types.Proposal, error) {
  rd := requestdata.GetRequestData(ctx)
  if rd == nil || rd.UserID == uuid.Nil {
    return nil, fmt.Errorf("not authenticated")
  }
  return s.proposalRepo.GetByUserID(ctx, nil, rd.UserID)
}

func (s *proposalService) Send(ctx context.Context, id uuid.UUID) (*types.Proposal, error) {
  proposal, err := s.getOwned(ctx, id)
  if err != nil {
    return nil, err
  }
  if proposal.Status != types.ProposalStatusDraft {
    return nil, fmt.Errorf("proposal is %s, only drafts can be sent", proposal.Status)
  }
  if err := s.proposalRepo.UpdateFields(ctx, nil, id, map[string]interface{}{
    "status": types.ProposalStatusSent,
  }); err != nil {
    return nil, err
  }
  proposal.Status = types.ProposalStatusSent
  proposal.UpdatedAt = time.Now()

  s.actions.LogAction(ctx, ActionInput{
    ActionType: types.ActionProposalSend,
    ProposalID: &proposal.ID,
    Context: ActionContext{
      Trade:   proposal.Trade,
      JobType: proposal.JobType,
      Zip:     proposal.Zip,
      City:    proposal.City,
      State:   proposal.State,
    },
  })
  return proposal, nil
}

// Close records the proposal's fate. The won/lost event plus the
// outcome backfill is what feeds win-rate learning, so both happen
// here even though either could fail independently.
func (s *proposalService) Close(ctx context.Context, id uuid.UUID, input CloseProposalInput) (*types.Proposal, error) {
  proposal, err := s.getOwned(ctx, id)
  if err != nil {
    return nil, err
  }

  var status, outcome, actionType string
  switch input.Outcome {
  case types.OutcomeWon:
    status, outcome, actionType = types.ProposalStatusWon, types.OutcomeWon, types.ActionProposalWon
  case types.OutcomeLost:
    status, outcome, actionType = types.ProposalStatusLost, types.OutcomeLost, types.ActionProposalLost
  default:
    return nil, fmt.Errorf("outcome must be won or lost")
  }
  if proposal.Status == types.ProposalStatusWon || proposal.Status == types.ProposalStatusLost {
    return nil, fmt.Errorf("proposal is already %s", proposal.Status)
  }

  updates := map[string]interface{}{"status": status}
  if input.FinalValue != nil {
    updates["final_value"] = *input.FinalValue
  }
  if err := s.proposalRepo.UpdateFields(ctx, nil, id, updates); err != nil {
    return nil, err
  }
  proposal.Status = status
  proposal.FinalValue = input.FinalValue
  proposal.UpdatedAt = time.Now()

  payload := map[string]any{"scope_items": scopeItemList(proposal.ScopeItems)}
  if input.FinalValue != nil {
    payload["final_value"] = *input.FinalValue
  }
  s.actions.LogAction(ctx, ActionInput{
    ActionType: actionType,
    ProposalID: &proposal.ID,
    Context: ActionContext{
      Trade:   proposal.Trade,
      JobType: proposal.JobType,
      Zip:     proposal.Zip,
      City:    proposal.City,
      State:   proposal.State,
    },
    Payload: payload,
  })
  s.actions.UpdateOutcome(ctx, proposal.ID, outcome, input.FinalValue)

  return proposal, nil
}

func scopeItemList(raw datatypes.JSON) []string {
  if len(raw) == 0 {
    return nil
  }
  var items []string
  if err := json.Unmarshal(raw, &items); err != nil {
    return nil
  }
  return items
}
