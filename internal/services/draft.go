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

const (
  draftMaxAttempts  = 5
  draftRetryDelay   = 30 * time.Second
  draftStaleRunning = 2 * time.Minute
)

var ErrDraftRunNotFound = fmt.Errorf("draft run not found")

// DraftResult is the document stored on a succeeded run and handed to
// the client when polling completes.
type DraftResult struct {
  ProposalID      uuid.UUID          `json:"proposal_id"`
  ScopeItems      []string           `json:"scope_items"`
  ScopeAdditions  []ScopeSuggestion  `json:"scope_additions,omitempty"`
  ScopeRemovals   []ScopeSuggestion  `json:"scope_removals,omitempty"`
  Pricing         *PricingSuggestion `json:"pricing,omitempty"`
  KnowledgeSource string             `json:"knowledge_source,omitempty"`
  GeneratedAt     time.Time          `json:"generated_at"`
}

type DraftService interface {
  // Enqueue queues a generation run for the proposal. Calling it twice
  // with the same idempotency key returns the first run both times.
  Enqueue(ctx context.Context, proposalID uuid.UUID, idempotencyKey string) (*types.DraftRun, error)
  GetRun(ctx context.Context, id uuid.UUID) (*types.DraftRun, error)
  GetLatestForProposal(ctx context.Context, proposalID uuid.UUID) (*types.DraftRun, error)
  StartWorker(ctx context.Context)
}

type draftService struct {
  db           *gorm.DB
  log          *logger.Logger
  runRepo      repos.DraftRunRepo
  proposalRepo repos.ProposalRepo
  recs         RecommendationService
  interval     time.Duration
}

func NewDraftService(
  db *gorm.DB,
  baseLog *logger.Logger,
  runRepo repos.DraftRunRepo,
  proposalRepo repos.ProposalRepo,
  recs RecommendationService,
  interval time.Duration,
) DraftService {
  if interval <= 0 {
    interval = 2 * time.Second
  }
  return &draftService{
    db:           db,
    log:          baseLog.With("service", "DraftService"),
    runRepo:      runRepo,
    proposalRepo: proposalRepo,
    recs:         recs,
    interval:     interval,
  }
}

func (s *draftService) Enqueue(ctx context.Context, proposalID uuid.UUID, idempotencyKey string) (*types.DraftRun, error) {
  rd := requestdata.GetRequestData(ctx)
  if rd == nil || rd.UserID == uuid.Nil {
    return nil, fmt.Errorf("not authenticated")
  }
  if idempotencyKey == "" {
    return nil, fmt.Errorf("idempotency key is required")
  }

  existing, err := s.runRepo.GetByIdempotencyKey(ctx, nil, idempotencyKey)
  if err != nil {
    return nil, err
  }
  if existing != nil {
    if existing.UserID != rd.UserID {
      return nil, ErrDraftRunNotFound
    }
    return existing, nil
  }

  proposals, err := s.proposalRepo.GetByIDs(ctx, nil, []uuid.UUID{proposalID})
  if err != nil {
    return nil, err
  }
  if len(proposals) == 0 || proposals[0] == nil || proposals[0].UserID != rd.UserID {
    return nil, ErrProposalNotFound
  }

  run := &types.DraftRun{
    ID:             uuid.New(),
    UserID:         rd.UserID,
    ProposalID:     proposalID,
    IdempotencyKey: idempotencyKey,
    Status:         types.DraftRunQueued,
  }
  created, err := s.runRepo.Create(ctx, nil, []*types.DraftRun{run})
  if err != nil {
    // A concurrent request with the same key can win the insert race.
    dup, dupErr := s.runRepo.GetByIdempotencyKey(ctx, nil, idempotencyKey)
    if dupErr == nil && dup != nil && dup.UserID == rd.UserID {
      return dup, nil
    }
    return nil, err
  }
  return created[0], nil
}

func (s *draftService) GetRun(ctx context.Context, id uuid.UUID) (*types.DraftRun, error) {
  rd := requestdata.GetRequestData(ctx)
  if rd == nil || rd.UserID == uuid.Nil {
    return nil, fmt.Errorf("not authenticated")
  }
  runs, err := s.runRepo.GetByIDs(ctx, nil, []uuid.UUID{id})
  if err != nil {
    return nil, err
  }
  if len(runs) == 0 || runs[0] == nil || runs[0].UserID != rd.UserID {
    return nil, ErrDraftRunNotFound
  }
  return runs[0], nil
}

func (s *draftService) GetLatestForProposal(ctx context.Context, proposalID uuid.UUID) (*types.DraftRun, error) {
  rd := requestdata.GetRequestData(ctx)
  if rd == nil || rd.UserID == uuid.Nil {
    return nil, fmt.Errorf("not authenticated")
  }
  run, err := s.runRepo.GetLatestByProposalID(ctx, nil, proposalID)
  if err != nil {
    return nil, err
  }
  if run == nil || run.UserID != rd.UserID {
    return nil, ErrDraftRunNotFound
  }
  return run, nil
}

func (s *draftService) StartWorker(ctx context.Context) {
  go func() {
    s.log.Info("Draft worker started", "interval", s.interval.String())
    ticker := time.NewTicker(s.interval)
    defer ticker.Stop()
    for {
      select {
      case <-ctx.Done():
        s.log.Info("Draft worker stopping")
        return
      case <-ticker.C:
        for {
          run, err := s.runRepo.ClaimNextRunnable(ctx, nil, draftMaxAttempts, draftRetryDelay, draftStaleRunning)
          if err != nil {
            s.log.Error("Failed to claim draft run", "error", err)
            break
          }
          if run == nil {
            break
          }
          s.process(ctx, run)
        }
      }
    }
  }()
}

func (s *draftService) process(ctx context.Context, run *types.DraftRun) {
  runLog := s.log.With("draft_run_id", run.ID.String(), "proposal_id", run.ProposalID.String())

  hbCtx, stopHeartbeat := context.WithCancel(ctx)
  defer stopHeartbeat()
  go func() {
    ticker := time.NewTicker(draftStaleRunning / 4)
    defer ticker.Stop()
    for {
      select {
      case <-hbCtx.Done():
        return
      case <-ticker.C:
        if err := s.runRepo.Heartbeat(hbCtx, nil, run.ID); err != nil {
          runLog.Warn("Draft run heartbeat failed", "error", err)
        }
      }
    }
  }()

  result, err := s.generate(ctx, run)
  if err != nil {
    runLog.Error("Draft generation failed", "attempt", run.Attempts+1, "error", err)
    now := time.Now()
    if uErr := s.runRepo.UpdateFields(ctx, nil, run.ID, map[string]interface{}{
      "status":        types.DraftRunFailed,
      "error":         err.Error(),
      "last_error_at": now,
    }); uErr != nil {
      runLog.Error("Failed to mark draft run failed", "error", uErr)
    }
    return
  }

  raw, err := json.Marshal(result)
  if err != nil {
    runLog.Error("Failed to marshal draft result", "error", err)
    return
  }
  if err := s.runRepo.UpdateFields(ctx, nil, run.ID, map[string]interface{}{
    "status": types.DraftRunSucceeded,
    "result": datatypes.JSON(raw),
    "error":  "",
  }); err != nil {
    runLog.Error("Failed to mark draft run succeeded", "error", err)
    return
  }
  runLog.Info("Draft generated", "scope_items", len(result.ScopeItems))
}

// generate composes the draft: knowledge-base defaults seed the scope
// list, then learned suggestions and pricing are layered on. The run is
// executed as its owner so own-history lookups resolve.
func (s *draftService) generate(ctx context.Context, run *types.DraftRun) (*DraftResult, error) {
  proposals, err := s.proposalRepo.GetByIDs(ctx, nil, []uuid.UUID{run.ProposalID})
  if err != nil {
    return nil, fmt.Errorf("load proposal: %w", err)
  }
  if len(proposals) == 0 || proposals[0] == nil {
    return nil, fmt.Errorf("proposal %s not found", run.ProposalID)
  }
  proposal := proposals[0]

  ctx = requestdata.WithRequestData(ctx, &requestdata.RequestData{UserID: run.UserID})
  rctx := RecommendationContext{
    Trade:   proposal.Trade,
    JobType: proposal.JobType,
    Zip:     proposal.Zip,
    City:    proposal.City,
    State:   proposal.State,
  }

  scopeItems := scopeItemList(proposal.ScopeItems)
  knowledgeSource := ""
  if len(scopeItems) == 0 {
    if jk := s.recs.JobTypeKnowledge(proposal.JobType); jk != nil {
      for _, c := range jk.RequiredComponents {
        if c.DefaultInclude {
          scopeItems = append(scopeItems, c.Name)
        }
      }
      knowledgeSource = knowledge.Normalize(proposal.JobType)
    }
  }

  suggestions := s.recs.SuggestScopeItems(ctx, rctx, scopeItems)
  result := &DraftResult{
    ProposalID:      proposal.ID,
    ScopeItems:      scopeItems,
    KnowledgeSource: knowledgeSource,
    GeneratedAt:     time.Now().UTC(),
  }
  if suggestions != nil {
    result.ScopeAdditions = suggestions.Additions
    result.ScopeRemovals = suggestions.Removals
  }
  result.Pricing = s.recs.SuggestPricing(ctx, rctx, proposal.BaseLow, proposal.BaseHigh, proposal.JobSize)

  if len(scopeItems) > 0 {
    raw, mErr := json.Marshal(scopeItems)
    if mErr == nil {
      if uErr := s.proposalRepo.UpdateFields(ctx, nil, proposal.ID, map[string]interface{}{
        "scope_items": datatypes.JSON(raw),
      }); uErr != nil {
        s.log.Warn("Could not persist generated scope list", "proposal_id", proposal.ID.String(), "error", uErr)
      }
    }
  }
  return result, nil
}
