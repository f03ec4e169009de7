package repos

import (
  "context"
  "errors"
  "time"

  "github.com/google/uuid"
  "gorm.io/gorm"
  "gorm.io/gorm/clause"

  "github.com/scopegen/scopegen-backend/internal/logger"
  "github.com/scopegen/scopegen-backend/internal/types"
)

type DraftRunRepo interface {
  Create(ctx context.Context, tx *gorm.DB, runs []*types.DraftRun) ([]*types.DraftRun, error)
  GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.DraftRun, error)
  GetByIdempotencyKey(ctx context.Context, tx *gorm.DB, key string) (*types.DraftRun, error)
  GetLatestByProposalID(ctx context.Context, tx *gorm.DB, proposalID uuid.UUID) (*types.DraftRun, error)

  // Claims the next run that is runnable:
  // - status=queued
  // - OR status=failed and attempts < maxAttempts and last_error_at older than retryDelay (or NULL)
  // - OR status=running but heartbeat is stale (crash recovery)
  ClaimNextRunnable(ctx context.Context, tx *gorm.DB, maxAttempts int, retryDelay time.Duration, staleRunning time.Duration) (*types.DraftRun, error)

  UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
  Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type draftRunRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewDraftRunRepo(db *gorm.DB, baseLog *logger.Logger) DraftRunRepo {
  repoLog := baseLog.With("repo", "DraftRunRepo")
  return &draftRunRepo{db: db, log: repoLog}
}

func (r *draftRunRepo) Create(ctx context.Context, tx *gorm.DB, runs []*types.DraftRun) ([]*types.DraftRun, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if len(runs) == 0 {
    return []*types.DraftRun{}, nil
  }
  if err := transaction.WithContext(ctx).Create(&runs).Error; err != nil {
    return nil, err
  }
  return runs, nil
}

func (r *draftRunRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.DraftRun, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var results []*types.DraftRun
  if len(ids) == 0 {
    return results, nil
  }
  if err := transaction.WithContext(ctx).
    Where("id IN ?", ids).
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (r *draftRunRepo) GetByIdempotencyKey(ctx context.Context, tx *gorm.DB, key string) (*types.DraftRun, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if key == "" {
    return nil, nil
  }
  var run types.DraftRun
  err := transaction.WithContext(ctx).
    Where("idempotency_key = ?", key).
    First(&run).Error
  if errors.Is(err, gorm.ErrRecordNotFound) {
    return nil, nil
  }
  if err != nil {
    return nil, err
  }
  return &run, nil
}

func (r *draftRunRepo) GetLatestByProposalID(ctx context.Context, tx *gorm.DB, proposalID uuid.UUID) (*types.DraftRun, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if proposalID == uuid.Nil {
    return nil, nil
  }
  var run types.DraftRun
  err := transaction.WithContext(ctx).
    Where("proposal_id = ?", proposalID).
    Order("created_at DESC").
    Limit(1).
    Find(&run).Error
  if err != nil {
    return nil, err
  }
  if run.ID == uuid.Nil {
    return nil, nil
  }
  return &run, nil
}

func (r *draftRunRepo) ClaimNextRunnable(
  ctx context.Context,
  tx *gorm.DB,
  maxAttempts int,
  retryDelay time.Duration,
  staleRunning time.Duration,
) (*types.DraftRun, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  now := time.Now()
  retryCutoff := now.Add(-retryDelay)
  staleCutoff := now.Add(-staleRunning)

  var claimed *types.DraftRun

  err := transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
    var run types.DraftRun

    q := txx.
      Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
      Where(`
        (
          status = ?
          OR (
            status = ?
            AND attempts < ?
            AND (last_error_at IS NULL OR last_error_at < ?)
          )
          OR (
            status = ?
            AND heartbeat_at IS NOT NULL
            AND heartbeat_at < ?
          )
        )
      `, types.DraftRunQueued, types.DraftRunFailed, maxAttempts, retryCutoff, types.DraftRunRunning, staleCutoff).
      Order("created_at ASC")

    qErr := q.First(&run).Error
    if errors.Is(qErr, gorm.ErrRecordNotFound) {
      return nil
    }
    if qErr != nil {
      return qErr
    }

    // Claim it: mark running, increment attempts, set lock/heartbeat.
    uErr := txx.Model(&types.DraftRun{}).
      Where("id = ?", run.ID).
      Updates(map[string]interface{}{
        "status":       types.DraftRunRunning,
        "attempts":     gorm.Expr("attempts + 1"),
        "locked_at":    now,
        "heartbeat_at": now,
        "updated_at":   now,
      }).Error
    if uErr != nil {
      return uErr
    }

    claimed = &run
    return nil
  })

  if err != nil {
    return nil, err
  }
  return claimed, nil
}

func (r *draftRunRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if id == uuid.Nil {
    return nil
  }
  if updates == nil {
    updates = map[string]interface{}{}
  }
  if _, ok := updates["updated_at"]; !ok {
    updates["updated_at"] = time.Now()
  }
  return transaction.WithContext(ctx).
    Model(&types.DraftRun{}).
    Where("id = ?", id).
    Updates(updates).Error
}

func (r *draftRunRepo) Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if id == uuid.Nil {
    return nil
  }
  now := time.Now()
  return transaction.WithContext(ctx).
    Model(&types.DraftRun{}).
    Where("id = ?", id).
    Updates(map[string]interface{}{
      "heartbeat_at": now,
      "updated_at":   now,
    }).Error
}
