package repos

import (
  "context"
  "time"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "gorm.io/gorm/clause"
  "github.com/scopegen/scopegen-backend/internal/logger"
  "github.com/scopegen/scopegen-backend/internal/types"
)

type ScopePatternKey struct {
  Trade     string
  JobType   string
  ScopeItem string
  Zip       string
}

type ScopeItemPatternRepo interface {
  // IncrementCounts upserts the pattern row for key, adding the given
  // deltas onto the existing counters. Counters never decrease.
  IncrementCounts(ctx context.Context, tx *gorm.DB, key ScopePatternKey, added, removed, modified int, fromTemplate bool) error
  IncrementOutcomes(ctx context.Context, tx *gorm.DB, key ScopePatternKey, won, lost int) error
  ListByTradeJobType(ctx context.Context, tx *gorm.DB, trade, jobType string) ([]*types.ScopeItemPattern, error)
}

type scopeItemPatternRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewScopeItemPatternRepo(db *gorm.DB, baseLog *logger.Logger) ScopeItemPatternRepo {
  repoLog := baseLog.With("repo", "ScopeItemPatternRepo")
  return &scopeItemPatternRepo{db: db, log: repoLog}
}

func (r *scopeItemPatternRepo) IncrementCounts(ctx context.Context, tx *gorm.DB, key ScopePatternKey, added, removed, modified int, fromTemplate bool) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if key.Trade == "" || key.JobType == "" || key.ScopeItem == "" {
    return nil
  }
  now := time.Now()
  row := &types.ScopeItemPattern{
    ID:            uuid.New(),
    Trade:         key.Trade,
    JobType:       key.JobType,
    ScopeItem:     key.ScopeItem,
    Zip:           key.Zip,
    AddedCount:    added,
    RemovedCount:  removed,
    ModifiedCount: modified,
    FromTemplate:  fromTemplate,
    CreatedAt:     now,
    UpdatedAt:     now,
  }
  return transaction.WithContext(ctx).
    Clauses(clause.OnConflict{
      Columns: []clause.Column{
        {Name: "trade"}, {Name: "job_type"}, {Name: "scope_item"}, {Name: "zip"},
      },
      DoUpdates: clause.Assignments(map[string]interface{}{
        "added_count":    gorm.Expr("added_count + ?", added),
        "removed_count":  gorm.Expr("removed_count + ?", removed),
        "modified_count": gorm.Expr("modified_count + ?", modified),
        "updated_at":     now,
      }),
    }).
    Create(row).Error
}

func (r *scopeItemPatternRepo) IncrementOutcomes(ctx context.Context, tx *gorm.DB, key ScopePatternKey, won, lost int) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if key.Trade == "" || key.JobType == "" || key.ScopeItem == "" {
    return nil
  }
  if won == 0 && lost == 0 {
    return nil
  }
  now := time.Now()
  row := &types.ScopeItemPattern{
    ID:        uuid.New(),
    Trade:     key.Trade,
    JobType:   key.JobType,
    ScopeItem: key.ScopeItem,
    Zip:       key.Zip,
    WonCount:  won,
    LostCount: lost,
    CreatedAt: now,
    UpdatedAt: now,
  }
  return transaction.WithContext(ctx).
    Clauses(clause.OnConflict{
      Columns: []clause.Column{
        {Name: "trade"}, {Name: "job_type"}, {Name: "scope_item"}, {Name: "zip"},
      },
      DoUpdates: clause.Assignments(map[string]interface{}{
        "won_count":  gorm.Expr("won_count + ?", won),
        "lost_count": gorm.Expr("lost_count + ?", lost),
        "updated_at": now,
      }),
    }).
    Create(row).Error
}

func (r *scopeItemPatternRepo) ListByTradeJobType(ctx context.Context, tx *gorm.DB, trade, jobType string) ([]*types.ScopeItemPattern, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var results []*types.ScopeItemPattern
  if trade == "" || jobType == "" {
    return results, nil
  }
  if err := transaction.WithContext(ctx).
    Where("trade = ? AND job_type = ?", trade, jobType).
    Order("added_count DESC").
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}
