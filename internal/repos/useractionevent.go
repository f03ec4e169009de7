package repos

import (
  "context"
  "time"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "github.com/scopegen/scopegen-backend/internal/logger"
  "github.com/scopegen/scopegen-backend/internal/types"
)

type UserActionEventRepo interface {
  Create(ctx context.Context, tx *gorm.DB, events []*types.UserActionEvent) ([]*types.UserActionEvent, error)
  GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID, since time.Time) ([]*types.UserActionEvent, error)
  CountByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (int64, error)
  // ListWindow returns events with created_at in (since, until], oldest
  // first, optionally filtered to the given action types. Used by the
  // aggregator to walk forward from its watermark.
  ListWindow(ctx context.Context, tx *gorm.DB, since, until time.Time, actionTypes []string) ([]*types.UserActionEvent, error)
  ListByProposalID(ctx context.Context, tx *gorm.DB, proposalID uuid.UUID, actionTypes []string) ([]*types.UserActionEvent, error)
  UpdateOutcomeByProposalID(ctx context.Context, tx *gorm.DB, proposalID uuid.UUID, outcome string, outcomeValue *float64) error
  ActiveUserIDs(ctx context.Context, tx *gorm.DB, since time.Time) ([]uuid.UUID, error)
}

type userActionEventRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewUserActionEventRepo(db *gorm.DB, baseLog *logger.Logger) UserActionEventRepo {
  repoLog := baseLog.With("repo", "UserActionEventRepo")
  return &userActionEventRepo{db: db, log: repoLog}
}

func (r *userActionEventRepo) Create(ctx context.Context, tx *gorm.DB, events []*types.UserActionEvent) ([]*types.UserActionEvent, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if len(events) == 0 {
    return []*types.UserActionEvent{}, nil
  }
  if err := transaction.WithContext(ctx).Create(&events).Error; err != nil {
    return nil, err
  }
  return events, nil
}

func (r *userActionEventRepo) GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID, since time.Time) ([]*types.UserActionEvent, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var results []*types.UserActionEvent
  if userID == uuid.Nil {
    return results, nil
  }
  q := transaction.WithContext(ctx).Where("user_id = ?", userID)
  if !since.IsZero() {
    q = q.Where("created_at > ?", since)
  }
  if err := q.Order("created_at DESC").Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (r *userActionEventRepo) CountByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (int64, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if userID == uuid.Nil {
    return 0, nil
  }
  var count int64
  if err := transaction.WithContext(ctx).
    Model(&types.UserActionEvent{}).
    Where("user_id = ?", userID).
    Count(&count).Error; err != nil {
    return 0, err
  }
  return count, nil
}

func (r *userActionEventRepo) ListWindow(ctx context.Context, tx *gorm.DB, since, until time.Time, actionTypes []string) ([]*types.UserActionEvent, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var results []*types.UserActionEvent
  q := transaction.WithContext(ctx).
    Where("created_at > ? AND created_at <= ?", since, until)
  if len(actionTypes) > 0 {
    q = q.Where("action_type IN ?", actionTypes)
  }
  if err := q.Order("created_at ASC").Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (r *userActionEventRepo) ListByProposalID(ctx context.Context, tx *gorm.DB, proposalID uuid.UUID, actionTypes []string) ([]*types.UserActionEvent, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var results []*types.UserActionEvent
  if proposalID == uuid.Nil {
    return results, nil
  }
  q := transaction.WithContext(ctx).Where("proposal_id = ?", proposalID)
  if len(actionTypes) > 0 {
    q = q.Where("action_type IN ?", actionTypes)
  }
  if err := q.Order("created_at ASC").Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (r *userActionEventRepo) UpdateOutcomeByProposalID(ctx context.Context, tx *gorm.DB, proposalID uuid.UUID, outcome string, outcomeValue *float64) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if proposalID == uuid.Nil {
    return nil
  }
  updates := map[string]interface{}{
    "outcome":    outcome,
    "updated_at": time.Now(),
  }
  if outcomeValue != nil {
    updates["outcome_value"] = *outcomeValue
  }
  return transaction.WithContext(ctx).
    Model(&types.UserActionEvent{}).
    Where("proposal_id = ?", proposalID).
    Updates(updates).Error
}

func (r *userActionEventRepo) ActiveUserIDs(ctx context.Context, tx *gorm.DB, since time.Time) ([]uuid.UUID, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var ids []uuid.UUID
  if err := transaction.WithContext(ctx).
    Model(&types.UserActionEvent{}).
    Where("created_at > ?", since).
    Distinct("user_id").
    Pluck("user_id", &ids).Error; err != nil {
    return nil, err
  }
  return ids, nil
}
