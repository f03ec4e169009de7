package repos

import (
  "context"
  "time"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "github.com/scopegen/scopegen-backend/internal/logger"
  "github.com/scopegen/scopegen-backend/internal/types"
)

type ProposalRepo interface {
  Create(ctx context.Context, tx *gorm.DB, proposals []*types.Proposal) ([]*types.Proposal, error)
  GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Proposal, error)
  GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.Proposal, error)
  UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
}

type proposalRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewProposalRepo(db *gorm.DB, baseLog *logger.Logger) ProposalRepo {
  repoLog := baseLog.With("repo", "ProposalRepo")
  return &proposalRepo{db: db, log: repoLog}
}

func (r *proposalRepo) Create(ctx context.Context, tx *gorm.DB, proposals []*types.Proposal) ([]*types.Proposal, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if len(proposals) == 0 {
    return []*types.Proposal{}, nil
  }
  if err := transaction.WithContext(ctx).Create(&proposals).Error; err != nil {
    return nil, err
  }
  return proposals, nil
}

func (r *proposalRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Proposal, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var results []*types.Proposal
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

func (r *proposalRepo) GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.Proposal, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var results []*types.Proposal
  if userID == uuid.Nil {
    return results, nil
  }
  if err := transaction.WithContext(ctx).
    Where("user_id = ?", userID).
    Order("created_at DESC").
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (r *proposalRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if id == uuid.Nil || len(updates) == 0 {
    return nil
  }
  if _, ok := updates["updated_at"]; !ok {
    updates["updated_at"] = time.Now()
  }
  return transaction.WithContext(ctx).
    Model(&types.Proposal{}).
    Where("id = ?", id).
    Updates(updates).Error
}
