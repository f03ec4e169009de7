package repos

import (
  "context"
  "time"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "github.com/scopegen/scopegen-backend/internal/logger"
  "github.com/scopegen/scopegen-backend/internal/types"
)

type CategoryCount struct {
  Category string
  Count    int64
}

type PhotoCategorizationRepo interface {
  Create(ctx context.Context, tx *gorm.DB, records []*types.PhotoCategorizationRecord) error
  // TopCategoryAt returns the most frequent category at a 1-based
  // position, with its frequency. A nil userID means cross-user. Count
  // ties break lexically so the answer is deterministic.
  TopCategoryAt(ctx context.Context, tx *gorm.DB, userID *uuid.UUID, trade, jobType string, position int) (*CategoryCount, error)
  ListByUserSince(ctx context.Context, tx *gorm.DB, userID uuid.UUID, since time.Time) ([]*types.PhotoCategorizationRecord, error)
}

type photoCategorizationRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewPhotoCategorizationRepo(db *gorm.DB, baseLog *logger.Logger) PhotoCategorizationRepo {
  repoLog := baseLog.With("repo", "PhotoCategorizationRepo")
  return &photoCategorizationRepo{db: db, log: repoLog}
}

func (r *photoCategorizationRepo) Create(ctx context.Context, tx *gorm.DB, records []*types.PhotoCategorizationRecord) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if len(records) == 0 {
    return nil
  }
  return transaction.WithContext(ctx).Create(&records).Error
}

func (r *photoCategorizationRepo) TopCategoryAt(ctx context.Context, tx *gorm.DB, userID *uuid.UUID, trade, jobType string, position int) (*CategoryCount, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if trade == "" || jobType == "" || position < 1 {
    return nil, nil
  }
  q := transaction.WithContext(ctx).
    Model(&types.PhotoCategorizationRecord{}).
    Select("category, COUNT(*) AS count").
    Where("trade = ? AND job_type = ? AND position = ?", trade, jobType, position)
  if userID != nil && *userID != uuid.Nil {
    q = q.Where("user_id = ?", *userID)
  }
  var rows []CategoryCount
  if err := q.Group("category").
    Order("count DESC, category ASC").
    Limit(1).
    Scan(&rows).Error; err != nil {
    return nil, err
  }
  if len(rows) == 0 {
    return nil, nil
  }
  return &rows[0], nil
}

func (r *photoCategorizationRepo) ListByUserSince(ctx context.Context, tx *gorm.DB, userID uuid.UUID, since time.Time) ([]*types.PhotoCategorizationRecord, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var results []*types.PhotoCategorizationRecord
  if userID == uuid.Nil {
    return results, nil
  }
  q := transaction.WithContext(ctx).Where("user_id = ?", userID)
  if !since.IsZero() {
    q = q.Where("created_at > ?", since)
  }
  if err := q.Order("created_at ASC").Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}
