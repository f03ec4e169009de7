package repos

import (
  "context"
  "errors"
  "time"
  "gorm.io/gorm"
  "gorm.io/gorm/clause"
  "github.com/scopegen/scopegen-backend/internal/logger"
  "github.com/scopegen/scopegen-backend/internal/types"
)

type AggregationWatermarkRepo interface {
  Get(ctx context.Context, tx *gorm.DB, jobName string) (time.Time, error)
  Set(ctx context.Context, tx *gorm.DB, jobName string, lastEventAt time.Time) error
}

type aggregationWatermarkRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewAggregationWatermarkRepo(db *gorm.DB, baseLog *logger.Logger) AggregationWatermarkRepo {
  repoLog := baseLog.With("repo", "AggregationWatermarkRepo")
  return &aggregationWatermarkRepo{db: db, log: repoLog}
}

func (r *aggregationWatermarkRepo) Get(ctx context.Context, tx *gorm.DB, jobName string) (time.Time, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if jobName == "" {
    return time.Time{}, nil
  }
  var row types.AggregationWatermark
  err := transaction.WithContext(ctx).
    Where("job_name = ?", jobName).
    First(&row).Error
  if errors.Is(err, gorm.ErrRecordNotFound) {
    return time.Time{}, nil
  }
  if err != nil {
    return time.Time{}, err
  }
  return row.LastEventAt, nil
}

func (r *aggregationWatermarkRepo) Set(ctx context.Context, tx *gorm.DB, jobName string, lastEventAt time.Time) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if jobName == "" || lastEventAt.IsZero() {
    return nil
  }
  now := time.Now()
  row := &types.AggregationWatermark{
    JobName:     jobName,
    LastEventAt: lastEventAt,
    UpdatedAt:   now,
  }
  return transaction.WithContext(ctx).
    Clauses(clause.OnConflict{
      Columns: []clause.Column{{Name: "job_name"}},
      DoUpdates: clause.Assignments(map[string]interface{}{
        "last_event_at": lastEventAt,
        "updated_at":    now,
      }),
    }).
    Create(row).Error
}
