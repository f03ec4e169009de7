package repos

import (
  "context"
  "errors"
  "time"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "github.com/scopegen/scopegen-backend/internal/logger"
  "github.com/scopegen/scopegen-backend/internal/types"
)

type PricingAverage struct {
  Avg   float64
  Count int64
}

type PricingPatternRepo interface {
  // CreateEvents stores per-event rows (UserID set), one per recorded
  // price adjustment.
  CreateEvents(ctx context.Context, tx *gorm.DB, rows []*types.PricingPattern) error
  // UserAverage averages the calling user's recorded adjustments for
  // the (trade, jobType, jobSize) key across all history.
  UserAverage(ctx context.Context, tx *gorm.DB, userID uuid.UUID, trade, jobType string, jobSize int) (*PricingAverage, error)
  // ZipAggregate returns the aggregate row (UserID null) for a zip.
  ZipAggregate(ctx context.Context, tx *gorm.DB, zip, trade, jobType string) (*types.PricingPattern, error)
  // UpsertZipAggregate overwrites (not accumulates) the aggregate row
  // for its (zip, trade, job_type) key.
  UpsertZipAggregate(ctx context.Context, tx *gorm.DB, zip, trade, jobType string, avgAdjustment float64, sampleCount int) error
  ListEventsWindow(ctx context.Context, tx *gorm.DB, since, until time.Time) ([]*types.PricingPattern, error)
}

type pricingPatternRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewPricingPatternRepo(db *gorm.DB, baseLog *logger.Logger) PricingPatternRepo {
  repoLog := baseLog.With("repo", "PricingPatternRepo")
  return &pricingPatternRepo{db: db, log: repoLog}
}

func (r *pricingPatternRepo) CreateEvents(ctx context.Context, tx *gorm.DB, rows []*types.PricingPattern) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if len(rows) == 0 {
    return nil
  }
  return transaction.WithContext(ctx).Create(&rows).Error
}

func (r *pricingPatternRepo) UserAverage(ctx context.Context, tx *gorm.DB, userID uuid.UUID, trade, jobType string, jobSize int) (*PricingAverage, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if userID == uuid.Nil || trade == "" || jobType == "" {
    return &PricingAverage{}, nil
  }
  var out struct {
    Avg   *float64
    Count int64
  }
  err := transaction.WithContext(ctx).
    Model(&types.PricingPattern{}).
    Select("AVG(adjustment_percent) AS avg, COUNT(*) AS count").
    Where("user_id = ? AND trade = ? AND job_type = ? AND job_size = ?", userID, trade, jobType, jobSize).
    Scan(&out).Error
  if err != nil {
    return nil, err
  }
  result := &PricingAverage{Count: out.Count}
  if out.Avg != nil {
    result.Avg = *out.Avg
  }
  return result, nil
}

func (r *pricingPatternRepo) ZipAggregate(ctx context.Context, tx *gorm.DB, zip, trade, jobType string) (*types.PricingPattern, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if zip == "" || trade == "" || jobType == "" {
    return nil, nil
  }
  var row types.PricingPattern
  err := transaction.WithContext(ctx).
    Where("user_id IS NULL AND zip = ? AND trade = ? AND job_type = ?", zip, trade, jobType).
    First(&row).Error
  if errors.Is(err, gorm.ErrRecordNotFound) {
    return nil, nil
  }
  if err != nil {
    return nil, err
  }
  return &row, nil
}

func (r *pricingPatternRepo) UpsertZipAggregate(ctx context.Context, tx *gorm.DB, zip, trade, jobType string, avgAdjustment float64, sampleCount int) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if zip == "" || trade == "" || jobType == "" {
    return nil
  }
  now := time.Now()
  existing, err := r.ZipAggregate(ctx, transaction, zip, trade, jobType)
  if err != nil {
    return err
  }
  if existing != nil {
    return transaction.WithContext(ctx).
      Model(&types.PricingPattern{}).
      Where("id = ?", existing.ID).
      Updates(map[string]interface{}{
        "adjustment_percent": avgAdjustment,
        "sample_count":       sampleCount,
        "updated_at":         now,
      }).Error
  }
  row := &types.PricingPattern{
    ID:                uuid.New(),
    Trade:             trade,
    JobType:           jobType,
    Zip:               zip,
    AdjustmentPercent: avgAdjustment,
    SampleCount:       sampleCount,
    CreatedAt:         now,
    UpdatedAt:         now,
  }
  return transaction.WithContext(ctx).Create(row).Error
}

func (r *pricingPatternRepo) ListEventsWindow(ctx context.Context, tx *gorm.DB, since, until time.Time) ([]*types.PricingPattern, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var results []*types.PricingPattern
  if err := transaction.WithContext(ctx).
    Where("user_id IS NOT NULL AND created_at > ? AND created_at <= ?", since, until).
    Order("created_at ASC").
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}
