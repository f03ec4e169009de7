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

type GeographicPatternRepo interface {
  // Replace overwrites the row for the pattern's key wholesale.
  Replace(ctx context.Context, tx *gorm.DB, pattern *types.GeographicPattern) error
  GetByKey(ctx context.Context, tx *gorm.DB, geoLevel, geoValue, trade, jobType, patternType string) (*types.GeographicPattern, error)
}

type geographicPatternRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewGeographicPatternRepo(db *gorm.DB, baseLog *logger.Logger) GeographicPatternRepo {
  repoLog := baseLog.With("repo", "GeographicPatternRepo")
  return &geographicPatternRepo{db: db, log: repoLog}
}

func (r *geographicPatternRepo) Replace(ctx context.Context, tx *gorm.DB, pattern *types.GeographicPattern) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if pattern == nil || pattern.GeoLevel == "" || pattern.GeoValue == "" || pattern.PatternType == "" {
    return nil
  }
  now := time.Now()
  if pattern.ID == uuid.Nil {
    pattern.ID = uuid.New()
  }
  if pattern.CreatedAt.IsZero() {
    pattern.CreatedAt = now
  }
  pattern.UpdatedAt = now
  return transaction.WithContext(ctx).
    Clauses(clause.OnConflict{
      Columns: []clause.Column{
        {Name: "geo_level"}, {Name: "geo_value"}, {Name: "trade"}, {Name: "job_type"}, {Name: "pattern_type"},
      },
      DoUpdates: clause.Assignments(map[string]interface{}{
        "pattern_value": pattern.PatternValue,
        "sample_count":  pattern.SampleCount,
        "confidence":    pattern.Confidence,
        "updated_at":    now,
      }),
    }).
    Create(pattern).Error
}

func (r *geographicPatternRepo) GetByKey(ctx context.Context, tx *gorm.DB, geoLevel, geoValue, trade, jobType, patternType string) (*types.GeographicPattern, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if geoLevel == "" || geoValue == "" || patternType == "" {
    return nil, nil
  }
  var row types.GeographicPattern
  err := transaction.WithContext(ctx).
    Where("geo_level = ? AND geo_value = ? AND trade = ? AND job_type = ? AND pattern_type = ?",
      geoLevel, geoValue, trade, jobType, patternType).
    First(&row).Error
  if errors.Is(err, gorm.ErrRecordNotFound) {
    return nil, nil
  }
  if err != nil {
    return nil, err
  }
  return &row, nil
}
