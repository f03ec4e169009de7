package repos

import (
  "context"
  "errors"
  "time"
  "github.com/google/uuid"
  "gorm.io/datatypes"
  "gorm.io/gorm"
  "github.com/scopegen/scopegen-backend/internal/logger"
  "github.com/scopegen/scopegen-backend/internal/types"
)

type LearnedPreferencesRepo interface {
  GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.UserLearnedPreferences, error)
  Upsert(ctx context.Context, tx *gorm.DB, userID uuid.UUID, totalActions int, preferences datatypes.JSON) error
}

type learnedPreferencesRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewLearnedPreferencesRepo(db *gorm.DB, baseLog *logger.Logger) LearnedPreferencesRepo {
  repoLog := baseLog.With("repo", "LearnedPreferencesRepo")
  return &learnedPreferencesRepo{db: db, log: repoLog}
}

func (r *learnedPreferencesRepo) GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.UserLearnedPreferences, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if userID == uuid.Nil {
    return nil, nil
  }
  var row types.UserLearnedPreferences
  err := transaction.WithContext(ctx).
    Where("user_id = ?", userID).
    First(&row).Error
  if errors.Is(err, gorm.ErrRecordNotFound) {
    return nil, nil
  }
  if err != nil {
    return nil, err
  }
  return &row, nil
}

func (r *learnedPreferencesRepo) Upsert(ctx context.Context, tx *gorm.DB, userID uuid.UUID, totalActions int, preferences datatypes.JSON) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if userID == uuid.Nil {
    return nil
  }
  now := time.Now()
  existing, err := r.GetByUserID(ctx, transaction, userID)
  if err != nil {
    return err
  }
  if existing != nil {
    return transaction.WithContext(ctx).
      Model(&types.UserLearnedPreferences{}).
      Where("id = ?", existing.ID).
      Updates(map[string]interface{}{
        "total_actions": totalActions,
        "preferences":   preferences,
        "updated_at":    now,
      }).Error
  }
  row := &types.UserLearnedPreferences{
    ID:           uuid.New(),
    UserID:       userID,
    TotalActions: totalActions,
    Preferences:  preferences,
    CreatedAt:    now,
    UpdatedAt:    now,
  }
  return transaction.WithContext(ctx).Create(row).Error
}
