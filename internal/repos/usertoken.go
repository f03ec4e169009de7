package repos

import (
  "context"
  "errors"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "github.com/scopegen/scopegen-backend/internal/logger"
  "github.com/scopegen/scopegen-backend/internal/types"
)

type UserTokenRepo interface {
  Create(ctx context.Context, tx *gorm.DB, tokens []*types.UserToken) ([]*types.UserToken, error)
  GetByAccessToken(ctx context.Context, tx *gorm.DB, accessToken string) (*types.UserToken, error)
  GetByRefreshToken(ctx context.Context, tx *gorm.DB, refreshToken string) (*types.UserToken, error)
  DeleteByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) error
}

type userTokenRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewUserTokenRepo(db *gorm.DB, baseLog *logger.Logger) UserTokenRepo {
  repoLog := baseLog.With("repo", "UserTokenRepo")
  return &userTokenRepo{db: db, log: repoLog}
}

func (r *userTokenRepo) Create(ctx context.Context, tx *gorm.DB, tokens []*types.UserToken) ([]*types.UserToken, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if len(tokens) == 0 {
    return []*types.UserToken{}, nil
  }
  if err := transaction.WithContext(ctx).Create(&tokens).Error; err != nil {
    return nil, err
  }
  return tokens, nil
}

func (r *userTokenRepo) GetByAccessToken(ctx context.Context, tx *gorm.DB, accessToken string) (*types.UserToken, error) {
  return r.getByColumn(ctx, tx, "access_token", accessToken)
}

func (r *userTokenRepo) GetByRefreshToken(ctx context.Context, tx *gorm.DB, refreshToken string) (*types.UserToken, error) {
  return r.getByColumn(ctx, tx, "refresh_token", refreshToken)
}

func (r *userTokenRepo) getByColumn(ctx context.Context, tx *gorm.DB, column, value string) (*types.UserToken, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if value == "" {
    return nil, nil
  }
  var token types.UserToken
  err := transaction.WithContext(ctx).
    Where(column+" = ?", value).
    First(&token).Error
  if errors.Is(err, gorm.ErrRecordNotFound) {
    return nil, nil
  }
  if err != nil {
    return nil, err
  }
  return &token, nil
}

func (r *userTokenRepo) DeleteByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if userID == uuid.Nil {
    return nil
  }
  return transaction.WithContext(ctx).
    Where("user_id = ?", userID).
    Delete(&types.UserToken{}).Error
}
