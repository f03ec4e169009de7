package services

import (
  "context"
  "fmt"
  "strings"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "github.com/scopegen/scopegen-backend/internal/knowledge"
  "github.com/scopegen/scopegen-backend/internal/logger"
  "github.com/scopegen/scopegen-backend/internal/repos"
  "github.com/scopegen/scopegen-backend/internal/requestdata"
  "github.com/scopegen/scopegen-backend/internal/types"
)

type UpdateUserInput struct {
  FirstName    *string `json:"first_name,omitempty"`
  LastName     *string `json:"last_name,omitempty"`
  CompanyName  *string `json:"company_name,omitempty"`
  PrimaryTrade *string `json:"primary_trade,omitempty"`
}

type UserService interface {
  GetMe(ctx context.Context) (*types.User, error)
  UpdateMe(ctx context.Context, input UpdateUserInput) (*types.User, error)
}

type userService struct {
  db       *gorm.DB
  log      *logger.Logger
  userRepo repos.UserRepo
}

func NewUserService(db *gorm.DB, baseLog *logger.Logger, userRepo repos.UserRepo) UserService {
  serviceLog := baseLog.With("service", "UserService")
  return &userService{db: db, log: serviceLog, userRepo: userRepo}
}

func (us *userService) GetMe(ctx context.Context) (*types.User, error) {
  rd := requestdata.GetRequestData(ctx)
  if rd == nil || rd.UserID == uuid.Nil {
    return nil, fmt.Errorf("not authenticated")
  }
  users, err := us.userRepo.GetByIDs(ctx, nil, []uuid.UUID{rd.UserID})
  if err != nil {
    return nil, fmt.Errorf("failed to load user: %w", err)
  }
  if len(users) == 0 || users[0] == nil {
    return nil, fmt.Errorf("user not found")
  }
  return users[0], nil
}

func (us *userService) UpdateMe(ctx context.Context, input UpdateUserInput) (*types.User, error) {
  rd := requestdata.GetRequestData(ctx)
  if rd == nil || rd.UserID == uuid.Nil {
    return nil, fmt.Errorf("not authenticated")
  }
  updates := map[string]interface{}{}
  if input.FirstName != nil {
    updates["first_name"] = strings.TrimSpace(*input.FirstName)
  }
  if input.LastName != nil {
    updates["last_name"] = strings.TrimSpace(*input.LastName)
  }
  if input.CompanyName != nil {
    updates["company_name"] = strings.TrimSpace(*input.CompanyName)
  }
  if input.PrimaryTrade != nil {
    updates["primary_trade"] = knowledge.Normalize(*input.PrimaryTrade)
  }
  if len(updates) > 0 {
    if err := us.userRepo.UpdateFields(ctx, nil, rd.UserID, updates); err != nil {
      return nil, fmt.Errorf("failed to update user: %w", err)
    }
  }
  return us.GetMe(ctx)
}
