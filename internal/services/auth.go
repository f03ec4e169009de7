package services

import (
  "context"
  "fmt"
  "strings"
  "time"
  "github.com/golang-jwt/jwt/v5"
  "github.com/google/uuid"
  "golang.org/x/crypto/bcrypt"
  "gorm.io/gorm"
  "github.com/scopegen/scopegen-backend/internal/knowledge"
  "github.com/scopegen/scopegen-backend/internal/logger"
  "github.com/scopegen/scopegen-backend/internal/repos"
  "github.com/scopegen/scopegen-backend/internal/requestdata"
  "github.com/scopegen/scopegen-backend/internal/types"
)

type JWTClaims struct {
  jwt.RegisteredClaims
}

type AuthService interface {
  RegisterUser(ctx context.Context, user *types.User) error
  LoginUser(ctx context.Context, email, password string) (string, string, error)
  RefreshUser(ctx context.Context) (string, string, error)
  LogoutUser(ctx context.Context) error
  SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error)
  GetAccessTTL() time.Duration
}

type authService struct {
  db            *gorm.DB
  log           *logger.Logger
  userRepo      repos.UserRepo
  userTokenRepo repos.UserTokenRepo
  jwtSecretKey  string
  accessTTL     time.Duration
  refreshTTL    time.Duration
}

func NewAuthService(
  db *gorm.DB,
  baseLog *logger.Logger,
  userRepo repos.UserRepo,
  userTokenRepo repos.UserTokenRepo,
  jwtSecretKey string,
  accessTTL time.Duration,
  refreshTTL time.Duration,
) AuthService {
  serviceLog := baseLog.With("service", "AuthService")
  return &authService{
    db:            db,
    log:           serviceLog,
    userRepo:      userRepo,
    userTokenRepo: userTokenRepo,
    jwtSecretKey:  jwtSecretKey,
    accessTTL:     accessTTL,
    refreshTTL:    refreshTTL,
  }
}

func (as *authService) RegisterUser(ctx context.Context, user *types.User) error {
  if user == nil {
    return fmt.Errorf("user is required")
  }
  user.Email = strings.TrimSpace(strings.ToLower(user.Email))
  user.FirstName = strings.TrimSpace(user.FirstName)
  user.LastName = strings.TrimSpace(user.LastName)
  user.CompanyName = strings.TrimSpace(user.CompanyName)
  user.PrimaryTrade = knowledge.Normalize(user.PrimaryTrade)
  if user.Email == "" || user.Password == "" {
    return fmt.Errorf("email and password are required")
  }
  if len(user.Password) < 8 {
    return fmt.Errorf("password must be at least 8 characters")
  }

  existing, err := as.userRepo.GetByEmail(ctx, nil, user.Email)
  if err != nil {
    return fmt.Errorf("failed to check existing user: %w", err)
  }
  if existing != nil {
    return fmt.Errorf("email already registered")
  }

  hashed, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
  if err != nil {
    return fmt.Errorf("failed to hash password: %w", err)
  }
  user.Password = string(hashed)

  return as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
    user.ID = uuid.New()
    if _, cErr := as.userRepo.Create(ctx, tx, []*types.User{user}); cErr != nil {
      return fmt.Errorf("failed to create user: %w", cErr)
    }
    return nil
  })
}

func (as *authService) LoginUser(ctx context.Context, email, password string) (string, string, error) {
  email = strings.TrimSpace(strings.ToLower(email))
  if email == "" || password == "" {
    return "", "", fmt.Errorf("email and password are required")
  }

  user, err := as.userRepo.GetByEmail(ctx, nil, email)
  if err != nil {
    return "", "", fmt.Errorf("error retrieving user by email: %w", err)
  }
  if user == nil {
    return "", "", fmt.Errorf("invalid email or password")
  }
  if hErr := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); hErr != nil {
    return "", "", fmt.Errorf("invalid email or password")
  }

  var accessToken string
  var refreshToken string
  if err := as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
    tok, genErr := as.generateAccessToken(user)
    if genErr != nil {
      return fmt.Errorf("generate access token error: %w", genErr)
    }
    accessToken = tok
    refreshToken = uuid.New().String()
    userToken := types.UserToken{
      ID:           uuid.New(),
      UserID:       user.ID,
      AccessToken:  accessToken,
      RefreshToken: refreshToken,
      ExpiresAt:    time.Now().Add(as.refreshTTL),
    }
    if _, ctErr := as.userTokenRepo.Create(ctx, tx, []*types.UserToken{&userToken}); ctErr != nil {
      as.log.Warn("Create user token error", "error", ctErr)
      return fmt.Errorf("create user token error: %w", ctErr)
    }
    return nil
  }); err != nil {
    return "", "", err
  }
  return accessToken, refreshToken, nil
}

func (as *authService) RefreshUser(ctx context.Context) (string, string, error) {
  rd := requestdata.GetRequestData(ctx)
  if rd == nil || rd.RefreshToken == "" {
    return "", "", fmt.Errorf("no refresh token in request")
  }

  var accessToken string
  var newRefreshToken string
  err := as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
    existingToken, ftErr := as.userTokenRepo.GetByRefreshToken(ctx, tx, rd.RefreshToken)
    if ftErr != nil {
      as.log.Warn("Error fetching refresh token", "error", ftErr)
      return fmt.Errorf("error fetching refresh token: %w", ftErr)
    }
    if existingToken == nil {
      return fmt.Errorf("unknown refresh token")
    }
    if existingToken.ExpiresAt.Before(time.Now()) {
      if dErr := as.userTokenRepo.DeleteByUserID(ctx, tx, existingToken.UserID); dErr != nil {
        as.log.Warn("Refresh token expired, error deleting", "error", dErr)
      }
      return fmt.Errorf("refresh token expired")
    }
    users, uErr := as.userRepo.GetByIDs(ctx, tx, []uuid.UUID{existingToken.UserID})
    if uErr != nil {
      return fmt.Errorf("failed to load user for refresh: %w", uErr)
    }
    if len(users) == 0 || users[0] == nil {
      return fmt.Errorf("no user found for the given refresh token")
    }
    user := users[0]

    tok, genErr := as.generateAccessToken(user)
    if genErr != nil {
      return fmt.Errorf("failed to generate new access token: %w", genErr)
    }
    accessToken = tok
    newRefreshToken = uuid.New().String()
    newUserToken := types.UserToken{
      ID:           uuid.New(),
      UserID:       user.ID,
      AccessToken:  accessToken,
      RefreshToken: newRefreshToken,
      ExpiresAt:    time.Now().Add(as.refreshTTL),
    }
    if dErr := as.userTokenRepo.DeleteByUserID(ctx, tx, user.ID); dErr != nil {
      as.log.Warn("Failed to remove old tokens", "error", dErr)
      return fmt.Errorf("failed to remove old tokens: %w", dErr)
    }
    if _, cErr := as.userTokenRepo.Create(ctx, tx, []*types.UserToken{&newUserToken}); cErr != nil {
      return fmt.Errorf("failed to create new user token: %w", cErr)
    }
    return nil
  })
  if err != nil {
    return "", "", err
  }
  return accessToken, newRefreshToken, nil
}

func (as *authService) LogoutUser(ctx context.Context) error {
  rd := requestdata.GetRequestData(ctx)
  if rd == nil || rd.UserID == uuid.Nil {
    return fmt.Errorf("not authenticated")
  }
  return as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
    if dErr := as.userTokenRepo.DeleteByUserID(ctx, tx, rd.UserID); dErr != nil {
      as.log.Warn("Error deleting user tokens", "error", dErr)
      return fmt.Errorf("error deleting user tokens: %w", dErr)
    }
    return nil
  })
}

func (as *authService) generateAccessToken(user *types.User) (string, error) {
  claims := JWTClaims{
    RegisteredClaims: jwt.RegisteredClaims{
      Subject:   user.ID.String(),
      ExpiresAt: jwt.NewNumericDate(time.Now().Add(as.accessTTL)),
      IssuedAt:  jwt.NewNumericDate(time.Now()),
    },
  }
  token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
  return token.SignedString([]byte(as.jwtSecretKey))
}

func (as *authService) SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error) {
  if tokenString == "" {
    return ctx, nil
  }
  parsedToken, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
    return []byte(as.jwtSecretKey), nil
  })
  if err != nil {
    return ctx, fmt.Errorf("failed to parse token: %w", err)
  }
  claims, ok := parsedToken.Claims.(*JWTClaims)
  if !ok || !parsedToken.Valid {
    return ctx, fmt.Errorf("invalid or expired token")
  }
  userID, err := uuid.Parse(claims.Subject)
  if err != nil {
    return ctx, fmt.Errorf("invalid user id in token: %w", err)
  }

  rd := &requestdata.RequestData{
    TokenString: tokenString,
    UserID:      userID,
  }
  foundToken, ftErr := as.userTokenRepo.GetByAccessToken(ctx, nil, tokenString)
  if ftErr != nil {
    as.log.Warn("Error fetching user token by access token", "error", ftErr)
  } else if foundToken != nil {
    rd.RefreshToken = foundToken.RefreshToken
  }
  return requestdata.WithRequestData(ctx, rd), nil
}

func (as *authService) GetAccessTTL() time.Duration {
  return as.accessTTL
}
