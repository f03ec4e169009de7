package main

import (
  "context"
  "fmt"
  "os"
  "time"
  "github.com/scopegen/scopegen-backend/internal/clients/redis"
  "github.com/scopegen/scopegen-backend/internal/db"
  "github.com/scopegen/scopegen-backend/internal/handlers"
  "github.com/scopegen/scopegen-backend/internal/logger"
  "github.com/scopegen/scopegen-backend/internal/middleware"
  "github.com/scopegen/scopegen-backend/internal/observability"
  "github.com/scopegen/scopegen-backend/internal/repos"
  "github.com/scopegen/scopegen-backend/internal/server"
  "github.com/scopegen/scopegen-backend/internal/services"
  "github.com/scopegen/scopegen-backend/internal/utils"
)

func main() {
  // Logger
  logMode := os.Getenv("LOG_MODE")
  if logMode == "" {
    logMode = "development"
  }
  log, err := logger.New(logMode)
  if err != nil {
    fmt.Printf("Failed to init logger: %v\n", err)
    os.Exit(1)
  }
  defer log.Sync()

  // Env
  log.Info("Loading environment variables from main...")
  jwtSecretKey := utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log)
  accessTokenTTL := utils.GetEnvAsInt("ACCESS_TOKEN_TTL", 3600, log)
  refreshTokenTTL := utils.GetEnvAsInt("REFRESH_TOKEN_TTL", 86400, log)
  aggregationWindowDays := utils.GetEnvAsInt("AGGREGATION_WINDOW_DAYS", 7, log)
  recentWindowDays := utils.GetEnvAsInt("RECENT_WINDOW_DAYS", 30, log)
  aggregationIntervalMin := utils.GetEnvAsInt("AGGREGATION_INTERVAL_MINUTES", 60, log)
  cacheTTLSeconds := utils.GetEnvAsInt("CACHE_TTL_SECONDS", 300, log)

  // Tracing
  otelShutdown := observability.InitOTel(context.Background(), log, observability.OtelConfig{
    ServiceName: "scopegen",
    Environment: utils.GetEnv("APP_ENV", "development", log),
    Version:     utils.GetEnv("APP_VERSION", "", log),
  })
  if otelShutdown != nil {
    defer func() {
      shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
      defer cancel()
      _ = otelShutdown(shutdownCtx)
    }()
  }

  // Postgres
  postgresService, err := db.NewPostgresService(log)
  if err != nil {
    log.Error("Postgres init failed", "error", err)
    os.Exit(1)
  }
  if err = postgresService.AutoMigrateAll(); err != nil {
    log.Warn("Postgres auto migration failed", "error", err)
  }
  thePG := postgresService.DB()

  // Repos
  log.Info("Setting up Repos from main...")
  userRepo := repos.NewUserRepo(thePG, log)
  userTokenRepo := repos.NewUserTokenRepo(thePG, log)
  eventRepo := repos.NewUserActionEventRepo(thePG, log)
  scopeRepo := repos.NewScopeItemPatternRepo(thePG, log)
  priceRepo := repos.NewPricingPatternRepo(thePG, log)
  geoRepo := repos.NewGeographicPatternRepo(thePG, log)
  photoRepo := repos.NewPhotoCategorizationRepo(thePG, log)
  prefsRepo := repos.NewLearnedPreferencesRepo(thePG, log)
  proposalRepo := repos.NewProposalRepo(thePG, log)
  draftRunRepo := repos.NewDraftRunRepo(thePG, log)
  watermarkRepo := repos.NewAggregationWatermarkRepo(thePG, log)

  // Redis cache. Optional: everything it backs degrades to direct
  // database reads when it is absent.
  var cache redis.Cache
  cache, err = redis.NewCache(log)
  if err != nil {
    log.Warn("Redis init failed, running without cache", "error", err)
    cache = nil
  }
  cacheTTL := time.Duration(cacheTTLSeconds) * time.Second

  // Services
  log.Info("Setting up Services from main...")
  actionLogger := services.NewActionLogger(thePG, log, eventRepo, priceRepo, photoRepo)
  recService := services.NewRecommendationService(thePG, log, scopeRepo, priceRepo, photoRepo, geoRepo, cache, cacheTTL)
  prefsService := services.NewPreferencesService(thePG, log, userRepo, eventRepo, photoRepo, prefsRepo, cache, cacheTTL, recentWindowDays)
  aggregationService := services.NewAggregationService(
    thePG,
    log,
    eventRepo,
    scopeRepo,
    priceRepo,
    geoRepo,
    watermarkRepo,
    prefsService,
    aggregationWindowDays,
    recentWindowDays,
    time.Duration(aggregationIntervalMin)*time.Minute,
  )
  aggregationService.StartWorker(context.Background())
  authService := services.NewAuthService(thePG, log, userRepo, userTokenRepo, jwtSecretKey, time.Duration(accessTokenTTL)*time.Second, time.Duration(refreshTokenTTL)*time.Second)
  userService := services.NewUserService(thePG, log, userRepo)
  proposalService := services.NewProposalService(thePG, log, proposalRepo, actionLogger)
  draftService := services.NewDraftService(thePG, log, draftRunRepo, proposalRepo, recService, 2*time.Second)
  draftService.StartWorker(context.Background())

  // Handlers
  log.Info("Setting up handlers from main...")
  authHandler := handlers.NewAuthHandler(authService)
  userHandler := handlers.NewUserHandler(userService)
  actionHandler := handlers.NewActionHandler(actionLogger)
  recHandler := handlers.NewRecommendationHandler(recService)
  prefsHandler := handlers.NewPreferencesHandler(prefsService)
  proposalHandler := handlers.NewProposalHandler(proposalService)
  draftHandler := handlers.NewDraftHandler(draftService)

  // Middleware
  log.Info("Setting up middleware from main...")
  authMiddleware := middleware.NewAuthMiddleware(log, authService)

  // Router
  log.Info("Setting up router from main...")
  router := server.NewRouter(server.RouterConfig{
    AuthHandler:           authHandler,
    AuthMiddleware:        authMiddleware,
    UserHandler:           userHandler,
    ActionHandler:         actionHandler,
    RecommendationHandler: recHandler,
    PreferencesHandler:    prefsHandler,
    ProposalHandler:       proposalHandler,
    DraftHandler:          draftHandler,
    TracingEnabled:        otelShutdown != nil,
  })

  port := utils.GetEnv("PORT", "8080", log)
  fmt.Printf("Server listening on :%s\n", port)
  if err := router.Run(":" + port); err != nil {
    log.Error("Server failed", "error", err)
  }
}
