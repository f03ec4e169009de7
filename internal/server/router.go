package server

import (
  "strings"
  "github.com/gin-contrib/cors"
  "github.com/gin-gonic/gin"
  "go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
  "github.com/scopegen/scopegen-backend/internal/handlers"
  "github.com/scopegen/scopegen-backend/internal/middleware"
  "github.com/scopegen/scopegen-backend/internal/utils"
)

type RouterConfig struct {
  AuthHandler           *handlers.AuthHandler
  AuthMiddleware        *middleware.AuthMiddleware
  UserHandler           *handlers.UserHandler
  ActionHandler         *handlers.ActionHandler
  RecommendationHandler *handlers.RecommendationHandler
  PreferencesHandler    *handlers.PreferencesHandler
  ProposalHandler       *handlers.ProposalHandler
  DraftHandler          *handlers.DraftHandler
  TracingEnabled        bool
}

func NewRouter(cfg RouterConfig) *gin.Engine {
  router := gin.Default()

  if cfg.TracingEnabled {
    router.Use(otelgin.Middleware("scopegen"))
  }

  // Cors
  router.Use(cors.New(cors.Config{
    AllowOrigins:     allowedOrigins(),
    AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
    AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With", "Idempotency-Key"},
    AllowCredentials: true,
  }))

// ===============
// || Public    ||
// ===============
  router.GET("/healthcheck", handlers.HealthCheck)
  router.POST("/register", cfg.AuthHandler.Register)
  router.POST("/login", cfg.AuthHandler.Login)

// ===============
// || Protected ||
// ===============
  protected := router.Group("/")
  protected.Use(cfg.AuthMiddleware.RequireAuth())
  // Auth
  protected.POST("/refresh", cfg.AuthHandler.Refresh)
  protected.POST("/logout", cfg.AuthHandler.Logout)
  // User
  protected.GET("/user", cfg.UserHandler.GetMe)
  protected.PATCH("/user", cfg.UserHandler.UpdateMe)

  api := protected.Group("/api")
  // Action log
  api.POST("/actions", cfg.ActionHandler.LogAction)
  // Recommendations
  api.POST("/recommendations/photo-category", cfg.RecommendationHandler.PhotoCategory)
  api.POST("/recommendations/scope", cfg.RecommendationHandler.Scope)
  api.POST("/recommendations/pricing", cfg.RecommendationHandler.Pricing)
  api.GET("/knowledge/:jobType", cfg.RecommendationHandler.Knowledge)
  // Learned preferences
  api.GET("/preferences", cfg.PreferencesHandler.GetProfile)
  // Proposals
  api.POST("/proposals", cfg.ProposalHandler.Create)
  api.GET("/proposals", cfg.ProposalHandler.List)
  api.GET("/proposals/:id", cfg.ProposalHandler.Get)
  api.POST("/proposals/:id/send", cfg.ProposalHandler.Send)
  api.POST("/proposals/:id/close", cfg.ProposalHandler.Close)
  // Draft generation
  api.POST("/proposals/:id/drafts", cfg.DraftHandler.Enqueue)
  api.GET("/proposals/:id/drafts/latest", cfg.DraftHandler.GetLatestForProposal)
  api.GET("/drafts/:id", cfg.DraftHandler.GetRun)

  return router
}

func allowedOrigins() []string {
  raw := utils.GetEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173", nil)
  parts := strings.Split(raw, ",")
  origins := make([]string, 0, len(parts))
  for _, p := range parts {
    p = strings.TrimSpace(p)
    if p != "" {
      origins = append(origins, p)
    }
  }
  return origins
}
