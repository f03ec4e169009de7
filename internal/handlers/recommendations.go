package handlers

import (
  "net/http"
  "github.com/gin-gonic/gin"
  "github.com/scopegen/scopegen-backend/internal/services"
)

type RecommendationHandler struct {
  recService        services.RecommendationService
}

func NewRecommendationHandler(recService services.RecommendationService) *RecommendationHandler {
  return &RecommendationHandler{recService: recService}
}

// POST /api/recommendations/photo-category
func (h *RecommendationHandler) PhotoCategory(c *gin.Context) {
  var req struct {
    Context  services.RecommendationContext `json:"context"`
    Position int                            `json:"position"`
  }
  if err := c.ShouldBindJSON(&req); err != nil {
    c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
    return
  }
  if req.Position < 1 {
    c.JSON(http.StatusBadRequest, gin.H{"error": "position must be >= 1"})
    return
  }
  suggestion := h.recService.SuggestPhotoCategory(c.Request.Context(), req.Context, req.Position)
  RespondOK(c, gin.H{"suggestion": suggestion})
}

// POST /api/recommendations/scope
func (h *RecommendationHandler) Scope(c *gin.Context) {
  var req struct {
    Context      services.RecommendationContext `json:"context"`
    CurrentScope []string                       `json:"current_scope"`
  }
  if err := c.ShouldBindJSON(&req); err != nil {
    c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
    return
  }
  suggestions := h.recService.SuggestScopeItems(c.Request.Context(), req.Context, req.CurrentScope)
  RespondOK(c, gin.H{"suggestions": suggestions})
}

// POST /api/recommendations/pricing
func (h *RecommendationHandler) Pricing(c *gin.Context) {
  var req struct {
    Context  services.RecommendationContext `json:"context"`
    BaseLow  int                            `json:"base_low"`
    BaseHigh int                            `json:"base_high"`
    JobSize  int                            `json:"job_size"`
  }
  if err := c.ShouldBindJSON(&req); err != nil {
    c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
    return
  }
  suggestion := h.recService.SuggestPricing(c.Request.Context(), req.Context, req.BaseLow, req.BaseHigh, req.JobSize)
  RespondOK(c, gin.H{"suggestion": suggestion})
}

// GET /api/knowledge/:jobType
func (h *RecommendationHandler) Knowledge(c *gin.Context) {
  jobType := c.Param("jobType")
  entry := h.recService.JobTypeKnowledge(jobType)
  if entry == nil {
    RespondError(c, http.StatusNotFound, "unknown_job_type", nil)
    return
  }
  RespondOK(c, gin.H{"knowledge": entry})
}
