package handlers

import (
  "net/http"
  "github.com/gin-gonic/gin"
  "github.com/scopegen/scopegen-backend/internal/services"
)

type PreferencesHandler struct {
  prefsService      services.PreferencesService
}

func NewPreferencesHandler(prefsService services.PreferencesService) *PreferencesHandler {
  return &PreferencesHandler{prefsService: prefsService}
}

// GET /api/preferences
func (h *PreferencesHandler) GetProfile(c *gin.Context) {
  profile, err := h.prefsService.GetProfile(c.Request.Context())
  if err != nil {
    RespondError(c, http.StatusBadRequest, "preferences_unavailable", err)
    return
  }
  RespondOK(c, gin.H{"profile": profile})
}
