package handlers

import (
  "net/http"
  "github.com/gin-gonic/gin"
  "github.com/scopegen/scopegen-backend/internal/services"
)

type ActionHandler struct {
  actionLogger      services.ActionLogger
}

func NewActionHandler(actionLogger services.ActionLogger) *ActionHandler {
  return &ActionHandler{actionLogger: actionLogger}
}

// POST /api/actions
//
// Always acknowledges with 202: action logging is observation, and a
// malformed or failed event must never surface as a client error.
func (h *ActionHandler) LogAction(c *gin.Context) {
  var input services.ActionInput
  if err := c.ShouldBindJSON(&input); err != nil {
    c.Status(http.StatusAccepted)
    return
  }
  h.actionLogger.LogAction(c.Request.Context(), input)
  c.Status(http.StatusAccepted)
}
