package handlers

import (
  "errors"
  "net/http"
  "github.com/gin-gonic/gin"
  "github.com/google/uuid"
  "github.com/scopegen/scopegen-backend/internal/services"
)

type DraftHandler struct {
  draftService      services.DraftService
}

func NewDraftHandler(draftService services.DraftService) *DraftHandler {
  return &DraftHandler{draftService: draftService}
}

// POST /api/proposals/:id/drafts
//
// The Idempotency-Key header dedupes retried submissions: the same key
// always returns the same run, whatever state it has reached.
func (h *DraftHandler) Enqueue(c *gin.Context) {
  proposalID, err := uuid.Parse(c.Param("id"))
  if err != nil {
    c.JSON(http.StatusBadRequest, gin.H{"error": "invalid proposal id"})
    return
  }
  key := c.GetHeader("Idempotency-Key")
  if key == "" {
    c.JSON(http.StatusBadRequest, gin.H{"error": "Idempotency-Key header is required"})
    return
  }
  run, err := h.draftService.Enqueue(c.Request.Context(), proposalID, key)
  if err != nil {
    if errors.Is(err, services.ErrProposalNotFound) || errors.Is(err, services.ErrDraftRunNotFound) {
      RespondError(c, http.StatusNotFound, "proposal_not_found", err)
      return
    }
    c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
    return
  }
  c.JSON(http.StatusAccepted, gin.H{"run": run})
}

// GET /api/drafts/:id
func (h *DraftHandler) GetRun(c *gin.Context) {
  runID, err := uuid.Parse(c.Param("id"))
  if err != nil {
    c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
    return
  }
  run, err := h.draftService.GetRun(c.Request.Context(), runID)
  if err != nil {
    if errors.Is(err, services.ErrDraftRunNotFound) {
      RespondError(c, http.StatusNotFound, "draft_run_not_found", err)
      return
    }
    c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
    return
  }
  RespondOK(c, gin.H{"run": run})
}

// GET /api/proposals/:id/drafts/latest
func (h *DraftHandler) GetLatestForProposal(c *gin.Context) {
  proposalID, err := uuid.Parse(c.Param("id"))
  if err != nil {
    c.JSON(http.StatusBadRequest, gin.H{"error": "invalid proposal id"})
    return
  }
  run, err := h.draftService.GetLatestForProposal(c.Request.Context(), proposalID)
  if err != nil {
    if errors.Is(err, services.ErrDraftRunNotFound) {
      RespondError(c, http.StatusNotFound, "draft_run_not_found", err)
      return
    }
    c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
    return
  }
  RespondOK(c, gin.H{"run": run})
}
