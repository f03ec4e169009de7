package handlers

import (
  "errors"
  "net/http"
  "github.com/gin-gonic/gin"
  "github.com/google/uuid"
  "github.com/scopegen/scopegen-backend/internal/services"
)

type ProposalHandler struct {
  proposalService   services.ProposalService
}

func NewProposalHandler(proposalService services.ProposalService) *ProposalHandler {
  return &ProposalHandler{proposalService: proposalService}
}

// POST /api/proposals
func (h *ProposalHandler) Create(c *gin.Context) {
  var input services.CreateProposalInput
  if err := c.ShouldBindJSON(&input); err != nil {
    c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
    return
  }
  proposal, err := h.proposalService.Create(c.Request.Context(), input)
  if err != nil {
    c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
    return
  }
  c.JSON(http.StatusCreated, gin.H{"proposal": proposal})
}

// GET /api/proposals
func (h *ProposalHandler) List(c *gin.Context) {
  proposals, err := h.proposalService.ListMine(c.Request.Context())
  if err != nil {
    c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
    return
  }
  RespondOK(c, gin.H{"proposals": proposals})
}

// GET /api/proposals/:id
func (h *ProposalHandler) Get(c *gin.Context) {
  id, err := uuid.Parse(c.Param("id"))
  if err != nil {
    c.JSON(http.StatusBadRequest, gin.H{"error": "invalid proposal id"})
    return
  }
  proposal, err := h.proposalService.GetByID(c.Request.Context(), id)
  if err != nil {
    if errors.Is(err, services.ErrProposalNotFound) {
      RespondError(c, http.StatusNotFound, "proposal_not_found", err)
      return
    }
    c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
    return
  }
  RespondOK(c, gin.H{"proposal": proposal})
}

// POST /api/proposals/:id/send
func (h *ProposalHandler) Send(c *gin.Context) {
  id, err := uuid.Parse(c.Param("id"))
  if err != nil {
    c.JSON(http.StatusBadRequest, gin.H{"error": "invalid proposal id"})
    return
  }
  proposal, err := h.proposalService.Send(c.Request.Context(), id)
  if err != nil {
    if errors.Is(err, services.ErrProposalNotFound) {
      RespondError(c, http.StatusNotFound, "proposal_not_found", err)
      return
    }
    c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
    return
  }
  RespondOK(c, gin.H{"proposal": proposal})
}

// POST /api/proposals/:id/close
func (h *ProposalHandler) Close(c *gin.Context) {
  id, err := uuid.Parse(c.Param("id"))
  if err != nil {
    c.JSON(http.StatusBadRequest, gin.H{"error": "invalid proposal id"})
    return
  }
  var input services.CloseProposalInput
  if err := c.ShouldBindJSON(&input); err != nil {
    c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
    return
  }
  proposal, err := h.proposalService.Close(c.Request.Context(), id, input)
  if err != nil {
    if errors.Is(err, services.ErrProposalNotFound) {
      RespondError(c, http.StatusNotFound, "proposal_not_found", err)
      return
    }
    c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
    return
  }
  RespondOK(c, gin.H{"proposal": proposal})
}
