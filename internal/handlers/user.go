package handlers

import (
  "net/http"
  "github.com/gin-gonic/gin"
  "github.com/scopegen/scopegen-backend/internal/services"
)

type UserHandler struct {
  userService       services.UserService
}

func NewUserHandler(userService services.UserService) *UserHandler {
  return &UserHandler{userService: userService}
}

func (uh *UserHandler) GetMe(c *gin.Context) {
  user, err := uh.userService.GetMe(c.Request.Context())
  if err != nil {
    RespondError(c, http.StatusNotFound, "user_not_found", err)
    return
  }
  RespondOK(c, gin.H{"user": user})
}

func (uh *UserHandler) UpdateMe(c *gin.Context) {
  var input services.UpdateUserInput
  if err := c.ShouldBindJSON(&input); err != nil {
    c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
    return
  }
  user, err := uh.userService.UpdateMe(c.Request.Context(), input)
  if err != nil {
    c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
    return
  }
  RespondOK(c, gin.H{"user": user})
}
