package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type controlSecretRequest struct {
	Secret string `json:"secret" binding:"required"`
}

// issueToken exchanges the configured control secret for a short-lived
// bearer token accepted by the mutating control routes.
func (h *Handler) issueToken(c *gin.Context) {
	var req controlSecretRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	token, err := h.auth.IssueToken(req.Secret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid control secret"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}
