package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aegishq/aegis/internal/access"
)

type AccessHandler struct {
	evaluator *access.Evaluator
}

func NewAccessHandler(evaluator *access.Evaluator) *AccessHandler {
	return &AccessHandler{evaluator: evaluator}
}

// Check evaluates an access context and returns the decision. The evaluator
// fails closed, so this endpoint always answers 200 with a decision body.
func (h *AccessHandler) Check(c *gin.Context) {
	var ctx access.AccessContext
	if err := c.ShouldBindJSON(&ctx); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if ctx.User.ID == "" || ctx.User.TenantID == "" || ctx.Action == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user.id, user.tenant_id and action are required"})
		return
	}

	// Fall back to transport-level client details when the caller did not
	// forward them explicitly.
	if ctx.IPAddress == "" {
		ctx.IPAddress = c.ClientIP()
	}
	if ctx.UserAgent == "" {
		ctx.UserAgent = c.Request.UserAgent()
	}

	decision := h.evaluator.CheckPermission(c.Request.Context(), ctx)
	c.JSON(http.StatusOK, decision)
}

// InvalidateUser drops a user's cached decisions. Role administration flows
// call this after changing a user's roles.
func (h *AccessHandler) InvalidateUser(c *gin.Context) {
	userID := c.Param("id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user id required"})
		return
	}
	h.evaluator.InvalidateUser(c.Request.Context(), userID)
	c.JSON(http.StatusOK, gin.H{"status": "invalidated"})
}
