package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aegishq/aegis/internal/access"
)

type RegistryHandler struct{}

func NewRegistryHandler() *RegistryHandler {
	return &RegistryHandler{}
}

// Permissions returns the static permission catalog.
func (h *RegistryHandler) Permissions(c *gin.Context) {
	c.JSON(http.StatusOK, access.RegisteredPermissions())
}

// ExternalRoutes returns the fixed external-customer route allow-list.
func (h *RegistryHandler) ExternalRoutes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"routes": access.ExternalRouteAllowList()})
}
