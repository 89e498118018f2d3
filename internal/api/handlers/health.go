package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aegishq/aegis/internal/version"
)

// Health reports liveness and the running version.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"name":    version.Name,
		"version": version.Full(),
	})
}
