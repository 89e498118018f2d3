package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aegishq/aegis/internal/security"
	"github.com/aegishq/aegis/internal/services"
)

type EventHandler struct {
	pipeline *security.Pipeline
	audit    *services.AuditService
}

func NewEventHandler(pipeline *security.Pipeline, audit *services.AuditService) *EventHandler {
	return &EventHandler{pipeline: pipeline, audit: audit}
}

// Ingest accepts a raw auth event and processes it in the background. The
// response never waits on enrichment, persistence or alerting.
func (h *EventHandler) Ingest(c *gin.Context) {
	var raw security.RawEvent
	if err := c.ShouldBindJSON(&raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if raw.TenantSlug == "" || raw.Action == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant_slug and action are required"})
		return
	}

	if raw.IPAddress == "" {
		raw.IPAddress = c.ClientIP()
	}
	if raw.UserAgent == "" {
		raw.UserAgent = c.Request.UserAgent()
	}

	h.pipeline.LogAuthEvent(raw)
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// Aggregate returns the dashboard rollup for a tenant and time range.
// Defaults to the trailing 24 hours.
func (h *EventHandler) Aggregate(c *gin.Context) {
	tenantSlug := c.Query("tenant")
	if tenantSlug == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant query parameter required"})
		return
	}

	end := time.Now().UTC()
	start := end.Add(-24 * time.Hour)
	if v := c.Query("start"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "start must be RFC3339"})
			return
		}
		start = parsed
	}
	if v := c.Query("end"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "end must be RFC3339"})
			return
		}
		end = parsed
	}

	agg, err := h.pipeline.GetLogAggregation(c.Request.Context(), tenantSlug, start, end)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "aggregation failed"})
		return
	}
	c.JSON(http.StatusOK, agg)
}

// List returns recent audit events matching the query filters.
func (h *EventHandler) List(c *gin.Context) {
	filter := services.EventFilter{
		TenantSlug: c.Query("tenant"),
		UserID:     c.Query("user"),
		Action:     c.Query("action"),
		RiskLevel:  c.Query("risk_level"),
		IPAddress:  c.Query("ip"),
	}

	limit := 100
	if v := c.Query("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	events, err := h.audit.Find(c.Request.Context(), filter, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, events)
}
