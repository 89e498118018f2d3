package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/aegishq/aegis/internal/alerting"
	"github.com/aegishq/aegis/internal/models"
	"github.com/aegishq/aegis/internal/security"
	"github.com/aegishq/aegis/internal/services"
)

func setupEventHandler(t *testing.T) (*EventHandler, *services.AuditService) {
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.AuthEvent{}, &models.AlertRule{}, &models.Notification{}, &models.NotificationProvider{}))

	audit := services.NewAuditService(db)
	rules := services.NewAlertRuleService(db)
	notifier := services.NewNotificationService(db, testEntry())
	state := security.NewSharedState()

	enricher := security.NewEnricher(nil, testEntry())
	scorer := security.NewScorer(audit, state, testEntry())
	engine := alerting.NewEngine(audit, state, notifier, testEntry())
	pipeline := security.NewPipeline(enricher, scorer, audit, rules, engine, testEntry())

	return NewEventHandler(pipeline, audit), audit
}

func TestEventHandler_Ingest(t *testing.T) {
	handler, audit := setupEventHandler(t)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/events", handler.Ingest)

	t.Run("accepted and eventually persisted", func(t *testing.T) {
		w := postJSON(r, "/events", map[string]any{
			"tenant_slug": "acme",
			"user_id":     "u1",
			"action":      models.ActionLoginSuccess,
			"success":     true,
		})
		assert.Equal(t, http.StatusAccepted, w.Code)

		assert.Eventually(t, func() bool {
			count, err := audit.Count(context.Background(), services.EventFilter{TenantSlug: "acme"})
			return err == nil && count == 1
		}, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("missing tenant", func(t *testing.T) {
		w := postJSON(r, "/events", map[string]any{"action": models.ActionLoginSuccess})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing action", func(t *testing.T) {
		w := postJSON(r, "/events", map[string]any{"tenant_slug": "acme"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestEventHandler_List(t *testing.T) {
	handler, audit := setupEventHandler(t)

	require.NoError(t, audit.Append(context.Background(), &models.AuthEvent{
		TenantSlug: "acme", UserID: "u1", Action: models.ActionLoginFailure,
		OccurredAt: time.Now().UTC(),
	}))

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/logs", handler.List)

	t.Run("filtered list", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/logs?tenant=acme&action=login_failure", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var events []models.AuthEvent
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &events))
		assert.Len(t, events, 1)
	})

	t.Run("bad limit", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/logs?limit=zero", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestEventHandler_Aggregate(t *testing.T) {
	handler, audit := setupEventHandler(t)

	require.NoError(t, audit.Append(context.Background(), &models.AuthEvent{
		TenantSlug: "acme", UserID: "u1", Action: models.ActionLoginFailure,
		OccurredAt: time.Now().UTC(),
	}))

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/logs/aggregate", handler.Aggregate)

	t.Run("defaults to trailing day", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/logs/aggregate?tenant=acme", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var agg models.LogAggregation
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &agg))
		assert.Equal(t, int64(1), agg.TotalEvents)
		assert.Equal(t, int64(1), agg.FailedLogins)
	})

	t.Run("missing tenant", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/logs/aggregate", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("bad start time", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/logs/aggregate?tenant=acme&start=yesterday", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
