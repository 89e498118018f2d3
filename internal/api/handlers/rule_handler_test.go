package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/aegishq/aegis/internal/models"
	"github.com/aegishq/aegis/internal/services"
)

func setupRuleHandler(t *testing.T) (*RuleHandler, *services.AlertRuleService) {
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.AlertRule{}))

	ruleService := services.NewAlertRuleService(db)
	return NewRuleHandler(ruleService), ruleService
}

func ruleBody() map[string]any {
	return map[string]any{
		"name":     "Failed login burst",
		"severity": "high",
		"conditions": []map[string]any{
			{"field": "action", "operator": "eq", "value": "login_failure"},
		},
		"actions": []map[string]any{
			{"kind": "notify_admin"},
		},
	}
}

func TestRuleHandler_Create(t *testing.T) {
	handler, _ := setupRuleHandler(t)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/rules", handler.Create)

	t.Run("created enabled by default", func(t *testing.T) {
		w := postJSON(r, "/rules", ruleBody())
		assert.Equal(t, http.StatusCreated, w.Code)

		var rule models.AlertRule
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rule))
		assert.NotEmpty(t, rule.UUID)
		assert.True(t, rule.Enabled)
	})

	t.Run("explicitly disabled", func(t *testing.T) {
		body := ruleBody()
		body["name"] = "Disabled at birth"
		body["enabled"] = false
		w := postJSON(r, "/rules", body)
		assert.Equal(t, http.StatusCreated, w.Code)

		var rule models.AlertRule
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rule))
		assert.False(t, rule.Enabled)
	})

	t.Run("unknown operator rejected", func(t *testing.T) {
		body := ruleBody()
		body["conditions"] = []map[string]any{
			{"field": "action", "operator": "between", "value": "x"},
		}
		w := postJSON(r, "/rules", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing actions rejected", func(t *testing.T) {
		body := ruleBody()
		delete(body, "actions")
		w := postJSON(r, "/rules", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("tenant specific needs a slug", func(t *testing.T) {
		body := ruleBody()
		body["tenant_specific"] = true
		w := postJSON(r, "/rules", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestRuleHandler_Update(t *testing.T) {
	handler, ruleService := setupRuleHandler(t)

	rule := &models.AlertRule{Name: "Tunable", Severity: "low", Enabled: true}
	require.NoError(t, rule.SetConditionList([]models.RuleCondition{
		{Field: "action", Operator: "eq", Value: "login_failure"},
	}))
	require.NoError(t, rule.SetActionList([]models.RuleAction{{Kind: "log"}}))
	require.NoError(t, ruleService.Create(context.Background(), rule))

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.PUT("/rules/:id", handler.Update)

	t.Run("severity and enabled flag updated", func(t *testing.T) {
		body := ruleBody()
		body["name"] = "Tunable"
		body["severity"] = "critical"
		body["enabled"] = false
		jsonBody, _ := json.Marshal(body)
		req := httptest.NewRequest("PUT", "/rules/"+rule.UUID, bytes.NewBuffer(jsonBody))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)

		updated, err := ruleService.GetByUUID(context.Background(), rule.UUID)
		require.NoError(t, err)
		assert.Equal(t, "critical", updated.Severity)
		assert.False(t, updated.Enabled)
	})

	t.Run("update still validates", func(t *testing.T) {
		body := ruleBody()
		body["actions"] = []map[string]any{{"kind": "reboot"}}
		jsonBody, _ := json.Marshal(body)
		req := httptest.NewRequest("PUT", "/rules/"+rule.UUID, bytes.NewBuffer(jsonBody))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing rule", func(t *testing.T) {
		jsonBody, _ := json.Marshal(ruleBody())
		req := httptest.NewRequest("PUT", "/rules/none", bytes.NewBuffer(jsonBody))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestRuleHandler_ListGetDelete(t *testing.T) {
	handler, ruleService := setupRuleHandler(t)

	rule := &models.AlertRule{Name: "Keeper", Severity: "medium", Enabled: true}
	require.NoError(t, rule.SetConditionList([]models.RuleCondition{
		{Field: "action", Operator: "eq", Value: "access_denied"},
	}))
	require.NoError(t, rule.SetActionList([]models.RuleAction{{Kind: "log"}}))
	require.NoError(t, ruleService.Create(context.Background(), rule))

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/rules", handler.List)
	r.GET("/rules/:id", handler.Get)
	r.DELETE("/rules/:id", handler.Delete)

	t.Run("list", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/rules", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)

		var rules []models.AlertRule
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rules))
		assert.Len(t, rules, 1)
	})

	t.Run("get missing", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/rules/none", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("delete twice", func(t *testing.T) {
		req := httptest.NewRequest("DELETE", "/rules/"+rule.UUID, nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)

		req = httptest.NewRequest("DELETE", "/rules/"+rule.UUID, nil)
		w = httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
