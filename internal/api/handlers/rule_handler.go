package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aegishq/aegis/internal/models"
	"github.com/aegishq/aegis/internal/services"
)

type RuleHandler struct {
	rules *services.AlertRuleService
}

func NewRuleHandler(rules *services.AlertRuleService) *RuleHandler {
	return &RuleHandler{rules: rules}
}

// RuleRequest is the wire shape for creating and updating alert rules.
type RuleRequest struct {
	Name           string                 `json:"name" binding:"required"`
	Description    string                 `json:"description"`
	Severity       string                 `json:"severity" binding:"required"`
	Conditions     []models.RuleCondition `json:"conditions" binding:"required"`
	Actions        []models.RuleAction    `json:"actions" binding:"required"`
	Enabled        *bool                  `json:"enabled"`
	TenantSpecific bool                   `json:"tenant_specific"`
	TenantSlug     string                 `json:"tenant_slug"`
}

func (r *RuleRequest) apply(rule *models.AlertRule) error {
	rule.Name = r.Name
	rule.Description = r.Description
	rule.Severity = r.Severity
	rule.TenantSpecific = r.TenantSpecific
	rule.TenantSlug = r.TenantSlug
	rule.Enabled = r.Enabled == nil || *r.Enabled
	if err := rule.SetConditionList(r.Conditions); err != nil {
		return err
	}
	return rule.SetActionList(r.Actions)
}

func (h *RuleHandler) List(c *gin.Context) {
	rules, err := h.rules.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, rules)
}

func (h *RuleHandler) Get(c *gin.Context) {
	rule, err := h.rules.GetByUUID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrAlertRuleNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (h *RuleHandler) Create(c *gin.Context) {
	var req RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var rule models.AlertRule
	if err := req.apply(&rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.rules.Create(c.Request.Context(), &rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, rule)
}

func (h *RuleHandler) Update(c *gin.Context) {
	rule, err := h.rules.GetByUUID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrAlertRuleNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	var req RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.apply(rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.rules.Update(c.Request.Context(), rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (h *RuleHandler) Delete(c *gin.Context) {
	if err := h.rules.Delete(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, services.ErrAlertRuleNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
