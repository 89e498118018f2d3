package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/aegishq/aegis/internal/models"
)

var ErrAlertRuleNotFound = errors.New("alert rule not found")

// validOperators mirrors what the alert engine understands. Creation rejects
// unknown operators so misconfigured rules surface at save time instead of
// silently never firing.
var validOperators = map[string]bool{
	models.OpEq: true, models.OpNe: true,
	models.OpGt: true, models.OpGte: true,
	models.OpLt: true, models.OpLte: true,
	models.OpContains: true, models.OpRegex: true,
	models.OpIn: true, models.OpFrequency: true,
}

var validActionKinds = map[string]bool{
	models.ActionKindLog:         true,
	models.ActionKindBlockIP:     true,
	models.ActionKindEmail:       true,
	models.ActionKindWebhook:     true,
	models.ActionKindNotifyAdmin: true,
}

// AlertRuleService owns alert rule configuration.
type AlertRuleService struct {
	db *gorm.DB
}

// NewAlertRuleService returns an AlertRuleService using the provided DB.
func NewAlertRuleService(db *gorm.DB) *AlertRuleService {
	return &AlertRuleService{db: db}
}

// ListEnabledRules returns the enabled rules applicable to a tenant: global
// rules plus the tenant's own tenant-specific rules.
func (s *AlertRuleService) ListEnabledRules(ctx context.Context, tenantSlug string) ([]models.AlertRule, error) {
	var rules []models.AlertRule
	err := s.db.WithContext(ctx).
		Where("enabled = ?", true).
		Where("tenant_specific = ? OR tenant_slug = ?", false, tenantSlug).
		Find(&rules).Error
	if err != nil {
		return nil, fmt.Errorf("load alert rules: %w", err)
	}
	return rules, nil
}

// List returns all rules ordered by name.
func (s *AlertRuleService) List(ctx context.Context) ([]models.AlertRule, error) {
	var rules []models.AlertRule
	if err := s.db.WithContext(ctx).Order("name asc").Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

// GetByUUID retrieves one rule.
func (s *AlertRuleService) GetByUUID(ctx context.Context, uuid string) (*models.AlertRule, error) {
	var rule models.AlertRule
	if err := s.db.WithContext(ctx).Where("uuid = ?", uuid).First(&rule).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAlertRuleNotFound
		}
		return nil, err
	}
	return &rule, nil
}

// Create validates and persists a new rule.
func (s *AlertRuleService) Create(ctx context.Context, rule *models.AlertRule) error {
	if err := validateRule(rule); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(rule).Error
}

// Update validates and saves rule changes.
func (s *AlertRuleService) Update(ctx context.Context, rule *models.AlertRule) error {
	if err := validateRule(rule); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Save(rule).Error
}

// Delete removes a rule by UUID.
func (s *AlertRuleService) Delete(ctx context.Context, uuid string) error {
	res := s.db.WithContext(ctx).Where("uuid = ?", uuid).Delete(&models.AlertRule{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAlertRuleNotFound
	}
	return nil
}

// validateRule checks operators, action kinds and the frequency settings.
// The engine would degrade unknown values to "never fires"; rejecting them
// here gives operators the feedback the engine deliberately withholds.
func validateRule(rule *models.AlertRule) error {
	conds := rule.ConditionList()
	if len(conds) == 0 {
		return fmt.Errorf("rule %q has no conditions", rule.Name)
	}
	for _, cond := range conds {
		if !validOperators[cond.Operator] {
			return fmt.Errorf("rule %q uses unknown operator %q", rule.Name, cond.Operator)
		}
		if cond.Operator == models.OpFrequency && cond.Threshold <= 0 {
			return fmt.Errorf("rule %q frequency condition needs a positive threshold", rule.Name)
		}
		if cond.Operator != models.OpFrequency && cond.Field == "" {
			return fmt.Errorf("rule %q has a condition without a field", rule.Name)
		}
	}

	actions := rule.ActionList()
	if len(actions) == 0 {
		return fmt.Errorf("rule %q has no actions", rule.Name)
	}
	for _, action := range actions {
		if !validActionKinds[action.Kind] {
			return fmt.Errorf("rule %q uses unknown action kind %q", rule.Name, action.Kind)
		}
	}

	if rule.TenantSpecific && rule.TenantSlug == "" {
		return fmt.Errorf("rule %q is tenant specific but has no tenant slug", rule.Name)
	}
	return nil
}
