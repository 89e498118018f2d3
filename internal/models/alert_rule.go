package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Condition operators understood by the alert rule engine.
const (
	OpEq        = "eq"
	OpNe        = "ne"
	OpGt        = "gt"
	OpGte       = "gte"
	OpLt        = "lt"
	OpLte       = "lte"
	OpContains  = "contains"
	OpRegex     = "regex"
	OpIn        = "in"
	OpFrequency = "frequency"
)

// Action kinds the alert rule engine can dispatch.
const (
	ActionKindLog         = "log"
	ActionKindBlockIP     = "block_ip"
	ActionKindEmail       = "email"
	ActionKindWebhook     = "webhook"
	ActionKindNotifyAdmin = "notify_admin"
)

// RuleCondition is a single field predicate. All conditions of a rule must
// hold for the rule to fire; there is no OR/NOT composition.
type RuleCondition struct {
	Field    string `json:"field"` // dot path into the merged event+security document
	Operator string `json:"operator"`
	Value    any    `json:"value"`
	// Frequency settings, used only by the "frequency" operator.
	WindowMinutes int `json:"window_minutes,omitempty"`
	Threshold     int `json:"threshold,omitempty"`
}

// RuleAction describes one side effect to run when a rule fires.
type RuleAction struct {
	Kind   string         `json:"kind"`
	Config map[string]any `json:"config,omitempty"`
}

// AlertRule pairs an AND-list of conditions with a list of actions. A rule
// marked TenantSpecific only applies to events from its own tenant.
type AlertRule struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	UUID           string    `json:"uuid" gorm:"uniqueIndex"`
	Name           string    `json:"name" gorm:"index"`
	Description    string    `json:"description"`
	Severity       string    `json:"severity"`           // low, medium, high, critical
	Conditions     string    `json:"-" gorm:"type:text"` // JSON array of RuleCondition
	Actions        string    `json:"-" gorm:"type:text"` // JSON array of RuleAction
	Enabled        bool      `json:"enabled" gorm:"default:true"`
	TenantSpecific bool      `json:"tenant_specific"`
	TenantSlug     string    `json:"tenant_slug" gorm:"index"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (r *AlertRule) BeforeCreate(tx *gorm.DB) (err error) {
	if r.UUID == "" {
		r.UUID = uuid.New().String()
	}
	return
}

// ConditionList decodes the stored conditions. A corrupt column decodes to an
// empty list, which the engine treats as a rule that never fires.
func (r *AlertRule) ConditionList() []RuleCondition {
	if r.Conditions == "" {
		return nil
	}
	var out []RuleCondition
	if err := json.Unmarshal([]byte(r.Conditions), &out); err != nil {
		return nil
	}
	return out
}

// SetConditionList encodes and stores the conditions.
func (r *AlertRule) SetConditionList(conds []RuleCondition) error {
	enc, err := json.Marshal(conds)
	if err != nil {
		return err
	}
	r.Conditions = string(enc)
	return nil
}

// ActionList decodes the stored actions.
func (r *AlertRule) ActionList() []RuleAction {
	if r.Actions == "" {
		return nil
	}
	var out []RuleAction
	if err := json.Unmarshal([]byte(r.Actions), &out); err != nil {
		return nil
	}
	return out
}

// SetActionList encodes and stores the actions.
func (r *AlertRule) SetActionList(actions []RuleAction) error {
	enc, err := json.Marshal(actions)
	if err != nil {
		return err
	}
	r.Actions = string(enc)
	return nil
}
