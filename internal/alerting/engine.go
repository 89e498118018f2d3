// Package alerting evaluates configured alert rules against scored auth
// events and dispatches their actions. Evaluation is best-effort by design: a
// malformed rule degrades to "never fires" and a failing action never stops
// the remaining actions, so the pipeline cannot be crashed by configuration.
package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aegishq/aegis/internal/metrics"
	"github.com/aegishq/aegis/internal/models"
)

// FrequencyCounter counts matching historical events for the frequency
// operator.
type FrequencyCounter interface {
	CountEvents(ctx context.Context, tenantSlug, userID, action string, since time.Time) (int64, error)
}

// IPBlocker adds an address to the suspicious-IP set consulted by the
// anomaly scorer.
type IPBlocker interface {
	BlockIP(ip string)
}

// Notifier delivers email/webhook/admin notifications for fired rules.
type Notifier interface {
	SendEmail(ctx context.Context, subject, body string, config map[string]any) error
	SendWebhook(ctx context.Context, payload map[string]any, config map[string]any) error
	NotifyAdmin(ctx context.Context, severity, title, message string) error
}

// Engine evaluates alert rules. Safe for concurrent use.
type Engine struct {
	counter  FrequencyCounter
	blocker  IPBlocker
	notifier Notifier
	log      *logrus.Entry
}

// NewEngine wires an Engine.
func NewEngine(counter FrequencyCounter, blocker IPBlocker, notifier Notifier, log *logrus.Entry) *Engine {
	return &Engine{counter: counter, blocker: blocker, notifier: notifier, log: log}
}

// Evaluate runs every applicable rule against the event. It never returns an
// error or panics into the caller.
func (e *Engine) Evaluate(ctx context.Context, event *models.AuthEvent, sc models.SecurityContext, rules []models.AlertRule) {
	defer func() {
		if r := recover(); r != nil {
			e.log.WithField("panic", fmt.Sprint(r)).Error("alert rule evaluation panicked")
		}
	}()

	doc := mergeDocument(event, sc)

	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		if rule.TenantSpecific && rule.TenantSlug != event.TenantSlug {
			continue
		}
		if !e.conditionsHold(ctx, rule, event, doc) {
			continue
		}
		e.fire(ctx, rule, event, sc)
	}
}

// conditionsHold requires every condition of the rule to match. A rule whose
// condition list is empty or undecodable never fires.
func (e *Engine) conditionsHold(ctx context.Context, rule models.AlertRule, event *models.AuthEvent, doc map[string]any) bool {
	conds := rule.ConditionList()
	if len(conds) == 0 {
		return false
	}
	for _, cond := range conds {
		if !e.evalCondition(ctx, cond, event, doc) {
			return false
		}
	}
	return true
}

func (e *Engine) fire(ctx context.Context, rule models.AlertRule, event *models.AuthEvent, sc models.SecurityContext) {
	metrics.IncAlertFired()
	entry := e.log.WithFields(logrus.Fields{
		"rule":     rule.Name,
		"severity": rule.Severity,
		"tenant":   event.TenantSlug,
		"user":     event.UserID,
		"action":   event.Action,
	})
	entry.Info("alert rule triggered")

	// Actions run sequentially and independently; a failing action is
	// logged and the remaining actions still run.
	for _, action := range rule.ActionList() {
		if err := e.runAction(ctx, action, rule, event, sc); err != nil {
			entry.WithError(err).WithField("action", action.Kind).Warn("alert action failed")
		}
	}
}

func (e *Engine) runAction(ctx context.Context, action models.RuleAction, rule models.AlertRule, event *models.AuthEvent, sc models.SecurityContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action panicked: %v", r)
		}
	}()

	switch action.Kind {
	case models.ActionKindLog:
		e.log.WithFields(logrus.Fields{
			"rule":          rule.Name,
			"severity":      rule.Severity,
			"tenant":        event.TenantSlug,
			"user":          event.UserID,
			"ip":            event.IPAddress,
			"risk_level":    sc.RiskLevel,
			"anomaly_score": sc.AnomalyScore,
			"threats":       sc.Threats,
		}).Warn("security alert")
		return nil

	case models.ActionKindBlockIP:
		if event.IPAddress == "" {
			return fmt.Errorf("event has no IP address to block")
		}
		e.blocker.BlockIP(event.IPAddress)
		return nil

	case models.ActionKindEmail:
		subject := fmt.Sprintf("[%s] Security alert: %s", rule.Severity, rule.Name)
		body := alertMessage(rule, event, sc)
		return e.notifier.SendEmail(ctx, subject, body, action.Config)

	case models.ActionKindWebhook:
		payload := map[string]any{
			"rule":          rule.Name,
			"severity":      rule.Severity,
			"tenant_slug":   event.TenantSlug,
			"user_id":       event.UserID,
			"event_action":  event.Action,
			"ip_address":    event.IPAddress,
			"risk_level":    sc.RiskLevel,
			"anomaly_score": sc.AnomalyScore,
			"threats":       sc.Threats,
			"occurred_at":   event.OccurredAt,
		}
		return e.notifier.SendWebhook(ctx, payload, action.Config)

	case models.ActionKindNotifyAdmin:
		title := fmt.Sprintf("Security alert: %s", rule.Name)
		return e.notifier.NotifyAdmin(ctx, rule.Severity, title, alertMessage(rule, event, sc))

	default:
		return fmt.Errorf("unknown action kind %q", action.Kind)
	}
}

func alertMessage(rule models.AlertRule, event *models.AuthEvent, sc models.SecurityContext) string {
	return fmt.Sprintf(
		"Rule %q fired for tenant %s.\nUser: %s\nAction: %s\nIP: %s\nRisk: %s (score %d)\nThreats: %v",
		rule.Name, event.TenantSlug, event.UserID, event.Action, event.IPAddress,
		sc.RiskLevel, sc.AnomalyScore, sc.Threats,
	)
}
