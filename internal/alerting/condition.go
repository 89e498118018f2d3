package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/aegishq/aegis/internal/models"
)

const defaultFrequencyWindow = 15 * time.Minute

// mergeDocument flattens the event and its security context into the
// document rule conditions address with dot paths. Keys follow the JSON
// wire names, e.g. "action", "ip_address", "geo_location.country",
// "security_context.risk_level", "metadata.<caller key>".
func mergeDocument(event *models.AuthEvent, sc models.SecurityContext) map[string]any {
	doc := map[string]any{
		"tenant_slug": event.TenantSlug,
		"user_id":     event.UserID,
		"email":       event.Email,
		"action":      event.Action,
		"success":     event.Success,
		"ip_address":  event.IPAddress,
		"user_agent":  event.UserAgent,
		"occurred_at": event.OccurredAt.Format(time.RFC3339),
	}
	if device := event.Device(); device != nil {
		doc["device_info"] = toDocument(device)
	}
	if geo := event.Geo(); geo != nil {
		doc["geo_location"] = toDocument(geo)
	}
	if meta := event.MetadataMap(); meta != nil {
		doc["metadata"] = meta
	}
	doc["security_context"] = toDocument(sc)
	return doc
}

// toDocument round-trips a struct through JSON so path lookup sees the same
// key names and scalar types (float64 numbers) as rule values parsed from
// JSON columns.
func toDocument(v any) map[string]any {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

// lookupPath walks a dot path through nested maps. Any missing segment or
// non-map intermediate yields (nil, false).
func lookupPath(doc map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	var current any = doc
	for _, segment := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// evalCondition evaluates one condition against the merged document. Unknown
// operators, unreachable paths and type mismatches all evaluate to false: a
// broken condition silently never holds instead of crashing the pipeline.
func (e *Engine) evalCondition(ctx context.Context, cond models.RuleCondition, event *models.AuthEvent, doc map[string]any) (result bool) {
	defer func() {
		if r := recover(); r != nil {
			e.log.WithField("field", cond.Field).Warnf("condition evaluation panicked: %v", r)
			result = false
		}
	}()

	if cond.Operator == models.OpFrequency {
		return e.evalFrequency(ctx, cond, event)
	}

	value, ok := lookupPath(doc, cond.Field)
	if !ok {
		return false
	}

	switch cond.Operator {
	case models.OpEq:
		return valuesEqual(value, cond.Value)
	case models.OpNe:
		return !valuesEqual(value, cond.Value)
	case models.OpGt, models.OpGte, models.OpLt, models.OpLte:
		return compareNumeric(cond.Operator, value, cond.Value)
	case models.OpContains:
		return containsValue(value, cond.Value)
	case models.OpRegex:
		pattern, ok := cond.Value.(string)
		if !ok {
			return false
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false
		}
		return re.MatchString(stringify(value))
	case models.OpIn:
		candidates, ok := cond.Value.([]any)
		if !ok {
			return false
		}
		for _, candidate := range candidates {
			if valuesEqual(value, candidate) {
				return true
			}
		}
		return false
	default:
		e.log.WithFields(map[string]any{
			"operator": cond.Operator,
			"field":    cond.Field,
		}).Warn("unknown condition operator, treating as non-match")
		return false
	}
}

// evalFrequency counts matching historical events for the same tenant, user
// and action inside the rolling window and compares the count against the
// threshold. The event being evaluated has already been persisted, so it is
// part of its own count.
func (e *Engine) evalFrequency(ctx context.Context, cond models.RuleCondition, event *models.AuthEvent) bool {
	if cond.Threshold <= 0 {
		return false
	}
	window := defaultFrequencyWindow
	if cond.WindowMinutes > 0 {
		window = time.Duration(cond.WindowMinutes) * time.Minute
	}
	count, err := e.counter.CountEvents(ctx, event.TenantSlug, event.UserID, event.Action, time.Now().Add(-window))
	if err != nil {
		e.log.WithError(err).Warn("frequency condition lookup failed")
		return false
	}
	return count >= int64(cond.Threshold)
}

// valuesEqual compares two JSON scalars, treating all numeric types as
// float64 the way encoding/json decodes them.
func valuesEqual(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
		return false
	}
	return stringify(a) == stringify(b) && fmt.Sprintf("%T", a) == fmt.Sprintf("%T", b)
}

func compareNumeric(op string, a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if !aok || !bok {
		return false
	}
	switch op {
	case models.OpGt:
		return af > bf
	case models.OpGte:
		return af >= bf
	case models.OpLt:
		return af < bf
	case models.OpLte:
		return af <= bf
	}
	return false
}

// containsValue implements substring match for strings and membership for
// arrays.
func containsValue(haystack, needle any) bool {
	switch h := haystack.(type) {
	case string:
		n, ok := needle.(string)
		if !ok {
			return false
		}
		return strings.Contains(h, n)
	case []any:
		for _, item := range h {
			if valuesEqual(item, needle) {
				return true
			}
		}
		return false
	case []string:
		n, ok := needle.(string)
		if !ok {
			return false
		}
		for _, item := range h {
			if item == n {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case bool:
		return strconv.FormatBool(s)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
