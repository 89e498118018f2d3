package alerting

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aegishq/aegis/internal/models"
)

func evalOne(t *testing.T, cond models.RuleCondition) bool {
	t.Helper()
	engine := newTestEngine(nil, nil, nil)
	event := testEvent()
	doc := mergeDocument(event, testContext())
	return engine.evalCondition(context.Background(), cond, event, doc)
}

func TestMergeDocument(t *testing.T) {
	doc := mergeDocument(testEvent(), testContext())

	assert.Equal(t, "acme", doc["tenant_slug"])
	assert.Equal(t, models.ActionLoginFailure, doc["action"])
	assert.Equal(t, false, doc["success"])

	val, ok := lookupPath(doc, "geo_location.country")
	assert.True(t, ok)
	assert.Equal(t, "Germany", val)

	val, ok = lookupPath(doc, "security_context.risk_level")
	assert.True(t, ok)
	assert.Equal(t, models.RiskLevelHigh, val)

	// Struct numbers come through as float64, same as JSON-parsed rule values.
	val, ok = lookupPath(doc, "security_context.anomaly_score")
	assert.True(t, ok)
	assert.Equal(t, float64(45), val)

	val, ok = lookupPath(doc, "metadata.attempts")
	assert.True(t, ok)
	assert.Equal(t, float64(4), val)
}

func TestLookupPath(t *testing.T) {
	doc := map[string]any{
		"a": map[string]any{"b": "c"},
		"s": "leaf",
	}

	t.Run("nested hit", func(t *testing.T) {
		val, ok := lookupPath(doc, "a.b")
		assert.True(t, ok)
		assert.Equal(t, "c", val)
	})

	t.Run("missing segment", func(t *testing.T) {
		_, ok := lookupPath(doc, "a.x")
		assert.False(t, ok)
	})

	t.Run("path through a scalar", func(t *testing.T) {
		_, ok := lookupPath(doc, "s.deeper")
		assert.False(t, ok)
	})

	t.Run("empty path", func(t *testing.T) {
		_, ok := lookupPath(doc, "")
		assert.False(t, ok)
	})
}

func TestEvalCondition_Operators(t *testing.T) {
	t.Run("eq and ne", func(t *testing.T) {
		assert.True(t, evalOne(t, models.RuleCondition{Field: "action", Operator: models.OpEq, Value: "login_failure"}))
		assert.False(t, evalOne(t, models.RuleCondition{Field: "action", Operator: models.OpEq, Value: "login_success"}))
		assert.True(t, evalOne(t, models.RuleCondition{Field: "action", Operator: models.OpNe, Value: "login_success"}))
	})

	t.Run("eq on booleans", func(t *testing.T) {
		assert.True(t, evalOne(t, models.RuleCondition{Field: "success", Operator: models.OpEq, Value: false}))
		assert.False(t, evalOne(t, models.RuleCondition{Field: "success", Operator: models.OpEq, Value: true}))
	})

	t.Run("eq never coerces across types", func(t *testing.T) {
		// success is a bool, "false" is a string.
		assert.False(t, evalOne(t, models.RuleCondition{Field: "success", Operator: models.OpEq, Value: "false"}))
	})

	t.Run("numeric comparisons", func(t *testing.T) {
		score := "security_context.anomaly_score"
		assert.True(t, evalOne(t, models.RuleCondition{Field: score, Operator: models.OpGt, Value: 40}))
		assert.False(t, evalOne(t, models.RuleCondition{Field: score, Operator: models.OpGt, Value: 45}))
		assert.True(t, evalOne(t, models.RuleCondition{Field: score, Operator: models.OpGte, Value: 45}))
		assert.True(t, evalOne(t, models.RuleCondition{Field: score, Operator: models.OpLt, Value: 50}))
		assert.True(t, evalOne(t, models.RuleCondition{Field: score, Operator: models.OpLte, Value: 45}))
	})

	t.Run("int rule values compare against float64 document values", func(t *testing.T) {
		assert.True(t, evalOne(t, models.RuleCondition{
			Field: "security_context.anomaly_score", Operator: models.OpEq, Value: 45,
		}))
	})

	t.Run("numeric comparison on a string is false", func(t *testing.T) {
		assert.False(t, evalOne(t, models.RuleCondition{Field: "action", Operator: models.OpGt, Value: 1}))
	})

	t.Run("contains on strings", func(t *testing.T) {
		assert.True(t, evalOne(t, models.RuleCondition{Field: "user_agent", Operator: models.OpContains, Value: "curl"}))
		assert.False(t, evalOne(t, models.RuleCondition{Field: "user_agent", Operator: models.OpContains, Value: "Chrome"}))
	})

	t.Run("contains on arrays", func(t *testing.T) {
		assert.True(t, evalOne(t, models.RuleCondition{
			Field: "security_context.threats", Operator: models.OpContains, Value: "Multiple failed login attempts",
		}))
		assert.False(t, evalOne(t, models.RuleCondition{
			Field: "security_context.threats", Operator: models.OpContains, Value: "Rate limit abuse",
		}))
	})

	t.Run("regex", func(t *testing.T) {
		assert.True(t, evalOne(t, models.RuleCondition{Field: "ip_address", Operator: models.OpRegex, Value: `^203\.0\.113\.`}))
		assert.False(t, evalOne(t, models.RuleCondition{Field: "ip_address", Operator: models.OpRegex, Value: `^10\.`}))
	})

	t.Run("invalid regex is a non-match", func(t *testing.T) {
		assert.False(t, evalOne(t, models.RuleCondition{Field: "ip_address", Operator: models.OpRegex, Value: "("}))
	})

	t.Run("in", func(t *testing.T) {
		assert.True(t, evalOne(t, models.RuleCondition{
			Field: "action", Operator: models.OpIn, Value: []any{"login_failure", "rate_limit_exceeded"},
		}))
		assert.False(t, evalOne(t, models.RuleCondition{
			Field: "action", Operator: models.OpIn, Value: []any{"login_success"},
		}))
	})

	t.Run("unknown operator is a non-match", func(t *testing.T) {
		assert.False(t, evalOne(t, models.RuleCondition{Field: "action", Operator: "between", Value: "x"}))
	})

	t.Run("missing field is a non-match", func(t *testing.T) {
		assert.False(t, evalOne(t, models.RuleCondition{Field: "no.such.path", Operator: models.OpEq, Value: "x"}))
	})
}
