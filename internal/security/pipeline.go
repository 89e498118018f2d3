package security

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aegishq/aegis/internal/metrics"
	"github.com/aegishq/aegis/internal/models"
)

const pipelineTimeout = 15 * time.Second

// EventStore persists enriched events and serves rollups.
type EventStore interface {
	Append(ctx context.Context, event *models.AuthEvent) error
	Aggregate(ctx context.Context, tenantSlug string, start, end time.Time) (models.LogAggregation, error)
}

// RuleSource supplies the alert rules applicable to a tenant.
type RuleSource interface {
	ListEnabledRules(ctx context.Context, tenantSlug string) ([]models.AlertRule, error)
}

// RuleEvaluator dispatches alert rules against a scored event.
type RuleEvaluator interface {
	Evaluate(ctx context.Context, event *models.AuthEvent, sc models.SecurityContext, rules []models.AlertRule)
}

// Pipeline is the enrich -> persist -> score -> alert path for auth events.
// It is deliberately decoupled from the authorization decision path: callers
// fire events into it and never wait on persistence or alert dispatch.
type Pipeline struct {
	enricher *Enricher
	scorer   *Scorer
	store    EventStore
	rules    RuleSource
	engine   RuleEvaluator
	log      *logrus.Entry
}

// NewPipeline wires the telemetry pipeline.
func NewPipeline(enricher *Enricher, scorer *Scorer, store EventStore, rules RuleSource, engine RuleEvaluator, log *logrus.Entry) *Pipeline {
	return &Pipeline{
		enricher: enricher,
		scorer:   scorer,
		store:    store,
		rules:    rules,
		engine:   engine,
		log:      log,
	}
}

// LogAuthEvent processes a raw event on a background goroutine. It never
// returns an error and never panics into the caller: correctness of the rest
// of the application must not depend on logging succeeding.
func (p *Pipeline) LogAuthEvent(raw RawEvent) {
	metrics.IncAuthEvent()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.log.WithField("panic", fmt.Sprint(r)).Error("auth event pipeline panicked")
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), pipelineTimeout)
		defer cancel()
		p.process(ctx, raw)
	}()
}

// ProcessSync runs the pipeline inline and is used by tests and backfills.
func (p *Pipeline) ProcessSync(ctx context.Context, raw RawEvent) *models.AuthEvent {
	return p.process(ctx, raw)
}

func (p *Pipeline) process(ctx context.Context, raw RawEvent) *models.AuthEvent {
	event := p.enricher.Enrich(ctx, raw)

	sc := p.scorer.Score(ctx, event)
	event.ApplySecurityContext(sc)

	if err := p.store.Append(ctx, event); err != nil {
		p.log.WithError(err).WithFields(logrus.Fields{
			"tenant": raw.TenantSlug,
			"action": raw.Action,
		}).Error("failed to persist auth event")
	}

	rules, err := p.rules.ListEnabledRules(ctx, event.TenantSlug)
	if err != nil {
		p.log.WithError(err).Warn("failed to load alert rules")
		return event
	}
	p.engine.Evaluate(ctx, event, sc, rules)
	return event
}

// GetLogAggregation returns the dashboard rollup for a tenant's events.
func (p *Pipeline) GetLogAggregation(ctx context.Context, tenantSlug string, start, end time.Time) (models.LogAggregation, error) {
	return p.store.Aggregate(ctx, tenantSlug, start, end)
}
