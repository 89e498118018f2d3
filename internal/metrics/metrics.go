package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	decisionsGranted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "aegis_decisions_granted_total",
		Help: "Total number of access decisions that granted access",
	})
	decisionsDenied = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "aegis_decisions_denied_total",
		Help: "Total number of access decisions that denied access",
	})
	decisionCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "aegis_decision_cache_hits_total",
		Help: "Total number of decisions served from the decision cache",
	})
	decisionCacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "aegis_decision_cache_misses_total",
		Help: "Total number of decision cache misses",
	})
	authEventsLogged = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "aegis_auth_events_total",
		Help: "Total number of auth events accepted by the telemetry pipeline",
	})
	alertsFired = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "aegis_alerts_fired_total",
		Help: "Total number of alert rules that triggered",
	})
)

// Register registers Prometheus collectors. Call once at startup.
func Register(registry *prometheus.Registry) {
	registry.MustRegister(
		decisionsGranted,
		decisionsDenied,
		decisionCacheHits,
		decisionCacheMisses,
		authEventsLogged,
		alertsFired,
	)
}

// IncDecisionGranted increments the granted decisions counter.
func IncDecisionGranted() { decisionsGranted.Inc() }

// IncDecisionDenied increments the denied decisions counter.
func IncDecisionDenied() { decisionsDenied.Inc() }

// IncCacheHit increments the decision cache hit counter.
func IncCacheHit() { decisionCacheHits.Inc() }

// IncCacheMiss increments the decision cache miss counter.
func IncCacheMiss() { decisionCacheMisses.Inc() }

// IncAuthEvent increments the accepted auth events counter.
func IncAuthEvent() { authEventsLogged.Inc() }

// IncAlertFired increments the fired alerts counter.
func IncAlertFired() { alertsFired.Inc() }
