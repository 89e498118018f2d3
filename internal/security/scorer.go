package security

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aegishq/aegis/internal/models"
)

// Threat names reported by the scorer. Alert rules and dashboards key off
// these strings, so they are part of the contract.
const (
	ThreatSuspiciousIP    = "Known suspicious IP"
	ThreatUnusualLocation = "Unusual login location"
	ThreatFailedLogins    = "Multiple failed login attempts"
	ThreatRateLimitAbuse  = "Rate limit abuse"
	ThreatAutomatedClient = "Automated client signature"
	ThreatUnusualTime     = "Unusual login time"
)

// Heuristic weights and limits.
const (
	suspiciousIPPoints    = 30
	unusualLocationPoints = 20
	failedLoginPoints     = 25
	rateLimitPoints       = 40
	automatedClientPoints = 15
	unusualTimePoints     = 10

	failedLoginThreshold = 3
	failedLoginWindow    = 15 * time.Minute
	rateLimitThreshold   = 5 // violations beyond this force critical
	locationHistoryDays  = 30
	locationHistoryLimit = 50
)

// HistoryStore supplies the historical signals the scorer needs from the
// audit log.
type HistoryStore interface {
	// RecentLoginCountries returns the countries of the user's most recent
	// successful logins since the given time, newest first, capped at limit.
	RecentLoginCountries(ctx context.Context, tenantSlug, userID string, since time.Time, limit int) ([]string, error)
	// CountFailedLogins counts the user's failed logins since the given time.
	CountFailedLogins(ctx context.Context, tenantSlug, userID string, since time.Time) (int64, error)
}

// Scorer computes a SecurityContext for an enriched event. Heuristics are
// independent: each contributes points and may force a minimum risk level,
// and a history lookup failure only disables its own heuristic.
type Scorer struct {
	history HistoryStore
	state   *SharedState
	log     *logrus.Entry
	now     func() time.Time
}

// NewScorer wires a Scorer against the audit history and shared state.
func NewScorer(history HistoryStore, state *SharedState, log *logrus.Entry) *Scorer {
	return &Scorer{history: history, state: state, log: log, now: time.Now}
}

// Score evaluates every heuristic against the event. The final risk level is
// the higher of the threshold mapping on the summed score and the strongest
// forced minimum among triggered heuristics.
func (s *Scorer) Score(ctx context.Context, event *models.AuthEvent) models.SecurityContext {
	score := 0
	threats := []string{}
	forced := models.RiskLevelLow

	if event.IPAddress != "" && s.state.IsSuspicious(event.IPAddress) {
		score += suspiciousIPPoints
		threats = append(threats, ThreatSuspiciousIP)
		forced = models.MaxRiskLevel(forced, models.RiskLevelHigh)
	}

	if s.isUnusualLocation(ctx, event) {
		score += unusualLocationPoints
		threats = append(threats, ThreatUnusualLocation)
	}

	if s.hasRepeatedFailedLogins(ctx, event) {
		score += failedLoginPoints
		threats = append(threats, ThreatFailedLogins)
		forced = models.MaxRiskLevel(forced, models.RiskLevelHigh)
	}

	if s.exceedsRateLimitBudget(event) {
		score += rateLimitPoints
		threats = append(threats, ThreatRateLimitAbuse)
		forced = models.MaxRiskLevel(forced, models.RiskLevelCritical)
	}

	if IsAutomatedClient(event.UserAgent) {
		score += automatedClientPoints
		threats = append(threats, ThreatAutomatedClient)
	}

	if s.isUnusualHour(event) {
		score += unusualTimePoints
		threats = append(threats, ThreatUnusualTime)
	}

	level := models.MaxRiskLevel(levelForScore(score), forced)

	return models.SecurityContext{
		RiskLevel:    level,
		AnomalyScore: score,
		Threats:      threats,
		Mitigations:  mitigationsFor(level),
	}
}

func levelForScore(score int) string {
	switch {
	case score >= 50:
		return models.RiskLevelCritical
	case score >= 30:
		return models.RiskLevelHigh
	case score >= 15:
		return models.RiskLevelMedium
	default:
		return models.RiskLevelLow
	}
}

func mitigationsFor(level string) []string {
	switch level {
	case models.RiskLevelCritical:
		return []string{"Block source IP", "Invalidate active sessions", "Notify security team"}
	case models.RiskLevelHigh:
		return []string{"Require step-up authentication", "Notify security team"}
	case models.RiskLevelMedium:
		return []string{"Monitor subsequent activity"}
	default:
		return nil
	}
}

// isUnusualLocation fires when the event resolves to a country absent from
// the user's recent successful-login history. Users with no resolvable
// location or no history never trigger it.
func (s *Scorer) isUnusualLocation(ctx context.Context, event *models.AuthEvent) bool {
	geo := event.Geo()
	if geo == nil || geo.Country == "" || event.UserID == "" {
		return false
	}

	since := s.now().AddDate(0, 0, -locationHistoryDays)
	countries, err := s.history.RecentLoginCountries(ctx, event.TenantSlug, event.UserID, since, locationHistoryLimit)
	if err != nil {
		s.log.WithError(err).Warn("location history lookup failed")
		return false
	}
	if len(countries) == 0 {
		return false
	}
	for _, c := range countries {
		if c == geo.Country {
			return false
		}
	}
	return true
}

// hasRepeatedFailedLogins fires at three or more failed logins inside the
// trailing window. The event being scored counts toward its own threshold
// when it is itself a failed login.
func (s *Scorer) hasRepeatedFailedLogins(ctx context.Context, event *models.AuthEvent) bool {
	if event.UserID == "" {
		return false
	}

	since := s.now().Add(-failedLoginWindow)
	count, err := s.history.CountFailedLogins(ctx, event.TenantSlug, event.UserID, since)
	if err != nil {
		s.log.WithError(err).Warn("failed login history lookup failed")
		return false
	}
	if event.Action == models.ActionLoginFailure && !event.Success {
		count++
	}
	return count >= failedLoginThreshold
}

// exceedsRateLimitBudget counts the event against the cumulative per
// ip+tenant violation counter when it is itself a rate-limit violation, then
// fires once the counter passes the budget.
func (s *Scorer) exceedsRateLimitBudget(event *models.AuthEvent) bool {
	if event.IPAddress == "" {
		return false
	}
	var count int
	if event.Action == models.ActionRateLimitExceeded {
		count = s.state.RecordRateLimitViolation(event.IPAddress, event.TenantSlug)
	} else {
		count = s.state.RateLimitViolations(event.IPAddress, event.TenantSlug)
	}
	return count > rateLimitThreshold
}

// isUnusualHour flags events whose raw hour falls between 02:00 and 06:00.
// TODO(scoring): decide whether tenant-local business hours should govern
// this instead of the raw event hour; raw-hour comparison matches current
// production behavior.
func (s *Scorer) isUnusualHour(event *models.AuthEvent) bool {
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = s.now()
	}
	hour := occurred.Hour()
	return hour >= 2 && hour < 6
}
