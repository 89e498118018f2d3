package services

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/aegishq/aegis/internal/models"
)

const topListLimit = 10

// EventFilter narrows audit log queries. Zero-value fields are ignored.
type EventFilter struct {
	TenantSlug string
	UserID     string
	Action     string
	IPAddress  string
	RiskLevel  string
	Success    *bool
	Since      time.Time
	Until      time.Time
}

// AuditService is the append-only store of auth events and access decisions.
// Events are write-once; nothing here updates or deletes rows.
type AuditService struct {
	db *gorm.DB
}

// NewAuditService returns an AuditService using the provided DB.
func NewAuditService(db *gorm.DB) *AuditService {
	return &AuditService{db: db}
}

// Append persists one event.
func (s *AuditService) Append(ctx context.Context, event *models.AuthEvent) error {
	if event == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(event).Error
}

// Count returns the number of events matching the filter.
func (s *AuditService) Count(ctx context.Context, filter EventFilter) (int64, error) {
	var count int64
	if err := s.applyFilter(ctx, filter).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count audit events: %w", err)
	}
	return count, nil
}

// Find returns matching events, newest first, capped at limit.
func (s *AuditService) Find(ctx context.Context, filter EventFilter, limit int) ([]models.AuthEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var events []models.AuthEvent
	q := s.applyFilter(ctx, filter).Order("occurred_at desc").Limit(limit)
	if err := q.Find(&events).Error; err != nil {
		return nil, fmt.Errorf("find audit events: %w", err)
	}
	return events, nil
}

// CountEvents counts events for the same tenant/user/action since a point in
// time. This backs the alert engine's frequency conditions.
func (s *AuditService) CountEvents(ctx context.Context, tenantSlug, userID, action string, since time.Time) (int64, error) {
	return s.Count(ctx, EventFilter{
		TenantSlug: tenantSlug,
		UserID:     userID,
		Action:     action,
		Since:      since,
	})
}

// CountFailedLogins counts a user's failed logins since a point in time,
// used by the anomaly scorer's repeated-failure heuristic.
func (s *AuditService) CountFailedLogins(ctx context.Context, tenantSlug, userID string, since time.Time) (int64, error) {
	failed := false
	return s.Count(ctx, EventFilter{
		TenantSlug: tenantSlug,
		UserID:     userID,
		Action:     models.ActionLoginFailure,
		Success:    &failed,
		Since:      since,
	})
}

// RecentLoginCountries returns the countries of the user's most recent
// successful logins since a point in time, newest first, capped at limit.
// Events without a resolved country are skipped.
func (s *AuditService) RecentLoginCountries(ctx context.Context, tenantSlug, userID string, since time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}
	var countries []string
	err := s.db.WithContext(ctx).
		Model(&models.AuthEvent{}).
		Where("tenant_slug = ? AND user_id = ? AND action = ? AND success = ?",
			tenantSlug, userID, models.ActionLoginSuccess, true).
		Where("occurred_at >= ?", since).
		Where("country <> ''").
		Order("occurred_at desc").
		Limit(limit).
		Pluck("country", &countries).Error
	if err != nil {
		return nil, fmt.Errorf("load login countries: %w", err)
	}
	return countries, nil
}

// Aggregate builds the dashboard rollup for a tenant's events in [start, end).
func (s *AuditService) Aggregate(ctx context.Context, tenantSlug string, start, end time.Time) (models.LogAggregation, error) {
	agg := models.LogAggregation{
		TenantSlug:    tenantSlug,
		Start:         start,
		End:           end,
		ActionCounts:  make(map[string]int64),
		RiskBreakdown: make(map[string]int64),
	}

	base := func() *gorm.DB {
		return s.db.WithContext(ctx).
			Model(&models.AuthEvent{}).
			Where("tenant_slug = ?", tenantSlug).
			Where("occurred_at >= ? AND occurred_at < ?", start, end)
	}

	if err := base().Count(&agg.TotalEvents).Error; err != nil {
		return agg, fmt.Errorf("aggregate totals: %w", err)
	}

	type nameCount struct {
		Name  string
		Count int64
	}

	var actions []nameCount
	if err := base().Select("action as name, count(*) as count").Group("action").Scan(&actions).Error; err != nil {
		return agg, fmt.Errorf("aggregate actions: %w", err)
	}
	for _, nc := range actions {
		agg.ActionCounts[nc.Name] = nc.Count
	}

	var risks []nameCount
	if err := base().Where("risk_level <> ''").
		Select("risk_level as name, count(*) as count").Group("risk_level").Scan(&risks).Error; err != nil {
		return agg, fmt.Errorf("aggregate risk levels: %w", err)
	}
	for _, nc := range risks {
		agg.RiskBreakdown[nc.Name] = nc.Count
	}

	if err := base().Where("user_id <> ''").
		Distinct("user_id").Count(&agg.UniqueUsers).Error; err != nil {
		return agg, fmt.Errorf("aggregate unique users: %w", err)
	}
	if err := base().Where("ip_address <> ''").
		Distinct("ip_address").Count(&agg.UniqueIPs).Error; err != nil {
		return agg, fmt.Errorf("aggregate unique ips: %w", err)
	}

	topCountries, err := s.topValues(base, "country")
	if err != nil {
		return agg, err
	}
	agg.TopCountries = topCountries

	topAgents, err := s.topValues(base, "user_agent")
	if err != nil {
		return agg, err
	}
	agg.TopUserAgents = topAgents

	agg.FailedLogins = agg.ActionCounts[models.ActionLoginFailure]
	agg.DeniedAccesses = agg.ActionCounts[models.ActionAccessDenied]

	return agg, nil
}

func (s *AuditService) applyFilter(ctx context.Context, filter EventFilter) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&models.AuthEvent{})
	if filter.TenantSlug != "" {
		q = q.Where("tenant_slug = ?", filter.TenantSlug)
	}
	if filter.UserID != "" {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.Action != "" {
		q = q.Where("action = ?", filter.Action)
	}
	if filter.IPAddress != "" {
		q = q.Where("ip_address = ?", filter.IPAddress)
	}
	if filter.RiskLevel != "" {
		q = q.Where("risk_level = ?", filter.RiskLevel)
	}
	if filter.Success != nil {
		q = q.Where("success = ?", *filter.Success)
	}
	if !filter.Since.IsZero() {
		q = q.Where("occurred_at >= ?", filter.Since)
	}
	if !filter.Until.IsZero() {
		q = q.Where("occurred_at < ?", filter.Until)
	}
	return q
}

func (s *AuditService) topValues(base func() *gorm.DB, column string) ([]models.CountedValue, error) {
	type valueCount struct {
		Value string
		Count int64
	}
	var rows []valueCount
	err := base().Where(column+" <> ''").
		Select(column + " as value, count(*) as count").
		Group(column).
		Order("count desc").
		Limit(topListLimit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("aggregate top %s: %w", column, err)
	}
	out := make([]models.CountedValue, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.CountedValue{Value: row.Value, Count: row.Count})
	}
	return out, nil
}
