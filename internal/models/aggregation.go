package models

import "time"

// CountedValue pairs a value with how often it occurred.
type CountedValue struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// LogAggregation is the dashboard rollup of a tenant's auth events over a
// time range.
type LogAggregation struct {
	TenantSlug     string           `json:"tenant_slug"`
	Start          time.Time        `json:"start"`
	End            time.Time        `json:"end"`
	TotalEvents    int64            `json:"total_events"`
	ActionCounts   map[string]int64 `json:"action_counts"`
	UniqueUsers    int64            `json:"unique_users"`
	UniqueIPs      int64            `json:"unique_ips"`
	RiskBreakdown  map[string]int64 `json:"risk_breakdown"`
	TopCountries   []CountedValue   `json:"top_countries"`
	TopUserAgents  []CountedValue   `json:"top_user_agents"`
	FailedLogins   int64            `json:"failed_logins"`
	DeniedAccesses int64            `json:"denied_accesses"`
}
