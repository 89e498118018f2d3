// Package access implements the tenant-isolated permission decision engine:
// wildcard permission matching, the external-customer route gate, decision
// caching, and the permission evaluator itself.
package access

// Principal identifies the user a decision is being made for.
type Principal struct {
	ID                 string   `json:"id"`
	TenantID           string   `json:"tenant_id"`
	TenantSlug         string   `json:"tenant_slug"`
	Roles              []string `json:"roles"` // role UUIDs resolved via the role store
	IsExternalCustomer bool     `json:"is_external_customer"`
}

// ResourceRef identifies the resource being accessed, if any.
type ResourceRef struct {
	Type     string `json:"type"`
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
}

// AccessContext is the immutable input to a single decision.
type AccessContext struct {
	User      Principal    `json:"user"`
	Resource  *ResourceRef `json:"resource,omitempty"`
	Action    string       `json:"action"`
	Route     string       `json:"route,omitempty"`
	IPAddress string       `json:"ip_address,omitempty"`
	UserAgent string       `json:"user_agent,omitempty"`
}

// AccessDecision is the outcome of one evaluation. It is never mutated after
// creation; cached decisions are returned as copies of the same value.
type AccessDecision struct {
	Granted      bool           `json:"granted"`
	Reason       string         `json:"reason"`
	Permissions  []string       `json:"permissions,omitempty"` // held permissions that satisfied the requirement
	Conditions   map[string]any `json:"conditions,omitempty"`
	Restrictions []string       `json:"restrictions,omitempty"`
}
