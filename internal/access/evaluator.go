package access

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aegishq/aegis/internal/metrics"
	"github.com/aegishq/aegis/internal/models"
)

// Decision reasons that callers and tests rely on verbatim.
const (
	ReasonEvaluationFailed = "Permission evaluation failed"
	ReasonTenantIsolation  = "Access denied: resource belongs to another tenant"
	ReasonRouteRestricted  = "Access denied: route not available to external customers"
	ReasonWildcard         = "Wildcard permission"
	ReasonGranted          = "Permission granted"
	ReasonConditionsFailed = "Access denied: permission conditions not met"
)

const auditWriteTimeout = 5 * time.Second

// RoleStore supplies role documents for a set of role identifiers. Roles are
// owned by an external administration flow and read-only here.
type RoleStore interface {
	GetRoles(ctx context.Context, roleIDs []string) ([]models.Role, error)
}

// AuditSink receives the append-only decision trail.
type AuditSink interface {
	Append(ctx context.Context, event *models.AuthEvent) error
}

// ConditionEvaluator is the pluggable predicate consulted once a matching
// permission is found. The default implementation always allows; it exists so
// attribute-based conditions can be added without changing the call contract.
type ConditionEvaluator interface {
	Evaluate(ctx context.Context, ac AccessContext, permission string) (bool, error)
}

// AllowAllConditions is the default ConditionEvaluator.
type AllowAllConditions struct{}

func (AllowAllConditions) Evaluate(context.Context, AccessContext, string) (bool, error) {
	return true, nil
}

// Evaluator computes access decisions. Construct one at startup and share it;
// it is safe for concurrent use.
type Evaluator struct {
	roles      RoleStore
	cache      DecisionCache
	audit      AuditSink
	conditions ConditionEvaluator
	log        *logrus.Entry
}

// NewEvaluator wires an Evaluator. A nil conditions predicate defaults to
// AllowAllConditions; a nil audit sink disables the decision trail.
func NewEvaluator(roles RoleStore, cache DecisionCache, audit AuditSink, conditions ConditionEvaluator, log *logrus.Entry) *Evaluator {
	if conditions == nil {
		conditions = AllowAllConditions{}
	}
	return &Evaluator{
		roles:      roles,
		cache:      cache,
		audit:      audit,
		conditions: conditions,
		log:        log,
	}
}

// CheckPermission computes the decision for a context. It never returns an
// error: any internal failure yields a deny with a generic reason, never a
// silent grant. Decisions, cached or not, are recorded to the audit sink on a
// background goroutine that cannot block or fail the caller.
func (e *Evaluator) CheckPermission(ctx context.Context, ac AccessContext) (decision AccessDecision) {
	defer func() {
		if r := recover(); r != nil {
			e.log.WithField("panic", fmt.Sprint(r)).Error("permission evaluation panicked")
			decision = AccessDecision{Granted: false, Reason: ReasonEvaluationFailed}
		}
	}()

	key := CacheKey(ac)
	if cached, ok := e.cache.Get(ctx, key); ok {
		metrics.IncCacheHit()
		e.recordDecision(ac, cached)
		e.countDecision(cached)
		return cached
	}
	metrics.IncCacheMiss()

	computed, err := e.evaluate(ctx, ac)
	if err != nil {
		e.log.WithError(err).WithFields(logrus.Fields{
			"user":   ac.User.ID,
			"tenant": ac.User.TenantID,
			"action": ac.Action,
		}).Error("permission evaluation failed")
		computed = AccessDecision{Granted: false, Reason: ReasonEvaluationFailed}
	} else {
		// Both grants and denies are cached; failures are not, so a
		// recovered role store produces fresh answers immediately.
		e.cache.Put(ctx, key, computed)
	}

	e.recordDecision(ac, computed)
	e.countDecision(computed)
	return computed
}

// InvalidateUser drops the user's cached decisions. Role administration flows
// must call this whenever a user's role set or role contents change.
func (e *Evaluator) InvalidateUser(ctx context.Context, userID string) {
	e.cache.InvalidateUser(ctx, userID)
}

func (e *Evaluator) evaluate(ctx context.Context, ac AccessContext) (AccessDecision, error) {
	// Tenant isolation precedes all permission logic and cannot be
	// bypassed by any permission, including the bare wildcard.
	if ac.Resource != nil && ac.Resource.TenantID != "" && ac.Resource.TenantID != ac.User.TenantID {
		return AccessDecision{Granted: false, Reason: ReasonTenantIsolation}, nil
	}

	if ac.User.IsExternalCustomer && !RouteAllowed(ac.Route, ExternalCustomerRoutes) {
		return AccessDecision{
			Granted:      false,
			Reason:       ReasonRouteRestricted,
			Restrictions: ExternalRouteAllowList(),
		}, nil
	}

	roles, err := e.roles.GetRoles(ctx, ac.User.Roles)
	if err != nil {
		return AccessDecision{}, fmt.Errorf("load roles: %w", err)
	}

	held := aggregatePermissions(roles)

	if _, ok := held[Wildcard]; ok {
		return AccessDecision{
			Granted:     true,
			Reason:      ReasonWildcard,
			Permissions: []string{Wildcard},
		}, nil
	}

	var resourceType string
	if ac.Resource != nil {
		resourceType = ac.Resource.Type
	}
	required := RequiredPermission(resourceType, ac.Action)

	var matched []string
	for perm := range held {
		if Matches(perm, required) {
			matched = append(matched, perm)
		}
	}

	if len(matched) == 0 {
		return AccessDecision{
			Granted: false,
			Reason:  fmt.Sprintf("Access denied: missing permission %s", required),
		}, nil
	}
	sort.Strings(matched)

	ok, err := e.conditions.Evaluate(ctx, ac, required)
	if err != nil {
		return AccessDecision{}, fmt.Errorf("evaluate conditions: %w", err)
	}
	if !ok {
		return AccessDecision{Granted: false, Reason: ReasonConditionsFailed}, nil
	}

	return AccessDecision{
		Granted:     true,
		Reason:      ReasonGranted,
		Permissions: matched,
	}, nil
}

// aggregatePermissions unions permissions across roles. The set collapses
// duplicates held through multiple roles. expandRoleHierarchy is the reserved
// inheritance hook; it is currently a no-op.
func aggregatePermissions(roles []models.Role) map[string]struct{} {
	held := make(map[string]struct{})
	for _, role := range roles {
		for _, perm := range expandRoleHierarchy(role.PermissionList()) {
			held[perm] = struct{}{}
		}
	}
	return held
}

func expandRoleHierarchy(perms []string) []string {
	return perms
}

// recordDecision appends the decision to the audit trail without blocking the
// caller. Failures are logged and swallowed; the decision already returned.
func (e *Evaluator) recordDecision(ac AccessContext, decision AccessDecision) {
	if e.audit == nil {
		return
	}
	action := models.ActionAccessDenied
	if decision.Granted {
		action = models.ActionAccessGranted
	}

	event := &models.AuthEvent{
		TenantSlug: ac.User.TenantSlug,
		UserID:     ac.User.ID,
		Action:     action,
		Success:    decision.Granted,
		IPAddress:  ac.IPAddress,
		UserAgent:  ac.UserAgent,
		OccurredAt: time.Now().UTC(),
	}
	meta := map[string]any{
		"requested_action":  ac.Action,
		"route":             ac.Route,
		"reason":            decision.Reason,
		"permissions":       decision.Permissions,
		"external_customer": ac.User.IsExternalCustomer,
	}
	if ac.Resource != nil {
		meta["resource_type"] = ac.Resource.Type
		meta["resource_id"] = ac.Resource.ID
	}
	event.SetMetadataMap(meta)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.log.WithField("panic", fmt.Sprint(r)).Error("decision audit write panicked")
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
		defer cancel()
		if err := e.audit.Append(ctx, event); err != nil {
			e.log.WithError(err).Warn("failed to persist decision audit entry")
		}
	}()
}

func (e *Evaluator) countDecision(d AccessDecision) {
	if d.Granted {
		metrics.IncDecisionGranted()
	} else {
		metrics.IncDecisionDenied()
	}
}
