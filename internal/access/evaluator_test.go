package access

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegishq/aegis/internal/models"
)

func testLogEntry() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

// stubRoleStore serves roles from a map and counts lookups so tests can tell
// cached decisions from recomputed ones.
type stubRoleStore struct {
	mu    sync.Mutex
	roles map[string]models.Role
	calls int
	err   error
	panic bool
}

func (s *stubRoleStore) GetRoles(_ context.Context, roleIDs []string) ([]models.Role, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.panic {
		panic("role store exploded")
	}
	if s.err != nil {
		return nil, s.err
	}
	var out []models.Role
	for _, id := range roleIDs {
		if role, ok := s.roles[id]; ok {
			out = append(out, role)
		}
	}
	return out, nil
}

func (s *stubRoleStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type recordingSink struct {
	mu     sync.Mutex
	events []*models.AuthEvent
}

func (r *recordingSink) Append(_ context.Context, event *models.AuthEvent) error {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
	return nil
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type denyAllConditions struct{}

func (denyAllConditions) Evaluate(context.Context, AccessContext, string) (bool, error) {
	return false, nil
}

func makeRole(t *testing.T, perms []string, external bool) models.Role {
	t.Helper()
	role := models.Role{IsExternalCustomer: external}
	require.NoError(t, role.SetPermissionList(perms))
	return role
}

func newTestEvaluator(store RoleStore) *Evaluator {
	return NewEvaluator(store, NewMemoryDecisionCache(), nil, nil, testLogEntry())
}

func TestEvaluator_CheckPermission(t *testing.T) {
	ctx := context.Background()

	t.Run("grants on exact permission", func(t *testing.T) {
		store := &stubRoleStore{roles: map[string]models.Role{
			"inspector": makeRole(t, []string{"inspection.read", "report.read"}, false),
		}}
		eval := newTestEvaluator(store)

		decision := eval.CheckPermission(ctx, AccessContext{
			User:     Principal{ID: "u1", TenantID: "t1", Roles: []string{"inspector"}},
			Resource: &ResourceRef{Type: "inspection", ID: "42", TenantID: "t1"},
			Action:   "read",
		})

		assert.True(t, decision.Granted)
		assert.Equal(t, ReasonGranted, decision.Reason)
		assert.Equal(t, []string{"inspection.read"}, decision.Permissions)
	})

	t.Run("grants on segment wildcard", func(t *testing.T) {
		store := &stubRoleStore{roles: map[string]models.Role{
			"manager": makeRole(t, []string{"inspection.*"}, false),
		}}
		eval := newTestEvaluator(store)

		decision := eval.CheckPermission(ctx, AccessContext{
			User:     Principal{ID: "u1", TenantID: "t1", Roles: []string{"manager"}},
			Resource: &ResourceRef{Type: "inspection", ID: "42", TenantID: "t1"},
			Action:   "delete",
		})

		assert.True(t, decision.Granted)
		assert.Equal(t, []string{"inspection.*"}, decision.Permissions)
	})

	t.Run("denies with missing permission reason", func(t *testing.T) {
		store := &stubRoleStore{roles: map[string]models.Role{
			"viewer": makeRole(t, []string{"inspection.read"}, false),
		}}
		eval := newTestEvaluator(store)

		decision := eval.CheckPermission(ctx, AccessContext{
			User:     Principal{ID: "u1", TenantID: "t1", Roles: []string{"viewer"}},
			Resource: &ResourceRef{Type: "inspection", ID: "42", TenantID: "t1"},
			Action:   "delete",
		})

		assert.False(t, decision.Granted)
		assert.Equal(t, "Access denied: missing permission inspection.delete", decision.Reason)
		assert.Empty(t, decision.Permissions)
	})

	t.Run("bare wildcard short-circuits", func(t *testing.T) {
		store := &stubRoleStore{roles: map[string]models.Role{
			"admin": makeRole(t, []string{"*", "inspection.read"}, false),
		}}
		eval := newTestEvaluator(store)

		decision := eval.CheckPermission(ctx, AccessContext{
			User:     Principal{ID: "u1", TenantID: "t1", Roles: []string{"admin"}},
			Resource: &ResourceRef{Type: "tenant", ID: "t1", TenantID: "t1"},
			Action:   "manage",
		})

		assert.True(t, decision.Granted)
		assert.Equal(t, ReasonWildcard, decision.Reason)
		assert.Equal(t, []string{"*"}, decision.Permissions)
	})

	t.Run("tenant isolation beats wildcard", func(t *testing.T) {
		store := &stubRoleStore{roles: map[string]models.Role{
			"admin": makeRole(t, []string{"*"}, false),
		}}
		eval := newTestEvaluator(store)

		decision := eval.CheckPermission(ctx, AccessContext{
			User:     Principal{ID: "u1", TenantID: "t1", Roles: []string{"admin"}},
			Resource: &ResourceRef{Type: "inspection", ID: "42", TenantID: "t2"},
			Action:   "read",
		})

		assert.False(t, decision.Granted)
		assert.Equal(t, ReasonTenantIsolation, decision.Reason)
		// Denied before roles were ever consulted.
		assert.Equal(t, 0, store.callCount())
	})

	t.Run("resource without tenant skips the isolation check", func(t *testing.T) {
		store := &stubRoleStore{roles: map[string]models.Role{
			"viewer": makeRole(t, []string{"report.read"}, false),
		}}
		eval := newTestEvaluator(store)

		decision := eval.CheckPermission(ctx, AccessContext{
			User:     Principal{ID: "u1", TenantID: "t1", Roles: []string{"viewer"}},
			Resource: &ResourceRef{Type: "report", ID: "7"},
			Action:   "read",
		})

		assert.True(t, decision.Granted)
	})

	t.Run("external customer blocked off the route allow-list", func(t *testing.T) {
		store := &stubRoleStore{roles: map[string]models.Role{
			"customer": makeRole(t, []string{"inspection.read"}, true),
		}}
		eval := newTestEvaluator(store)

		decision := eval.CheckPermission(ctx, AccessContext{
			User:   Principal{ID: "u1", TenantID: "t1", Roles: []string{"customer"}, IsExternalCustomer: true},
			Action: "read",
			Route:  "/admin/users",
		})

		assert.False(t, decision.Granted)
		assert.Equal(t, ReasonRouteRestricted, decision.Reason)
		assert.Equal(t, ExternalRouteAllowList(), decision.Restrictions)
		assert.Equal(t, 0, store.callCount())
	})

	t.Run("external customer allowed on the portal", func(t *testing.T) {
		store := &stubRoleStore{roles: map[string]models.Role{
			"customer": makeRole(t, []string{"inspection.read"}, true),
		}}
		eval := newTestEvaluator(store)

		decision := eval.CheckPermission(ctx, AccessContext{
			User:     Principal{ID: "u1", TenantID: "t1", Roles: []string{"customer"}, IsExternalCustomer: true},
			Resource: &ResourceRef{Type: "inspection", ID: "42", TenantID: "t1"},
			Action:   "read",
			Route:    "/inspections/shared/42",
		})

		assert.True(t, decision.Granted)
	})

	t.Run("permissions union across roles", func(t *testing.T) {
		store := &stubRoleStore{roles: map[string]models.Role{
			"a": makeRole(t, []string{"inspection.read"}, false),
			"b": makeRole(t, []string{"inspection.*"}, false),
		}}
		eval := newTestEvaluator(store)

		decision := eval.CheckPermission(ctx, AccessContext{
			User:     Principal{ID: "u1", TenantID: "t1", Roles: []string{"a", "b"}},
			Resource: &ResourceRef{Type: "inspection", ID: "42", TenantID: "t1"},
			Action:   "read",
		})

		assert.True(t, decision.Granted)
		assert.Equal(t, []string{"inspection.*", "inspection.read"}, decision.Permissions)
	})

	t.Run("condition predicate can veto a match", func(t *testing.T) {
		store := &stubRoleStore{roles: map[string]models.Role{
			"viewer": makeRole(t, []string{"inspection.read"}, false),
		}}
		eval := NewEvaluator(store, NewMemoryDecisionCache(), nil, denyAllConditions{}, testLogEntry())

		decision := eval.CheckPermission(ctx, AccessContext{
			User:     Principal{ID: "u1", TenantID: "t1", Roles: []string{"viewer"}},
			Resource: &ResourceRef{Type: "inspection", ID: "42", TenantID: "t1"},
			Action:   "read",
		})

		assert.False(t, decision.Granted)
		assert.Equal(t, ReasonConditionsFailed, decision.Reason)
	})

	t.Run("unknown roles evaluate to deny", func(t *testing.T) {
		store := &stubRoleStore{roles: map[string]models.Role{}}
		eval := newTestEvaluator(store)

		decision := eval.CheckPermission(ctx, AccessContext{
			User:   Principal{ID: "u1", TenantID: "t1", Roles: []string{"gone"}},
			Action: "read",
		})

		assert.False(t, decision.Granted)
	})
}

func TestEvaluator_Caching(t *testing.T) {
	ctx := context.Background()
	ac := AccessContext{
		User:     Principal{ID: "u1", TenantID: "t1", Roles: []string{"viewer"}},
		Resource: &ResourceRef{Type: "inspection", ID: "42", TenantID: "t1"},
		Action:   "read",
	}

	t.Run("identical context served from cache", func(t *testing.T) {
		store := &stubRoleStore{roles: map[string]models.Role{
			"viewer": makeRole(t, []string{"inspection.read"}, false),
		}}
		eval := newTestEvaluator(store)

		first := eval.CheckPermission(ctx, ac)
		second := eval.CheckPermission(ctx, ac)

		assert.Equal(t, first, second)
		assert.Equal(t, 1, store.callCount())
	})

	t.Run("different action misses the cache", func(t *testing.T) {
		store := &stubRoleStore{roles: map[string]models.Role{
			"viewer": makeRole(t, []string{"inspection.*"}, false),
		}}
		eval := newTestEvaluator(store)

		eval.CheckPermission(ctx, ac)
		other := ac
		other.Action = "write"
		eval.CheckPermission(ctx, other)

		assert.Equal(t, 2, store.callCount())
	})

	t.Run("denies are cached too", func(t *testing.T) {
		store := &stubRoleStore{roles: map[string]models.Role{
			"viewer": makeRole(t, []string{"report.read"}, false),
		}}
		eval := newTestEvaluator(store)

		first := eval.CheckPermission(ctx, ac)
		second := eval.CheckPermission(ctx, ac)

		assert.False(t, first.Granted)
		assert.Equal(t, first, second)
		assert.Equal(t, 1, store.callCount())
	})

	t.Run("invalidate user forces recomputation", func(t *testing.T) {
		store := &stubRoleStore{roles: map[string]models.Role{
			"viewer": makeRole(t, []string{"inspection.read"}, false),
		}}
		eval := newTestEvaluator(store)

		eval.CheckPermission(ctx, ac)
		eval.InvalidateUser(ctx, "u1")
		eval.CheckPermission(ctx, ac)

		assert.Equal(t, 2, store.callCount())
	})

	t.Run("failures are not cached", func(t *testing.T) {
		store := &stubRoleStore{err: errors.New("db down")}
		eval := newTestEvaluator(store)

		first := eval.CheckPermission(ctx, ac)
		assert.False(t, first.Granted)
		assert.Equal(t, ReasonEvaluationFailed, first.Reason)

		// Store recovers; the next evaluation must see it.
		store.mu.Lock()
		store.err = nil
		store.roles = map[string]models.Role{
			"viewer": makeRole(t, []string{"inspection.read"}, false),
		}
		store.mu.Unlock()

		second := eval.CheckPermission(ctx, ac)
		assert.True(t, second.Granted)
		assert.Equal(t, 2, store.callCount())
	})
}

func TestEvaluator_FailClosed(t *testing.T) {
	ctx := context.Background()
	ac := AccessContext{
		User:   Principal{ID: "u1", TenantID: "t1", Roles: []string{"viewer"}},
		Action: "read",
	}

	t.Run("role store error denies", func(t *testing.T) {
		eval := newTestEvaluator(&stubRoleStore{err: errors.New("connection refused")})

		decision := eval.CheckPermission(ctx, ac)
		assert.False(t, decision.Granted)
		assert.Equal(t, ReasonEvaluationFailed, decision.Reason)
	})

	t.Run("panic denies instead of propagating", func(t *testing.T) {
		eval := newTestEvaluator(&stubRoleStore{panic: true})

		var decision AccessDecision
		assert.NotPanics(t, func() {
			decision = eval.CheckPermission(ctx, ac)
		})
		assert.False(t, decision.Granted)
		assert.Equal(t, ReasonEvaluationFailed, decision.Reason)
	})
}

func TestEvaluator_AuditTrail(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{}
	store := &stubRoleStore{roles: map[string]models.Role{
		"viewer": makeRole(t, []string{"inspection.read"}, false),
	}}
	eval := NewEvaluator(store, NewMemoryDecisionCache(), sink, nil, testLogEntry())

	ac := AccessContext{
		User:     Principal{ID: "u1", TenantID: "t1", TenantSlug: "acme", Roles: []string{"viewer"}},
		Resource: &ResourceRef{Type: "inspection", ID: "42", TenantID: "t1"},
		Action:   "read",
		Route:    "/inspections/42",
	}

	eval.CheckPermission(ctx, ac)
	// Cache hit: still audited.
	eval.CheckPermission(ctx, ac)

	assert.Eventually(t, func() bool { return sink.count() == 2 }, 2*time.Second, 10*time.Millisecond)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	event := sink.events[0]
	assert.Equal(t, "acme", event.TenantSlug)
	assert.Equal(t, "u1", event.UserID)
	assert.Equal(t, models.ActionAccessGranted, event.Action)
	assert.True(t, event.Success)

	meta := event.MetadataMap()
	assert.Equal(t, "read", meta["requested_action"])
	assert.Equal(t, "inspection", meta["resource_type"])
	assert.Equal(t, ReasonGranted, meta["reason"])
}
