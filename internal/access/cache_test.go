package access

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestCache(start time.Time) (*MemoryDecisionCache, *time.Time) {
	now := start
	cache := NewMemoryDecisionCache()
	cache.now = func() time.Time { return now }
	return cache, &now
}

func TestCacheKey(t *testing.T) {
	ac := AccessContext{
		User:     Principal{ID: "user-1", TenantID: "tenant-a"},
		Resource: &ResourceRef{Type: "inspection", ID: "42"},
		Action:   "read",
		Route:    "/inspections/42",
	}
	assert.Equal(t, "user-1|tenant-a|read|inspection|42|/inspections/42", CacheKey(ac))

	t.Run("nil resource leaves components empty", func(t *testing.T) {
		ac := AccessContext{
			User:   Principal{ID: "user-1", TenantID: "tenant-a"},
			Action: "login",
		}
		assert.Equal(t, "user-1|tenant-a|login|||", CacheKey(ac))
	})
}

func TestMemoryDecisionCache(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("get returns stored decision", func(t *testing.T) {
		cache, _ := newTestCache(start)
		decision := AccessDecision{Granted: true, Reason: ReasonGranted}
		cache.Put(ctx, "k", decision)

		got, ok := cache.Get(ctx, "k")
		assert.True(t, ok)
		assert.Equal(t, decision, got)
	})

	t.Run("miss on unknown key", func(t *testing.T) {
		cache, _ := newTestCache(start)
		_, ok := cache.Get(ctx, "missing")
		assert.False(t, ok)
	})

	t.Run("expired entry is a miss", func(t *testing.T) {
		cache, now := newTestCache(start)
		cache.Put(ctx, "k", AccessDecision{Granted: true})

		*now = start.Add(DecisionTTL - time.Second)
		_, ok := cache.Get(ctx, "k")
		assert.True(t, ok)

		*now = start.Add(DecisionTTL + time.Second)
		_, ok = cache.Get(ctx, "k")
		assert.False(t, ok)
	})

	t.Run("ttl is absolute, reads do not refresh", func(t *testing.T) {
		cache, now := newTestCache(start)
		cache.Put(ctx, "k", AccessDecision{Granted: true})

		// Read repeatedly right up to the deadline.
		for i := 1; i <= 4; i++ {
			*now = start.Add(time.Duration(i) * time.Minute)
			_, ok := cache.Get(ctx, "k")
			assert.True(t, ok)
		}

		*now = start.Add(DecisionTTL + time.Millisecond)
		_, ok := cache.Get(ctx, "k")
		assert.False(t, ok)
	})

	t.Run("denies are cached like grants", func(t *testing.T) {
		cache, _ := newTestCache(start)
		cache.Put(ctx, "k", AccessDecision{Granted: false, Reason: ReasonTenantIsolation})

		got, ok := cache.Get(ctx, "k")
		assert.True(t, ok)
		assert.False(t, got.Granted)
		assert.Equal(t, ReasonTenantIsolation, got.Reason)
	})

	t.Run("invalidate user drops only that user's keys", func(t *testing.T) {
		cache, _ := newTestCache(start)
		cache.Put(ctx, "user-1|t|read|||", AccessDecision{Granted: true})
		cache.Put(ctx, "user-1|t|write|||", AccessDecision{Granted: true})
		cache.Put(ctx, "user-2|t|read|||", AccessDecision{Granted: true})

		cache.InvalidateUser(ctx, "user-1")

		_, ok := cache.Get(ctx, "user-1|t|read|||")
		assert.False(t, ok)
		_, ok = cache.Get(ctx, "user-1|t|write|||")
		assert.False(t, ok)
		_, ok = cache.Get(ctx, "user-2|t|read|||")
		assert.True(t, ok)
	})

	t.Run("invalidate does not match user id prefixes", func(t *testing.T) {
		cache, _ := newTestCache(start)
		cache.Put(ctx, "user-12|t|read|||", AccessDecision{Granted: true})

		cache.InvalidateUser(ctx, "user-1")

		_, ok := cache.Get(ctx, "user-12|t|read|||")
		assert.True(t, ok)
	})

	t.Run("clear drops everything", func(t *testing.T) {
		cache, _ := newTestCache(start)
		cache.Put(ctx, "a", AccessDecision{})
		cache.Put(ctx, "b", AccessDecision{})

		cache.Clear(ctx)
		assert.Equal(t, 0, cache.Len())
	})

	t.Run("sweep removes only expired entries", func(t *testing.T) {
		cache, now := newTestCache(start)
		cache.Put(ctx, "old", AccessDecision{})

		*now = start.Add(4 * time.Minute)
		cache.Put(ctx, "fresh", AccessDecision{})

		*now = start.Add(DecisionTTL + time.Minute)
		removed := cache.Sweep()
		assert.Equal(t, 1, removed)
		assert.Equal(t, 1, cache.Len())
	})
}
