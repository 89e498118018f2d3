package access

import (
	"context"
	"strings"
	"sync"
	"time"
)

// DecisionTTL is the absolute lifetime of a cached decision. Entries are not
// refreshed on read; a hit past the TTL is a miss.
const DecisionTTL = 5 * time.Minute

// DecisionCache memoizes access decisions by context fingerprint. Grants and
// denies are cached identically. Implementations must be safe for concurrent
// use; for a multi-instance deployment back it with a shared store (see
// RedisDecisionCache).
type DecisionCache interface {
	Get(ctx context.Context, key string) (AccessDecision, bool)
	Put(ctx context.Context, key string, decision AccessDecision)
	// InvalidateUser drops every entry whose key was built for the user.
	// Role administration must call this whenever a user's roles change.
	InvalidateUser(ctx context.Context, userID string)
	Clear(ctx context.Context)
}

// CacheKey builds the decision cache key for a context. The user ID is the
// first component so per-user invalidation can work on a key prefix.
func CacheKey(ac AccessContext) string {
	resourceType, resourceID := "", ""
	if ac.Resource != nil {
		resourceType = ac.Resource.Type
		resourceID = ac.Resource.ID
	}
	return strings.Join([]string{
		ac.User.ID,
		ac.User.TenantID,
		ac.Action,
		resourceType,
		resourceID,
		ac.Route,
	}, "|")
}

type cacheEntry struct {
	decision AccessDecision
	storedAt time.Time
}

// MemoryDecisionCache is the in-process DecisionCache used for single
// instance deployments.
type MemoryDecisionCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryDecisionCache constructs a cache with the standard decision TTL.
func NewMemoryDecisionCache() *MemoryDecisionCache {
	return &MemoryDecisionCache{
		entries: make(map[string]cacheEntry),
		ttl:     DecisionTTL,
		now:     time.Now,
	}
}

// Get returns the cached decision for key, treating expired entries as misses.
func (c *MemoryDecisionCache) Get(_ context.Context, key string) (AccessDecision, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return AccessDecision{}, false
	}
	if c.now().Sub(entry.storedAt) > c.ttl {
		return AccessDecision{}, false
	}
	return entry.decision, true
}

// Put stores a decision under key with a fresh timestamp. Last write wins.
func (c *MemoryDecisionCache) Put(_ context.Context, key string, decision AccessDecision) {
	c.mu.Lock()
	c.entries[key] = cacheEntry{decision: decision, storedAt: c.now()}
	c.mu.Unlock()
}

// InvalidateUser drops all entries keyed for the given user.
func (c *MemoryDecisionCache) InvalidateUser(_ context.Context, userID string) {
	prefix := userID + "|"
	c.mu.Lock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()
}

// Clear drops every entry.
func (c *MemoryDecisionCache) Clear(_ context.Context) {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}

// Sweep removes expired entries so long-idle keys do not accumulate. Expiry
// is already enforced on read; this only bounds memory. Called on a schedule.
func (c *MemoryDecisionCache) Sweep() int {
	cutoff := c.now().Add(-c.ttl)
	removed := 0
	c.mu.Lock()
	for key, entry := range c.entries {
		if entry.storedAt.Before(cutoff) {
			delete(c.entries, key)
			removed++
		}
	}
	c.mu.Unlock()
	return removed
}

// Len reports the number of live entries, expired or not.
func (c *MemoryDecisionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
