package access

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const redisKeyPrefix = "aegis:decision:"

// RedisDecisionCache is a DecisionCache backed by Redis, for deployments
// running more than one instance. TTL handling is delegated to Redis key
// expiry, which gives the same absolute 5-minute semantics as the in-memory
// cache. Redis unavailability degrades to a cache miss, never an error.
type RedisDecisionCache struct {
	client *redis.Client
	log    *logrus.Entry
}

// NewRedisDecisionCache wraps an existing Redis client.
func NewRedisDecisionCache(client *redis.Client, log *logrus.Entry) *RedisDecisionCache {
	return &RedisDecisionCache{client: client, log: log}
}

func (c *RedisDecisionCache) Get(ctx context.Context, key string) (AccessDecision, bool) {
	raw, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.WithError(err).Debug("decision cache read failed")
		}
		return AccessDecision{}, false
	}
	var decision AccessDecision
	if err := json.Unmarshal(raw, &decision); err != nil {
		return AccessDecision{}, false
	}
	return decision, true
}

func (c *RedisDecisionCache) Put(ctx context.Context, key string, decision AccessDecision) {
	raw, err := json.Marshal(decision)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, redisKeyPrefix+key, raw, DecisionTTL).Err(); err != nil {
		c.log.WithError(err).Debug("decision cache write failed")
	}
}

func (c *RedisDecisionCache) InvalidateUser(ctx context.Context, userID string) {
	c.deleteByPattern(ctx, redisKeyPrefix+userID+"|*")
}

func (c *RedisDecisionCache) Clear(ctx context.Context) {
	c.deleteByPattern(ctx, redisKeyPrefix+"*")
}

func (c *RedisDecisionCache) deleteByPattern(ctx context.Context, pattern string) {
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.log.WithError(err).Warn("decision cache scan failed")
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.log.WithError(err).Warn("decision cache invalidation failed")
	}
}
