// Package cache keeps the last health report in redis so dashboard polling
// does not hit the external APIs on every request.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/xavierca1/leadsync/internal/entity"
)

const DefaultHealthKey = "leadsync:health:latest"

// KV is the subset of the redis client the cache needs.
type KV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

type HealthCache struct {
	kv     KV
	key    string
	logger logrus.FieldLogger
}

func NewRedisClient(addr, password string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
}

func NewHealthCache(kv KV, logger logrus.FieldLogger) *HealthCache {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &HealthCache{kv: kv, key: DefaultHealthKey, logger: logger}
}

// Get returns the cached report. Any redis failure is a miss.
func (c *HealthCache) Get(ctx context.Context) (*entity.HealthReport, bool) {
	raw, err := c.kv.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.logger.WithError(err).Warn("health cache read failed")
		return nil, false
	}
	var report entity.HealthReport
	if err := json.Unmarshal(raw, &report); err != nil {
		c.logger.WithError(err).Warn("health cache entry unreadable")
		return nil, false
	}
	return &report, true
}

func (c *HealthCache) Set(ctx context.Context, report *entity.HealthReport, ttl time.Duration) {
	raw, err := json.Marshal(report)
	if err != nil {
		c.logger.WithError(err).Warn("health report not cacheable")
		return
	}
	if err := c.kv.Set(ctx, c.key, raw, ttl).Err(); err != nil {
		c.logger.WithError(err).Warn("health cache write failed")
	}
}
