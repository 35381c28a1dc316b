package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xavierca1/leadsync/internal/entity"
)

type fakeKV struct {
	data   map[string]string
	ttl    time.Duration
	getErr error
	setErr error
}

func (f *fakeKV) Get(ctx context.Context, key string) *redis.StringCmd {
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeKV) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	if f.setErr != nil {
		return redis.NewStatusResult("", f.setErr)
	}
	f.data[key] = string(value.([]byte))
	f.ttl = expiration
	return redis.NewStatusResult("OK", nil)
}

func TestHealthCache_SetThenGet(t *testing.T) {
	logger, _ := test.NewNullLogger()
	kv := &fakeKV{data: map[string]string{}}
	c := NewHealthCache(kv, logger)

	report := &entity.HealthReport{
		Overall:   entity.Degraded,
		CheckedAt: time.Date(2025, 1, 9, 12, 0, 0, 0, time.UTC),
		LeadCount: 42,
		Dependencies: []entity.DependencyCheck{
			{Name: "scheduling", Status: entity.Degraded, LatencyMS: 2300, Detail: "slow response (2.3s)"},
		},
	}
	c.Set(context.Background(), report, 30*time.Second)

	got, ok := c.Get(context.Background())
	require.True(t, ok)
	assert.Equal(t, report, got)
	assert.Equal(t, 30*time.Second, kv.ttl)
}

func TestHealthCache_MissAndFailuresAreMisses(t *testing.T) {
	logger, hook := test.NewNullLogger()

	c := NewHealthCache(&fakeKV{data: map[string]string{}}, logger)
	_, ok := c.Get(context.Background())
	assert.False(t, ok)
	assert.Empty(t, hook.Entries)

	c = NewHealthCache(&fakeKV{getErr: errors.New("dial tcp: connection refused")}, logger)
	_, ok = c.Get(context.Background())
	assert.False(t, ok)
	assert.Len(t, hook.Entries, 1)

	c = NewHealthCache(&fakeKV{data: map[string]string{DefaultHealthKey: "{not json"}}, logger)
	_, ok = c.Get(context.Background())
	assert.False(t, ok)
}

func TestHealthCache_WriteFailureIsLogged(t *testing.T) {
	logger, hook := test.NewNullLogger()
	c := NewHealthCache(&fakeKV{data: map[string]string{}, setErr: errors.New("READONLY")}, logger)

	c.Set(context.Background(), &entity.HealthReport{Overall: entity.Healthy}, time.Second)

	require.Len(t, hook.Entries, 1)
	assert.Equal(t, "health cache write failed", hook.LastEntry().Message)
}
