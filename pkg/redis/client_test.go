package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCmdable struct {
	data        map[string]string
	counters    map[string]int64
	expireCalls []string
	ttls        map[string]time.Duration
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{data: map[string]string{}, counters: map[string]int64{}, ttls: map[string]time.Duration{}}
}

func (m *mockCmdable) Ping(ctx context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Set(ctx context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	m.data[key], _ = value.(string)
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(ctx context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd {
	if _, ok := m.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key], _ = value.(string)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Incr(ctx context.Context, key string) *redis.IntCmd {
	m.counters[key]++
	return redis.NewIntResult(m.counters[key], nil)
}

func (m *mockCmdable) Expire(ctx context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	m.expireCalls = append(m.expireCalls, key)
	m.ttls[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) TTL(ctx context.Context, key string) *redis.DurationCmd {
	if ttl, ok := m.ttls[key]; ok {
		return redis.NewDurationResult(ttl, nil)
	}
	return redis.NewDurationResult(-1, nil)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, key := range keys {
		if _, ok := m.data[key]; ok {
			delete(m.data, key)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func TestFixedWindowAllow(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	allowed, count, err := client.FixedWindowAllow(ctx, "login:ip", 2, time.Second)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, int64(1), count)
	assert.Len(t, mock.expireCalls, 1)

	allowed, count, err = client.FixedWindowAllow(ctx, "login:ip", 2, time.Second)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, int64(2), count)
	assert.Len(t, mock.expireCalls, 1, "expire should not be set again")

	allowed, _, err = client.FixedWindowAllow(ctx, "login:ip", 2, time.Second)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestFixedWindowRepairsMissingTTL(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}
	key := client.RateLimitKey("create_order:ip:1.2.3.4")
	mock.counters[key] = 5

	allowed, count, err := client.FixedWindowAllow(ctx, "create_order:ip:1.2.3.4", 5, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, int64(6), count)
	assert.Equal(t, time.Minute, mock.ttls[key])
}

func TestSetGetDel(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}

	key := client.CartKey("device-1", "cart_42")
	require.NoError(t, client.Set(ctx, key, `[]`, time.Hour))
	got, err := client.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, `[]`, got)

	require.NoError(t, client.Del(ctx, key))
	_, err = client.Get(ctx, key)
	assert.True(t, errors.Is(err, Nil))
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	assert.Equal(t, "sf:cart:device-1:cart", client.CartKey("device-1", "cart"))
	assert.Equal(t, "sf:cart:cart_7", client.CartKey("", "cart_7"))
	assert.Equal(t, "sf:idempotency:scope:abc", client.IdempotencyKey("scope", "abc"))
	assert.Equal(t, "sf:session:access:jti", client.AccessSessionKey("jti"))
	assert.Equal(t, "sf:lock:cron-worker:dev", client.LockKey("cron-worker:dev"))
}

func TestUninitializedClient(t *testing.T) {
	client := &Client{}
	_, err := client.Get(context.Background(), "k")
	assert.Error(t, err)
	assert.NoError(t, client.Close())
}
