package kv

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.Get(ctx, "cart")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Set(ctx, "cart", "[]"))
	require.NoError(t, store.Set(ctx, "cart", `[{"id":"1"}]`))
	got, err := store.Get(ctx, "cart")
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"1"}]`, got)

	require.NoError(t, store.Delete(ctx, "cart"))
	assert.Zero(t, store.Len())
}

func TestMemoryStoreTTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStoreWithTTL(time.Minute)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Set(ctx, "auth_recovery", "{}"))
	_, err := store.Get(ctx, "auth_recovery")
	require.NoError(t, err)

	now = now.Add(time.Minute)
	_, err = store.Get(ctx, "auth_recovery")
	assert.ErrorIs(t, err, ErrNotFound)
}

type fakeRedis struct {
	data map[string]string
	ttl  map[string]time.Duration
}

func (f *fakeRedis) Get(_ context.Context, key string) (string, error) {
	v, ok := f.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	f.data[key] = value.(string)
	f.ttl[key] = ttl
	return nil
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func TestRedisStoreNamespacesKeys(t *testing.T) {
	ctx := context.Background()
	backend := &fakeRedis{data: map[string]string{}, ttl: map[string]time.Duration{}}
	store := NewRedisStore(backend, func(k string) string { return "sf:cart:dev-1:" + k }, time.Hour)

	_, err := store.Get(ctx, "cart")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Set(ctx, "cart", "[]"))
	assert.Equal(t, "[]", backend.data["sf:cart:dev-1:cart"])
	assert.Equal(t, time.Hour, backend.ttl["sf:cart:dev-1:cart"])

	require.NoError(t, store.Delete(ctx, "cart"))
	assert.Empty(t, backend.data)
}
