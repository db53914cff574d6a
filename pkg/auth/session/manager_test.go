package session

import (
	"context"
	"testing"
	"time"

	redislib "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	data map[string]string
	ttls map[string]time.Duration
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	m.data[key], _ = value.(string)
	m.ttls[key] = ttl
	return nil
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	v, ok := m.data[key]
	if !ok {
		return "", redislib.Nil
	}
	return v, nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

type prefixKeyer struct{}

func (prefixKeyer) AccessSessionKey(id string) string { return "session:" + id }

func TestManagerLifecycle(t *testing.T) {
	store := newMemoryStore()
	mgr, err := newManager(store, prefixKeyer{}, time.Hour)
	require.NoError(t, err)
	ctx := context.Background()

	id := NewAccessID()
	ok, err := mgr.HasSession(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	loginAt := time.Date(2026, 2, 14, 9, 0, 0, 0, time.UTC)
	require.NoError(t, mgr.Start(ctx, id, loginAt))
	assert.Equal(t, "2026-02-14T09:00:00Z", store.data["session:"+id])
	assert.Equal(t, time.Hour, store.ttls["session:"+id])

	ok, err = mgr.HasSession(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, mgr.Revoke(ctx, id))
	ok, err = mgr.HasSession(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestManagerValidation(t *testing.T) {
	_, err := newManager(newMemoryStore(), prefixKeyer{}, 0)
	assert.Error(t, err)

	mgr, err := newManager(newMemoryStore(), prefixKeyer{}, time.Minute)
	require.NoError(t, err)
	assert.Error(t, mgr.Start(context.Background(), " ", time.Now()))
	_, err = mgr.HasSession(context.Background(), "")
	assert.Error(t, err)
	assert.NoError(t, mgr.Revoke(context.Background(), ""))
}
