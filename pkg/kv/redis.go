package kv

import (
	"context"
	"errors"
	"time"

	pkgredis "github.com/petalpost/storefront-backend/pkg/redis"
)

type redisBackend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// RedisStore maps logical keys onto a redis keyspace via keyFn.
type RedisStore struct {
	client redisBackend
	keyFn  func(string) string
	ttl    time.Duration
}

// NewRedisStore builds a store. keyFn namespaces keys; ttl of zero never expires.
func NewRedisStore(client redisBackend, keyFn func(string) string, ttl time.Duration) *RedisStore {
	if keyFn == nil {
		keyFn = func(k string) string { return k }
	}
	return &RedisStore{client: client, keyFn: keyFn, ttl: ttl}
}

func (r *RedisStore) Get(ctx context.Context, key string) (string, error) {
	value, err := r.client.Get(ctx, r.keyFn(key))
	if errors.Is(err, pkgredis.Nil) {
		return "", ErrNotFound
	}
	return value, err
}

func (r *RedisStore) Set(ctx context.Context, key, value string) error {
	return r.client.Set(ctx, r.keyFn(key), value, r.ttl)
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.keyFn(key))
}
