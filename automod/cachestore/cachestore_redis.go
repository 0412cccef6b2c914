package cachestore

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"
)

// Redis-backed CacheStore, with a small process-local TinyLFU in front. Shared by every antigcast process pointed at the same redis, so an administrator list fetched by one is reused by the others.
type RedisCacheStore struct {
	Data *cache.Cache
	// lifetime of entries in redis
	TTL time.Duration
}

var _ CacheStore = (*RedisCacheStore)(nil)

// upper bound on how long a process serves an entry from its local cache, so a Purge from another process takes effect soon
const maxLocalTTL = time.Minute

// Wraps an existing redis client. Entries live in redis for ttl; the local layer holds them for at most a minute.
func NewRedisCacheStore(rdb *redis.Client, ttl time.Duration) *RedisCacheStore {
	data := cache.New(&cache.Options{
		Redis:      rdb,
		LocalCache: cache.NewTinyLFU(10_000, min(ttl, maxLocalTTL)),
	})
	return &RedisCacheStore{
		Data: data,
		TTL:  ttl,
	}
}

// keys are namespaced per cache name (eg "chat-admins") under a prefix shared with no other antigcast keyspace
func redisCacheKey(name, key string) string {
	return "antigcast/cache/" + name + "/" + key
}

func (s *RedisCacheStore) Get(ctx context.Context, name, key string) (string, error) {
	var val string
	err := s.Data.Get(ctx, redisCacheKey(name, key), &val)
	if errors.Is(err, cache.ErrCacheMiss) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

func (s *RedisCacheStore) Set(ctx context.Context, name, key string, val string) error {
	return s.Data.Set(&cache.Item{
		Ctx:   ctx,
		Key:   redisCacheKey(name, key),
		Value: val,
		TTL:   s.TTL,
	})
}

func (s *RedisCacheStore) Purge(ctx context.Context, name, key string) error {
	err := s.Data.Delete(ctx, redisCacheKey(name, key))
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil
	}
	return err
}
