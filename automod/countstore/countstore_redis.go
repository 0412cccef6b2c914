package countstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisCountPrefix    = "antigcast/count/"
	redisDistinctPrefix = "antigcast/distinct/"
)

// Redis-backed CountStore. Distinct counts use HyperLogLog, so they are approximate.
type RedisCountStore struct {
	Client *redis.Client
	// clock, overridable for tests
	Now func() time.Time
}

var _ CountStore = (*RedisCountStore)(nil)

func NewRedisCountStore(rdb *redis.Client) *RedisCountStore {
	return &RedisCountStore{
		Client: rdb,
		Now:    time.Now,
	}
}

func (s *RedisCountStore) GetCount(ctx context.Context, name, val, period string) (int, error) {
	k, err := periodBucket(name, val, period, s.Now())
	if err != nil {
		return 0, err
	}
	c, err := s.Client.Get(ctx, redisCountPrefix+k).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	} else if err != nil {
		return 0, err
	}
	return c, nil
}

func (s *RedisCountStore) GetCountDistinct(ctx context.Context, name, bucket, period string) (int, error) {
	k, err := periodBucket(name, bucket, period, s.Now())
	if err != nil {
		return 0, err
	}
	c, err := s.Client.PFCount(ctx, redisDistinctPrefix+k).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	} else if err != nil {
		return 0, err
	}
	return int(c), nil
}

// All counters for a message go out in a single redis round-trip.
func (s *RedisCountStore) IncrementBatch(ctx context.Context, counts []Ref, distinct []DistinctRef) error {
	if len(counts) == 0 && len(distinct) == 0 {
		return nil
	}
	now := s.Now()
	multi := s.Client.Pipeline()
	for _, p := range Periods {
		ttl := periodTTL[p]
		for _, ref := range counts {
			k, _ := periodBucket(ref.Name, ref.Val, p, now)
			multi.Incr(ctx, redisCountPrefix+k)
			if ttl > 0 {
				multi.Expire(ctx, redisCountPrefix+k, ttl)
			}
		}
		for _, ref := range distinct {
			k, _ := periodBucket(ref.Name, ref.Bucket, p, now)
			multi.PFAdd(ctx, redisDistinctPrefix+k, ref.Val)
			if ttl > 0 {
				multi.Expire(ctx, redisDistinctPrefix+k, ttl)
			}
		}
	}
	_, err := multi.Exec(ctx)
	return err
}
