package countstore

import (
	"context"
	"sync"
	"time"
)

// In-process CountStore. Counters are lost on restart, and period buckets are never expired.
type MemCountStore struct {
	// clock, overridable for tests
	Now func() time.Time

	mu       sync.RWMutex
	counts   map[string]int
	distinct map[string]map[string]struct{}
}

var _ CountStore = (*MemCountStore)(nil)

func NewMemCountStore() *MemCountStore {
	return &MemCountStore{
		Now:      time.Now,
		counts:   make(map[string]int),
		distinct: make(map[string]map[string]struct{}),
	}
}

func (s *MemCountStore) GetCount(ctx context.Context, name, val, period string) (int, error) {
	k, err := periodBucket(name, val, period, s.Now())
	if err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counts[k], nil
}

func (s *MemCountStore) GetCountDistinct(ctx context.Context, name, bucket, period string) (int, error) {
	k, err := periodBucket(name, bucket, period, s.Now())
	if err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.distinct[k]), nil
}

func (s *MemCountStore) IncrementBatch(ctx context.Context, counts []Ref, distinct []DistinctRef) error {
	now := s.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range Periods {
		for _, ref := range counts {
			k, _ := periodBucket(ref.Name, ref.Val, p, now)
			s.counts[k]++
		}
		for _, ref := range distinct {
			k, _ := periodBucket(ref.Name, ref.Bucket, p, now)
			set, ok := s.distinct[k]
			if !ok {
				set = make(map[string]struct{})
				s.distinct[k] = set
			}
			set[ref.Val] = struct{}{}
		}
	}
	return nil
}
