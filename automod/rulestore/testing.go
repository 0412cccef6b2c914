package rulestore

import (
	"context"
	"sync"
	"sync/atomic"
)

// RuleStore wrapper for tests, which counts fetches and can inject failures or hold fetches open.
type CountingRuleStore struct {
	Inner   RuleStore
	Fetches atomic.Int64
	Writes  atomic.Int64

	mu       sync.Mutex
	fetchErr error
	writeErr error
	gate     chan struct{}
}

var _ RuleStore = (*CountingRuleStore)(nil)

func NewCountingRuleStore(inner RuleStore) *CountingRuleStore {
	if inner == nil {
		inner = NewMemRuleStore()
	}
	return &CountingRuleStore{Inner: inner}
}

// all subsequent fetches return this error (nil to clear)
func (s *CountingRuleStore) SetFetchErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchErr = err
}

// all subsequent writes return this error (nil to clear)
func (s *CountingRuleStore) SetWriteErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
}

// Makes subsequent fetches block until the returned function is called, or their context is done.
func (s *CountingRuleStore) HoldFetches() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.gate = gate
	s.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

func (s *CountingRuleStore) FetchRuleSet(ctx context.Context, chatID int64) (*RuleSet, error) {
	s.Fetches.Add(1)
	s.mu.Lock()
	gate, fetchErr := s.gate, s.fetchErr
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fetchErr != nil {
		return nil, fetchErr
	}
	return s.Inner.FetchRuleSet(ctx, chatID)
}

func (s *CountingRuleStore) checkWrite() error {
	s.Writes.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeErr
}

func (s *CountingRuleStore) WriteEnabled(ctx context.Context, chatID int64, enabled bool) error {
	if err := s.checkWrite(); err != nil {
		return err
	}
	return s.Inner.WriteEnabled(ctx, chatID, enabled)
}

func (s *CountingRuleStore) AddTerm(ctx context.Context, chatID int64, kind ListKind, term string) error {
	if err := s.checkWrite(); err != nil {
		return err
	}
	return s.Inner.AddTerm(ctx, chatID, kind, term)
}

func (s *CountingRuleStore) RemoveTerm(ctx context.Context, chatID int64, kind ListKind, term string) error {
	if err := s.checkWrite(); err != nil {
		return err
	}
	return s.Inner.RemoveTerm(ctx, chatID, kind, term)
}
