package rulestore

import (
	"context"
	"slices"
	"sync"
)

// In-process RuleStore, mostly for tests and ephemeral deployments.
type MemRuleStore struct {
	mu    sync.RWMutex
	chats map[int64]*RuleSet
}

var _ RuleStore = (*MemRuleStore)(nil)

func NewMemRuleStore() *MemRuleStore {
	return &MemRuleStore{
		chats: make(map[int64]*RuleSet),
	}
}

func (s *MemRuleStore) FetchRuleSet(ctx context.Context, chatID int64) (*RuleSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rs, ok := s.chats[chatID]
	if !ok {
		return &RuleSet{}, nil
	}
	out := rs.Clone()
	return &out, nil
}

func (s *MemRuleStore) WriteEnabled(ctx context.Context, chatID int64, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chat(chatID).Enabled = enabled
	return nil
}

func (s *MemRuleStore) AddTerm(ctx context.Context, chatID int64, kind ListKind, term string) error {
	term, err := NormalizeTerm(term)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rs := s.chat(chatID)
	if kind == AllowList {
		rs.Allowlist = NormalizeTerms(append(rs.Allowlist, term))
	} else {
		rs.Denylist = NormalizeTerms(append(rs.Denylist, term))
	}
	return nil
}

func (s *MemRuleStore) RemoveTerm(ctx context.Context, chatID int64, kind ListKind, term string) error {
	term, err := NormalizeTerm(term)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rs, ok := s.chats[chatID]
	if !ok {
		return nil
	}
	drop := func(v string) bool { return v == term }
	if kind == AllowList {
		rs.Allowlist = slices.DeleteFunc(rs.Allowlist, drop)
	} else {
		rs.Denylist = slices.DeleteFunc(rs.Denylist, drop)
	}
	return nil
}

// must be called with the write lock held
func (s *MemRuleStore) chat(chatID int64) *RuleSet {
	rs, ok := s.chats[chatID]
	if !ok {
		rs = &RuleSet{}
		s.chats[chatID] = rs
	}
	return rs
}
