package setstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
)

// name of the set which extends the built-in suspicious keyword list
const SuspiciousKeywords = "suspicious-keywords"

type SetStore interface {
	InSet(ctx context.Context, name, val string) (bool, error)
}

// Static named string sets, loaded once at startup and read-only afterwards.
type MemSetStore struct {
	Sets map[string]map[string]bool
}

var _ SetStore = (*MemSetStore)(nil)

func NewMemSetStore() *MemSetStore {
	return &MemSetStore{
		Sets: make(map[string]map[string]bool),
	}
}

func (s *MemSetStore) InSet(ctx context.Context, name, val string) (bool, error) {
	set, ok := s.Sets[name]
	if !ok {
		// NOTE: currently returns false when entire set isn't found
		return false, nil
	}
	return set[val], nil
}

// Returns the members of the named set in sorted order, or nil if there is no such set.
func (s *MemSetStore) Values(name string) []string {
	set, ok := s.Sets[name]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

// Loads sets from a JSON file containing an object of set names to string arrays. Sets with the same name replace any already loaded.
func (s *MemSetStore) LoadFromFileJSON(p string) error {
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	raw, err := io.ReadAll(f)
	if err != nil {
		return err
	}

	var sets map[string][]string
	if err := json.Unmarshal(raw, &sets); err != nil {
		return fmt.Errorf("parsing sets file %s: %w", p, err)
	}

	for name, l := range sets {
		m := make(map[string]bool, len(l))
		for _, val := range l {
			m[val] = true
		}
		s.Sets[name] = m
	}
	return nil
}
