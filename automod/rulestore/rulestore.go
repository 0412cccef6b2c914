package rulestore

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/antigcast/antigcast/automod/keyword"
)

// Which of the two per-chat term lists an operation applies to.
type ListKind string

const (
	DenyList  ListKind = "deny"
	AllowList ListKind = "allow"
)

func ParseListKind(raw string) (ListKind, error) {
	switch ListKind(raw) {
	case DenyList, AllowList:
		return ListKind(raw), nil
	}
	return "", fmt.Errorf("unknown term list kind: %q", raw)
}

// returned when a stored record exists but can not be parsed in to a RuleSet
var ErrMalformedRecord = errors.New("malformed stored ruleset record")

// The moderation settings for a single chat.
//
// Terms in both lists are kept in normalized form (see keyword.NormalizeText), de-duplicated and sorted. The zero value is the ruleset of a chat with nothing stored: moderation disabled, no terms.
type RuleSet struct {
	Enabled   bool     `json:"enabled"`
	Denylist  []string `json:"denylist"`
	Allowlist []string `json:"allowlist"`
}

// Durable storage of per-chat rulesets. Implementations hold no cached state.
type RuleStore interface {
	// returns an empty (disabled) RuleSet for chats with nothing stored, not an error
	FetchRuleSet(ctx context.Context, chatID int64) (*RuleSet, error)
	WriteEnabled(ctx context.Context, chatID int64, enabled bool) error
	// adding a term which is already present is not an error
	AddTerm(ctx context.Context, chatID int64, kind ListKind, term string) error
	// removing a term which is not present is not an error
	RemoveTerm(ctx context.Context, chatID int64, kind ListKind, term string) error
}

// Returns the list of the given kind.
func (rs *RuleSet) Terms(kind ListKind) []string {
	if kind == AllowList {
		return rs.Allowlist
	}
	return rs.Denylist
}

func (rs *RuleSet) Clone() RuleSet {
	return RuleSet{
		Enabled:   rs.Enabled,
		Denylist:  slices.Clone(rs.Denylist),
		Allowlist: slices.Clone(rs.Allowlist),
	}
}

// Normalizes, de-duplicates, and sorts a raw list of stored terms. Terms which are empty after normalization are dropped.
func NormalizeTerms(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, t := range raw {
		t = keyword.NormalizeText(t)
		if t == "" {
			continue
		}
		out = append(out, t)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Normalizes a single term for storage, returning an error if nothing is left.
func NormalizeTerm(raw string) (string, error) {
	t := keyword.NormalizeText(raw)
	if t == "" {
		return "", fmt.Errorf("empty term")
	}
	return t, nil
}
