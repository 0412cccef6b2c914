package engine

import (
	"github.com/antigcast/antigcast/automod/keyword"
	"github.com/antigcast/antigcast/automod/rulestore"
)

type Reason string

const (
	ReasonDuplicate  Reason = "duplicate"
	ReasonDenylisted Reason = "denylisted"
	ReasonDisabled   Reason = "disabled"
	ReasonClean      Reason = "clean"
)

// Outcome of classifying a single message. Never persisted.
type Decision struct {
	Suppress bool   `json:"suppress"`
	Reason   Reason `json:"reason"`
}

// Combines a chat's ruleset, the recency duplicate flag, and content signals in to a single decision. Pure function; text must already be normalized.
//
// Precedence, first match wins:
//
//  1. moderation disabled for the chat: allow
//  2. any allowlist term is a substring of the text: allow
//  3. duplicate, any content signal, or any denylist term as substring: suppress
//  4. otherwise: allow
//
// A suppression is reported as "duplicate" only when the duplicate flag was the sole trigger; every other combination reports "denylisted".
func Evaluate(rs rulestore.RuleSet, duplicate bool, text string, sig Signals) Decision {
	if !rs.Enabled {
		return Decision{Suppress: false, Reason: ReasonDisabled}
	}
	if keyword.ContainsTerm(text, rs.Allowlist) != "" {
		return Decision{Suppress: false, Reason: ReasonClean}
	}
	content := sig.Any() || keyword.ContainsTerm(text, rs.Denylist) != ""
	if content {
		return Decision{Suppress: true, Reason: ReasonDenylisted}
	}
	if duplicate {
		return Decision{Suppress: true, Reason: ReasonDuplicate}
	}
	return Decision{Suppress: false, Reason: ReasonClean}
}
