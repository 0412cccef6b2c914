package engine

import (
	"github.com/antigcast/antigcast/automod/helpers"
	"github.com/antigcast/antigcast/automod/keyword"
	"github.com/antigcast/antigcast/automod/rulestore"
)

var (
	// keywords common in broadcast spam, matched as substrings of normalized text
	DefaultSuspiciousKeywords = []string{"tmo", "vcs", "vcan", "vcs-an"}
	// messages with more emoji than this are suppressed
	DefaultEmojiLimit = 5
)

// Structural content signals, computed from message text independent of any chat's ruleset.
type Signals struct {
	SuspiciousKeyword bool
	Mention           bool
	URL               bool
	EmojiCount        int
	ExcessEmoji       bool
}

// Any reports whether at least one signal calls for suppression.
func (s Signals) Any() bool {
	return s.SuspiciousKeyword || s.Mention || s.URL || s.ExcessEmoji
}

// Immutable set of global content patterns, built once at startup and shared by all message processing.
type Patterns struct {
	keywords   []string
	emojiLimit int
}

// Builds Patterns from a keyword list (normalized and de-duplicated here) and an emoji limit. A non-positive limit falls back to DefaultEmojiLimit.
func NewPatterns(keywords []string, emojiLimit int) *Patterns {
	if emojiLimit <= 0 {
		emojiLimit = DefaultEmojiLimit
	}
	return &Patterns{
		keywords:   rulestore.NormalizeTerms(keywords),
		emojiLimit: emojiLimit,
	}
}

func DefaultPatterns() *Patterns {
	return NewPatterns(DefaultSuspiciousKeywords, DefaultEmojiLimit)
}

// Returns a copy of the suspicious keyword list.
func (p *Patterns) Keywords() []string {
	return append([]string(nil), p.keywords...)
}

func (p *Patterns) EmojiLimit() int {
	return p.emojiLimit
}

// Computes signals for message text, which is expected to already be normalized (see keyword.NormalizeText).
func (p *Patterns) Signals(text string) Signals {
	emoji := helpers.CountEmoji(text)
	return Signals{
		SuspiciousKeyword: keyword.ContainsTerm(text, p.keywords) != "",
		Mention:           len(helpers.ExtractTextMentions(text)) > 0,
		URL:               len(helpers.ExtractTextURLs(text)) > 0,
		EmojiCount:        emoji,
		ExcessEmoji:       emoji > p.emojiLimit,
	}
}
