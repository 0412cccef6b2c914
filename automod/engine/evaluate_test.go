package engine

import (
	"testing"

	"github.com/antigcast/antigcast/automod/rulestore"

	"github.com/stretchr/testify/assert"
)

func TestEvaluatePrecedence(t *testing.T) {
	assert := assert.New(t)

	enabled := rulestore.RuleSet{
		Enabled:   true,
		Denylist:  []string{"spam", "vcs"},
		Allowlist: []string{"spamfree"},
	}
	disabled := enabled.Clone()
	disabled.Enabled = false

	fixtures := []struct {
		name string
		rs   rulestore.RuleSet
		dup  bool
		text string
		sig  Signals
		out  Decision
	}{
		{
			name: "disabled chat ignores everything",
			rs:   disabled,
			dup:  true,
			text: "vcs spam",
			sig:  Signals{URL: true, Mention: true},
			out:  Decision{Suppress: false, Reason: ReasonDisabled},
		},
		{
			name: "allowlist overrides denylist",
			rs:   enabled,
			text: "this is spamfree content",
			out:  Decision{Suppress: false, Reason: ReasonClean},
		},
		{
			name: "allowlist overrides duplicate and signals",
			rs:   enabled,
			dup:  true,
			text: "spamfree https://example.com",
			sig:  Signals{URL: true},
			out:  Decision{Suppress: false, Reason: ReasonClean},
		},
		{
			name: "denylist substring",
			rs:   enabled,
			text: "join our vcsgroup",
			out:  Decision{Suppress: true, Reason: ReasonDenylisted},
		},
		{
			name: "duplicate alone",
			rs:   enabled,
			dup:  true,
			text: "hello",
			out:  Decision{Suppress: true, Reason: ReasonDuplicate},
		},
		{
			name: "duplicate with denylist reports denylisted",
			rs:   enabled,
			dup:  true,
			text: "vcs",
			out:  Decision{Suppress: true, Reason: ReasonDenylisted},
		},
		{
			name: "mention signal",
			rs:   enabled,
			text: "@someone",
			sig:  Signals{Mention: true},
			out:  Decision{Suppress: true, Reason: ReasonDenylisted},
		},
		{
			name: "keyword signal",
			rs:   enabled,
			text: "tmo",
			sig:  Signals{SuspiciousKeyword: true},
			out:  Decision{Suppress: true, Reason: ReasonDenylisted},
		},
		{
			name: "excess emoji",
			rs:   enabled,
			text: "lots",
			sig:  Signals{EmojiCount: 9, ExcessEmoji: true},
			out:  Decision{Suppress: true, Reason: ReasonDenylisted},
		},
		{
			name: "emoji under the limit",
			rs:   enabled,
			text: "some",
			sig:  Signals{EmojiCount: 2},
			out:  Decision{Suppress: false, Reason: ReasonClean},
		},
		{
			name: "clean",
			rs:   enabled,
			text: "good morning everyone",
			out:  Decision{Suppress: false, Reason: ReasonClean},
		},
		{
			name: "empty ruleset enabled",
			rs:   rulestore.RuleSet{Enabled: true},
			text: "anything",
			out:  Decision{Suppress: false, Reason: ReasonClean},
		},
	}

	for _, fix := range fixtures {
		assert.Equal(fix.out, Evaluate(fix.rs, fix.dup, fix.text, fix.sig), fix.name)
	}
}
