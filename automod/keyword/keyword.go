package keyword

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalizes free-form text for matching: unicode NFC composition, lower-case, and surrounding whitespace trimmed.
//
// Stored terms and message text go through the same function, so matching is a plain substring check.
func NormalizeText(orig string) string {
	return strings.TrimSpace(strings.ToLower(norm.NFC.String(orig)))
}

// Returns the first term (in list order) which is a substring of the already-normalized text, or the empty string.
//
// This is unanchored containment, not token matching: "spam" matches "antispam". Empty terms never match.
func ContainsTerm(text string, terms []string) string {
	for _, t := range terms {
		if t != "" && strings.Contains(text, t) {
			return t
		}
	}
	return ""
}
