package helpers

import (
	"fmt"
	"regexp"

	"github.com/rivo/uniseg"
	"github.com/spaolacci/murmur3"
)

// returns a fast, compact hash of a string
//
// current implementation uses murmur3, default seed, and hex encoding
func HashOfString(s string) string {
	val := murmur3.Sum64([]byte(s))
	return fmt.Sprintf("%016x", val)
}

// full URLs, plus bare links to the messenger/shortener hosts commonly used in broadcast spam
var urlRegex = regexp.MustCompile(`(?i)https?://\S+|t\.me/\S+|wa\.me/\S+|bit\.ly/\S+`)

func ExtractTextURLs(raw string) []string {
	return urlRegex.FindAllString(raw, -1)
}

// handle-style mentions with at least five characters after the '@'
var mentionRegex = regexp.MustCompile(`@[\w\d_]{5,}`)

func ExtractTextMentions(raw string) []string {
	return mentionRegex.FindAllString(raw, -1)
}

// U+1F300-1F6FF (except 1F650-1F67F) and dingbats. Supplemental pictographs and misc symbols don't count.
func isEmojiRune(r rune) bool {
	switch {
	case r >= 0x1F300 && r <= 0x1F5FF:
	case r >= 0x1F600 && r <= 0x1F64F:
	case r >= 0x1F680 && r <= 0x1F6FF:
	case r >= 0x2700 && r <= 0x27BF:
	default:
		return false
	}
	return true
}

// Counts grapheme clusters which start with an emoji codepoint. Multi-codepoint emoji (skin tones, ZWJ sequences, flags) count once.
func CountEmoji(s string) int {
	count := 0
	gr := uniseg.NewGraphemes(s)
	for gr.Next() {
		runes := gr.Runes()
		if len(runes) > 0 && isEmojiRune(runes[0]) {
			count++
		}
	}
	return count
}
