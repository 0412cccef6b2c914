package helpers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractURL(t *testing.T) {
	assert := assert.New(t)

	fixtures := []struct {
		s   string
		out []string
	}{
		{
			s:   "join https://example.com/x now",
			out: []string{"https://example.com/x"},
		},
		{
			s:   "see t.me/spamgroup and wa.me/123 or bit.ly/abc",
			out: []string{"t.me/spamgroup", "wa.me/123", "bit.ly/abc"},
		},
		{
			s:   "LOUD HTTP://EXAMPLE.COM",
			out: []string{"HTTP://EXAMPLE.COM"},
		},
	}

	for _, fix := range fixtures {
		assert.Equal(fix.out, ExtractTextURLs(fix.s))
	}

	// bare domains are not links for this purpose
	assert.Empty(ExtractTextURLs("this mentions example.com in passing"))
	assert.Empty(ExtractTextURLs("https:// alone"))
}

func TestExtractMentions(t *testing.T) {
	assert := assert.New(t)

	assert.Equal([]string{"@abcde"}, ExtractTextMentions("hi @abcde and @abc"))
	assert.Equal([]string{"@some_user1", "@other_user"}, ExtractTextMentions("@some_user1 @other_user"))
	assert.Empty(ExtractTextMentions("no handles here @ all"))
}

func TestCountEmoji(t *testing.T) {
	assert := assert.New(t)

	fixtures := []struct {
		s     string
		count int
	}{
		{s: "", count: 0},
		{s: "hello", count: 0},
		{s: "\U0001F525\U0001F525\U0001F525", count: 3},
		{s: "✅ done ❤", count: 2},
		{s: "sun ☀", count: 0},
		{s: "\U0001F923\U0001F923\U0001F923\U0001F923\U0001F923\U0001F923", count: 0},
		{s: "\U0001F1EE\U0001F1E9", count: 0},
		{s: "\U0001F600 \U0001F680 \U0001F300 \U0001F64F", count: 4},
	}

	for _, fix := range fixtures {
		assert.Equal(fix.count, CountEmoji(fix.s), fix.s)
	}
}

func TestHashOfString(t *testing.T) {
	assert := assert.New(t)

	// hashing function should be consistent over time
	assert.Equal("4e6f69c0e3d10992", HashOfString("dummy-value"))
}
