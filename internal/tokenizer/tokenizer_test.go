package tokenizer

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	tok, ok := Get("cl100k_base")
	assert.True(t, ok)
	assert.Equal(t, "cl100k_base", tok.Name())

	tok, ok = Get(" O200K_BASE ")
	assert.True(t, ok)
	assert.Equal(t, "o200k_base", tok.Name())

	tok, ok = Get("unknown-encoding")
	assert.False(t, ok)
	assert.Equal(t, Default, tok.Name())

	assert.Contains(t, Names(), Default)
}

func TestCount(t *testing.T) {
	tok, _ := Get(Default)

	assert.Equal(t, 0, tok.Count(""))
	assert.Equal(t, 1, tok.Count("a"))
	assert.Equal(t, 1, tok.Count("abcd"))
	assert.Equal(t, 2, tok.Count("abcde"))
	assert.Equal(t, 250, tok.Count(strings.Repeat("x", 1000)))
}

func TestTruncate(t *testing.T) {
	tok, _ := Get(Default)

	short := "hello world"
	assert.Equal(t, short, tok.Truncate(short, 100))
	assert.Empty(t, tok.Truncate(short, 0))

	long := strings.Repeat("0123456789abcde\n", 100)
	cut := tok.Truncate(long, 50)
	assert.LessOrEqual(t, tok.Count(cut), 50)
	assert.True(t, strings.HasSuffix(cut, "\n"), "should end on a line boundary")
	assert.True(t, strings.HasPrefix(long, cut))
}

func TestTruncate_KeepsValidUTF8(t *testing.T) {
	tok, _ := Get(Default)

	text := strings.Repeat("héllo wörld ", 200)
	for _, budget := range []int{1, 7, 33, 101} {
		cut := tok.Truncate(text, budget)
		assert.True(t, utf8.ValidString(cut), "budget %d", budget)
		assert.LessOrEqual(t, tok.Count(cut), budget)
	}
}
