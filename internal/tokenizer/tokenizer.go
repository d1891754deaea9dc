// Package tokenizer estimates token counts for prompt budgeting.
//
// Counts are approximations derived from per-encoding byte ratios. They are
// only used to keep the repository map and inlined files inside their
// budgets, never to bill or to enforce model limits.
package tokenizer

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// Default is the encoding used when none is configured.
const Default = "cl100k_base"

// Tokenizer counts and truncates text in tokens.
type Tokenizer interface {
	Name() string
	Count(text string) int
	Truncate(text string, maxTokens int) string
}

type estimator struct {
	name          string
	bytesPerToken float64
}

var encodings = map[string]estimator{
	"cl100k_base": {name: "cl100k_base", bytesPerToken: 4.0},
	"o200k_base":  {name: "o200k_base", bytesPerToken: 4.2},
	"p50k_base":   {name: "p50k_base", bytesPerToken: 3.6},
	"r50k_base":   {name: "r50k_base", bytesPerToken: 3.6},
	"gpt2":        {name: "gpt2", bytesPerToken: 3.6},
	"claude":      {name: "claude", bytesPerToken: 3.5},
}

// Get returns the tokenizer for name. The boolean is false when name is
// unknown, in which case the default encoding is returned.
func Get(name string) (Tokenizer, bool) {
	if e, ok := encodings[strings.ToLower(strings.TrimSpace(name))]; ok {
		return e, true
	}
	return encodings[Default], false
}

// Names lists the known encodings.
func Names() []string {
	names := make([]string, 0, len(encodings))
	for name := range encodings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e estimator) Name() string { return e.name }

func (e estimator) Count(text string) int {
	if text == "" {
		return 0
	}
	n := int(float64(len(text))/e.bytesPerToken + 0.999)
	if n < 1 {
		n = 1
	}
	return n
}

// Truncate cuts text to at most maxTokens, preferring a line boundary in
// the last quarter of the allowance. maxTokens <= 0 yields "".
func (e estimator) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	if e.Count(text) <= maxTokens {
		return text
	}

	limit := int(float64(maxTokens) * e.bytesPerToken)
	if limit >= len(text) {
		return text
	}
	for limit > 0 && !utf8.RuneStart(text[limit]) {
		limit--
	}

	cut := text[:limit]
	if nl := strings.LastIndexByte(cut, '\n'); nl >= limit*3/4 {
		cut = cut[:nl+1]
	}
	return cut
}
