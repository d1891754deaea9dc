// Package mention extracts @path file references from prompt text and
// validates them against a workspace.
package mention

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/spf13/afero"

	"github.com/opencode-ai/emigo/internal/workspace"
)

// trailingPunct is stripped from the end of every mention.
const trailingPunct = ".,;:!?"

// minSimilarity is the lowest normalized similarity accepted for a
// did-you-mean suggestion.
const minSimilarity = 0.6

var mentionPattern = regexp.MustCompile(`@(\S+)`)

// Reasons reported for ignored mentions.
const (
	ReasonNotFound = "not found"
	ReasonNotFile  = "not a regular file"
	ReasonOutside  = "outside workspace"
)

// Ignored describes a reference that was dropped.
type Ignored struct {
	Mention    string `json:"mention"`
	Reason     string `json:"reason"`
	Suggestion string `json:"suggestion,omitempty"`
}

// Result is the outcome of an extraction.
type Result struct {
	// Files are workspace-relative, slash-separated and sorted.
	Files   []string  `json:"files"`
	Ignored []Ignored `json:"ignored,omitempty"`
}

// CandidateFunc lists workspace-relative files used for suggestions.
type CandidateFunc func(root string) ([]string, error)

// Option configures an Extractor.
type Option func(*Extractor)

// WithCandidates enables did-you-mean suggestions for dropped mentions.
func WithCandidates(fn CandidateFunc) Option {
	return func(e *Extractor) { e.candidates = fn }
}

// Extractor validates mentions against a filesystem. It only stats files.
type Extractor struct {
	fs         afero.Fs
	candidates CandidateFunc
}

// NewExtractor creates an Extractor over fs.
func NewExtractor(fs afero.Fs, opts ...Option) *Extractor {
	e := &Extractor{fs: fs}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Mentions returns the raw @-references in prompt, punctuation stripped,
// in order of appearance. Duplicates are kept.
func Mentions(prompt string) []string {
	matches := mentionPattern.FindAllStringSubmatch(prompt, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if ref := strings.TrimRight(m[1], trailingPunct); ref != "" {
			out = append(out, ref)
		}
	}
	return out
}

// Extract returns the union of explicit and mentioned references that
// resolve to regular files under root.
func (e *Extractor) Extract(root, prompt string, explicit []string) Result {
	refs := append(append([]string(nil), explicit...), Mentions(prompt)...)

	seen := make(map[string]bool)
	dropped := make(map[string]bool)
	var res Result
	var candidates []string
	candidatesLoaded := false

	for _, ref := range refs {
		rel, reason := e.check(root, ref)
		if reason == "" {
			if !seen[rel] {
				seen[rel] = true
				res.Files = append(res.Files, rel)
			}
			continue
		}
		if dropped[ref] {
			continue
		}
		dropped[ref] = true

		ign := Ignored{Mention: ref, Reason: reason}
		if reason == ReasonNotFound && e.candidates != nil {
			if !candidatesLoaded {
				candidates, _ = e.candidates(root)
				candidatesLoaded = true
			}
			ign.Suggestion = suggest(ref, candidates)
		}
		res.Ignored = append(res.Ignored, ign)
	}

	sort.Strings(res.Files)
	return res
}

// check validates ref and returns its workspace-relative form, or the
// reason it was rejected.
func (e *Extractor) check(root, ref string) (string, string) {
	path := ref
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, filepath.FromSlash(ref))
	}
	path = filepath.Clean(path)
	if !workspace.Contains(root, path) {
		return "", ReasonOutside
	}

	info, err := e.fs.Stat(path)
	if err != nil {
		return "", ReasonNotFound
	}
	if !info.Mode().IsRegular() {
		return "", ReasonNotFile
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", ReasonOutside
	}
	return filepath.ToSlash(rel), ""
}

// suggest returns the candidate closest to ref, or "" when none is close
// enough.
func suggest(ref string, candidates []string) string {
	best := ""
	bestScore := minSimilarity
	for _, c := range candidates {
		if s := similarity(ref, c); s > bestScore || (s == bestScore && best == "") {
			best, bestScore = c, s
		}
		if base := filepath.Base(c); base != c {
			if s := similarity(ref, base); s > bestScore {
				best, bestScore = c, s
			}
		}
	}
	return best
}

// similarity is the normalized Levenshtein similarity of a and b.
func similarity(a, b string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(dist)/float64(max(len(a), len(b)))
}
