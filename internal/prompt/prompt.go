// Package prompt assembles the ordered message list sent to the model for
// a workspace turn.
//
// A first turn produces, in order: a system message, an optional
// repository map, one message per referenced file and the user's text.
// Later turns only append messages for newly referenced files followed by
// the user's text. Files that cannot be used are skipped and reported;
// the request only fails when the workspace itself is unusable or nothing
// usable remains.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/opencode-ai/emigo/internal/logging"
	"github.com/opencode-ai/emigo/internal/repomap"
	"github.com/opencode-ai/emigo/internal/tokenizer"
	"github.com/opencode-ai/emigo/pkg/types"
)

// ErrNoContent is returned when neither user text nor a usable file remains.
var ErrNoContent = errors.New("no usable content")

// repoMapHeader introduces the repository map message.
const repoMapHeader = "Here is the structure of the repository I am working in. Ask me to add a file to the chat if you need to see its contents.\n\n"

// Request describes one prompt assembly.
type Request struct {
	Root          string
	UserText      string
	ChatFiles     []string
	ReadOnlyFiles []string
	MapTokens     int
	FileTokens    int
	Tokenizer     string
}

// Skipped reports a referenced file that was left out.
type Skipped struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Result is an assembled message list.
type Result struct {
	Messages []types.Message
	// Files are the chat files that were inlined.
	Files []string
	// ReadOnly are the read-only files that were inlined.
	ReadOnly []string
	Skipped  []Skipped
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithSystemPrompt overrides the default system prompt. An empty value
// keeps the default.
func WithSystemPrompt(prompt string) Option {
	return func(a *Assembler) {
		if strings.TrimSpace(prompt) != "" {
			a.systemPrompt = prompt
		}
	}
}

// WithInstructions adds rules files, relative to the workspace or absolute.
func WithInstructions(paths ...string) Option {
	return func(a *Assembler) { a.instructions = append(a.instructions, paths...) }
}

// WithClock sets the clock used for the environment context.
func WithClock(now func() time.Time) Option {
	return func(a *Assembler) { a.now = now }
}

// Assembler builds prompts from workspace files. It never writes.
type Assembler struct {
	fs           afero.Fs
	maps         repomap.Builder
	systemPrompt string
	instructions []string
	now          func() time.Time
}

// NewAssembler creates an Assembler. maps may be nil to disable the
// repository map.
func NewAssembler(fs afero.Fs, maps repomap.Builder, opts ...Option) *Assembler {
	a := &Assembler{
		fs:           fs,
		maps:         maps,
		systemPrompt: DefaultSystemPrompt,
		now:          defaultNow,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Build assembles the full message list for a first turn.
func (a *Assembler) Build(ctx context.Context, req Request) (*Result, error) {
	if err := a.checkRoot(req.Root); err != nil {
		return nil, err
	}
	tok := resolveTokenizer(req.Tokenizer)

	res := &Result{}
	res.Messages = append(res.Messages, types.Message{
		Role:    types.RoleSystem,
		Content: a.systemMessage(req.Root),
	})

	if a.maps != nil && req.MapTokens > 0 {
		repoMap, err := a.maps.Build(ctx, req.Root, req.MapTokens, tok)
		if err != nil {
			return nil, &types.PromptBuildError{Workspace: req.Root, Err: fmt.Errorf("repo map: %w", err)}
		}
		if repoMap != "" {
			res.Messages = append(res.Messages, types.Message{
				Role:    types.RoleUser,
				Content: repoMapHeader + repoMap,
			})
		}
	}

	chatFiles := normalizePaths(req.Root, req.ChatFiles, nil)
	res.Files = a.fileMessages(req.Root, chatFiles, false, tok, req.FileTokens, res)

	seen := make(map[string]bool, len(chatFiles))
	for _, f := range chatFiles {
		seen[f] = true
	}
	readOnly := normalizePaths(req.Root, req.ReadOnlyFiles, seen)
	res.ReadOnly = a.fileMessages(req.Root, readOnly, true, tok, req.FileTokens, res)

	if err := a.appendUser(req, res, len(res.Files)+len(res.ReadOnly)); err != nil {
		return nil, err
	}
	return res, nil
}

// FollowUp assembles the messages appended to existing history for a
// later turn: one message per file in req.ChatFiles followed by the user
// text. Callers pass only files not yet inlined into the conversation.
func (a *Assembler) FollowUp(ctx context.Context, req Request) (*Result, error) {
	if err := a.checkRoot(req.Root); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, &types.PromptBuildError{Workspace: req.Root, Err: err}
	}
	tok := resolveTokenizer(req.Tokenizer)

	res := &Result{}
	chatFiles := normalizePaths(req.Root, req.ChatFiles, nil)
	res.Files = a.fileMessages(req.Root, chatFiles, false, tok, req.FileTokens, res)

	if err := a.appendUser(req, res, len(res.Files)); err != nil {
		return nil, err
	}
	return res, nil
}

// normalizePaths returns paths as clean, slash-separated, root-relative
// paths in their original order. Duplicates and paths already in seen are
// dropped; seen is updated when non-nil.
func normalizePaths(root string, paths []string, seen map[string]bool) []string {
	if seen == nil {
		seen = make(map[string]bool, len(paths))
	}
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		p = filepath.FromSlash(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if filepath.IsAbs(p) {
			if rel, err := filepath.Rel(root, p); err == nil {
				p = rel
			}
		}
		p = filepath.ToSlash(filepath.Clean(p))
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

func (a *Assembler) checkRoot(root string) error {
	info, err := a.fs.Stat(root)
	if err != nil {
		return &types.PromptBuildError{Workspace: root, Err: err}
	}
	if !info.IsDir() {
		return &types.PromptBuildError{Workspace: root, Err: repomap.ErrNotDirectory}
	}
	return nil
}

// fileMessages appends one message per usable file to res and returns the
// paths that were inlined.
func (a *Assembler) fileMessages(root string, paths []string, readOnly bool, tok tokenizer.Tokenizer, budget int, res *Result) []string {
	var inlined []string
	for _, rel := range paths {
		msg, reason := fileMessage(a.fs, root, rel, readOnly, tok, budget)
		if reason != "" {
			logging.Warn().Str("root", root).Str("file", rel).Str("reason", reason).Msg("skipping file")
			res.Skipped = append(res.Skipped, Skipped{Path: rel, Reason: reason})
			continue
		}
		res.Messages = append(res.Messages, msg)
		inlined = append(inlined, rel)
	}
	return inlined
}

func (a *Assembler) appendUser(req Request, res *Result, fileCount int) error {
	if strings.TrimSpace(req.UserText) == "" {
		if fileCount == 0 {
			return &types.PromptBuildError{Workspace: req.Root, Err: ErrNoContent}
		}
		return nil
	}
	res.Messages = append(res.Messages, types.Message{
		Role:    types.RoleUser,
		Content: req.UserText,
	})
	return nil
}

func resolveTokenizer(name string) tokenizer.Tokenizer {
	tok, ok := tokenizer.Get(name)
	if !ok && name != "" {
		logging.Warn().Str("tokenizer", name).Str("fallback", tok.Name()).Msg("unknown tokenizer")
	}
	return tok
}
