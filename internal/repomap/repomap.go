// Package repomap renders a workspace's file tree into a compact textual
// map that is sent to the model as repository context.
package repomap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/opencode-ai/emigo/internal/tokenizer"
)

// DefaultMaxFiles caps the number of files collected for one map.
const DefaultMaxFiles = 5000

// ErrNotDirectory is returned when the workspace root is not a directory.
var ErrNotDirectory = errors.New("workspace root is not a directory")

// Builder builds a repository map for root, truncated to budget tokens.
// An empty map is valid and means there is nothing worth sending.
type Builder interface {
	Build(ctx context.Context, root string, budget int, tok tokenizer.Tokenizer) (string, error)
}

// Lister lists the files of a workspace, relative and slash-separated.
type Lister interface {
	ListFiles(ctx context.Context, root string) ([]string, error)
}

// TreeBuilder renders the workspace as an indented file tree.
type TreeBuilder struct {
	fs       afero.Fs
	ignore   []string
	maxFiles int
}

// TreeOption configures a TreeBuilder.
type TreeOption func(*TreeBuilder)

// WithIgnore adds gitignore-style patterns to the defaults.
func WithIgnore(patterns ...string) TreeOption {
	return func(b *TreeBuilder) { b.ignore = append(b.ignore, patterns...) }
}

// WithMaxFiles sets the file cap.
func WithMaxFiles(n int) TreeOption {
	return func(b *TreeBuilder) {
		if n > 0 {
			b.maxFiles = n
		}
	}
}

// NewTreeBuilder creates a TreeBuilder over fs.
func NewTreeBuilder(fs afero.Fs, opts ...TreeOption) *TreeBuilder {
	b := &TreeBuilder{fs: fs, maxFiles: DefaultMaxFiles}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ListFiles walks root and returns its non-ignored regular files, sorted.
func (b *TreeBuilder) ListFiles(ctx context.Context, root string) ([]string, error) {
	info, err := b.fs.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, ErrNotDirectory
	}

	m := newMatcher(b.ignore)
	m.loadGitignore(b.fs, root)

	var files []string
	errLimit := errors.New("file limit reached")

	err = afero.Walk(b.fs, root, func(path string, info os.FileInfo, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			// Unreadable subtrees are skipped.
			if info != nil && info.IsDir() && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if path == root {
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if m.ignored(rel, info.IsDir()) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		files = append(files, rel)
		if len(files) >= b.maxFiles {
			return errLimit
		}
		return nil
	})
	if err != nil && !errors.Is(err, errLimit) {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// Build implements Builder.
func (b *TreeBuilder) Build(ctx context.Context, root string, budget int, tok tokenizer.Tokenizer) (string, error) {
	if budget <= 0 {
		return "", nil
	}
	files, err := b.ListFiles(ctx, root)
	if err != nil {
		return "", err
	}
	return Render(files, budget, tok), nil
}

// Render formats files as an indented tree and truncates the result to
// budget tokens. No files renders as "".
func Render(files []string, budget int, tok tokenizer.Tokenizer) string {
	if len(files) == 0 || budget <= 0 {
		return ""
	}

	var sb strings.Builder
	var prev []string
	for _, f := range files {
		parts := strings.Split(f, "/")
		dirs := parts[:len(parts)-1]

		common := 0
		for common < len(dirs) && common < len(prev) && dirs[common] == prev[common] {
			common++
		}
		for i := common; i < len(dirs); i++ {
			sb.WriteString(strings.Repeat("  ", i))
			sb.WriteString(dirs[i])
			sb.WriteString("/\n")
		}
		sb.WriteString(strings.Repeat("  ", len(dirs)))
		sb.WriteString(parts[len(parts)-1])
		sb.WriteString("\n")
		prev = dirs
	}

	return tok.Truncate(sb.String(), budget)
}
