package repomap

import (
	"bufio"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"
)

// defaultIgnorePatterns are paths never included in a map.
var defaultIgnorePatterns = []string{
	"**/node_modules",
	"**/__pycache__",
	"**/.git",
	"**/.hg",
	"**/.svn",
	"**/.emigo",
	"**/dist",
	"**/build",
	"**/target",
	"**/vendor",
	"**/bin",
	"**/obj",
	"**/.idea",
	"**/.vscode",
	"**/.zig-cache",
	"**/zig-out",
	"**/coverage",
	"**/.cache",
	"**/.venv",
	"**/venv",
	"**/*.pyc",
	"**/.DS_Store",
}

// matcher decides whether a workspace-relative path is excluded.
type matcher struct {
	patterns []pattern
}

type pattern struct {
	glob    string
	dirOnly bool
	negate  bool
}

func newMatcher(extra []string) *matcher {
	m := &matcher{}
	for _, p := range defaultIgnorePatterns {
		m.patterns = append(m.patterns, pattern{glob: p})
	}
	for _, p := range extra {
		m.add(p)
	}
	return m
}

// add registers one gitignore-style line.
func (m *matcher) add(line string) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return
	}

	var p pattern
	if strings.HasPrefix(line, "!") {
		p.negate = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		p.dirOnly = true
		line = strings.TrimSuffix(line, "/")
	}
	if line == "" {
		return
	}

	switch {
	case strings.HasPrefix(line, "/"):
		line = strings.TrimPrefix(line, "/")
	case !strings.Contains(line, "/"):
		line = "**/" + line
	}
	if !doublestar.ValidatePattern(line) {
		return
	}
	p.glob = line
	m.patterns = append(m.patterns, p)
}

// loadGitignore adds the patterns of root/.gitignore, if present.
func (m *matcher) loadGitignore(fs afero.Fs, root string) {
	f, err := fs.Open(filepath.Join(root, ".gitignore"))
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		m.add(scanner.Text())
	}
}

// ignored reports whether rel (slash-separated) is excluded. The last
// matching pattern wins, as in gitignore.
func (m *matcher) ignored(rel string, isDir bool) bool {
	excluded := false
	for _, p := range m.patterns {
		if p.dirOnly && !isDir {
			continue
		}
		if ok, _ := doublestar.Match(p.glob, rel); ok {
			excluded = !p.negate
		}
	}
	return excluded
}
