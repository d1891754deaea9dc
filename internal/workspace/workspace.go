// Package workspace maps caller-supplied identifiers (a directory or a file
// inside a project) to the canonical workspace root that keys a session.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/opencode-ai/emigo/pkg/types"
)

// ErrEmpty is returned for a blank workspace identifier.
var ErrEmpty = errors.New("empty workspace identifier")

// errTooManyLinks is returned when symlink resolution does not terminate.
var errTooManyLinks = errors.New("too many levels of symbolic links")

const (
	// maxLinks bounds symlink hops while canonicalizing a path.
	maxLinks = 255
	// maxCached bounds the directory cache; it is reset when full.
	maxCached = 4096
)

// Resolver resolves workspace identifiers. The root of each directory is
// cached; the identifier itself is checked on every call. Resolution never
// writes to the filesystem.
type Resolver struct {
	fs afero.Fs

	mu    sync.RWMutex
	cache map[string]string // canonical directory -> root
}

// NewResolver creates a Resolver over fs. A nil fs means the OS filesystem.
func NewResolver(fs afero.Fs) *Resolver {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Resolver{
		fs:    fs,
		cache: make(map[string]string),
	}
}

// Resolve returns the canonical absolute root for identifier.
//
// A directory resolves to the nearest enclosing directory that contains a
// .git entry, or to itself when there is none. A regular file resolves the
// same way starting from its parent directory. Symbolic links are resolved
// first, so a link and its target share a root. Anything else yields a
// *types.ResolutionError.
func (r *Resolver) Resolve(identifier string) (string, error) {
	trimmed := strings.TrimSpace(identifier)
	if trimmed == "" {
		return "", &types.ResolutionError{Workspace: identifier, Err: ErrEmpty}
	}

	abs, err := filepath.Abs(expandHome(trimmed))
	if err != nil {
		return "", &types.ResolutionError{Workspace: identifier, Err: err}
	}
	abs, err = evalSymlinks(r.fs, abs)
	if err != nil {
		return "", &types.ResolutionError{Workspace: identifier, Err: err}
	}

	info, err := r.fs.Stat(abs)
	if err != nil {
		return "", &types.ResolutionError{Workspace: identifier, Err: err}
	}

	start := abs
	switch {
	case info.IsDir():
	case info.Mode().IsRegular():
		start = filepath.Dir(abs)
	default:
		return "", &types.ResolutionError{
			Workspace: identifier,
			Err:       fmt.Errorf("%s is neither a directory nor a regular file", abs),
		}
	}

	r.mu.RLock()
	root, ok := r.cache[start]
	r.mu.RUnlock()
	if ok {
		return root, nil
	}

	root = start
	if vcsRoot := r.findVCSRoot(start); vcsRoot != "" {
		root = vcsRoot
	}

	r.mu.Lock()
	if len(r.cache) >= maxCached {
		r.cache = make(map[string]string)
	}
	r.cache[start] = root
	r.mu.Unlock()

	return root, nil
}

// evalSymlinks resolves every symbolic link in the absolute, clean path.
// Filesystems without link support return path unchanged.
func evalSymlinks(fs afero.Fs, path string) (string, error) {
	lst, ok := fs.(afero.Lstater)
	if !ok {
		return path, nil
	}
	lr, ok := fs.(afero.LinkReader)
	if !ok {
		return path, nil
	}

	vol := filepath.VolumeName(path)
	sep := string(filepath.Separator)
	resolved := vol + sep
	rest := splitPath(path[len(vol):])
	links := 0

	for len(rest) > 0 {
		name := rest[0]
		rest = rest[1:]
		if name == ".." {
			resolved = filepath.Dir(resolved)
			continue
		}

		next := filepath.Join(resolved, name)
		info, lstatCalled, err := lst.LstatIfPossible(next)
		if err != nil {
			return "", err
		}
		if !lstatCalled || info.Mode()&os.ModeSymlink == 0 {
			resolved = next
			continue
		}

		links++
		if links > maxLinks {
			return "", errTooManyLinks
		}
		target, err := lr.ReadlinkIfPossible(next)
		if err != nil {
			return "", err
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(resolved, target)
		}
		target = filepath.Clean(target)
		vol = filepath.VolumeName(target)
		resolved = vol + sep
		rest = append(splitPath(target[len(vol):]), rest...)
	}
	return resolved, nil
}

// splitPath returns the non-empty elements of a slash- or
// separator-delimited path, dropping ".".
func splitPath(path string) []string {
	var out []string
	for _, p := range strings.Split(filepath.ToSlash(path), "/") {
		if p != "" && p != "." {
			out = append(out, p)
		}
	}
	return out
}

// findVCSRoot walks up from start looking for a .git directory or file
// (worktrees and submodules use a file).
func (r *Resolver) findVCSRoot(start string) string {
	current := start
	for {
		if _, err := r.fs.Stat(filepath.Join(current, ".git")); err == nil {
			return current
		}

		parent := filepath.Dir(current)
		if parent == current {
			return ""
		}
		current = parent
	}
}

// Forget drops cached directories that map to root.
func (r *Resolver) Forget(root string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range r.cache {
		if v == root {
			delete(r.cache, k)
		}
	}
}

// Contains reports whether path lies inside root. Both must be absolute
// and clean.
func Contains(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
