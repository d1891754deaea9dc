package repomap

import (
	"io/fs"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"

	"github.com/opencode-ai/emigo/internal/logging"
)

// DefaultMaxWatchedDirs caps the directories watched across all roots.
const DefaultMaxWatchedDirs = 1024

// fsnotify only observes the real filesystem.
var osFs = afero.NewOsFs()

// Watcher invalidates cached repository maps when files are created,
// removed or renamed inside a watched workspace.
type Watcher struct {
	watcher    *fsnotify.Watcher
	invalidate func(root string)
	maxDirs    int

	mu       sync.Mutex
	roots    map[string]*matcher
	dirs     map[string]string // watched dir -> root
	started  bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewWatcher creates a Watcher that calls invalidate with the affected
// workspace root.
func NewWatcher(invalidate func(root string), maxDirs int) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if maxDirs <= 0 {
		maxDirs = DefaultMaxWatchedDirs
	}
	return &Watcher{
		watcher:    fw,
		invalidate: invalidate,
		maxDirs:    maxDirs,
		roots:      make(map[string]*matcher),
		dirs:       make(map[string]string),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}, nil
}

// Watch starts watching root and its non-ignored subdirectories. Watching
// the same root twice is a no-op. Directories beyond the cap are left
// unwatched.
func (w *Watcher) Watch(root string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.roots[root]; ok {
		return nil
	}
	m := newMatcher(nil)
	m.loadGitignore(osFs, root)
	w.roots[root] = m

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root {
			rel, _ := filepath.Rel(root, path)
			if m.ignored(filepath.ToSlash(rel), true) {
				return filepath.SkipDir
			}
		}
		if !w.addLocked(path, root) {
			return filepath.SkipAll
		}
		return nil
	})
}

// addLocked watches dir for root. It returns false once the cap is hit.
func (w *Watcher) addLocked(dir, root string) bool {
	if _, ok := w.dirs[dir]; ok {
		return true
	}
	if len(w.dirs) >= w.maxDirs {
		logging.Warn().Str("root", root).Int("max", w.maxDirs).Msg("repo map watch limit reached")
		return false
	}
	if err := w.watcher.Add(dir); err != nil {
		logging.Debug().Err(err).Str("dir", dir).Msg("failed to watch directory")
		return true
	}
	w.dirs[dir] = root
	return true
}

// Start begins processing filesystem events.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()
	go w.run()
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				w.handle(ev)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Error().Err(err).Msg("repo map watcher error")
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	w.mu.Lock()
	root, ok := w.dirs[filepath.Dir(ev.Name)]
	if !ok {
		w.mu.Unlock()
		return
	}
	m := w.roots[root]
	rel, _ := filepath.Rel(root, ev.Name)
	rel = filepath.ToSlash(rel)

	isDir := false
	if ev.Op&fsnotify.Create != 0 {
		if info, err := osFs.Stat(ev.Name); err == nil && info.IsDir() {
			isDir = true
		}
	}
	if m != nil && m.ignored(rel, isDir) {
		w.mu.Unlock()
		return
	}
	if isDir {
		w.addLocked(ev.Name, root)
	}
	if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		prefix := ev.Name + string(filepath.Separator)
		for dir := range w.dirs {
			if dir == ev.Name || strings.HasPrefix(dir, prefix) {
				delete(w.dirs, dir)
			}
		}
	}
	w.mu.Unlock()

	w.invalidate(root)
}

// Stop stops the watcher and releases its resources.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()

	w.stopOnce.Do(func() { close(w.stopCh) })
	if started {
		<-w.doneCh
	}
	return w.watcher.Close()
}
