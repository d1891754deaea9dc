package repomap

import (
	"context"
	"sync"

	"github.com/opencode-ai/emigo/internal/logging"
	"github.com/opencode-ai/emigo/internal/tokenizer"
)

// Cache memoizes file listings per workspace root. Entries are dropped by
// Invalidate, typically driven by a Watcher.
type Cache struct {
	lister Lister

	mu      sync.Mutex
	entries map[string][]string
	// gens counts invalidations per root. A listing is only stored if no
	// invalidation happened while it ran.
	gens map[string]uint64

	// onMiss is called after a root is listed for the first time.
	onMiss func(root string)
}

// NewCache wraps lister with a per-root cache.
func NewCache(lister Lister) *Cache {
	return &Cache{
		lister:  lister,
		entries: make(map[string][]string),
		gens:    make(map[string]uint64),
	}
}

// OnMiss registers fn to run after an uncached root has been listed.
func (c *Cache) OnMiss(fn func(root string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMiss = fn
}

// ListFiles implements Lister.
func (c *Cache) ListFiles(ctx context.Context, root string) ([]string, error) {
	c.mu.Lock()
	if files, ok := c.entries[root]; ok {
		c.mu.Unlock()
		return files, nil
	}
	gen := c.gens[root]
	c.mu.Unlock()

	files, err := c.lister.ListFiles(ctx, root)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	_, existed := c.entries[root]
	if c.gens[root] == gen {
		c.entries[root] = files
	}
	onMiss := c.onMiss
	c.mu.Unlock()

	if !existed && onMiss != nil {
		onMiss(root)
	}
	return files, nil
}

// Build implements Builder.
func (c *Cache) Build(ctx context.Context, root string, budget int, tok tokenizer.Tokenizer) (string, error) {
	if budget <= 0 {
		return "", nil
	}
	files, err := c.ListFiles(ctx, root)
	if err != nil {
		return "", err
	}
	return Render(files, budget, tok), nil
}

// Invalidate drops the cached listing for root.
func (c *Cache) Invalidate(root string) {
	c.mu.Lock()
	_, ok := c.entries[root]
	delete(c.entries, root)
	c.gens[root]++
	c.mu.Unlock()

	if ok {
		logging.Debug().Str("root", root).Msg("repo map invalidated")
	}
}

// Cached reports whether root has a cached listing.
func (c *Cache) Cached(root string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[root]
	return ok
}
