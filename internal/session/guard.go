package session

import "sync"

// turnGuard admits turns of one session one at a time, in the order they
// were enqueued. Each turn waits for the previous turn's release.
type turnGuard struct {
	mu   sync.Mutex
	tail chan struct{}
}

func newTurnGuard() *turnGuard {
	tail := make(chan struct{})
	close(tail)
	return &turnGuard{tail: tail}
}

// enqueue reserves the next slot. The caller waits on wait before running
// and must call release exactly once when done; extra calls are no-ops.
func (g *turnGuard) enqueue() (wait <-chan struct{}, release func()) {
	g.mu.Lock()
	defer g.mu.Unlock()

	prev := g.tail
	next := make(chan struct{})
	g.tail = next

	var once sync.Once
	return prev, func() { once.Do(func() { close(next) }) }
}
