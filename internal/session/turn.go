package session

import (
	"context"
	"sync"
)

// Turn is one submitted conversation request. It completes when the
// assistant reply, or the error-tagged entry, has been appended to the
// session history.
type Turn struct {
	ID        string
	Workspace string
	Prompt    string

	done chan struct{}
	once sync.Once
	text string
	err  error
}

func newTurn(id, workspace, prompt string) *Turn {
	return &Turn{
		ID:        id,
		Workspace: workspace,
		Prompt:    prompt,
		done:      make(chan struct{}),
	}
}

// Done is closed when the turn has finished.
func (t *Turn) Done() <-chan struct{} {
	return t.done
}

// Result returns the reply text and error. It is only meaningful after
// Done is closed.
func (t *Turn) Result() (string, error) {
	return t.text, t.err
}

// Wait blocks until the turn finishes or ctx is done.
func (t *Turn) Wait(ctx context.Context) (string, error) {
	select {
	case <-t.done:
		return t.text, t.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (t *Turn) finish(text string, err error) {
	t.once.Do(func() {
		t.text = text
		t.err = err
		close(t.done)
	})
}
