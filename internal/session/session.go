package session

import (
	"sort"
	"sync"
	"time"

	"github.com/opencode-ai/emigo/internal/provider"
	"github.com/opencode-ai/emigo/pkg/types"
)

// Session is the conversation state of one workspace.
type Session struct {
	ID        string
	Workspace string
	Created   time.Time

	client provider.Client
	guard  *turnGuard

	mu      sync.RWMutex
	history []types.Message
	files   map[string]bool
	pending int
}

func newSession(id, workspace string, client provider.Client) *Session {
	return &Session{
		ID:        id,
		Workspace: workspace,
		Created:   time.Now(),
		client:    client,
		guard:     newTurnGuard(),
		files:     make(map[string]bool),
	}
}

// Info is a snapshot of a session for listings.
type Info struct {
	ID        string   `json:"id"`
	Workspace string   `json:"workspace"`
	Model     string   `json:"model"`
	Created   int64    `json:"created"`
	Messages  int      `json:"messages"`
	Files     []string `json:"files"`
	Pending   int      `json:"pending"`
}

// Info returns a snapshot of the session.
func (s *Session) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	files := make([]string, 0, len(s.files))
	for f := range s.files {
		files = append(files, f)
	}
	sort.Strings(files)

	return Info{
		ID:        s.ID,
		Workspace: s.Workspace,
		Model:     s.client.Model(),
		Created:   s.Created.UnixMilli(),
		Messages:  len(s.history),
		Files:     files,
		Pending:   s.pending,
	}
}

// History returns a copy of the conversation history.
func (s *Session) History() []types.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.Message(nil), s.history...)
}

// append adds messages to the history and returns the full history.
func (s *Session) append(msgs ...types.Message) []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, msgs...)
	return append([]types.Message(nil), s.history...)
}

// started reports whether a first turn has been committed.
func (s *Session) started() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history) > 0
}

// newFiles returns the paths of files not yet inlined, keeping order.
func (s *Session) newFiles(paths []string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for _, p := range paths {
		if !s.files[p] {
			out = append(out, p)
		}
	}
	return out
}

// markFiles records paths as inlined.
func (s *Session) markFiles(paths []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range paths {
		s.files[p] = true
	}
}

func (s *Session) addPending(n int) {
	s.mu.Lock()
	s.pending += n
	s.mu.Unlock()
}
