package mcpserver

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mark3labs/mcp-go/server"

	"github.com/opencode-ai/emigo/internal/logging"
	"github.com/opencode-ai/emigo/pkg/types"
)

// Notification methods sent to connected MCP clients.
const (
	MethodNeedWindow       = "notifications/emigo/need-window"
	MethodTranscriptAppend = "notifications/emigo/transcript-append"
)

// DefaultSendWait bounds how long one notification waits on a client whose
// queue is full.
const DefaultSendWait = 5 * time.Second

// Notifier forwards session notifications to each client session of an
// MCP server. Sessions are tracked through the hooks returned by Hooks.
// Notifications before Attach are dropped.
type Notifier struct {
	// SendWait overrides DefaultSendWait when positive.
	SendWait time.Duration

	mu       sync.RWMutex
	srv      *server.MCPServer
	sessions map[string]struct{}
}

// Attach sets the server notifications are sent through.
func (n *Notifier) Attach(s *server.MCPServer) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.srv = s
}

// Hooks returns server hooks that keep the notifier's session set current.
// Pass them to the server with server.WithHooks.
func (n *Notifier) Hooks() *server.Hooks {
	hooks := &server.Hooks{}
	hooks.AddOnRegisterSession(func(ctx context.Context, session server.ClientSession) {
		n.mu.Lock()
		defer n.mu.Unlock()
		if n.sessions == nil {
			n.sessions = make(map[string]struct{})
		}
		n.sessions[session.SessionID()] = struct{}{}
	})
	hooks.AddOnUnregisterSession(func(ctx context.Context, session server.ClientSession) {
		n.forget(session.SessionID())
	})
	return hooks
}

func (n *Notifier) forget(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.sessions, id)
}

func (n *Notifier) targets() (*server.MCPServer, []string) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	ids := make([]string, 0, len(n.sessions))
	for id := range n.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return n.srv, ids
}

func (n *Notifier) send(method string, params map[string]any) {
	s, ids := n.targets()
	if s == nil {
		return
	}
	for _, id := range ids {
		err := n.sendTo(s, id, method, params)
		switch {
		case err == nil, errors.Is(err, server.ErrSessionNotInitialized):
		case errors.Is(err, server.ErrSessionNotFound):
			n.forget(id)
		default:
			// The client did not drain its queue within the wait.
			log := logging.Component("mcp")
			log.Warn().Err(err).
				Str("session", id).
				Str("method", method).
				Msg("dropping lagging client")
			n.forget(id)
		}
	}
}

// sendTo delivers one notification, retrying while the session's queue is
// full.
func (n *Notifier) sendTo(s *server.MCPServer, id, method string, params map[string]any) error {
	wait := n.SendWait
	if wait <= 0 {
		wait = DefaultSendWait
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Millisecond
	b.MaxInterval = 50 * time.Millisecond
	b.MaxElapsedTime = wait

	return backoff.Retry(func() error {
		err := s.SendNotificationToSpecificClient(id, method, params)
		if err == nil || errors.Is(err, server.ErrNotificationChannelBlocked) {
			return err
		}
		return backoff.Permanent(err)
	}, b)
}

// NeedWindow implements session.Notifier.
func (n *Notifier) NeedWindow(workspace string) {
	n.send(MethodNeedWindow, map[string]any{"workspace": workspace})
}

// TranscriptAppend implements session.Notifier.
func (n *Notifier) TranscriptAppend(workspace, text string, role types.TranscriptRole) {
	n.send(MethodTranscriptAppend, map[string]any{
		"workspace": workspace,
		"text":      text,
		"role":      string(role),
	})
}
