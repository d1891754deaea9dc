package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/opencode-ai/emigo/internal/event"
)

// WireEvent is the JSON shape of an event sent to SSE and RPC clients.
type WireEvent struct {
	Type       event.EventType `json:"type"`
	Properties json.RawMessage `json:"properties"`
}

const (
	// SSEHeartbeatInterval is the interval for SSE heartbeats.
	SSEHeartbeatInterval = 30 * time.Second

	// SSEWriteWait bounds a single write to a stream client.
	SSEWriteWait = 10 * time.Second

	// connectedEvent is sent once a stream is subscribed.
	connectedEvent event.EventType = "server.connected"
)

// sseWriter wraps http.ResponseWriter for SSE.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
}

// newSSEWriter creates a new SSE writer.
func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	rc := http.NewResponseController(w)

	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	return &sseWriter{w: w, flusher: flusher, rc: rc}, nil
}

// writeEvent writes one SSE event and flushes it.
func (s *sseWriter) writeEvent(eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	return s.write(fmt.Sprintf("event: %s\ndata: %s\n\n", eventType, jsonData))
}

// writeHeartbeat writes an SSE heartbeat comment.
func (s *sseWriter) writeHeartbeat() error {
	return s.write(": heartbeat\n\n")
}

// write sends frame under a write deadline so a client that stopped
// reading ends its stream instead of holding it open.
func (s *sseWriter) write(frame string) error {
	if err := s.rc.SetWriteDeadline(time.Now().Add(SSEWriteWait)); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	if _, err := fmt.Fprint(s.w, frame); err != nil {
		return err
	}

	// ResponseController sees through middleware wrappers
	if err := s.rc.Flush(); err != nil {
		if !errors.Is(err, http.ErrNotSupported) {
			return err
		}
		s.flusher.Flush()
	}
	return nil
}

// workspaceFilter reports whether an event belongs to workspace. An empty
// workspace matches every event.
func workspaceFilter(workspace string) func(event.Envelope) bool {
	return func(env event.Envelope) bool {
		if workspace == "" {
			return true
		}
		var data struct {
			Workspace string `json:"workspace"`
		}
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return false
		}
		return data.Workspace == workspace
	}
}

// events streams bus events as SSE. ?workspace= restricts the stream to
// one workspace root.
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	matches := workspaceFilter(r.URL.Query().Get("workspace"))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	messages, err := s.bus.Messages(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeShuttingDown, err.Error())
		return
	}

	w.WriteHeader(http.StatusOK)
	sse.flusher.Flush()

	if err := sse.writeEvent("message", WireEvent{Type: connectedEvent, Properties: json.RawMessage("{}")}); err != nil {
		return
	}

	ticker := time.NewTicker(SSEHeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			env, err := event.Decode(msg)
			if err != nil {
				s.log.Warn().Err(err).Msg("dropping undecodable event")
				continue
			}
			if !matches(env) {
				continue
			}
			if err := sse.writeEvent("message", WireEvent{Type: env.Type, Properties: env.Data}); err != nil {
				return
			}
		case <-ticker.C:
			if err := sse.writeHeartbeat(); err != nil {
				return
			}
		}
	}
}
