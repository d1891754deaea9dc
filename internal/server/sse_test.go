package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/opencode-ai/emigo/internal/event"
	"github.com/opencode-ai/emigo/pkg/types"
)

// mockResponseWriter records flushes for testing
type mockResponseWriter struct {
	*httptest.ResponseRecorder
	flushed int
}

func (m *mockResponseWriter) Flush() {
	m.flushed++
}

func newMockResponseWriter() *mockResponseWriter {
	return &mockResponseWriter{
		ResponseRecorder: httptest.NewRecorder(),
	}
}

func TestNewSSEWriter(t *testing.T) {
	w := newMockResponseWriter()
	sse, err := newSSEWriter(w)
	if err != nil {
		t.Fatalf("newSSEWriter failed: %v", err)
	}
	if sse == nil {
		t.Fatal("SSE writer should not be nil")
	}
}

func TestNewSSEWriter_NoFlusher(t *testing.T) {
	w := &noFlushWriter{}
	_, err := newSSEWriter(w)
	if err == nil {
		t.Error("Expected error for writer without Flusher")
	}
}

type noFlushWriter struct{}

func (n *noFlushWriter) Header() http.Header       { return http.Header{} }
func (n *noFlushWriter) Write([]byte) (int, error) { return 0, nil }
func (n *noFlushWriter) WriteHeader(int)           {}

func TestSSEWriter_WriteEvent(t *testing.T) {
	w := newMockResponseWriter()
	sse, _ := newSSEWriter(w)

	data := map[string]string{"message": "hello"}
	err := sse.writeEvent("test", data)
	if err != nil {
		t.Fatalf("writeEvent failed: %v", err)
	}

	body := w.Body.String()
	if !strings.Contains(body, "event: test\n") {
		t.Error("Expected event line")
	}
	if !strings.Contains(body, `"message":"hello"`) {
		t.Error("Expected data to contain message")
	}
	if w.flushed == 0 {
		t.Error("Expected Flush to be called")
	}
}

func TestSSEWriter_WriteHeartbeat(t *testing.T) {
	w := newMockResponseWriter()
	sse, _ := newSSEWriter(w)

	sse.writeHeartbeat()

	body := w.Body.String()
	if !strings.Contains(body, ": heartbeat\n") {
		t.Errorf("Expected heartbeat comment, got: %s", body)
	}
	if w.flushed == 0 {
		t.Error("Expected Flush to be called")
	}
}

// stalledResponseWriter behaves like a connection whose peer stopped
// reading: every write fails once the deadline is set.
type stalledResponseWriter struct {
	*mockResponseWriter
	deadline time.Time
}

func (s *stalledResponseWriter) SetWriteDeadline(t time.Time) error {
	s.deadline = t
	return nil
}

func (s *stalledResponseWriter) Write(p []byte) (int, error) {
	return 0, os.ErrDeadlineExceeded
}

func TestSSEWriter_WriteDeadline(t *testing.T) {
	w := &stalledResponseWriter{mockResponseWriter: newMockResponseWriter()}
	sse, _ := newSSEWriter(w)

	before := time.Now()
	err := sse.writeEvent("message", WireEvent{Type: event.NeedWindow, Properties: json.RawMessage(`{}`)})
	if !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Fatalf("Expected deadline error, got %v", err)
	}
	if w.deadline.Before(before.Add(SSEWriteWait)) {
		t.Errorf("Expected deadline at least %v ahead, got %v", SSEWriteWait, w.deadline.Sub(before))
	}
	if err := sse.writeHeartbeat(); err == nil {
		t.Error("Expected heartbeat to fail on a stalled client")
	}
}

func TestSSEEventFormat(t *testing.T) {
	w := newMockResponseWriter()
	sse, _ := newSSEWriter(w)

	sse.writeEvent("message", WireEvent{Type: event.NeedWindow, Properties: json.RawMessage(`{"workspace":"/repo"}`)})

	lines := strings.Split(w.Body.String(), "\n")
	if len(lines) < 3 {
		t.Fatalf("Expected at least 3 lines, got %d", len(lines))
	}
	if lines[0] != "event: message" {
		t.Errorf("First line should be event, got: %s", lines[0])
	}
	if lines[1] != `data: {"type":"window.need","properties":{"workspace":"/repo"}}` {
		t.Errorf("Unexpected data line: %s", lines[1])
	}
	if lines[2] != "" {
		t.Errorf("Third line should be empty, got: %s", lines[2])
	}
}

func TestWorkspaceFilter(t *testing.T) {
	env := func(data string) event.Envelope {
		return event.Envelope{Type: event.TranscriptAppend, Data: json.RawMessage(data)}
	}

	tests := []struct {
		name      string
		workspace string
		env       event.Envelope
		expected  bool
	}{
		{"no filter", "", env(`{"workspace":"/a"}`), true},
		{"match", "/a", env(`{"workspace":"/a","text":"hi","role":"llm"}`), true},
		{"other workspace", "/a", env(`{"workspace":"/b"}`), false},
		{"no workspace field", "/a", env(`{"id":"x"}`), false},
		{"bad data", "/a", env(`[`), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := workspaceFilter(tt.workspace)(tt.env); got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

// readEvents returns a channel of decoded SSE data lines.
func readEvents(t *testing.T, resp *http.Response) <-chan WireEvent {
	t.Helper()
	out := make(chan WireEvent, 16)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var e WireEvent
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &e); err == nil {
				out <- e
			}
		}
	}()
	return out
}

func nextEvent(t *testing.T, events <-chan WireEvent) WireEvent {
	t.Helper()
	select {
	case e, ok := <-events:
		if !ok {
			t.Fatal("event stream closed")
		}
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return WireEvent{}
}

func TestEvents_StreamsBusInOrder(t *testing.T) {
	bus := event.NewBus()
	defer bus.Close()
	srv := &Server{bus: bus, log: zerolog.Nop()}

	ts := httptest.NewServer(http.HandlerFunc(srv.events))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, "GET", ts.URL+"?workspace=/a", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	for header, want := range map[string]string{
		"Content-Type":      "text/event-stream",
		"Cache-Control":     "no-cache",
		"X-Accel-Buffering": "no",
	} {
		if got := resp.Header.Get(header); got != want {
			t.Errorf("Expected %s: %s, got %s", header, want, got)
		}
	}

	events := readEvents(t, resp)
	if e := nextEvent(t, events); e.Type != connectedEvent {
		t.Fatalf("Expected %s first, got %s", connectedEvent, e.Type)
	}

	n := event.Notifier{Bus: bus}
	n.NeedWindow("/a")
	n.TranscriptAppend("/b", "elsewhere", types.TranscriptLLM)
	n.TranscriptAppend("/a", "hello", types.TranscriptLLM)

	first := nextEvent(t, events)
	if first.Type != event.NeedWindow {
		t.Errorf("Expected %s, got %s", event.NeedWindow, first.Type)
	}

	second := nextEvent(t, events)
	var data event.TranscriptAppendData
	if err := json.Unmarshal(second.Properties, &data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if data.Workspace != "/a" || data.Text != "hello" || data.Role != types.TranscriptLLM {
		t.Errorf("Unexpected transcript event: %+v", data)
	}
}

func TestEvents_ClosedBus(t *testing.T) {
	bus := event.NewBus()
	bus.Close()
	srv := &Server{bus: bus, log: zerolog.Nop()}

	w := newMockResponseWriter()
	srv.events(w, httptest.NewRequest("GET", "/event", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", w.Code)
	}
}
