// Package provider_test provides a MockLLM server for testing providers.
// The MockLLM server mimics the OpenAI and Anthropic streaming APIs with
// deterministic responses.
package provider_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// MockLLMConfig represents the configuration for MockLLM responses.
type MockLLMConfig struct {
	Responses map[string]string
	Fallback  string

	// FailFirst makes the first N requests fail with a 500.
	FailFirst int
	// AbortAfter drops the connection after this many content chunks
	// when greater than zero.
	AbortAfter int
}

// MockRequest records incoming requests for verification.
type MockRequest struct {
	Path    string
	Body    map[string]interface{}
	Headers http.Header
}

// MockLLMServer provides an HTTP server that mimics OpenAI/Anthropic APIs.
type MockLLMServer struct {
	server *httptest.Server
	config *MockLLMConfig

	mu       sync.Mutex
	requests []MockRequest
}

// NewMockLLMServer creates a new mock LLM server.
func NewMockLLMServer(config *MockLLMConfig) *MockLLMServer {
	m := &MockLLMServer{config: config}

	mux := http.NewServeMux()

	// OpenAI-compatible endpoint (also used by ARK)
	mux.HandleFunc("/v1/chat/completions", m.handleOpenAIChatCompletions)
	mux.HandleFunc("/chat/completions", m.handleOpenAIChatCompletions)

	// Anthropic-compatible endpoint
	mux.HandleFunc("/v1/messages", m.handleAnthropicMessages)

	m.server = httptest.NewServer(mux)
	return m
}

// URL returns the mock server's URL.
func (m *MockLLMServer) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockLLMServer) Close() {
	m.server.Close()
}

// GetRequests returns all recorded requests.
func (m *MockLLMServer) GetRequests() []MockRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockRequest(nil), m.requests...)
}

// record stores the request and reports whether it should fail.
func (m *MockLLMServer) record(w http.ResponseWriter, r *http.Request) (map[string]interface{}, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return nil, false
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return nil, false
	}
	defer r.Body.Close()

	var req map[string]interface{}
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return nil, false
	}

	m.mu.Lock()
	m.requests = append(m.requests, MockRequest{Path: r.URL.Path, Body: req, Headers: r.Header})
	n := len(m.requests)
	m.mu.Unlock()

	if n <= m.config.FailFirst {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"mock overloaded","type":"server_error"}}`))
		return nil, false
	}
	return req, true
}

// handleOpenAIChatCompletions handles OpenAI-compatible chat completions.
func (m *MockLLMServer) handleOpenAIChatCompletions(w http.ResponseWriter, r *http.Request) {
	req, ok := m.record(w, r)
	if !ok {
		return
	}
	m.writeOpenAIStreamingResponse(w, m.findResponse(lastUserText(req)))
}

// handleAnthropicMessages handles the Anthropic messages API.
func (m *MockLLMServer) handleAnthropicMessages(w http.ResponseWriter, r *http.Request) {
	req, ok := m.record(w, r)
	if !ok {
		return
	}
	m.writeAnthropicStreamingResponse(w, m.findResponse(lastUserText(req)))
}

// lastUserText extracts the last user message text. Content may be a
// string or an array of typed blocks.
func lastUserText(req map[string]interface{}) string {
	messages, ok := req["messages"].([]interface{})
	if !ok {
		return ""
	}
	for i := len(messages) - 1; i >= 0; i-- {
		msg, ok := messages[i].(map[string]interface{})
		if !ok || msg["role"] != "user" {
			continue
		}
		if content, ok := msg["content"].(string); ok {
			return content
		}
		if blocks, ok := msg["content"].([]interface{}); ok {
			for _, item := range blocks {
				if block, ok := item.(map[string]interface{}); ok && block["type"] == "text" {
					if text, ok := block["text"].(string); ok {
						return text
					}
				}
			}
		}
	}
	return ""
}

// findResponse finds the best matching response for a prompt.
func (m *MockLLMServer) findResponse(prompt string) string {
	prompt = strings.ToLower(strings.TrimSpace(prompt))
	for key, resp := range m.config.Responses {
		if strings.Contains(prompt, strings.ToLower(key)) {
			return resp
		}
	}
	return m.config.Fallback
}

// words splits content into chunks that concatenate back to it.
func words(content string) []string {
	fields := strings.SplitAfter(content, " ")
	out := fields[:0]
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// abort drops the connection mid-response.
func abort(w http.ResponseWriter) {
	if hj, ok := w.(http.Hijacker); ok {
		if conn, _, err := hj.Hijack(); err == nil {
			conn.Close()
		}
	}
}

func sse(w http.ResponseWriter, flusher http.Flusher, event string, payload interface{}) {
	data, _ := json.Marshal(payload)
	if event != "" {
		w.Write([]byte("event: " + event + "\n"))
	}
	w.Write([]byte("data: " + string(data) + "\n\n"))
	flusher.Flush()
}

// writeOpenAIStreamingResponse writes a streaming OpenAI response.
func (m *MockLLMServer) writeOpenAIStreamingResponse(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	chunk := func(delta map[string]interface{}, finish interface{}) map[string]interface{} {
		return map[string]interface{}{
			"id":      "chatcmpl-mock",
			"object":  "chat.completion.chunk",
			"created": time.Now().Unix(),
			"model":   "mock-gpt-4",
			"choices": []map[string]interface{}{
				{"index": 0, "delta": delta, "finish_reason": finish},
			},
		}
	}

	sse(w, flusher, "", chunk(map[string]interface{}{"role": "assistant"}, nil))

	for i, word := range words(content) {
		if m.config.AbortAfter > 0 && i == m.config.AbortAfter {
			abort(w)
			return
		}
		sse(w, flusher, "", chunk(map[string]interface{}{"content": word}, nil))
		time.Sleep(2 * time.Millisecond)
	}

	sse(w, flusher, "", chunk(map[string]interface{}{}, "stop"))
	w.Write([]byte("data: [DONE]\n\n"))
	flusher.Flush()
}

// writeAnthropicStreamingResponse writes a streaming Anthropic response.
func (m *MockLLMServer) writeAnthropicStreamingResponse(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	sse(w, flusher, "message_start", map[string]interface{}{
		"type": "message_start",
		"message": map[string]interface{}{
			"id":      "msg_mock",
			"type":    "message",
			"role":    "assistant",
			"model":   "mock-claude",
			"content": []interface{}{},
			"usage":   map[string]interface{}{"input_tokens": 100, "output_tokens": 0},
		},
	})
	sse(w, flusher, "content_block_start", map[string]interface{}{
		"type":          "content_block_start",
		"index":         0,
		"content_block": map[string]interface{}{"type": "text", "text": ""},
	})

	for _, word := range words(content) {
		sse(w, flusher, "content_block_delta", map[string]interface{}{
			"type":  "content_block_delta",
			"index": 0,
			"delta": map[string]interface{}{"type": "text_delta", "text": word},
		})
		time.Sleep(2 * time.Millisecond)
	}

	sse(w, flusher, "content_block_stop", map[string]interface{}{"type": "content_block_stop", "index": 0})
	sse(w, flusher, "message_delta", map[string]interface{}{
		"type":  "message_delta",
		"delta": map[string]interface{}{"stop_reason": "end_turn", "stop_sequence": nil},
		"usage": map[string]interface{}{"output_tokens": 50},
	})
	sse(w, flusher, "message_stop", map[string]interface{}{"type": "message_stop"})
}
