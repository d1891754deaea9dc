// Package server exposes a session registry over HTTP.
//
// # API Endpoints
//
//   - GET  /health: liveness
//   - POST /converse: queue a turn ({"workspace", "prompt", "wait"})
//   - GET  /session: list sessions
//   - GET  /session/history?workspace=: history of one session
//   - GET  /config: active configuration, credential masked
//   - GET  /event: notifications as Server-Sent Events
//   - GET  /rpc: JSON-RPC 2.0 over WebSocket
//
// # Notifications
//
// Every event published on the event bus reaches /event and /rpc clients
// in publish order. SSE clients receive
//
//	event: message
//	data: {"type":"transcript.append","properties":{"workspace":"/repo","text":"...","role":"llm"}}
//
// and RPC clients receive notifications named need-window,
// transcript-append, session-created and turn-completed with the same
// properties as params. Both accept ?workspace=<root> to receive a single
// workspace's events.
//
// # Errors
//
// Registry errors map to stable codes:
//
//	ResolutionError     400 INVALID_WORKSPACE    -32001
//	ConfigurationError  412 CONFIGURATION_ERROR  -32002
//	ErrQueueFull        429 QUEUE_FULL           -32003
//	ErrClosed           503 SHUTTING_DOWN        -32004
//	ErrNotFound         404 NOT_FOUND            -32005
package server
