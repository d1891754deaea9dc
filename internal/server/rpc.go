package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/gorilla/websocket"

	"github.com/opencode-ai/emigo/internal/event"
	"github.com/opencode-ai/emigo/internal/session"
	"github.com/opencode-ai/emigo/pkg/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Local control channel; CORS is open as well
	},
}

// JSONRPCRequest represents a JSON-RPC 2.0 request
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      any             `json:"id,omitempty"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response
type JSONRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	Result  any           `json:"result,omitempty"`
	Error   *JSONRPCError `json:"error,omitempty"`
	ID      any           `json:"id"`
}

// JSONRPCNotification is a server-to-client message without an ID.
type JSONRPCNotification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// JSONRPCError represents a JSON-RPC 2.0 error
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error codes
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603

	// Registry errors
	InvalidWorkspace = -32001
	ConfigError      = -32002
	QueueFull        = -32003
	ShuttingDown     = -32004
	NotFound         = -32005
	PromptError      = -32006
	StreamFailure    = -32007
)

// RPC methods
const (
	MethodConverse = "converse"
	MethodSessions = "sessions"
	MethodHistory  = "history"
)

// notificationMethods maps bus events to client notification methods.
var notificationMethods = map[event.EventType]string{
	event.NeedWindow:       "need-window",
	event.TranscriptAppend: "transcript-append",
	event.SessionCreated:   "session-created",
	event.TurnCompleted:    "turn-completed",
}

// ConverseParams are the params of the converse method.
type ConverseParams struct {
	Workspace string `json:"workspace"`
	Prompt    string `json:"prompt"`
}

// HistoryParams are the params of the history method.
type HistoryParams struct {
	Workspace string `json:"workspace"`
}

// rpcWriteWait bounds a single write so a stalled client cannot hold the
// event bus.
const rpcWriteWait = 10 * time.Second

// rpcConn serializes writes to a websocket connection.
type rpcConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *rpcConn) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(rpcWriteWait))
	return c.conn.WriteJSON(v)
}

// rpc upgrades to a WebSocket carrying JSON-RPC 2.0. Requests are
// answered in arrival order; bus events are pushed as notifications,
// restricted to ?workspace= when given.
func (s *Server) rpc(w http.ResponseWriter, r *http.Request) {
	matches := workspaceFilter(r.URL.Query().Get("workspace"))

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	rc := &rpcConn{conn: conn}

	messages, err := s.bus.Messages(ctx)
	if err != nil {
		return
	}
	go s.forward(ctx, rc, messages, matches)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Err(err).Msg("rpc connection closed")
			}
			return
		}

		var req JSONRPCRequest
		if err := json.Unmarshal(data, &req); err != nil {
			rc.send(&JSONRPCResponse{
				JSONRPC: "2.0",
				Error:   &JSONRPCError{Code: ParseError, Message: "Parse error", Data: err.Error()},
			})
			continue
		}

		resp := s.handleRPC(ctx, &req)
		if req.ID == nil {
			continue
		}
		if err := rc.send(resp); err != nil {
			return
		}
	}
}

// forward pushes bus events to the client until ctx ends.
func (s *Server) forward(ctx context.Context, rc *rpcConn, messages <-chan *message.Message, matches func(event.Envelope) bool) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				// The bus dropped this consumer; end the connection.
				rc.conn.Close()
				return
			}
			env, err := event.Decode(msg)
			if err != nil || !matches(env) {
				continue
			}
			method, ok := notificationMethods[env.Type]
			if !ok {
				continue
			}
			if err := rc.send(&JSONRPCNotification{JSONRPC: "2.0", Method: method, Params: env.Data}); err != nil {
				// Unblocks the reader, which ends the subscription.
				rc.conn.Close()
				return
			}
		}
	}
}

// handleRPC processes a JSON-RPC request
func (s *Server) handleRPC(ctx context.Context, request *JSONRPCRequest) *JSONRPCResponse {
	response := &JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      request.ID,
	}

	if request.JSONRPC != "2.0" {
		response.Error = &JSONRPCError{
			Code:    InvalidRequest,
			Message: "Invalid JSON-RPC version",
		}
		return response
	}

	var (
		result any
		rpcErr *JSONRPCError
	)
	switch request.Method {
	case MethodConverse:
		result, rpcErr = s.rpcConverse(ctx, request.Params)
	case MethodSessions:
		result = s.registry.List()
	case MethodHistory:
		result, rpcErr = s.rpcHistory(request.Params)
	default:
		rpcErr = &JSONRPCError{
			Code:    MethodNotFound,
			Message: fmt.Sprintf("Method not found: %s", request.Method),
		}
	}

	if rpcErr != nil {
		response.Error = rpcErr
	} else {
		response.Result = result
	}
	return response
}

// rpcConverse queues a turn and returns its ID. Progress arrives as
// notifications.
func (s *Server) rpcConverse(ctx context.Context, params json.RawMessage) (*ConverseResponse, *JSONRPCError) {
	var p ConverseParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &JSONRPCError{Code: InvalidParams, Message: "Invalid parameters", Data: err.Error()}
	}
	if p.Workspace == "" {
		return nil, &JSONRPCError{Code: InvalidParams, Message: "workspace is required"}
	}

	turn, err := s.registry.Submit(ctx, p.Workspace, p.Prompt)
	if err != nil {
		return nil, rpcError(err)
	}
	return &ConverseResponse{TurnID: turn.ID, Workspace: turn.Workspace}, nil
}

// rpcHistory returns a session's history.
func (s *Server) rpcHistory(params json.RawMessage) (*HistoryResponse, *JSONRPCError) {
	var p HistoryParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &JSONRPCError{Code: InvalidParams, Message: "Invalid parameters", Data: err.Error()}
	}
	if p.Workspace == "" {
		return nil, &JSONRPCError{Code: InvalidParams, Message: "workspace is required"}
	}

	sess, err := s.registry.Get(p.Workspace)
	if err != nil {
		return nil, rpcError(err)
	}
	resp := historyOf(sess)
	return &resp, nil
}

// rpcError maps a registry error to a JSON-RPC error.
func rpcError(err error) *JSONRPCError {
	code := InternalError
	switch {
	case errors.Is(err, session.ErrQueueFull):
		code = QueueFull
	case errors.Is(err, session.ErrClosed):
		code = ShuttingDown
	case errors.Is(err, session.ErrNotFound):
		code = NotFound
	default:
		switch types.KindOf(err) {
		case types.KindResolution:
			code = InvalidWorkspace
		case types.KindConfiguration:
			code = ConfigError
		case types.KindPromptBuild:
			code = PromptError
		case types.KindStream:
			code = StreamFailure
		}
	}
	_, name := errorCode(err)
	return &JSONRPCError{Code: code, Message: err.Error(), Data: name}
}
