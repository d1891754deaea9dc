package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/opencode-ai/emigo/internal/config"
	"github.com/opencode-ai/emigo/internal/session"
	"github.com/opencode-ai/emigo/pkg/types"
)

// ConverseRequest is the body of POST /converse.
type ConverseRequest struct {
	Workspace string `json:"workspace"`
	Prompt    string `json:"prompt"`
	// Wait holds the response until the turn has finished.
	Wait bool `json:"wait,omitempty"`
}

// ConverseResponse describes a queued or finished turn.
type ConverseResponse struct {
	TurnID    string          `json:"turnID"`
	Workspace string          `json:"workspace"`
	Reply     string          `json:"reply,omitempty"`
	Error     string          `json:"error,omitempty"`
	Kind      types.ErrorKind `json:"kind,omitempty"`
}

// HistoryResponse is the body of GET /session/history.
type HistoryResponse struct {
	Workspace string          `json:"workspace"`
	Messages  []types.Message `json:"messages"`
}

// health reports liveness.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// converse queues a turn. The reply streams as transcript.append events;
// with wait set the response also carries the final text.
func (s *Server) converse(w http.ResponseWriter, r *http.Request) {
	var req ConverseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Workspace) == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "workspace required")
		return
	}

	turn, err := s.registry.Submit(r.Context(), req.Workspace, req.Prompt)
	if err != nil {
		writeRegistryError(w, err)
		return
	}

	resp := ConverseResponse{TurnID: turn.ID, Workspace: turn.Workspace}
	if !req.Wait {
		writeJSON(w, http.StatusAccepted, resp)
		return
	}

	reply, err := turn.Wait(r.Context())
	if r.Context().Err() != nil {
		// Client went away; the turn keeps running.
		return
	}
	resp.Reply = reply
	if err != nil {
		resp.Error = err.Error()
		resp.Kind = types.KindOf(err)
	}
	writeJSON(w, http.StatusOK, resp)
}

// listSessions returns all sessions.
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.List())
}

// getHistory returns the history of the session for ?workspace=.
func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	workspace := r.URL.Query().Get("workspace")
	if workspace == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "workspace required")
		return
	}

	sess, err := s.registry.Get(workspace)
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, historyOf(sess))
}

func historyOf(sess *session.Session) HistoryResponse {
	return HistoryResponse{Workspace: sess.Workspace, Messages: sess.History()}
}

// getConfig returns the active configuration with the credential masked.
func (s *Server) getConfig(w http.ResponseWriter, r *http.Request) {
	if s.source == nil {
		writeJSON(w, http.StatusOK, &types.Config{})
		return
	}
	writeJSON(w, http.StatusOK, config.Masked(s.source.Config()))
}
