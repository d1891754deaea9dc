package event

import "github.com/opencode-ai/emigo/pkg/types"

// NeedWindowData is the data for window.need events. It is published
// before any transcript.append event of a request.
type NeedWindowData struct {
	Workspace string `json:"workspace"`
}

// TranscriptAppendData is the data for transcript.append events.
type TranscriptAppendData struct {
	Workspace string               `json:"workspace"`
	Text      string               `json:"text"`
	Role      types.TranscriptRole `json:"role"`
}

// SessionCreatedData is the data for session.created events.
type SessionCreatedData struct {
	ID        string `json:"id"`
	Workspace string `json:"workspace"`
	Model     string `json:"model"`
	Created   int64  `json:"created"`
}

// TurnCompletedData is the data for turn.completed events.
type TurnCompletedData struct {
	Workspace string          `json:"workspace"`
	TurnID    string          `json:"turnID"`
	Error     string          `json:"error,omitempty"`
	Kind      types.ErrorKind `json:"kind,omitempty"`
}

// Notifier publishes session notifications on a Bus. Notifications are
// published synchronously so a turn's events are ordered.
type Notifier struct {
	Bus *Bus
}

// NeedWindow asks the client to open a display for workspace.
func (n Notifier) NeedWindow(workspace string) {
	n.Bus.PublishSync(Event{Type: NeedWindow, Data: NeedWindowData{Workspace: workspace}})
}

// TranscriptAppend sends text for display in workspace's transcript.
func (n Notifier) TranscriptAppend(workspace, text string, role types.TranscriptRole) {
	n.Bus.PublishSync(Event{
		Type: TranscriptAppend,
		Data: TranscriptAppendData{Workspace: workspace, Text: text, Role: role},
	})
}

// SessionCreated announces a new session.
func (n Notifier) SessionCreated(data SessionCreatedData) {
	n.Bus.PublishSync(Event{Type: SessionCreated, Data: data})
}

// TurnCompleted announces the end of a turn.
func (n Notifier) TurnCompleted(data TurnCompletedData) {
	n.Bus.PublishSync(Event{Type: TurnCompleted, Data: data})
}
