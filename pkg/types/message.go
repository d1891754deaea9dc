package types

import (
	"encoding/json"
	"strings"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PartType identifies the kind of a structured content part.
type PartType string

const (
	PartText  PartType = "text"
	PartImage PartType = "image_url"
)

// ContentPart is one element of structured message content.
// Image parts carry a data URL ("data:<mime>;base64,...").
type ContentPart struct {
	Type     PartType `json:"type"`
	Text     string   `json:"text,omitempty"`
	ImageURL string   `json:"imageURL,omitempty"`
	MimeType string   `json:"mimeType,omitempty"`
}

// Message is a single entry of a session's conversation history.
type Message struct {
	ID      string        `json:"id"`
	Role    Role          `json:"role"`
	Content string        `json:"content,omitempty"`
	Parts   []ContentPart `json:"parts,omitempty"`
	Created int64         `json:"created"`

	// Error marks a synthetic assistant message recorded after a failed
	// model exchange. Its content is the partial text plus the error text.
	Error *MessageError `json:"error,omitempty"`
}

// MessageError describes the failure recorded on an error-tagged message.
// Format: {"name": "StreamError", "data": {"message": "..."}}
type MessageError struct {
	Name string           `json:"name"`
	Data MessageErrorData `json:"data"`
}

// MessageErrorData contains the error details.
type MessageErrorData struct {
	Message string `json:"message"`
	Partial string `json:"partial,omitempty"`
}

// NewStreamMessageError creates the error tag for a failed stream.
func NewStreamMessageError(message, partial string) *MessageError {
	return &MessageError{
		Name: string(KindStream),
		Data: MessageErrorData{Message: message, Partial: partial},
	}
}

// IsError reports whether the message is an error-tagged entry.
func (m Message) IsError() bool { return m.Error != nil }

// HasImages reports whether the message carries embedded image parts.
func (m Message) HasImages() bool {
	for _, p := range m.Parts {
		if p.Type == PartImage {
			return true
		}
	}
	return false
}

// Text returns the plain-text rendering of the message content.
func (m Message) Text() string {
	if len(m.Parts) == 0 {
		return m.Content
	}
	var sb strings.Builder
	for _, p := range m.Parts {
		if p.Type == PartText {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// Printable returns a JSON rendering of messages with image payloads
// elided, suitable for debug logs.
func Printable(messages []Message) string {
	out := make([]Message, len(messages))
	for i, m := range messages {
		out[i] = m
		if !m.HasImages() {
			continue
		}
		parts := make([]ContentPart, len(m.Parts))
		for j, p := range m.Parts {
			parts[j] = p
			if p.Type == PartImage && strings.HasPrefix(p.ImageURL, "data:") && len(p.ImageURL) > 50 {
				parts[j].ImageURL = p.ImageURL[:50] + "..."
			}
		}
		out[i].Parts = parts
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return ""
	}
	return string(data)
}

// TranscriptRole is the role attached to a transcript-append notification.
type TranscriptRole string

const (
	TranscriptUser  TranscriptRole = "user"
	TranscriptLLM   TranscriptRole = "llm"
	TranscriptError TranscriptRole = "error"
)
