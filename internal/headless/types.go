package headless

import (
	"io"
	"time"

	"github.com/opencode-ai/emigo/pkg/types"
)

// OutputFormat defines the output format for headless mode.
type OutputFormat string

const (
	// OutputText is human-readable streaming text output.
	OutputText OutputFormat = "text"
	// OutputJSON is final JSON result summary.
	OutputJSON OutputFormat = "json"
	// OutputJSONL is streaming JSONL events.
	OutputJSONL OutputFormat = "jsonl"
)

// ExitCode defines exit codes for headless mode.
type ExitCode int

const (
	// ExitSuccess indicates successful completion.
	ExitSuccess ExitCode = 0
	// ExitError indicates a general/unknown error.
	ExitError ExitCode = 1
	// ExitTimeout indicates timeout exceeded.
	ExitTimeout ExitCode = 2
	// ExitInvalidWorkspace indicates the workspace could not be resolved.
	ExitInvalidWorkspace ExitCode = 3
	// ExitConfiguration indicates missing or unusable model settings.
	ExitConfiguration ExitCode = 4
	// ExitProviderError indicates the model stream failed.
	ExitProviderError ExitCode = 5
	// ExitInvalidInput indicates a prompt that could not be built.
	ExitInvalidInput ExitCode = 6
)

// exitCodes maps registry error kinds to exit codes.
var exitCodes = map[types.ErrorKind]ExitCode{
	types.KindResolution:    ExitInvalidWorkspace,
	types.KindConfiguration: ExitConfiguration,
	types.KindStream:        ExitProviderError,
	types.KindPromptBuild:   ExitInvalidInput,
}

// Config holds configuration for headless mode execution.
type Config struct {
	// Workspace is a workspace directory or a file inside it.
	Workspace string
	// Prompt is the user prompt.
	Prompt string
	// Files are appended to the prompt as @mentions.
	Files []string
	// ReadStdin appends standard input to the prompt.
	ReadStdin bool
	// Stdin overrides os.Stdin for ReadStdin.
	Stdin io.Reader
	// OutputFormat specifies the output format (text, json, jsonl).
	OutputFormat OutputFormat
	// Timeout is the maximum execution time.
	Timeout time.Duration
	// Quiet prints only the reply.
	Quiet bool
	// Verbose shows lifecycle events.
	Verbose bool
	// NoColor disables ANSI colors in text output.
	NoColor bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		OutputFormat: OutputText,
		Timeout:      10 * time.Minute,
	}
}

// Result holds the final result of a headless execution.
type Result struct {
	Workspace  string          `json:"workspace"`
	SessionID  string          `json:"session_id,omitempty"`
	Status     string          `json:"status"` // "success", "error", "timeout"
	Model      string          `json:"model,omitempty"`
	DurationMS int64           `json:"duration_ms"`
	Reply      string          `json:"reply,omitempty"`
	Error      string          `json:"error,omitempty"`
	Kind       types.ErrorKind `json:"kind,omitempty"`
	ExitCode   ExitCode        `json:"exit_code"`
}

// Event represents a JSONL event for streaming output.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"ts"`
	Data      any       `json:"data"`
}

// NewEvent creates a new event with the current timestamp.
func NewEvent(eventType string, data any) *Event {
	return &Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}
}
