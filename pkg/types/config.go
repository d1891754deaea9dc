package types

import "time"

// Config represents the emigo configuration.
// The same shape is accepted from JSON, JSONC and YAML files.
type Config struct {
	// Schema reference (for editor support)
	Schema string `json:"$schema,omitempty" yaml:"$schema,omitempty"`

	// Model selection: "provider/model" or a bare model name served by an
	// OpenAI-compatible endpoint.
	Model   string `json:"model,omitempty" yaml:"model,omitempty"`
	BaseURL string `json:"baseURL,omitempty" yaml:"baseURL,omitempty"`
	APIKey  string `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`

	// MaxTokens caps the completion length. 0 = provider default.
	MaxTokens int `json:"maxTokens,omitempty" yaml:"maxTokens,omitempty"`

	// Prompt assembly
	MapTokens     int      `json:"mapTokens,omitempty" yaml:"mapTokens,omitempty"`
	FileTokens    int      `json:"fileTokens,omitempty" yaml:"fileTokens,omitempty"`
	Tokenizer     string   `json:"tokenizer,omitempty" yaml:"tokenizer,omitempty"`
	SystemPrompt  string   `json:"systemPrompt,omitempty" yaml:"systemPrompt,omitempty"`
	Instructions  []string `json:"instructions,omitempty" yaml:"instructions,omitempty"`
	ReadOnlyFiles []string `json:"readOnlyFiles,omitempty" yaml:"readOnlyFiles,omitempty"`

	// Scheduling
	Workers       *WorkersConfig `json:"workers,omitempty" yaml:"workers,omitempty"`
	StreamTimeout string         `json:"streamTimeout,omitempty" yaml:"streamTimeout,omitempty"`
	Retry         *RetryConfig   `json:"retry,omitempty" yaml:"retry,omitempty"`

	Server *ServerConfig `json:"server,omitempty" yaml:"server,omitempty"`
	Log    *LogConfig    `json:"log,omitempty" yaml:"log,omitempty"`
}

// WorkersConfig bounds the number of concurrent and queued turns.
type WorkersConfig struct {
	Max   int `json:"max,omitempty" yaml:"max,omitempty"`
	Queue int `json:"queue,omitempty" yaml:"queue,omitempty"`
}

// RetryConfig controls retries when opening a model stream.
type RetryConfig struct {
	MaxRetries *int `json:"maxRetries,omitempty" yaml:"maxRetries,omitempty"`
}

// ServerConfig holds listener settings for `emigo serve`.
type ServerConfig struct {
	Hostname string `json:"hostname,omitempty" yaml:"hostname,omitempty"`
	Port     int    `json:"port,omitempty" yaml:"port,omitempty"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `json:"level,omitempty" yaml:"level,omitempty"`
	File  string `json:"file,omitempty" yaml:"file,omitempty"`
}

// Defaults applied when the corresponding field is unset.
const (
	DefaultMapTokens  = 4096
	DefaultFileTokens = 16384
	DefaultTokenizer  = "cl100k_base"
	DefaultWorkers    = 8
	DefaultQueue      = 256
	DefaultRetries    = 3
)

// StreamTimeoutDuration parses StreamTimeout. Empty or invalid values mean
// no timeout.
func (c *Config) StreamTimeoutDuration() time.Duration {
	if c == nil || c.StreamTimeout == "" {
		return 0
	}
	d, err := time.ParseDuration(c.StreamTimeout)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// MaxWorkers returns the concurrent turn bound.
func (c *Config) MaxWorkers() int {
	if c == nil || c.Workers == nil || c.Workers.Max <= 0 {
		return DefaultWorkers
	}
	return c.Workers.Max
}

// MaxQueued returns the bound on turns waiting or running.
func (c *Config) MaxQueued() int {
	if c == nil || c.Workers == nil || c.Workers.Queue <= 0 {
		return DefaultQueue
	}
	return c.Workers.Queue
}

// MaxRetries returns the stream-open retry count.
func (c *Config) MaxRetries() int {
	if c == nil || c.Retry == nil || c.Retry.MaxRetries == nil {
		return DefaultRetries
	}
	return *c.Retry.MaxRetries
}
