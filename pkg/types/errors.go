package types

import (
	"errors"
	"fmt"
)

// ErrorKind tags the failure classes surfaced by the session registry.
type ErrorKind string

const (
	KindResolution    ErrorKind = "ResolutionError"
	KindConfiguration ErrorKind = "ConfigurationError"
	KindPromptBuild   ErrorKind = "PromptBuildError"
	KindStream        ErrorKind = "StreamError"
)

// KindedError is implemented by all registry error variants.
type KindedError interface {
	error
	Kind() ErrorKind
}

// ResolutionError reports a workspace identifier that could not be
// resolved to a canonical root. No side effects have happened.
type ResolutionError struct {
	Workspace string
	Err       error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve workspace %q: %v", e.Workspace, e.Err)
}
func (e *ResolutionError) Unwrap() error   { return e.Err }
func (e *ResolutionError) Kind() ErrorKind { return KindResolution }

// ConfigurationError reports missing or unusable model configuration.
// No session is created when it is returned.
type ConfigurationError struct {
	Missing []string
	Err     error
}

func (e *ConfigurationError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("missing configuration: %v", e.Missing)
	}
	return fmt.Sprintf("configuration: %v", e.Err)
}
func (e *ConfigurationError) Unwrap() error   { return e.Err }
func (e *ConfigurationError) Kind() ErrorKind { return KindConfiguration }

// PromptBuildError reports a prompt that could not be assembled. The
// request is rejected before any network call.
type PromptBuildError struct {
	Workspace string
	Err       error
}

func (e *PromptBuildError) Error() string {
	return fmt.Sprintf("build prompt for %s: %v", e.Workspace, e.Err)
}
func (e *PromptBuildError) Unwrap() error   { return e.Err }
func (e *PromptBuildError) Kind() ErrorKind { return KindPromptBuild }

// StreamError reports a model exchange that failed before or during
// streaming. Partial holds the text received before the failure.
type StreamError struct {
	Partial string
	Err     error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream: %v", e.Err)
}
func (e *StreamError) Unwrap() error   { return e.Err }
func (e *StreamError) Kind() ErrorKind { return KindStream }

// KindOf returns the kind of err, or "" when err is not a registry error.
func KindOf(err error) ErrorKind {
	var ke KindedError
	if errors.As(err, &ke) {
		return ke.Kind()
	}
	return ""
}
