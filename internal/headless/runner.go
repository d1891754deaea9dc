package headless

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/opencode-ai/emigo/internal/config"
	"github.com/opencode-ai/emigo/internal/logging"
	"github.com/opencode-ai/emigo/internal/session"
	"github.com/opencode-ai/emigo/pkg/types"
)

// Runner executes one prompt against a local session registry.
type Runner struct {
	config  *Config
	source  config.Provider
	opts    []session.Option
	printer *Printer
}

// NewRunner creates a new headless runner. opts are passed to the session
// registry; the printer is always installed as its notifier.
func NewRunner(cfg *Config, source config.Provider, opts ...session.Option) *Runner {
	return &Runner{
		config: cfg,
		source: source,
		opts:   opts,
	}
}

// Run executes the turn and returns the result. The error is the turn's
// error, if any; the result's ExitCode classifies it.
func (r *Runner) Run(ctx context.Context, writer io.Writer) (*Result, error) {
	if r.config.NoColor {
		color.NoColor = true
	}
	r.printer = NewPrinter(writer, r.config.OutputFormat, r.config.Quiet, r.config.Verbose)
	defer r.printer.PrintFinalResult()

	prompt, err := r.getPrompt()
	if err != nil {
		r.printer.SetResult("error", ExitInvalidInput, "", err)
		return r.printer.GetResult(), err
	}
	if prompt == "" {
		err := errors.New("prompt is required")
		r.printer.SetResult("error", ExitInvalidInput, "", err)
		return r.printer.GetResult(), err
	}

	registry := session.NewRegistry(r.source, append(r.opts, session.WithNotifier(r.printer))...)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := registry.Shutdown(shutdownCtx); err != nil {
			logging.Warn().Err(err).Msg("registry shutdown")
		}
	}()

	runCtx := ctx
	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}

	reply, err := registry.Converse(runCtx, r.config.Workspace, prompt)
	switch {
	case err == nil:
		r.printer.SetResult("success", ExitSuccess, reply, nil)
	case errors.Is(err, context.DeadlineExceeded):
		r.printer.SetResult("timeout", ExitTimeout, reply, err)
	default:
		r.printer.SetResult("error", exitCode(err), reply, err)
	}
	return r.printer.GetResult(), err
}

// exitCode classifies a registry error.
func exitCode(err error) ExitCode {
	if code, ok := exitCodes[types.KindOf(err)]; ok {
		return code
	}
	return ExitError
}

// getPrompt combines the prompt, standard input and file mentions.
func (r *Runner) getPrompt() (string, error) {
	prompt := r.config.Prompt

	if r.config.ReadStdin {
		in := r.config.Stdin
		if in == nil {
			in = os.Stdin
		}
		data, err := io.ReadAll(in)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		if stdin := strings.TrimSpace(string(data)); stdin != "" {
			if prompt != "" {
				prompt = prompt + "\n\n" + stdin
			} else {
				prompt = stdin
			}
		}
	}

	prompt = strings.TrimSpace(prompt)
	if prompt != "" && len(r.config.Files) > 0 {
		mentions := make([]string, len(r.config.Files))
		for i, f := range r.config.Files {
			mentions[i] = "@" + f
		}
		prompt += "\n\n" + strings.Join(mentions, " ")
	}
	return prompt, nil
}
