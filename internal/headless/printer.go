package headless

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/opencode-ai/emigo/internal/event"
	"github.com/opencode-ai/emigo/pkg/types"
)

// Printer renders session notifications in one of the output formats. It
// implements session.Notifier and session.Observer.
type Printer struct {
	mu        sync.Mutex
	writer    io.Writer
	format    OutputFormat
	quiet     bool
	verbose   bool
	startTime time.Time
	result    *Result

	user  *color.Color
	err   *color.Color
	faint *color.Color
}

// NewPrinter creates a new printer.
func NewPrinter(writer io.Writer, format OutputFormat, quiet, verbose bool) *Printer {
	return &Printer{
		writer:    writer,
		format:    format,
		quiet:     quiet,
		verbose:   verbose,
		startTime: time.Now(),
		result: &Result{
			Status:   "running",
			ExitCode: ExitSuccess,
		},
		user:  color.New(color.FgCyan, color.Bold),
		err:   color.New(color.FgRed),
		faint: color.New(color.FgHiBlack),
	}
}

// NeedWindow implements session.Notifier.
func (p *Printer) NeedWindow(workspace string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.result.Workspace = workspace
	switch p.format {
	case OutputText:
		if p.verbose && !p.quiet {
			fmt.Fprintln(p.writer, p.faint.Sprintf("[workspace] %s", workspace))
		}
	case OutputJSONL:
		p.emit(string(event.NeedWindow), event.NeedWindowData{Workspace: workspace})
	}
}

// TranscriptAppend implements session.Notifier.
func (p *Printer) TranscriptAppend(workspace, text string, role types.TranscriptRole) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.format {
	case OutputText:
		p.printText(text, role)
	case OutputJSONL:
		p.emit(string(event.TranscriptAppend), event.TranscriptAppendData{Workspace: workspace, Text: text, Role: role})
	}
}

// printText writes one transcript fragment in text format.
func (p *Printer) printText(text string, role types.TranscriptRole) {
	switch role {
	case types.TranscriptLLM:
		fmt.Fprint(p.writer, text)
	case types.TranscriptUser:
		if !p.quiet {
			fmt.Fprintf(p.writer, "%s %s\n\n", p.user.Sprint("you ›"), strings.TrimSpace(text))
		}
	case types.TranscriptError:
		if !p.quiet {
			fmt.Fprintf(p.writer, "\n%s\n", p.err.Sprint(strings.TrimSpace(text)))
		}
	}
}

// SessionCreated implements session.Observer.
func (p *Printer) SessionCreated(data event.SessionCreatedData) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.result.SessionID = data.ID
	p.result.Model = data.Model
	switch p.format {
	case OutputText:
		if p.verbose && !p.quiet {
			fmt.Fprintln(p.writer, p.faint.Sprintf("[session:%s] %s", truncateID(data.ID), data.Model))
		}
	case OutputJSONL:
		p.emit(string(event.SessionCreated), data)
	}
}

// TurnCompleted implements session.Observer.
func (p *Printer) TurnCompleted(data event.TurnCompletedData) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.format {
	case OutputText:
		if !p.quiet {
			fmt.Fprintf(p.writer, "\n%s\n", p.faint.Sprintf("[done] %s", formatDuration(time.Since(p.startTime))))
		} else {
			fmt.Fprintln(p.writer)
		}
	case OutputJSONL:
		p.emit(string(event.TurnCompleted), data)
	}
}

// emit writes one JSONL event. Callers hold p.mu.
func (p *Printer) emit(eventType string, data any) {
	line, err := json.Marshal(NewEvent(eventType, data))
	if err != nil {
		return
	}
	fmt.Fprintln(p.writer, string(line))
}

// SetResult updates the result with final values.
func (p *Printer) SetResult(status string, exitCode ExitCode, reply string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.result.Status = status
	p.result.ExitCode = exitCode
	p.result.Reply = reply
	if err != nil {
		p.result.Error = err.Error()
		p.result.Kind = types.KindOf(err)
	}
	p.result.DurationMS = time.Since(p.startTime).Milliseconds()
}

// GetResult returns a copy of the current result.
func (p *Printer) GetResult() *Result {
	p.mu.Lock()
	defer p.mu.Unlock()

	result := *p.result
	result.DurationMS = time.Since(p.startTime).Milliseconds()
	return &result
}

// PrintFinalResult prints the final JSON result (for json format).
func (p *Printer) PrintFinalResult() {
	if p.format != OutputJSON {
		return
	}

	data, err := json.MarshalIndent(p.GetResult(), "", "  ")
	if err != nil {
		return
	}
	fmt.Fprintln(p.writer, string(data))
}

// Helper functions

func truncateID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
