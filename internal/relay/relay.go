// Package relay forwards streamed model fragments to a sink while
// accumulating the full response text.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/opencode-ai/emigo/internal/provider"
	"github.com/opencode-ai/emigo/pkg/types"
)

// Sink receives fragments as they arrive.
type Sink interface {
	// Chunk is called once per fragment, in stream order.
	Chunk(text string)
	// Error is called at most once, after the last forwarded fragment.
	Error(text string)
}

// Funcs adapts plain functions to Sink. Nil fields are ignored.
type Funcs struct {
	OnChunk func(text string)
	OnError func(text string)
}

func (f Funcs) Chunk(text string) {
	if f.OnChunk != nil {
		f.OnChunk(text)
	}
}

func (f Funcs) Error(text string) {
	if f.OnError != nil {
		f.OnError(text)
	}
}

// ErrorText renders the synthetic fragment emitted when a stream fails.
func ErrorText(err error) string {
	return fmt.Sprintf("[Error during LLM communication: %v]", err)
}

// Relay drains stream into sink and returns the accumulated text. On
// failure forwarding stops, the error fragment goes to sink.Error, and the
// partial text is returned with a *types.StreamError.
func Relay(ctx context.Context, stream provider.Stream, sink Sink) (string, error) {
	defer stream.Close()

	var sb strings.Builder
	for {
		if err := ctx.Err(); err != nil {
			return fail(&sb, sink, err)
		}

		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return sb.String(), nil
		}
		if err != nil {
			return fail(&sb, sink, err)
		}
		if chunk == "" {
			continue
		}

		sb.WriteString(chunk)
		sink.Chunk(chunk)
	}
}

func fail(sb *strings.Builder, sink Sink, err error) (string, error) {
	partial := sb.String()
	sink.Error(ErrorText(err))
	return partial, &types.StreamError{Partial: partial, Err: err}
}
