// Package provider provides streaming chat-completion clients using the
// Eino framework.
package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/opencode-ai/emigo/internal/logging"
	"github.com/opencode-ai/emigo/pkg/types"
)

const (
	// DefaultMaxTokens is the completion limit used when none is configured.
	DefaultMaxTokens = 4096
	// RetryInitialInterval is the initial interval for exponential backoff.
	RetryInitialInterval = time.Second
	// RetryMaxInterval is the maximum interval for exponential backoff.
	RetryMaxInterval = 30 * time.Second
	// RetryMaxElapsedTime is the maximum total time for retries.
	RetryMaxElapsedTime = 2 * time.Minute
)

// Client is a streaming chat-completion client bound to one model.
type Client interface {
	// Model returns the model identifier requests are sent to.
	Model() string

	// Stream sends messages and returns the incremental response.
	Stream(ctx context.Context, messages []types.Message) (Stream, error)
}

// Stream yields text fragments of one response. Recv returns io.EOF after
// the last fragment.
type Stream interface {
	Recv() (string, error)
	Close()
}

// Config configures a Client.
type Config struct {
	// Provider selects the backend ("openai", "anthropic", "ark"). When
	// empty it is taken from a "provider/model" prefix on Model.
	Provider  string
	Model     string
	BaseURL   string
	APIKey    string
	MaxTokens int

	// MaxRetries bounds retries of a failed stream open. Fragments are
	// never retried.
	MaxRetries    int
	RetryInterval time.Duration
}

// einoClient adapts an Eino chat model to Client.
type einoClient struct {
	providerID string
	model      string
	chat       model.BaseChatModel
	opts       []model.Option
	maxRetries int
	interval   time.Duration
}

func (c *einoClient) Model() string { return c.model }

// Stream opens a streaming completion, retrying the open with exponential
// backoff.
func (c *einoClient) Stream(ctx context.Context, messages []types.Message) (Stream, error) {
	in := ConvertToEinoMessages(messages)
	retry := newRetryBackoff(ctx, c.maxRetries, c.interval)

	for attempt := 1; ; attempt++ {
		reader, err := c.chat.Stream(ctx, in, c.opts...)
		if err == nil {
			return &einoStream{reader: reader}, nil
		}

		next := retry.NextBackOff()
		if next == backoff.Stop || ctx.Err() != nil {
			return nil, fmt.Errorf("%s: open stream: %w", c.providerID, err)
		}

		logging.Warn().
			Err(err).
			Str("provider", c.providerID).
			Str("model", c.model).
			Int("attempt", attempt).
			Dur("retryIn", next).
			Msg("stream open failed, retrying")

		timer := time.NewTimer(next)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%s: open stream: %w", c.providerID, ctx.Err())
		case <-timer.C:
		}
	}
}

// newRetryBackoff creates an exponential backoff with jitter bounded by
// maxRetries and ctx.
func newRetryBackoff(ctx context.Context, maxRetries int, initial time.Duration) backoff.BackOff {
	if initial <= 0 {
		initial = RetryInitialInterval
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = RetryMaxInterval
	b.MaxElapsedTime = RetryMaxElapsedTime
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	b.Reset()
	if maxRetries < 0 {
		maxRetries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxRetries)), ctx)
}

// einoStream adapts an Eino stream reader to Stream.
type einoStream struct {
	reader *schema.StreamReader[*schema.Message]
}

// Recv returns the next non-empty text delta.
func (s *einoStream) Recv() (string, error) {
	for {
		msg, err := s.reader.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", io.EOF
			}
			return "", err
		}
		if msg != nil && msg.Content != "" {
			return msg.Content, nil
		}
	}
}

func (s *einoStream) Close() {
	s.reader.Close()
}

// ConvertToEinoMessages converts history messages to Eino format. Messages
// with structured parts become multi-part content.
func ConvertToEinoMessages(messages []types.Message) []*schema.Message {
	result := make([]*schema.Message, 0, len(messages))

	for _, msg := range messages {
		role := schema.Assistant
		switch msg.Role {
		case types.RoleUser:
			role = schema.User
		case types.RoleSystem:
			role = schema.System
		}

		einoMsg := &schema.Message{Role: role}
		if len(msg.Parts) == 0 {
			einoMsg.Content = msg.Content
		} else {
			for _, part := range msg.Parts {
				switch part.Type {
				case types.PartText:
					einoMsg.MultiContent = append(einoMsg.MultiContent, schema.ChatMessagePart{
						Type: schema.ChatMessagePartTypeText,
						Text: part.Text,
					})
				case types.PartImage:
					einoMsg.MultiContent = append(einoMsg.MultiContent, schema.ChatMessagePart{
						Type: schema.ChatMessagePartTypeImageURL,
						ImageURL: &schema.ChatMessageImageURL{
							URL:      part.ImageURL,
							MIMEType: part.MimeType,
						},
					})
				}
			}
		}

		result = append(result, einoMsg)
	}

	return result
}
