// Package provider provides streaming chat-completion clients for emigo
// sessions.
//
// Every backend is an Eino chat model wrapped in a Client whose Stream
// returns plain text deltas:
//
//   - openai: any OpenAI-compatible chat-completions endpoint (default)
//   - anthropic (alias claude): the Anthropic messages API
//   - ark: Volcengine ARK endpoints
//
// The backend is chosen by Config.Provider or by a "provider/" prefix on
// the model string:
//
//	reg := provider.NewRegistry()
//	client, err := reg.New(ctx, provider.Config{
//		Model:   "anthropic/claude-sonnet-4-20250514",
//		APIKey:  "sk-...",
//		BaseURL: "https://api.anthropic.com",
//	})
//
// Opening a stream is retried with exponential backoff (cenkalti/backoff)
// up to Config.MaxRetries times. Once fragments have been delivered a
// failure is returned to the caller as is; partial output is never
// replayed.
package provider
