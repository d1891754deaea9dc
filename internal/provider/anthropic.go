package provider

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/claude"
)

// NewAnthropicClient creates a client for the Anthropic messages API.
func NewAnthropicClient(ctx context.Context, cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: api key not set")
	}

	modelID := cfg.Model
	if modelID == "" {
		modelID = "claude-sonnet-4-20250514"
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = DefaultMaxTokens
	}

	chatCfg := &claude.Config{
		APIKey:    cfg.APIKey,
		Model:     modelID,
		MaxTokens: maxTokens,
	}
	if cfg.BaseURL != "" {
		baseURL := cfg.BaseURL
		chatCfg.BaseURL = &baseURL
	}

	chatModel, err := claude.NewChatModel(ctx, chatCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Anthropic model: %w", err)
	}

	return &einoClient{
		providerID: ProviderAnthropic,
		model:      modelID,
		chat:       chatModel,
		maxRetries: cfg.MaxRetries,
		interval:   cfg.RetryInterval,
	}, nil
}
