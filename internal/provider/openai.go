package provider

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
)

// NewOpenAIClient creates a client for an OpenAI-compatible endpoint. This
// is the default backend: any server speaking the chat-completions API
// works by pointing BaseURL at it.
func NewOpenAIClient(ctx context.Context, cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: api key not set")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai: model not set")
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = DefaultMaxTokens
	}

	chatCfg := &openai.ChatModelConfig{
		APIKey:              cfg.APIKey,
		Model:               cfg.Model,
		MaxCompletionTokens: &maxTokens, // Use MaxCompletionTokens for GPT-5 compatibility
	}
	if cfg.BaseURL != "" {
		chatCfg.BaseURL = cfg.BaseURL
	}

	chatModel, err := openai.NewChatModel(ctx, chatCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenAI model: %w", err)
	}

	return &einoClient{
		providerID: ProviderOpenAI,
		model:      cfg.Model,
		chat:       chatModel,
		opts:       []model.Option{openai.WithMaxCompletionTokens(maxTokens)},
		maxRetries: cfg.MaxRetries,
		interval:   cfg.RetryInterval,
	}, nil
}
