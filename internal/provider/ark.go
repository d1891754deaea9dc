package provider

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// NewArkClient creates a client for a Volcengine ARK endpoint. Model is
// the endpoint ID on the ARK platform.
func NewArkClient(ctx context.Context, cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("ark: api key not set")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("ark: endpoint id not set")
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = DefaultMaxTokens
	}

	chatCfg := &ark.ChatModelConfig{
		APIKey:    cfg.APIKey,
		Model:     cfg.Model,
		MaxTokens: &maxTokens,
	}
	if cfg.BaseURL != "" {
		chatCfg.BaseURL = cfg.BaseURL
	}

	chatModel, err := ark.NewChatModel(ctx, chatCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create ARK model: %w", err)
	}

	return &einoClient{
		providerID: ProviderArk,
		model:      cfg.Model,
		chat:       chatModel,
		opts:       []model.Option{model.WithMaxTokens(maxTokens)},
		maxRetries: cfg.MaxRetries,
		interval:   cfg.RetryInterval,
	}, nil
}
