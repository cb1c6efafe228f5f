package provider

import (
	"context"
	"errors"
	"log"

	"github.com/reflow-agent/reflow/config"
	openai_provider "github.com/reflow-agent/reflow/internal/provider/openai"
)

// Client represents different LLM providers
type Client string

const (
	OpenAI    Client = "openai"
	Anthropic Client = "anthropic"
)

// Completion is one text-generation result together with its token usage.
type Completion struct {
	Text             string
	PromptTokens     int64
	CompletionTokens int64
}

// Provider is the interface that all LLM implementations must satisfy
type Provider interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (Completion, error)
}

// NewProvider creates a new LLM client based on the provided configuration
func NewProvider(cfg config.LLMConfig, logger *log.Logger) (Provider, error) {
	switch Client(cfg.Provider) {
	case OpenAI:
		if cfg.APIKey == "" {
			return nil, errors.New("llm.api_key not set")
		}
		return &openaiAdapter{inner: openai_provider.NewClient(
			cfg.APIKey,
			cfg.BaseURL,
			cfg.Model,
			cfg.Temperature,
			cfg.MaxTokens,
			cfg.Timeout,
			logger,
		)}, nil
	case Anthropic:
		return nil, errors.New("anthropic client not implemented yet")
	default:
		return nil, errors.New("unsupported LLM provider")
	}
}

type openaiAdapter struct {
	inner *openai_provider.Client
}

func (a *openaiAdapter) Generate(ctx context.Context, systemPrompt, userPrompt string) (Completion, error) {
	text, usage, err := a.inner.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return Completion{}, err
	}
	return Completion{
		Text:             text,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
	}, nil
}
