package collab

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"
)

// LangChainClient completes prompts through any langchaingo model.
type LangChainClient struct {
	model llms.Model
}

func NewLangChainClient(model llms.Model) *LangChainClient {
	return &LangChainClient{model: model}
}

func (slf *LangChainClient) Complete(ctx context.Context, prompt string, schema map[string]any) (string, error) {
	options := []llms.CallOption{llms.WithTemperature(0)}
	if schema != nil {
		options = append(options, llms.WithJSONMode())
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}
	resp, err := slf.model.GenerateContent(ctx, messages, options...)
	if err != nil {
		return "", fmt.Errorf("LLM call failed: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("LLM returned empty response (no choices)")
	}

	var b strings.Builder
	for _, choice := range resp.Choices {
		b.WriteString(choice.Content)
	}
	return b.String(), nil
}

// NewLangChainModel builds the hosted model for provider.
func NewLangChainModel(ctx context.Context, provider, model, apiKey string) (llms.Model, error) {
	switch provider {
	case "openai":
		opts := []openai.Option{openai.WithToken(apiKey)}
		if model != "" {
			opts = append(opts, openai.WithModel(model))
		}
		return openai.New(opts...)
	case "anthropic":
		opts := []anthropic.Option{anthropic.WithToken(apiKey)}
		if model != "" {
			opts = append(opts, anthropic.WithModel(model))
		}
		return anthropic.New(opts...)
	case "googleai":
		opts := []googleai.Option{googleai.WithAPIKey(apiKey)}
		if model != "" {
			opts = append(opts, googleai.WithDefaultModel(model))
		}
		return googleai.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", provider)
	}
}
