// Package openai implements the llm.Provider interface over any
// OpenAI-compatible completion endpoint.
package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o"

// Provider is an OpenAI-compatible chat-completion client.
type Provider struct {
	client    openai.Client
	model     string
	maxTokens int
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithModel sets the completion model.
func WithModel(model string) ProviderOption {
	return func(p *Provider) { p.model = model }
}

// WithMaxTokens bounds the completion length.
func WithMaxTokens(n int) ProviderOption {
	return func(p *Provider) { p.maxTokens = n }
}

// NewProvider creates a provider for the given key and base URL.
// baseURL may be empty for the standard endpoint, or point at Azure or
// a local OpenAI-compatible server.
func NewProvider(apiKey, baseURL string, opts ...ProviderOption) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	clientOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(baseURL))
	}

	p := &Provider{
		client: openai.NewClient(clientOpts...),
		model:  DefaultModel,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Complete sends one system/user exchange and returns the response
// text.
func (p *Provider) Complete(ctx context.Context, system, user string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	}
	if p.maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(p.maxTokens))
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("completion: empty response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Model returns the configured model name.
func (p *Provider) Model() string { return p.model }
