// ABOUTME: OpenAI Chat Completions client with base URL support for compatible providers.
// ABOUTME: Also provides an Embedder over the OpenAI embeddings endpoint.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	defaultChatModel      = "gpt-4o-mini"
	defaultEmbeddingModel = "text-embedding-3-small"
)

// OpenAIClient implements Client using the OpenAI Chat Completions API.
// A custom base URL enables OpenAI-compatible providers (OpenRouter,
// Cerebras, local gateways).
type OpenAIClient struct {
	client openai.Client
	model  string
}

// OpenAIOption configures an OpenAIClient or OpenAIEmbedder.
type OpenAIOption func(*openAIConfig)

type openAIConfig struct {
	baseURL string
	model   string
}

// WithBaseURL sets the base URL for API requests.
func WithBaseURL(url string) OpenAIOption {
	return func(c *openAIConfig) { c.baseURL = url }
}

// WithModel sets the default model used when a request does not name one.
func WithModel(model string) OpenAIOption {
	return func(c *openAIConfig) { c.model = model }
}

// NewOpenAIClient creates a Chat Completions client.
func NewOpenAIClient(apiKey string, opts ...OpenAIOption) *OpenAIClient {
	cfg := openAIConfig{model: defaultChatModel}
	for _, opt := range opts {
		opt(&cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	return &OpenAIClient{
		client: openai.NewClient(reqOpts...),
		model:  cfg.model,
	}
}

// Complete sends a completion request and returns the assistant's reply.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	params := openai.ChatCompletionNewParams{Model: model}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}
	params.Messages = messages

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, wrapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &ProviderError{Provider: "openai", Message: "response contained no choices"}
	}

	return &Response{
		Content: resp.Choices[0].Message.Content,
		Model:   resp.Model,
		Usage: Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
	}, nil
}

// OpenAIEmbedder implements Embedder over the OpenAI embeddings endpoint.
type OpenAIEmbedder struct {
	client openai.Client
	model  string
}

// NewOpenAIEmbedder creates an embeddings client.
func NewOpenAIEmbedder(apiKey string, opts ...OpenAIOption) *OpenAIEmbedder {
	cfg := openAIConfig{model: defaultEmbeddingModel}
	for _, opt := range opts {
		opt(&cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	return &OpenAIEmbedder{
		client: openai.NewClient(reqOpts...),
		model:  cfg.model,
	}
}

// Embed returns one vector per input text, in input order.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: e.model,
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	})
	if err != nil {
		return nil, wrapOpenAIError(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, &ProviderError{
			Provider: "openai",
			Message:  fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(resp.Data)),
		}
	}

	vectors := make([][]float64, len(texts))
	for _, item := range resp.Data {
		vectors[int(item.Index)] = item.Embedding
	}
	return vectors, nil
}

// wrapOpenAIError converts an openai-go error into a ProviderError with
// retryability derived from the HTTP status.
func wrapOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &ProviderError{
			Provider:   "openai",
			StatusCode: apiErr.StatusCode,
			Message:    fmt.Sprintf("request failed with status %d", apiErr.StatusCode),
			Retryable:  classifyStatus(apiErr.StatusCode),
			Cause:      err,
		}
	}
	return &ProviderError{
		Provider:  "openai",
		Message:   "request failed",
		Retryable: true,
		Cause:     err,
	}
}
