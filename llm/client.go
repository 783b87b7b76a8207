// ABOUTME: Minimal provider-agnostic LLM client surface used by workflow compute phases.
// ABOUTME: Defines Message/Request/Response types plus the Client and Embedder interfaces.
package llm

import (
	"context"
)

// Role identifies who produced a message in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is a completion request.
type Request struct {
	Model       string    `json:"model,omitempty"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
}

// Usage reports token accounting for one completion.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Response is the result of a completion request.
type Response struct {
	Content string `json:"content"`
	Model   string `json:"model"`
	Usage   Usage  `json:"usage"`
}

// Client is the opaque asynchronous completion function workflows build on.
// Implementations may call any provider; the engine never sees this interface.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Embedder produces one embedding vector per input text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// Prompt builds a single-user-message request.
func Prompt(text string) Request {
	return Request{Messages: []Message{{Role: RoleUser, Content: text}}}
}

// SystemPrompt builds a request with a system preamble and one user message.
func SystemPrompt(system, user string) Request {
	return Request{Messages: []Message{
		{Role: RoleSystem, Content: system},
		{Role: RoleUser, Content: user},
	}}
}
