package agent

import (
	"context"
	"fmt"
)

// Role is a conversation role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversation turn sent to the model. Tool calls and
// tool results travel inside Content as text markup, so the provider
// layer only ever deals in text.
type Message struct {
	Role    Role
	Content string
}

// Request contains the parameters for one model call.
type Request struct {
	Model        string
	Messages     []Message
	Temperature  float64
	MaxTokens    int
	SystemPrompt string
}

// TokenUsage reports token consumption for one call.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
}

// Response contains the model's reply.
type Response struct {
	Text  string
	Usage *TokenUsage
}

// Provider is an interface for model API backends.
type Provider interface {
	// Call makes one model API call.
	Call(ctx context.Context, request Request) (*Response, error)

	// Provider returns the provider name.
	Provider() string
}

// NewProvider creates a provider by name.
func NewProvider(name, apiKey string) (Provider, error) {
	switch name {
	case "anthropic":
		return NewAnthropicProvider(apiKey), nil
	case "openai":
		return NewOpenAIProvider(apiKey), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", name)
	}
}
