// Package llm provides LLM provider abstractions.
//
// The provider is the consumer of an assembled context: it receives the
// messages the assembler produced and returns the completion.
//
// Information Hiding:
// - API client initialization and authentication
// - Request/response format conversion, including where the system prompt goes
// - Usage reporting and error categories, normalized to TokenUsage and ProviderError

package llm

import (
	"context"
)

// Provider is a chat completion backend.
type Provider interface {
	// Name returns the provider name; it is part of the history key.
	Name() string

	// Model returns the model in use; it is part of the history key.
	Model() string

	// Chat sends the messages and returns the whole completion.
	Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error)

	// StreamChat sends the messages and writes completion text to chunks as
	// it arrives. It does not close chunks. Usage may be nil when the
	// provider reports none.
	StreamChat(ctx context.Context, messages []ChatMessage, chunks chan<- string) (*TokenUsage, error)
}
