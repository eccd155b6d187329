// Package llm provides shared data models for LLM providers.
package llm

import (
	"errors"
	"fmt"
	"strings"
)

// Role names accepted by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one message of an assembled prompt.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SystemMessage creates a system message.
func SystemMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleSystem, Content: content}
}

// UserMessage creates a user message.
func UserMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleUser, Content: content}
}

// AssistantMessage creates an assistant message.
func AssistantMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleAssistant, Content: content}
}

// LLMResponse represents a response from an LLM provider.
type LLMResponse struct {
	Content string
	Usage   *TokenUsage
}

// TokenUsage is the normalized usage record of one provider call.
// CachedTokens is the part of PromptTokens served from the provider's
// prompt cache, zero when the provider does not report it.
type TokenUsage struct {
	PromptTokens     uint32 `json:"prompt_tokens"`
	CompletionTokens uint32 `json:"completion_tokens"`
	TotalTokens      uint32 `json:"total_tokens"`
	CachedTokens     uint32 `json:"cached_tokens,omitempty"`
}

// Add accumulates other into u. A nil other is ignored.
func (u *TokenUsage) Add(other *TokenUsage) {
	if other == nil {
		return
	}
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
	u.CachedTokens += other.CachedTokens
}

func (u *TokenUsage) String() string {
	if u == nil {
		return "no usage"
	}
	s := fmt.Sprintf("%d prompt / %d completion", u.PromptTokens, u.CompletionTokens)
	if u.CachedTokens > 0 {
		s += fmt.Sprintf(" (%d cached)", u.CachedTokens)
	}
	return s
}

// Provider error categories. Errors returned by Chat and StreamChat wrap one
// of these when the provider's response lets us tell.
var (
	ErrContextTooLong = errors.New("prompt exceeds the model context window")
	ErrRateLimited    = errors.New("rate limited")
	ErrEmptyResponse  = errors.New("empty response")
)

// ProviderError is a failed provider call.
type ProviderError struct {
	Provider string
	Op       string
	Kind     error // one of the Err* categories, or nil
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Kind != nil {
		return fmt.Sprintf("%s %s failed (%v): %v", e.Provider, e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() []error {
	if e.Kind == nil {
		return []error{e.Err}
	}
	return []error{e.Kind, e.Err}
}

// classify maps an HTTP status and error message to a category.
func classify(status int, message string) error {
	msg := strings.ToLower(message)
	switch {
	case status == 429:
		return ErrRateLimited
	case strings.Contains(msg, "context_length_exceeded"),
		strings.Contains(msg, "context length"),
		strings.Contains(msg, "prompt is too long"),
		strings.Contains(msg, "exceeds the maximum number of tokens"):
		return ErrContextTooLong
	}
	return nil
}

// splitSystem separates system messages from the conversation. Multiple
// system messages are joined in order.
func splitSystem(messages []ChatMessage) ([]ChatMessage, string) {
	var rest []ChatMessage
	var system []string
	for _, msg := range messages {
		if msg.Role != RoleSystem {
			rest = append(rest, msg)
			continue
		}
		if msg.Content != "" {
			system = append(system, msg.Content)
		}
	}
	return rest, strings.Join(system, "\n\n")
}
