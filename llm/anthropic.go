// Anthropic Provider implementation using official anthropic-sdk-go.
//
// Information Hiding:
// - API endpoint and authentication
// - Request/response format for Anthropic Messages API
// - Prompt caching of the system block

package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider implements the Provider interface for Anthropic Claude.
//
// The system block carries the catalog and workspace fragments, which repeat
// across turns until their sources change, so it is marked for the provider's
// prompt cache.
type AnthropicProvider struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
}

// NewAnthropicProvider creates a new Anthropic provider.
func NewAnthropicProvider(apiKey, model string, maxTokens uint32, temperature float32) *AnthropicProvider {
	return &AnthropicProvider{
		client:      anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:       model,
		maxTokens:   int64(maxTokens),
		temperature: float64(temperature),
	}
}

// Name returns the provider name.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Model returns the current model.
func (p *AnthropicProvider) Model() string {
	return p.model
}

func (p *AnthropicProvider) params(messages []ChatMessage) anthropic.MessageNewParams {
	conversation, system := convertToAnthropicMessages(messages)
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   p.maxTokens,
		Messages:    conversation,
		Temperature: anthropic.Float(p.temperature),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{
			Text:         system,
			CacheControl: anthropic.NewCacheControlEphemeralParam(),
		}}
	}
	return params
}

// Chat sends a chat completion request.
func (p *AnthropicProvider) Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error) {
	message, err := p.client.Messages.New(ctx, p.params(messages))
	if err != nil {
		return LLMResponse{}, p.wrap("chat", err)
	}

	var content strings.Builder
	for _, block := range message.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			content.WriteString(text.Text)
		}
	}
	if content.Len() == 0 {
		return LLMResponse{}, &ProviderError{Provider: p.Name(), Op: "chat", Kind: ErrEmptyResponse,
			Err: errors.New("no text blocks, stop reason " + string(message.StopReason))}
	}

	usage := anthropicUsage(message.Usage.InputTokens, message.Usage.CacheReadInputTokens, message.Usage.OutputTokens)
	return LLMResponse{Content: content.String(), Usage: usage}, nil
}

// StreamChat streams a chat completion.
func (p *AnthropicProvider) StreamChat(ctx context.Context, messages []ChatMessage, chunks chan<- string) (*TokenUsage, error) {
	stream := p.client.Messages.NewStreaming(ctx, p.params(messages))
	defer stream.Close()

	var input, cached, output int64
	for stream.Next() {
		switch event := stream.Current().AsAny().(type) {
		case anthropic.MessageStartEvent:
			input = event.Message.Usage.InputTokens
			cached = event.Message.Usage.CacheReadInputTokens
		case anthropic.ContentBlockDeltaEvent:
			delta, ok := event.Delta.AsAny().(anthropic.TextDelta)
			if !ok || delta.Text == "" {
				continue
			}
			select {
			case chunks <- delta.Text:
			case <-ctx.Done():
				return anthropicUsage(input, cached, output), ctx.Err()
			}
		case anthropic.MessageDeltaEvent:
			output = event.Usage.OutputTokens
		}
	}

	usage := anthropicUsage(input, cached, output)
	if err := stream.Err(); err != nil {
		return usage, p.wrap("stream", err)
	}
	return usage, nil
}

func (p *AnthropicProvider) wrap(op string, err error) error {
	perr := &ProviderError{Provider: p.Name(), Op: op, Err: err}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		perr.Kind = classify(apiErr.StatusCode, apiErr.Error())
	}
	return perr
}

// anthropicUsage normalizes Anthropic usage, where input tokens exclude the
// cache reads.
func anthropicUsage(input, cached, output int64) *TokenUsage {
	if input == 0 && cached == 0 && output == 0 {
		return nil
	}
	prompt := uint32(input + cached)
	return &TokenUsage{
		PromptTokens:     prompt,
		CompletionTokens: uint32(output),
		TotalTokens:      prompt + uint32(output),
		CachedTokens:     uint32(cached),
	}
}

// convertToAnthropicMessages converts our ChatMessage to Anthropic format.
// System messages are joined and returned separately.
func convertToAnthropicMessages(messages []ChatMessage) ([]anthropic.MessageParam, string) {
	rest, system := splitSystem(messages)
	out := make([]anthropic.MessageParam, 0, len(rest))
	for _, msg := range rest {
		block := anthropic.NewTextBlock(msg.Content)
		switch msg.Role {
		case RoleUser:
			out = append(out, anthropic.NewUserMessage(block))
		case RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(block))
		}
	}
	return out, system
}

// Verify AnthropicProvider implements Provider
var _ Provider = (*AnthropicProvider)(nil)
