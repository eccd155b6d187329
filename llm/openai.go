// OpenAI Provider implementation using go-openai library.
//
// Information Hiding:
// - API endpoint and authentication
// - Request/response format for OpenAI Chat Completions API
// - Cached prompt token reporting and error classification

package llm

import (
	"context"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements the Provider interface for OpenAI and
// OpenAI-compatible endpoints.
type OpenAIProvider struct {
	name        string
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(apiKey, model string, maxTokens uint32, temperature float32) *OpenAIProvider {
	return newOpenAICompatible("openai", openai.DefaultConfig(apiKey), model, maxTokens, temperature)
}

func newOpenAICompatible(name string, config openai.ClientConfig, model string, maxTokens uint32, temperature float32) *OpenAIProvider {
	return &OpenAIProvider{
		name:        name,
		client:      openai.NewClientWithConfig(config),
		model:       model,
		maxTokens:   int(maxTokens),
		temperature: temperature,
	}
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return p.name
}

// Model returns the current model.
func (p *OpenAIProvider) Model() string {
	return p.model
}

func (p *OpenAIProvider) request(messages []ChatMessage, stream bool) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:               p.model,
		Messages:            make([]openai.ChatCompletionMessage, len(messages)),
		MaxCompletionTokens: p.maxTokens,
		Temperature:         p.temperature,
	}
	for i, msg := range messages {
		req.Messages[i] = openai.ChatCompletionMessage{Role: msg.Role, Content: msg.Content}
	}
	if stream {
		req.Stream = true
		req.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}
	return req
}

// Chat sends a chat completion request.
func (p *OpenAIProvider) Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error) {
	resp, err := p.client.CreateChatCompletion(ctx, p.request(messages, false))
	if err != nil {
		return LLMResponse{}, p.wrap("chat", err)
	}
	if len(resp.Choices) == 0 {
		return LLMResponse{}, &ProviderError{Provider: p.name, Op: "chat", Kind: ErrEmptyResponse, Err: errors.New("no choices")}
	}

	usage := openaiUsage(resp.Usage)
	return LLMResponse{Content: resp.Choices[0].Message.Content, Usage: &usage}, nil
}

// StreamChat streams a chat completion.
func (p *OpenAIProvider) StreamChat(ctx context.Context, messages []ChatMessage, chunks chan<- string) (*TokenUsage, error) {
	stream, err := p.client.CreateChatCompletionStream(ctx, p.request(messages, true))
	if err != nil {
		return nil, p.wrap("stream", err)
	}
	defer stream.Close()

	var usage *TokenUsage
	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return usage, nil
		}
		if err != nil {
			return usage, p.wrap("stream", err)
		}

		// Usage arrives on the final chunk, which has no choices.
		if response.Usage != nil {
			u := openaiUsage(*response.Usage)
			usage = &u
		}
		if len(response.Choices) == 0 || response.Choices[0].Delta.Content == "" {
			continue
		}
		select {
		case chunks <- response.Choices[0].Delta.Content:
		case <-ctx.Done():
			return usage, ctx.Err()
		}
	}
}

func (p *OpenAIProvider) wrap(op string, err error) error {
	perr := &ProviderError{Provider: p.name, Op: op, Err: err}
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		perr.Kind = classify(apiErr.HTTPStatusCode, fmt.Sprintf("%v %s", apiErr.Code, apiErr.Message))
	case errors.As(err, &reqErr):
		perr.Kind = classify(reqErr.HTTPStatusCode, reqErr.Error())
	}
	return perr
}

func openaiUsage(u openai.Usage) TokenUsage {
	usage := TokenUsage{
		PromptTokens:     uint32(u.PromptTokens),
		CompletionTokens: uint32(u.CompletionTokens),
		TotalTokens:      uint32(u.TotalTokens),
	}
	if u.PromptTokensDetails != nil {
		usage.CachedTokens = uint32(u.PromptTokensDetails.CachedTokens)
	}
	return usage
}

// Verify OpenAIProvider implements Provider
var _ Provider = (*OpenAIProvider)(nil)
