// OpenAI embedder using the go-openai library.

package embedding

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/richinex/contextloom/knowledge"
)

// OpenAIEmbedder implements knowledge.Embedder with the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
}

// NewOpenAIEmbedder creates an OpenAI embedder. dimensions is forwarded only
// to models that accept a reduced output size.
func NewOpenAIEmbedder(apiKey, model string, dimensions int) *OpenAIEmbedder {
	return newOpenAIEmbedder(openai.NewClient(apiKey), model, dimensions)
}

// NewOpenAIEmbedderWithConfig creates an OpenAI embedder against a custom
// endpoint (proxies, OpenAI-compatible servers).
func NewOpenAIEmbedderWithConfig(config openai.ClientConfig, model string, dimensions int) *OpenAIEmbedder {
	return newOpenAIEmbedder(openai.NewClientWithConfig(config), model, dimensions)
}

func newOpenAIEmbedder(client *openai.Client, model string, dimensions int) *OpenAIEmbedder {
	return &OpenAIEmbedder{client: client, model: model, dimensions: dimensions}
}

// Model returns the embedding model, qualified by dimensions when reduced.
func (e *OpenAIEmbedder) Model() string {
	if e.supportsDimensions() {
		return fmt.Sprintf("%s-%d", e.model, e.dimensions)
	}
	return e.model
}

func (e *OpenAIEmbedder) supportsDimensions() bool {
	return e.dimensions > 0 && strings.HasPrefix(e.model, "text-embedding-3")
}

// Embed requests an embedding for text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	req := openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	}
	if e.supportsDimensions() {
		req.Dimensions = e.dimensions
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("empty embedding response from OpenAI")
	}
	return resp.Data[0].Embedding, nil
}

var _ knowledge.Embedder = (*OpenAIEmbedder)(nil)
