// Gemini embedder using the official google.golang.org/genai SDK.

package embedding

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/richinex/contextloom/knowledge"
)

// GeminiEmbedder implements knowledge.Embedder with the Gemini embeddings API.
type GeminiEmbedder struct {
	client     *genai.Client
	model      string
	dimensions int32
	initErr    error // Stores client initialization error for deferred reporting
}

// NewGeminiEmbedder creates a Gemini embedder.
// If client initialization fails, the error is stored and returned on first use.
func NewGeminiEmbedder(apiKey, model string, dimensions int) *GeminiEmbedder {
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	e := &GeminiEmbedder{model: model, dimensions: int32(dimensions)}
	if err != nil {
		e.initErr = fmt.Errorf("failed to initialize Gemini client: %w", err)
		return e
	}
	e.client = client
	return e
}

// Model returns the embedding model qualified by output dimensionality.
func (e *GeminiEmbedder) Model() string {
	if e.dimensions > 0 {
		return fmt.Sprintf("%s-%d", e.model, e.dimensions)
	}
	return e.model
}

// Embed requests an embedding for text.
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.initErr != nil {
		return nil, e.initErr
	}
	if e.client == nil {
		return nil, fmt.Errorf("gemini client not initialized")
	}

	config := &genai.EmbedContentConfig{}
	if e.dimensions > 0 {
		config.OutputDimensionality = genai.Ptr(e.dimensions)
	}

	resp, err := e.client.Models.EmbedContent(ctx, e.model, genai.Text(text), config)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, fmt.Errorf("empty embedding response from Gemini")
	}
	return resp.Embeddings[0].Values, nil
}

var _ knowledge.Embedder = (*GeminiEmbedder)(nil)
