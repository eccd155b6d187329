// Package embedding provides text-to-vector collaborators for the knowledge
// index.
//
// Each embedder hides:
// - API client initialization and authentication
// - Request/response format conversion
// - Output dimensionality negotiation
package embedding

import (
	"fmt"
	"strings"

	"github.com/richinex/contextloom/knowledge"
)

// Kind selects an embedder implementation.
type Kind int

const (
	// KindHash is the deterministic offline feature-hashing embedder.
	KindHash Kind = iota
	// KindOpenAI uses the OpenAI embeddings endpoint.
	KindOpenAI
	// KindGemini uses the Gemini embeddings endpoint.
	KindGemini
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindHash:
		return "hash"
	case KindOpenAI:
		return "openai"
	case KindGemini:
		return "gemini"
	default:
		return "unknown"
	}
}

// EnvVar returns the environment variable holding the API key, if any.
func (k Kind) EnvVar() string {
	switch k {
	case KindOpenAI:
		return "OPENAI_API_KEY"
	case KindGemini:
		return "GEMINI_API_KEY"
	default:
		return ""
	}
}

// DefaultModel returns the model used when none is configured.
func (k Kind) DefaultModel() string {
	switch k {
	case KindHash:
		return "xxhash-features"
	case KindOpenAI:
		return ModelOpenAITextEmbedding3Small
	case KindGemini:
		return ModelGeminiTextEmbedding004
	default:
		return ""
	}
}

// ParseKind parses an embedder kind (case-insensitive).
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "hash", "local", "offline":
		return KindHash, nil
	case "openai", "gpt":
		return KindOpenAI, nil
	case "gemini", "google":
		return KindGemini, nil
	default:
		return 0, fmt.Errorf("unknown embedding provider: %s", s)
	}
}

// Embedding model identifiers.
const (
	ModelOpenAITextEmbedding3Small = "text-embedding-3-small"
	ModelOpenAITextEmbedding3Large = "text-embedding-3-large"
	ModelGeminiTextEmbedding004    = "text-embedding-004"
)

// DefaultDimensions is the vector size used when none is configured.
const DefaultDimensions = 256

// New creates an embedder. model and dimensions fall back to the kind's
// defaults when empty or zero. apiKey is ignored by KindHash.
func New(kind Kind, apiKey, model string, dimensions int) (knowledge.Embedder, error) {
	if model == "" {
		model = kind.DefaultModel()
	}
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}

	switch kind {
	case KindHash:
		return NewHashEmbedder(dimensions), nil
	case KindOpenAI, KindGemini:
		if apiKey == "" {
			return nil, fmt.Errorf("%s embeddings: %s not set", kind, kind.EnvVar())
		}
		if kind == KindOpenAI {
			return NewOpenAIEmbedder(apiKey, model, dimensions), nil
		}
		return NewGeminiEmbedder(apiKey, model, dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding kind: %v", kind)
	}
}
