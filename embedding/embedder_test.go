package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/richinex/contextloom/knowledge"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		input   string
		want    Kind
		wantErr bool
	}{
		{"", KindHash, false},
		{"hash", KindHash, false},
		{"OpenAI", KindOpenAI, false},
		{"google", KindGemini, false},
		{"word2vec", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseKind(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseKind(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseKind(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestNewRequiresAPIKeyForRemoteKinds(t *testing.T) {
	if _, err := New(KindOpenAI, "", "", 0); err == nil {
		t.Error("expected error without API key")
	}
	e, err := New(KindHash, "", "", 64)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if e.Model() != "xxhash-features-64" {
		t.Errorf("unexpected model %q", e.Model())
	}
}

func TestHashEmbedderDeterministicAndNormalized(t *testing.T) {
	e := NewHashEmbedder(128)
	ctx := context.Background()

	a, err := e.Embed(ctx, "Create a timer trigger")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	b, _ := e.Embed(ctx, "create a TIMER trigger!")
	if len(a) != 128 {
		t.Fatalf("expected 128 dims, got %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("expected identical vectors for case/punctuation variants at %d", i)
		}
	}

	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1) > 1e-5 {
		t.Errorf("expected unit norm, got %v", norm)
	}

	empty, _ := e.Embed(ctx, "   ?!")
	if _, ok := knowledge.Cosine(empty, a); ok {
		t.Error("text without words should have zero magnitude")
	}
}

func TestHashEmbedderRanksOverlap(t *testing.T) {
	e := NewHashEmbedder(512)
	ctx := context.Background()

	query, _ := e.Embed(ctx, "timer trigger schedule")
	related, _ := e.Embed(ctx, "the timer trigger runs on a schedule")
	unrelated, _ := e.Embed(ctx, "send an email to the billing team")

	rs, _ := knowledge.Cosine(query, related)
	us, _ := knowledge.Cosine(query, unrelated)
	if rs <= us {
		t.Errorf("expected related text to score higher: related=%v unrelated=%v", rs, us)
	}
}

func TestHashEmbedderHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewHashEmbedder(8).Embed(ctx, "x"); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestRemoteEmbedderModels(t *testing.T) {
	o := NewOpenAIEmbedder("sk-test", ModelOpenAITextEmbedding3Small, 256)
	if o.Model() != "text-embedding-3-small-256" {
		t.Errorf("unexpected OpenAI model %q", o.Model())
	}
	legacy := NewOpenAIEmbedder("sk-test", "text-embedding-ada-002", 256)
	if legacy.Model() != "text-embedding-ada-002" {
		t.Errorf("dimensions should not qualify legacy models, got %q", legacy.Model())
	}
	g := NewGeminiEmbedder("key", ModelGeminiTextEmbedding004, 256)
	if g.Model() != "text-embedding-004-256" {
		t.Errorf("unexpected Gemini model %q", g.Model())
	}
}
