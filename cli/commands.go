package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/richinex/contextloom/assembler"
	"github.com/richinex/contextloom/embedding"
	"github.com/richinex/contextloom/history"
	"github.com/richinex/contextloom/intent"
	"github.com/richinex/contextloom/knowledge"
	"github.com/richinex/contextloom/pipeline"
)

// assembleOutput is the JSON shape of a dry-run assembly.
type assembleOutput struct {
	Key      string              `json:"key"`
	Intent   intent.Decision     `json:"intent"`
	Payload  *assembler.Payload  `json:"payload"`
	Messages []map[string]string `json:"messages,omitempty"`
}

// Assemble classifies utterance and prints the context that would be sent,
// without calling a provider or recording the turn.
// A positive k overrides the configured retrieval depth.
func Assemble(ctx context.Context, utterance string, k int, asJSON, withMessages bool, opts Options) error {
	env, err := Open(ctx, opts, false)
	if err != nil {
		return err
	}
	defer env.Close(context.Background())

	turn, err := env.Pipeline.PrepareWith(ctx, env.Key, utterance, pipeline.TurnOptions{Budget: -1, K: k})
	if err != nil {
		return err
	}

	if !asJSON {
		printPayload(os.Stdout, turn)
		if withMessages {
			for _, m := range turn.Payload.Messages() {
				fmt.Printf("--- %s ---\n%s\n\n", m.Role, m.Content)
			}
		}
		return nil
	}

	out := assembleOutput{Key: env.Key.String(), Intent: turn.Decision, Payload: turn.Payload}
	if withMessages {
		for _, m := range turn.Payload.Messages() {
			out.Messages = append(out.Messages, map[string]string{"role": m.Role, "content": m.Content})
		}
	}
	return writeJSON(os.Stdout, out)
}

// Index embeds the knowledge feed into the embedding cache and reports how
// many vectors were reused.
func Index(ctx context.Context, feedPath string, opts Options) error {
	opts.skipKnowledge = true
	env, err := Open(ctx, opts, false)
	if err != nil {
		return err
	}
	defer env.Close(context.Background())

	if feedPath == "" {
		feedPath = env.Settings.Paths.Knowledge
	}
	if feedPath == "" {
		return fmt.Errorf("no knowledge feed given (use --feed or CONTEXTLOOM_KNOWLEDGE)")
	}
	if env.Embedder == nil {
		return fmt.Errorf("%w: embedder %q is not configured", knowledge.ErrEmbeddingUnavailable,
			env.Settings.Knowledge.EmbeddingProvider)
	}

	items, err := knowledge.LoadFeed(feedPath)
	if err != nil {
		return err
	}
	stats, err := knowledge.Attach(ctx, items, env.Embedder, env.Storage)
	fmt.Printf("Indexed %d items with %s: %d cached, %d embedded, %d failed\n",
		len(items), env.Embedder.Model(), stats.Cached, stats.Embedded, stats.Failed)
	if err != nil {
		return fmt.Errorf("some items were not embedded: %w", err)
	}
	return nil
}

// Search embeds query and prints the top k knowledge items.
func Search(ctx context.Context, query string, k int, kinds []string, opts Options) error {
	env, err := Open(ctx, opts, false)
	if err != nil {
		return err
	}
	defer env.Close(context.Background())

	var filter knowledge.Filter
	for _, s := range kinds {
		kind, err := knowledge.ParseKind(s)
		if err != nil {
			return err
		}
		filter.Kinds = append(filter.Kinds, kind)
	}

	result, err := knowledge.NewRetriever(env.Embedder, env.Index).Retrieve(ctx, query, k, filter)
	if err != nil {
		return err
	}
	if len(result) == 0 {
		fmt.Println("No matching knowledge items.")
		return nil
	}
	for i, s := range result {
		fmt.Printf("%d. %s (%s) %.3f\n   %s\n", i+1, s.Item.ID, s.Item.Kind, s.Score,
			truncateString(s.Item.Content, maxHistoryLine))
	}
	return nil
}

// HistoryList prints every stored history key.
func HistoryList(ctx context.Context, opts Options) error {
	env, err := Open(ctx, opts, false)
	if err != nil {
		return err
	}
	defer env.Close(context.Background())

	keys, err := env.History.Keys(ctx)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		fmt.Println("No stored histories.")
		return nil
	}
	for _, key := range keys {
		fmt.Printf("%s\t%d messages\n", key, env.History.Get(ctx, key).Len())
	}
	return nil
}

// HistoryShow prints the bounded view of a history. An empty key selects the
// configured provider, model and credential.
func HistoryShow(ctx context.Context, key string, asJSON bool, opts Options) error {
	env, err := Open(ctx, opts, false)
	if err != nil {
		return err
	}
	defer env.Close(context.Background())

	k, err := env.resolveKey(key)
	if err != nil {
		return err
	}
	view := env.Pipeline.History(ctx, k)
	if asJSON {
		return writeJSON(os.Stdout, view)
	}
	fmt.Printf("%s\n\n", k)
	printHistory(os.Stdout, view)
	return nil
}

// HistoryClear deletes a history.
func HistoryClear(ctx context.Context, key string, opts Options) error {
	env, err := Open(ctx, opts, false)
	if err != nil {
		return err
	}
	defer env.Close(context.Background())

	k, err := env.resolveKey(key)
	if err != nil {
		return err
	}
	if err := env.Pipeline.ClearHistory(ctx, k); err != nil {
		return err
	}
	fmt.Printf("Cleared %s\n", k)
	return nil
}

// EmbeddingProviders lists the supported embedding providers.
func EmbeddingProviders() []string {
	return []string{embedding.KindHash.String(), embedding.KindOpenAI.String(), embedding.KindGemini.String()}
}

func (e *Environment) resolveKey(key string) (history.Key, error) {
	if key == "" {
		return e.Key, nil
	}
	return history.ParseKey(key)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
