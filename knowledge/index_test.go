package knowledge

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
		ok   bool
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1, true},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0, true},
		{"opposite", []float32{1, 0}, []float32{-2, 0}, -1, true},
		{"zero magnitude", []float32{0, 0}, []float32{1, 1}, 0, false},
		{"dimension mismatch", []float32{1, 0}, []float32{1, 0, 0}, 0, false},
		{"empty", nil, nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Cosine(tt.a, tt.b)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Cosine = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSearchOrderingAndTies(t *testing.T) {
	index := NewLinearIndex()
	err := index.Index([]Item{
		{ID: "low", Kind: KindGuide, Embedding: []float32{1, 3}},
		{ID: "tie-a", Kind: KindGuide, Embedding: []float32{1, 1}},
		{ID: "zero", Kind: KindGuide, Embedding: []float32{0, 0}},
		{ID: "tie-b", Kind: KindGuide, Embedding: []float32{2, 2}},
		{ID: "best", Kind: KindGuide, Embedding: []float32{1, 0}},
	})
	if err != nil {
		t.Fatalf("Index failed: %v", err)
	}

	result := index.Search([]float32{1, 0.2}, 10, Filter{})
	want := []string{"best", "tie-a", "tie-b", "low"}
	got := result.IDs()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	for i := 1; i < len(result); i++ {
		if result[i].Score > result[i-1].Score {
			t.Errorf("scores increase at %d: %v > %v", i, result[i].Score, result[i-1].Score)
		}
	}

	query := []float32{1, 0.2}
	top := index.Search(query, 2, Filter{})
	if len(top) != 2 {
		t.Fatalf("expected 2 results for k=2, got %d", len(top))
	}
	floor := top[len(top)-1].Score
	returned := map[string]bool{}
	for _, id := range top.IDs() {
		returned[id] = true
	}
	for _, item := range index.Items() {
		if returned[item.ID] {
			continue
		}
		if score, ok := Cosine(query, item.Embedding); ok && score > floor {
			t.Errorf("excluded %s scores %v above the last returned %v", item.ID, score, floor)
		}
	}
	if n := len(index.Search([]float32{1, 0}, 0, Filter{})); n != 0 {
		t.Errorf("expected no results for k=0, got %d", n)
	}
}

func TestReindexReplacesInPlace(t *testing.T) {
	index := NewLinearIndex()
	index.Index([]Item{
		{ID: "a", Embedding: []float32{1, 0}},
		{ID: "b", Embedding: []float32{1, 0}},
	})
	index.Index([]Item{{ID: "a", Content: "new", Embedding: []float32{1, 0}}})

	if index.Len() != 2 {
		t.Fatalf("expected 2 items, got %d", index.Len())
	}
	item, ok := index.Get("a")
	if !ok || item.Content != "new" {
		t.Errorf("expected replaced content, got %+v", item)
	}
	// Insertion order still wins ties.
	if ids := index.Search([]float32{1, 0}, 2, Filter{}).IDs(); ids[0] != "a" {
		t.Errorf("expected a first, got %v", ids)
	}

	if err := index.Index([]Item{{ID: ""}}); err == nil {
		t.Error("expected error for empty id")
	}
}

func TestSearchFilter(t *testing.T) {
	index := NewLinearIndex()
	index.Index([]Item{
		{ID: "n1", Kind: KindNodeType, Tags: []string{"trigger"}, Embedding: []float32{1}},
		{ID: "e1", Kind: KindExample, Tags: []string{"email"}, Embedding: []float32{1}},
		{ID: "p1", Kind: KindPattern, Tags: []string{"trigger", "schedule"}, Embedding: []float32{1}},
	})

	byKind := index.Search([]float32{1}, 10, Filter{Kinds: []Kind{KindExample, KindPattern}}).IDs()
	if fmt.Sprint(byKind) != "[e1 p1]" {
		t.Errorf("kind filter: got %v", byKind)
	}
	byTag := index.Search([]float32{1}, 10, Filter{Tags: []string{"schedule", "email"}}).IDs()
	if fmt.Sprint(byTag) != "[e1 p1]" {
		t.Errorf("tag filter: got %v", byTag)
	}
	both := index.Search([]float32{1}, 10, Filter{Kinds: []Kind{KindNodeType}, Tags: []string{"trigger"}}).IDs()
	if fmt.Sprint(both) != "[n1]" {
		t.Errorf("combined filter: got %v", both)
	}
}

func TestTimerTriggerRetrievalScenario(t *testing.T) {
	embedder := newKeywordEmbedder("create", "timer", "trigger", "schedule", "email", "database", "slack", "http")
	items := []Item{
		{ID: "timer-node", Kind: KindNodeType, Content: "timer trigger node runs a flow on a schedule", Tags: []string{"trigger"}},
		{ID: "cron-example", Kind: KindExample, Content: "example: timer trigger every morning", Tags: []string{"trigger"}},
		{ID: "trigger-pattern", Kind: KindPattern, Content: "pattern: start every flow with a trigger", Tags: []string{"trigger"}},
	}
	unrelated := []string{"email", "database", "slack", "http"}
	for i := 0; i < 50; i++ {
		content := fmt.Sprintf("send %s message number %d", unrelated[i%len(unrelated)], i)
		if i == 7 || i == 31 {
			content = "create a " + unrelated[i%len(unrelated)] + " record"
		}
		items = append(items, Item{ID: fmt.Sprintf("other-%02d", i), Kind: KindGuide, Content: content})
	}

	ctx := context.Background()
	if _, err := Attach(ctx, items, embedder, nil); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	index := NewLinearIndex()
	if err := index.Index(items); err != nil {
		t.Fatalf("Index failed: %v", err)
	}

	result, err := NewRetriever(embedder, index).Retrieve(ctx, "how do I create a timer trigger", 5, Filter{})
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(result) != 5 {
		t.Fatalf("expected 5 results, got %d", len(result))
	}

	top := map[string]bool{}
	for _, s := range result[:3] {
		top[s.Item.ID] = true
	}
	for _, id := range []string{"timer-node", "cron-example", "trigger-pattern"} {
		if !top[id] {
			t.Errorf("expected %s in the top 3, got %v", id, result.IDs())
		}
	}
	if fmt.Sprint(result.IDs()[3:]) != "[other-07 other-31]" {
		t.Errorf("expected next-highest unrelated items, got %v", result.IDs()[3:])
	}

	// Nothing outside the result outranks its last entry.
	last := result[len(result)-1].Score
	inResult := map[string]bool{}
	for _, id := range result.IDs() {
		inResult[id] = true
	}
	query, _ := embedder.Embed(ctx, "how do I create a timer trigger")
	for _, item := range items {
		if inResult[item.ID] {
			continue
		}
		if score, ok := Cosine(query, item.Embedding); ok && score > last {
			t.Errorf("%s scores %v above the last returned %v", item.ID, score, last)
		}
	}
}

func TestRetrieveEmbeddingUnavailable(t *testing.T) {
	embedder := newKeywordEmbedder("timer")
	index := NewLinearIndex()
	index.Index([]Item{{ID: "a", Embedding: []float32{1}}})

	embedder.fail = errors.New("rate limited")
	result, err := NewRetriever(embedder, index).Retrieve(context.Background(), "timer", 3, Filter{})
	if !errors.Is(err, ErrEmbeddingUnavailable) {
		t.Fatalf("expected ErrEmbeddingUnavailable, got %v", err)
	}
	if len(result) != 0 {
		t.Errorf("expected empty result, got %v", result)
	}

	if _, err := NewRetriever(nil, index).Retrieve(context.Background(), "timer", 3, Filter{}); !errors.Is(err, ErrEmbeddingUnavailable) {
		t.Errorf("expected ErrEmbeddingUnavailable without embedder, got %v", err)
	}
}

func TestRetrieveDoesNotCacheQueries(t *testing.T) {
	embedder := newKeywordEmbedder("timer", "email")
	index := NewLinearIndex()
	index.Index([]Item{{ID: "a", Embedding: []float32{1, 0}}})
	r := NewRetriever(embedder, index)

	r.Retrieve(context.Background(), "timer", 1, Filter{})
	r.Retrieve(context.Background(), "email", 1, Filter{})
	if embedder.Calls() != 2 {
		t.Errorf("expected one embedding per query, got %d", embedder.Calls())
	}
}

func TestAttachReusesEmbeddings(t *testing.T) {
	ctx := context.Background()
	embedder := newKeywordEmbedder("timer", "email")
	cache := newMapCache()
	items := []Item{
		{ID: "a", Kind: KindGuide, Content: "timer"},
		{ID: "b", Kind: KindGuide, Content: "email"},
	}

	stats, err := Attach(ctx, items, embedder, cache)
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	if stats.Embedded != 2 || cache.stores != 2 {
		t.Errorf("expected 2 embedded and stored, got %+v stores=%d", stats, cache.stores)
	}

	// Attaching again keeps the vectors already on the items.
	stats, _ = Attach(ctx, items, embedder, cache)
	if stats.Kept != 2 || embedder.Calls() != 2 {
		t.Errorf("expected 2 kept without new calls, got %+v calls=%d", stats, embedder.Calls())
	}

	// A fresh load reuses the cache; a content change re-embeds only that item.
	fresh := []Item{
		{ID: "a", Kind: KindGuide, Content: "timer"},
		{ID: "b", Kind: KindGuide, Content: "email email"},
	}
	stats, _ = Attach(ctx, fresh, embedder, cache)
	if stats.Cached != 1 || stats.Embedded != 1 || embedder.Calls() != 3 {
		t.Errorf("expected 1 cached and 1 embedded, got %+v calls=%d", stats, embedder.Calls())
	}
	if fresh[1].Fingerprint != Fingerprint("email email") {
		t.Error("fingerprint not updated")
	}
}

func TestAttachFailureLeavesItemUnsearchable(t *testing.T) {
	embedder := newKeywordEmbedder("timer")
	embedder.fail = errors.New("offline")
	items := []Item{{ID: "a", Kind: KindGuide, Content: "timer"}}

	stats, err := Attach(context.Background(), items, embedder, nil)
	if !errors.Is(err, ErrEmbeddingUnavailable) {
		t.Fatalf("expected ErrEmbeddingUnavailable, got %v", err)
	}
	if stats.Failed != 1 || items[0].Embedding != nil {
		t.Errorf("expected failed item without embedding, got %+v", stats)
	}

	index := NewLinearIndex()
	index.Index(items)
	if n := len(index.Search([]float32{1}, 5, Filter{})); n != 0 {
		t.Errorf("unembedded item should not be returned, got %d", n)
	}
}

func TestLoadFeed(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "feed.yaml")
	yamlData := `items:
  - id: timer-node
    kind: nodeType
    content: Timer trigger node.
    tags: [trigger, schedule]
  - id: guide-1
    kind: guide
    content: How flows are structured.
`
	if err := os.WriteFile(yamlPath, []byte(yamlData), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	items, err := LoadFeed(yamlPath)
	if err != nil {
		t.Fatalf("LoadFeed failed: %v", err)
	}
	if len(items) != 2 || items[0].Kind != KindNodeType || !items[0].HasTag("schedule") {
		t.Errorf("unexpected items: %+v", items)
	}

	jsonPath := filepath.Join(dir, "feed.json")
	jsonData := `[{"id": "e1", "kind": "example", "content": "send an email"}]`
	if err := os.WriteFile(jsonPath, []byte(jsonData), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	items, err = LoadFeed(jsonPath)
	if err != nil {
		t.Fatalf("LoadFeed failed: %v", err)
	}
	if len(items) != 1 || items[0].ID != "e1" {
		t.Errorf("unexpected items: %+v", items)
	}

	badPath := filepath.Join(dir, "bad.yaml")
	bad := "- id: x\n  kind: recipe\n  content: nope\n"
	if err := os.WriteFile(badPath, []byte(bad), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if _, err := LoadFeed(badPath); err == nil {
		t.Error("expected error for unknown kind")
	}
}
