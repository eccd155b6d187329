package knowledge

import (
	"errors"
	"math"
	"sort"
	"sync"
)

// Scored pairs an item with its similarity to the query.
type Scored struct {
	Item  Item    `json:"item"`
	Score float64 `json:"score"`
}

// Result is ordered by descending score and holds at most K entries.
type Result []Scored

// IDs returns the item identifiers in result order.
func (r Result) IDs() []string {
	ids := make([]string, len(r))
	for i, s := range r {
		ids[i] = s.Item.ID
	}
	return ids
}

// Searcher is the index contract. LinearIndex scans every item; an
// approximate index can replace it without changing callers.
type Searcher interface {
	// Index registers items. Re-indexing an existing ID replaces it.
	Index(items []Item) error

	// Search returns the top k items by cosine similarity to query,
	// descending, ties broken by insertion order.
	Search(query []float32, k int, filter Filter) Result

	// Len returns the number of indexed items.
	Len() int
}

// Cosine returns the cosine similarity of a and b. It reports false when the
// vectors differ in length, are empty, or either has zero magnitude.
func Cosine(a, b []float32) (float64, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	score := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, false
	}
	return score, true
}

// LinearIndex is an exhaustive in-memory index, adequate for hundreds to low
// thousands of items. It is safe for concurrent use.
type LinearIndex struct {
	mu       sync.RWMutex
	items    []Item
	position map[string]int
}

// NewLinearIndex creates an empty index.
func NewLinearIndex() *LinearIndex {
	return &LinearIndex{position: make(map[string]int)}
}

// Index registers items. An existing ID keeps its insertion position and has
// its content and embedding replaced.
func (x *LinearIndex) Index(items []Item) error {
	for _, item := range items {
		if item.ID == "" {
			return errors.New("knowledge item has empty id")
		}
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	for _, item := range items {
		item.Tags = normalizeTags(item.Tags)
		if pos, ok := x.position[item.ID]; ok {
			x.items[pos] = item
			continue
		}
		x.position[item.ID] = len(x.items)
		x.items = append(x.items, item)
	}
	return nil
}

// Search implements Searcher.
func (x *LinearIndex) Search(query []float32, k int, filter Filter) Result {
	if k <= 0 {
		return Result{}
	}

	x.mu.RLock()
	scored := make(Result, 0, len(x.items))
	for _, item := range x.items {
		if !filter.Matches(item) {
			continue
		}
		score, ok := Cosine(query, item.Embedding)
		if !ok {
			continue
		}
		scored = append(scored, Scored{Item: item, Score: score})
	}
	x.mu.RUnlock()

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored
}

// Len implements Searcher.
func (x *LinearIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.items)
}

// Get returns the indexed item with id.
func (x *LinearIndex) Get(id string) (Item, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	pos, ok := x.position[id]
	if !ok {
		return Item{}, false
	}
	return x.items[pos], true
}

// Items returns a copy of every indexed item in insertion order.
func (x *LinearIndex) Items() []Item {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]Item, len(x.items))
	copy(out, x.items)
	return out
}

var _ Searcher = (*LinearIndex)(nil)
