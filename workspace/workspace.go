// Package workspace holds the user's current work items (the nodes of the
// flow being edited) and renders them as a full or summarized snapshot.
package workspace

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/richinex/contextloom/fragment"
)

// Item is one node in the workspace. Revision must change whenever the
// item's configuration or connections change.
type Item struct {
	ID          string            `yaml:"id" json:"id"`
	Type        string            `yaml:"type" json:"type"`
	Name        string            `yaml:"name,omitempty" json:"name,omitempty"`
	Revision    int               `yaml:"revision,omitempty" json:"revision,omitempty"`
	Config      map[string]string `yaml:"config,omitempty" json:"config,omitempty"`
	Connections []string          `yaml:"connections,omitempty" json:"connections,omitempty"`
}

// Source provides the current workspace contents.
type Source interface {
	Items(ctx context.Context) ([]Item, error)
}

// Mode selects the snapshot rendering.
type Mode int

const (
	// ModeFull renders every item with its configuration.
	ModeFull Mode = iota
	// ModeSummary renders item identity and wiring only.
	ModeSummary
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeFull:
		return "full"
	case ModeSummary:
		return "summary"
	default:
		return "unknown"
	}
}

// Hash returns the fragment hash for rendering items in mode.
func Hash(items []Item, mode Mode) fragment.Hash {
	keys := make([]string, len(items))
	for i, it := range items {
		keys[i] = it.ID + "@" + strconv.Itoa(it.Revision)
	}
	return fragment.HashKeys("workspace."+mode.String(), keys...)
}

// Render renders items as a snapshot fragment. An empty workspace renders
// as a single line.
func Render(items []Item, mode Mode) string {
	if len(items) == 0 {
		return "Workspace is empty.\n"
	}
	sorted := slices.Clone(items)
	slices.SortFunc(sorted, func(a, b Item) int { return strings.Compare(a.ID, b.ID) })

	var sb strings.Builder
	fmt.Fprintf(&sb, "Workspace (%d items):\n", len(sorted))
	for _, it := range sorted {
		fmt.Fprintf(&sb, "- %s (%s)", it.ID, it.Type)
		if it.Name != "" {
			fmt.Fprintf(&sb, " %q", it.Name)
		}
		if len(it.Connections) > 0 {
			fmt.Fprintf(&sb, " -> %s", strings.Join(it.Connections, ", "))
		}
		sb.WriteString("\n")
		if mode == ModeSummary {
			continue
		}
		keys := make([]string, 0, len(it.Config))
		for k := range it.Config {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, "    %s = %s\n", k, it.Config[k])
		}
	}
	return sb.String()
}

// StaticSource is an in-memory workspace that external collaborators mutate.
// It is safe for concurrent use.
type StaticSource struct {
	mu    sync.RWMutex
	items []Item
}

// NewStaticSource creates a source holding items.
func NewStaticSource(items []Item) *StaticSource {
	return &StaticSource{items: slices.Clone(items)}
}

// Items implements Source.
func (s *StaticSource) Items(ctx context.Context) ([]Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.items), nil
}

// Replace swaps in new workspace contents.
func (s *StaticSource) Replace(items []Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = slices.Clone(items)
}

// Len returns the number of items.
func (s *StaticSource) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

type workspaceFile struct {
	Items []Item `yaml:"items"`
}

// LoadFile reads workspace items from a YAML file.
func LoadFile(path string) ([]Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workspace: %w", err)
	}
	var file workspaceFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse workspace %s: %w", path, err)
	}
	if err := Validate(file.Items); err != nil {
		return nil, fmt.Errorf("workspace %s: %w", path, err)
	}
	return file.Items, nil
}

// Validate checks that item IDs are unique and non-empty and that every
// connection points at an item in the workspace.
func Validate(items []Item) error {
	ids := make(map[string]bool, len(items))
	for i, it := range items {
		if it.ID == "" {
			return fmt.Errorf("item %d has empty id", i)
		}
		if ids[it.ID] {
			return fmt.Errorf("duplicate item id %q", it.ID)
		}
		ids[it.ID] = true
	}
	for _, it := range items {
		for _, target := range it.Connections {
			if !ids[target] {
				return fmt.Errorf("item %q connects to unknown item %q", it.ID, target)
			}
		}
	}
	return nil
}

var _ Source = (*StaticSource)(nil)
