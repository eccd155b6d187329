// Package catalog holds the domain catalog (available node types and their
// parameters) and renders it into a cacheable prompt fragment.
//
// Information Hiding:
// - Entry storage and file format hidden behind the Source interface
// - Rendering is deterministic: entries are sorted by ID
// - The fragment hash covers exactly the identifiers and revisions rendered
package catalog

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

// Param describes one configurable parameter of a catalog entry.
type Param struct {
	Name        string `yaml:"name" json:"name"`
	Type        string `yaml:"type" json:"type"`
	Required    bool   `yaml:"required,omitempty" json:"required,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Entry is one catalog item. Revision must change whenever the rendered
// content of the entry changes.
type Entry struct {
	ID          string  `yaml:"id" json:"id"`
	Name        string  `yaml:"name" json:"name"`
	Group       string  `yaml:"group,omitempty" json:"group,omitempty"`
	Description string  `yaml:"description" json:"description"`
	Revision    int     `yaml:"revision,omitempty" json:"revision,omitempty"`
	Params      []Param `yaml:"params,omitempty" json:"params,omitempty"`
}

// Source provides the current catalog.
type Source interface {
	Entries(ctx context.Context) ([]Entry, error)
}

// Detail selects how much of each entry is rendered.
type Detail int

const (
	// DetailFull renders descriptions and every parameter.
	DetailFull Detail = iota
	// DetailCompact renders one line per entry.
	DetailCompact
)

// String returns the detail level name.
func (d Detail) String() string {
	switch d {
	case DetailFull:
		return "full"
	case DetailCompact:
		return "compact"
	default:
		return "unknown"
	}
}

// Hash returns the fragment hash for rendering entries at detail.
func Hash(entries []Entry, detail Detail) fragment.Hash {
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.ID + "@" + strconv.Itoa(e.Revision)
	}
	return fragment.HashKeys("catalog."+detail.String(), keys...)
}

// Render renders entries as a prompt fragment.
func Render(entries []Entry, detail Detail) string {
	sorted := slices.Clone(entries)
	slices.SortFunc(sorted, func(a, b Entry) int { return strings.Compare(a.ID, b.ID) })

	var sb strings.Builder
	fmt.Fprintf(&sb, "Available node types (%d):\n", len(sorted))
	for _, e := range sorted {
		if detail == DetailCompact {
			fmt.Fprintf(&sb, "- %s: %s\n", e.ID, firstSentence(e.Description))
			continue
		}
		fmt.Fprintf(&sb, "- %s", e.ID)
		if e.Name != "" && e.Name != e.ID {
			fmt.Fprintf(&sb, " (%s)", e.Name)
		}
		if e.Group != "" {
			fmt.Fprintf(&sb, " [%s]", e.Group)
		}
		fmt.Fprintf(&sb, ": %s\n", strings.TrimSpace(e.Description))
		for _, p := range e.Params {
			req := ""
			if p.Required {
				req = ", required"
			}
			fmt.Fprintf(&sb, "    %s (%s%s)", p.Name, p.Type, req)
			if p.Description != "" {
				fmt.Fprintf(&sb, ": %s", p.Description)
			}
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func firstSentence(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if i := strings.Index(s, ". "); i >= 0 {
		return s[:i+1]
	}
	return s
}

// StaticSource is an in-memory catalog that external collaborators mutate.
// It is safe for concurrent use.
type StaticSource struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewStaticSource creates a source holding entries.
func NewStaticSource(entries []Entry) *StaticSource {
	return &StaticSource{entries: slices.Clone(entries)}
}

// Entries implements Source.
func (s *StaticSource) Entries(ctx context.Context) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.entries), nil
}

// Replace swaps in a new catalog.
func (s *StaticSource) Replace(entries []Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = slices.Clone(entries)
}

// Upsert adds entry or replaces the entry with the same ID.
func (s *StaticSource) Upsert(entry Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		if s.entries[i].ID == entry.ID {
			s.entries[i] = entry
			return
		}
	}
	s.entries = append(s.entries, entry)
}

// Len returns the number of entries.
func (s *StaticSource) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// catalogFile is the on-disk YAML shape.
type catalogFile struct {
	Entries []Entry `yaml:"entries"`
}

// LoadFile reads catalog entries from a YAML file.
func LoadFile(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog %s: %w", path, err)
	}
	if err := Validate(file.Entries); err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return file.Entries, nil
}

// Validate checks that every entry has a unique, non-empty ID.
func Validate(entries []Entry) error {
	seen := make(map[string]bool, len(entries))
	for i, e := range entries {
		if e.ID == "" {
			return fmt.Errorf("entry %d has empty id", i)
		}
		if seen[e.ID] {
			return fmt.Errorf("duplicate entry id %q", e.ID)
		}
		seen[e.ID] = true
	}
	return nil
}

var _ Source = (*StaticSource)(nil)
