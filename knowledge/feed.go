package knowledge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// feedFile is the on-disk shape of a knowledge feed. A bare list of items is
// accepted too.
type feedFile struct {
	Items []Item `json:"items" yaml:"items"`
}

// LoadFeed reads a knowledge feed from a YAML or JSON file. Items come back
// without embeddings; pass them through Attach before indexing.
func LoadFeed(path string) ([]Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read knowledge feed: %w", err)
	}

	var items []Item
	if strings.EqualFold(filepath.Ext(path), ".json") {
		items, err = decodeJSONFeed(data)
	} else {
		items, err = decodeYAMLFeed(data)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse knowledge feed %s: %w", path, err)
	}

	if err := validateFeed(items); err != nil {
		return nil, fmt.Errorf("invalid knowledge feed %s: %w", path, err)
	}
	return items, nil
}

func decodeJSONFeed(data []byte) ([]Item, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []Item
		err := json.Unmarshal(trimmed, &items)
		return items, err
	}
	var feed feedFile
	err := json.Unmarshal(trimmed, &feed)
	return feed.Items, err
}

func decodeYAMLFeed(data []byte) ([]Item, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	if len(node.Content) == 0 {
		return nil, nil
	}
	if node.Content[0].Kind == yaml.SequenceNode {
		var items []Item
		err := node.Content[0].Decode(&items)
		return items, err
	}
	var feed feedFile
	err := node.Content[0].Decode(&feed)
	return feed.Items, err
}

func validateFeed(items []Item) error {
	seen := make(map[string]bool, len(items))
	for i, item := range items {
		if item.ID == "" {
			return fmt.Errorf("item %d has empty id", i)
		}
		if seen[item.ID] {
			return fmt.Errorf("duplicate item id %q", item.ID)
		}
		seen[item.ID] = true
		if _, err := ParseKind(string(item.Kind)); err != nil {
			return fmt.Errorf("item %q: %w", item.ID, err)
		}
		if strings.TrimSpace(item.Content) == "" {
			return fmt.Errorf("item %q has empty content", item.ID)
		}
	}
	return nil
}
