package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func sampleItems() []Item {
	return []Item{
		{ID: "n2", Type: "slack", Revision: 1, Config: map[string]string{"channel": "#ops", "text": "done"}},
		{ID: "n1", Type: "timer", Name: "Every morning", Revision: 4,
			Config: map[string]string{"cron": "0 8 * * *"}, Connections: []string{"n2"}},
	}
}

func TestRenderModes(t *testing.T) {
	items := sampleItems()

	full := Render(items, ModeFull)
	for _, want := range []string{"- n1 (timer) \"Every morning\" -> n2", "cron = 0 8 * * *", "channel = #ops"} {
		if !strings.Contains(full, want) {
			t.Errorf("full snapshot missing %q:\n%s", want, full)
		}
	}
	if strings.Index(full, "channel") > strings.Index(full, "text =") {
		t.Error("config keys should be sorted")
	}

	summary := Render(items, ModeSummary)
	if strings.Contains(summary, "cron =") {
		t.Error("summary snapshot should omit configuration")
	}
	if !strings.Contains(summary, "-> n2") {
		t.Error("summary snapshot should keep wiring")
	}

	if Render(nil, ModeFull) != "Workspace is empty.\n" {
		t.Error("unexpected rendering for empty workspace")
	}
}

func TestHash(t *testing.T) {
	items := sampleItems()
	h := Hash(items, ModeFull)
	if Hash(items, ModeSummary) == h {
		t.Error("modes must hash differently")
	}
	items[0].Revision++
	if Hash(items, ModeFull) == h {
		t.Error("a revision bump must change the hash")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workspace.yaml")
	data := `items:
  - id: n1
    type: timer
    config:
      cron: "*/5 * * * *"
    connections: [n2]
  - id: n2
    type: http
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	items, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if len(items) != 2 || items[0].Config["cron"] != "*/5 * * * *" {
		t.Errorf("unexpected items: %+v", items)
	}

	src := NewStaticSource(items)
	src.Replace(items[:1])
	if src.Len() != 1 {
		t.Errorf("expected 1 item after replace, got %d", src.Len())
	}
}

func TestValidateRejectsDanglingConnections(t *testing.T) {
	items := []Item{{ID: "n1", Type: "timer", Connections: []string{"ghost"}}}
	if err := Validate(items); err == nil {
		t.Error("expected error for a connection to an unknown item")
	}
	if err := Validate(sampleItems()); err != nil {
		t.Errorf("valid workspace rejected: %v", err)
	}
}
