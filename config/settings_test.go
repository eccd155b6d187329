package config

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
)

// clearEnv blanks every variable Load reads so the host environment cannot
// leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONTEXTLOOM_PROVIDER", "CONTEXTLOOM_MAX_RECENT", "CONTEXTLOOM_SUMMARY_SLACK",
		"CONTEXTLOOM_RETRIEVAL_K", "CONTEXTLOOM_BUDGET", "CONTEXTLOOM_EMBEDDING_PROVIDER",
		"CONTEXTLOOM_EMBEDDING_MODEL", "CONTEXTLOOM_EMBEDDING_DIMENSIONS", "CONTEXTLOOM_DB",
		"CONTEXTLOOM_KNOWLEDGE", "CONTEXTLOOM_CATALOG", "CONTEXTLOOM_WORKSPACE",
		"CONTEXTLOOM_SYSTEM_PROMPT", "LLM_MAX_TOKENS", "LLM_TEMPERATURE",
		"OPENAI_MODEL", "ANTHROPIC_MODEL", "DEEPSEEK_MODEL", "GEMINI_MODEL",
	} {
		t.Setenv(key, "")
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "contextloom.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestNewDefaults(t *testing.T) {
	clearEnv(t)
	settings, err := New("openai")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.LLM.Provider != "openai" || settings.LLM.Model != "gpt-4o" {
		t.Errorf("unexpected llm settings: %+v", settings.LLM)
	}
	if settings.History.MaxRecent != 10 || settings.History.Slack != 4 {
		t.Errorf("unexpected history settings: %+v", settings.History)
	}
	if settings.Assembly.K != 5 || settings.Assembly.Budget != 6000 {
		t.Errorf("unexpected assembly settings: %+v", settings.Assembly)
	}
	if settings.Knowledge.EmbeddingProvider != "hash" || settings.Knowledge.Dimensions != 256 {
		t.Errorf("unexpected knowledge settings: %+v", settings.Knowledge)
	}
}

func TestNewWithAlias(t *testing.T) {
	clearEnv(t)
	settings, err := New("claude")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.LLM.Provider != "anthropic" {
		t.Errorf("expected provider 'anthropic' (normalized from 'claude'), got %q", settings.LLM.Provider)
	}
}

func TestNewUnknownProvider(t *testing.T) {
	clearEnv(t)
	if _, err := New("unknown_provider"); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestNewProviderFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONTEXTLOOM_PROVIDER", "google")
	t.Setenv("GEMINI_MODEL", "gemini-2.5-pro")

	settings, err := New("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.LLM.Provider != "gemini" || settings.LLM.Model != "gemini-2.5-pro" {
		t.Errorf("unexpected llm settings: %+v", settings.LLM)
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONTEXTLOOM_MAX_RECENT", "20")
	t.Setenv("CONTEXTLOOM_BUDGET", "0")
	t.Setenv("CONTEXTLOOM_DB", "/tmp/history.db")
	t.Setenv("CONTEXTLOOM_EMBEDDING_PROVIDER", "openai")

	settings, err := New("openai")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.History.MaxRecent != 20 {
		t.Errorf("expected max recent 20, got %d", settings.History.MaxRecent)
	}
	if settings.Assembly.Budget != 0 {
		t.Errorf("expected unlimited budget, got %d", settings.Assembly.Budget)
	}
	if settings.Paths.Database != "/tmp/history.db" {
		t.Errorf("unexpected database path %q", settings.Paths.Database)
	}
	if settings.Knowledge.EmbeddingProvider != "openai" {
		t.Errorf("unexpected embedding provider %q", settings.Knowledge.EmbeddingProvider)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
llm:
  provider: anthropic
  model: claude-3-5-haiku-latest
history:
  max_recent: 6
assembly:
  k: 3
  system_prompt: "You edit flows."
paths:
  catalog: catalog.yaml
`)
	t.Setenv("CONTEXTLOOM_RETRIEVAL_K", "8")

	settings, err := Load("", path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.LLM.Provider != "anthropic" || settings.LLM.Model != "claude-3-5-haiku-latest" {
		t.Errorf("unexpected llm settings: %+v", settings.LLM)
	}
	if settings.History.MaxRecent != 6 || settings.History.Slack != 4 {
		t.Errorf("file should override only the keys it sets: %+v", settings.History)
	}
	if settings.Assembly.K != 8 {
		t.Errorf("environment should win over the file, got k=%d", settings.Assembly.K)
	}
	if settings.Assembly.SystemPrompt != "You edit flows." || settings.Paths.Catalog != "catalog.yaml" {
		t.Errorf("unexpected settings: %+v", settings)
	}
}

func TestLoadFileModelDroppedForOtherProvider(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "llm:\n  provider: anthropic\n  model: claude-3-5-haiku-latest\n")

	settings, err := Load("openai", path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.LLM.Model != "gpt-4o" {
		t.Errorf("expected openai default model, got %q", settings.LLM.Model)
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load("openai", filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestNewWithInvalidEnvVar(t *testing.T) {
	clearEnv(t)
	t.Setenv("LLM_MAX_TOKENS", "not-a-number")

	if _, err := New("openai"); err == nil {
		t.Error("expected error for invalid LLM_MAX_TOKENS")
	}
}

func TestValidateRejectsNonPositiveWindow(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONTEXTLOOM_MAX_RECENT", "0")

	if _, err := New("openai"); err == nil {
		t.Error("expected error for zero max recent")
	}
}

func TestAPIKeyFor(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")
	key, err := APIKeyFor("gpt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "test-key" {
		t.Errorf("expected 'test-key', got %q", key)
	}

	t.Setenv("OPENAI_API_KEY", "")
	if _, err := APIKeyFor("openai"); err == nil {
		t.Error("expected error for missing API key")
	}
	if _, err := APIKeyFor("unknown"); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestMustNewPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for unknown provider")
		}
	}()
	MustNew("unknown_provider")
}

func TestSupportedProviders(t *testing.T) {
	providers := SupportedProviders()
	if !slices.Equal(providers, []string{"anthropic", "deepseek", "gemini", "openai"}) {
		t.Errorf("unexpected providers: %v", providers)
	}
}
