// Package config provides application settings.
//
// Settings are resolved in layers by Load:
// - Built-in defaults
// - An optional YAML file
// - Environment variables (CONTEXTLOOM_* plus per-provider model and key variables)
//
// Malformed values are errors, never silently replaced by defaults.

package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Settings holds all application configuration.
type Settings struct {
	LLM       LLMConfig       `yaml:"llm"`
	History   HistoryConfig   `yaml:"history"`
	Knowledge KnowledgeConfig `yaml:"knowledge"`
	Assembly  AssemblyConfig  `yaml:"assembly"`
	Paths     PathsConfig     `yaml:"paths"`
}

// LLMConfig holds LLM provider configuration.
type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	MaxTokens   uint32  `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// HistoryConfig bounds conversation history.
type HistoryConfig struct {
	MaxRecent int `yaml:"max_recent"`
	Slack     int `yaml:"slack"`
}

// KnowledgeConfig selects the embedding collaborator.
type KnowledgeConfig struct {
	EmbeddingProvider string `yaml:"embedding_provider"`
	EmbeddingModel    string `yaml:"embedding_model"`
	Dimensions        int    `yaml:"dimensions"`
}

// AssemblyConfig controls context assembly.
type AssemblyConfig struct {
	K            int    `yaml:"k"`
	Budget       int    `yaml:"budget"`
	SystemPrompt string `yaml:"system_prompt"`
}

// PathsConfig locates persistent state and input files.
type PathsConfig struct {
	Database  string `yaml:"database"`
	Knowledge string `yaml:"knowledge"`
	Catalog   string `yaml:"catalog"`
	Workspace string `yaml:"workspace"`
}

// providerInfo holds configuration for a specific LLM provider.
type providerInfo struct {
	modelEnv     string
	defaultModel string
	apiKeyEnv    string
}

// Supported providers and their configuration.
var providers = map[string]providerInfo{
	"openai":    {"OPENAI_MODEL", "gpt-4o", "OPENAI_API_KEY"},
	"anthropic": {"ANTHROPIC_MODEL", "claude-sonnet-4-20250514", "ANTHROPIC_API_KEY"},
	"deepseek":  {"DEEPSEEK_MODEL", "deepseek-chat", "DEEPSEEK_API_KEY"},
	"gemini":    {"GEMINI_MODEL", "gemini-2.0-flash", "GEMINI_API_KEY"},
}

// Provider aliases map to canonical names.
var providerAliases = map[string]string{
	"claude": "anthropic",
	"google": "gemini",
	"gpt":    "openai",
}

// DefaultProvider is used when no provider is configured anywhere.
const DefaultProvider = "openai"

// Defaults returns the built-in settings.
func Defaults() Settings {
	return Settings{
		LLM: LLMConfig{
			MaxTokens:   4096,
			Temperature: 0.7,
		},
		History: HistoryConfig{
			MaxRecent: 10,
			Slack:     4,
		},
		Knowledge: KnowledgeConfig{
			EmbeddingProvider: "hash",
			Dimensions:        256,
		},
		Assembly: AssemblyConfig{
			K:      5,
			Budget: 6000,
		},
		Paths: PathsConfig{
			Database: ".contextloom/contextloom.db",
		},
	}
}

// New creates settings for provider from defaults and the environment.
func New(provider string) (Settings, error) {
	return Load(provider, "")
}

// Load resolves settings for provider. path names an optional YAML file;
// empty skips it. An empty provider falls back to the file, then
// CONTEXTLOOM_PROVIDER, then DefaultProvider.
func Load(provider, path string) (Settings, error) {
	settings := Defaults()
	if path != "" {
		if err := settings.overlayFile(path); err != nil {
			return Settings{}, err
		}
	}

	if provider == "" {
		provider = settings.LLM.Provider
	}
	if provider == "" {
		provider = os.Getenv("CONTEXTLOOM_PROVIDER")
	}
	if provider == "" {
		provider = DefaultProvider
	}
	provider = normalizeProvider(provider)
	info, err := getProviderInfo(provider)
	if err != nil {
		return Settings{}, err
	}
	if settings.LLM.Provider != "" && normalizeProvider(settings.LLM.Provider) != provider {
		// A model from the file belongs to the file's provider.
		settings.LLM.Model = ""
	}
	settings.LLM.Provider = provider

	if err := settings.overlayEnv(info); err != nil {
		return Settings{}, err
	}
	if settings.LLM.Model == "" {
		settings.LLM.Model = info.defaultModel
	}
	if err := settings.Validate(); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

// MustNew creates settings for the specified provider.
// Panics if the provider is unknown or environment variables are invalid.
// Use this only when configuration errors should be fatal.
func MustNew(provider string) Settings {
	settings, err := New(provider)
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return settings
}

func (s *Settings) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (s *Settings) overlayEnv(info providerInfo) error {
	var err error
	if s.LLM.MaxTokens, err = getEnvUint32("LLM_MAX_TOKENS", s.LLM.MaxTokens); err != nil {
		return err
	}
	if s.LLM.Temperature, err = getEnvFloat64("LLM_TEMPERATURE", s.LLM.Temperature); err != nil {
		return err
	}
	if s.History.MaxRecent, err = getEnvInt("CONTEXTLOOM_MAX_RECENT", s.History.MaxRecent); err != nil {
		return err
	}
	if s.History.Slack, err = getEnvInt("CONTEXTLOOM_SUMMARY_SLACK", s.History.Slack); err != nil {
		return err
	}
	if s.Assembly.K, err = getEnvInt("CONTEXTLOOM_RETRIEVAL_K", s.Assembly.K); err != nil {
		return err
	}
	if s.Assembly.Budget, err = getEnvInt("CONTEXTLOOM_BUDGET", s.Assembly.Budget); err != nil {
		return err
	}
	if s.Knowledge.Dimensions, err = getEnvInt("CONTEXTLOOM_EMBEDDING_DIMENSIONS", s.Knowledge.Dimensions); err != nil {
		return err
	}

	s.LLM.Model = getEnvString(info.modelEnv, s.LLM.Model)
	s.Assembly.SystemPrompt = getEnvString("CONTEXTLOOM_SYSTEM_PROMPT", s.Assembly.SystemPrompt)
	s.Knowledge.EmbeddingProvider = getEnvString("CONTEXTLOOM_EMBEDDING_PROVIDER", s.Knowledge.EmbeddingProvider)
	s.Knowledge.EmbeddingModel = getEnvString("CONTEXTLOOM_EMBEDDING_MODEL", s.Knowledge.EmbeddingModel)
	s.Paths.Database = getEnvString("CONTEXTLOOM_DB", s.Paths.Database)
	s.Paths.Knowledge = getEnvString("CONTEXTLOOM_KNOWLEDGE", s.Paths.Knowledge)
	s.Paths.Catalog = getEnvString("CONTEXTLOOM_CATALOG", s.Paths.Catalog)
	s.Paths.Workspace = getEnvString("CONTEXTLOOM_WORKSPACE", s.Paths.Workspace)
	return nil
}

// Validate rejects settings no component can run with.
func (s Settings) Validate() error {
	if s.History.MaxRecent <= 0 {
		return fmt.Errorf("history max_recent must be positive, got %d", s.History.MaxRecent)
	}
	if s.History.Slack < 0 {
		return fmt.Errorf("history slack must not be negative, got %d", s.History.Slack)
	}
	if s.Assembly.K < 0 {
		return fmt.Errorf("retrieval k must not be negative, got %d", s.Assembly.K)
	}
	if s.Knowledge.Dimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be positive, got %d", s.Knowledge.Dimensions)
	}
	return nil
}

// normalizeProvider converts provider aliases to canonical names.
func normalizeProvider(provider string) string {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if canonical, ok := providerAliases[provider]; ok {
		return canonical
	}
	return provider
}

// getProviderInfo returns configuration for a provider.
func getProviderInfo(provider string) (providerInfo, error) {
	info, ok := providers[provider]
	if !ok {
		return providerInfo{}, fmt.Errorf("unknown provider: %q", provider)
	}
	return info, nil
}

// APIKeyFor returns the API key for a provider from environment variables.
func APIKeyFor(provider string) (string, error) {
	provider = normalizeProvider(provider)

	info, err := getProviderInfo(provider)
	if err != nil {
		return "", err
	}

	key := os.Getenv(info.apiKeyEnv)
	if key == "" {
		return "", fmt.Errorf("%s environment variable not set", info.apiKeyEnv)
	}
	return key, nil
}

// SupportedProviders returns the supported provider names, sorted.
func SupportedProviders() []string {
	result := make([]string, 0, len(providers))
	for name := range providers {
		result = append(result, name)
	}
	slices.Sort(result)
	return result
}

// Environment variable helpers with proper error handling

func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return i, nil
}

func getEnvUint32(key string, defaultVal uint32) (uint32, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.ParseUint(val, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return uint32(i), nil
}

func getEnvFloat64(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return f, nil
}
