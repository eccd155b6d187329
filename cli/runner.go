// Command execution for CLI commands.
//
// Information Hiding:
// - Component construction (storage, history, cache, index, provider) hidden in Open
// - Interactive command dispatch hidden
// - Output formatting hidden

package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/richinex/contextloom/catalog"
	"github.com/richinex/contextloom/config"
	"github.com/richinex/contextloom/embedding"
	"github.com/richinex/contextloom/fragment"
	"github.com/richinex/contextloom/history"
	"github.com/richinex/contextloom/knowledge"
	"github.com/richinex/contextloom/llm"
	"github.com/richinex/contextloom/pipeline"
	"github.com/richinex/contextloom/storage"
	"github.com/richinex/contextloom/workspace"
)

// Options holds CLI execution options.
type Options struct {
	Provider   string
	ConfigPath string
	// DBPath overrides the configured database path when set.
	DBPath     string
	Credential string
	// Budget overrides the configured token budget when non-negative.
	Budget  int
	Verbose bool

	skipKnowledge bool
}

// DefaultOptions returns default CLI options.
func DefaultOptions() Options {
	return Options{
		Credential: "default",
		Budget:     -1,
	}
}

// Environment is every component a command needs, built from settings.
type Environment struct {
	Settings  config.Settings
	Logger    *slog.Logger
	Storage   *storage.SqliteStorage
	History   *history.Store
	Cache     *fragment.Cache
	Catalog   *catalog.StaticSource
	Workspace *workspace.StaticSource
	Index     *knowledge.LinearIndex
	Embedder  knowledge.Embedder
	Pipeline  *pipeline.Pipeline
	Key       history.Key

	opts Options
}

// Open builds the environment. withProvider also creates the LLM provider,
// which requires its API key.
func Open(ctx context.Context, opts Options, withProvider bool) (*Environment, error) {
	settings, err := config.Load(opts.Provider, opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.DBPath != "" {
		settings.Paths.Database = opts.DBPath
	}
	if opts.Budget >= 0 {
		settings.Assembly.Budget = opts.Budget
	}
	credential := opts.Credential
	if credential == "" {
		credential = "default"
	}

	logger := NewLogger(opts.Verbose)
	env := &Environment{
		Settings: settings,
		Logger:   logger,
		opts:     opts,
		Cache:    fragment.NewCache(fragment.Config{Logger: logger}),
		Key: history.Key{
			Provider:     settings.LLM.Provider,
			Model:        settings.LLM.Model,
			CredentialID: credential,
		},
	}

	env.Storage, err = storage.OpenSqlite(settings.Paths.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	env.History = history.NewStore(history.Config{
		Storage:   env.Storage,
		MaxRecent: settings.History.MaxRecent,
		Slack:     settings.History.Slack,
		Logger:    logger,
		OnPersistError: func(key history.Key, err error) {
			fmt.Fprintf(os.Stderr, "Warning: failed to save history for %s: %v\n", key, err)
		},
	})

	if err := env.loadSources(); err != nil {
		env.Close(ctx)
		return nil, err
	}
	if err := env.loadKnowledge(ctx); err != nil {
		env.Close(ctx)
		return nil, err
	}

	var provider llm.Provider
	if withProvider {
		provider, err = createProvider(settings)
		if err != nil {
			env.Close(ctx)
			return nil, err
		}
	}

	env.Pipeline, err = pipeline.New(pipeline.Config{
		History:      env.History,
		Cache:        env.Cache,
		Retriever:    knowledge.NewRetriever(env.Embedder, env.Index),
		Catalog:      env.Catalog,
		Workspace:    env.Workspace,
		Provider:     provider,
		MaxRecent:    settings.History.MaxRecent,
		K:            settings.Assembly.K,
		SystemPrompt: settings.Assembly.SystemPrompt,
		Budget:       settings.Assembly.Budget,
		Logger:       logger,
	})
	if err != nil {
		env.Close(ctx)
		return nil, err
	}
	return env, nil
}

// Close flushes history and closes the database.
func (e *Environment) Close(ctx context.Context) {
	if e.Pipeline != nil {
		if err := e.Pipeline.Close(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to flush history: %v\n", err)
		}
	} else if e.History != nil {
		_ = e.History.Close(ctx)
	}
	if e.Storage != nil {
		e.Storage.Close()
	}
}

func (e *Environment) loadSources() error {
	var entries []catalog.Entry
	if path := e.Settings.Paths.Catalog; path != "" {
		var err error
		if entries, err = catalog.LoadFile(path); err != nil {
			return err
		}
	}
	e.Catalog = catalog.NewStaticSource(entries)

	var items []workspace.Item
	if path := e.Settings.Paths.Workspace; path != "" {
		var err error
		if items, err = workspace.LoadFile(path); err != nil {
			return err
		}
	}
	e.Workspace = workspace.NewStaticSource(items)
	return nil
}

// ReloadCatalog re-reads the catalog file and invalidates cached fragments.
func (e *Environment) ReloadCatalog() (int, error) {
	path := e.Settings.Paths.Catalog
	if path == "" {
		return 0, fmt.Errorf("no catalog file configured")
	}
	entries, err := catalog.LoadFile(path)
	if err != nil {
		return 0, err
	}
	e.Catalog.Replace(entries)
	e.Pipeline.CatalogChanged()
	return len(entries), nil
}

// ReloadWorkspace re-reads the workspace file and invalidates snapshots.
func (e *Environment) ReloadWorkspace() (int, error) {
	path := e.Settings.Paths.Workspace
	if path == "" {
		return 0, fmt.Errorf("no workspace file configured")
	}
	items, err := workspace.LoadFile(path)
	if err != nil {
		return 0, err
	}
	e.Workspace.Replace(items)
	e.Pipeline.WorkspaceChanged()
	return len(items), nil
}

func (e *Environment) loadKnowledge(ctx context.Context) error {
	kind, err := embedding.ParseKind(e.Settings.Knowledge.EmbeddingProvider)
	if err != nil {
		return err
	}
	apiKey := ""
	if env := kind.EnvVar(); env != "" {
		apiKey = os.Getenv(env)
	}
	e.Embedder, err = embedding.New(kind, apiKey, e.Settings.Knowledge.EmbeddingModel, e.Settings.Knowledge.Dimensions)
	if err != nil {
		// Retrieval degrades to empty; the turn still runs.
		e.Logger.Warn("Embedder unavailable", "provider", kind.String(), "error", err)
		e.Embedder = nil
	}

	e.Index = knowledge.NewLinearIndex()
	path := e.Settings.Paths.Knowledge
	if path == "" || e.opts.skipKnowledge {
		return nil
	}
	items, err := knowledge.LoadFeed(path)
	if err != nil {
		return err
	}
	if e.Embedder != nil {
		stats, err := knowledge.Attach(ctx, items, e.Embedder, e.Storage)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			e.Logger.Warn("Some knowledge items were not embedded", "failed", stats.Failed, "error", err)
		}
		e.Logger.Debug("Knowledge embedded",
			"items", len(items), "kept", stats.Kept, "cached", stats.Cached, "embedded", stats.Embedded)
	}
	if err := e.Index.Index(items); err != nil {
		return fmt.Errorf("failed to index knowledge: %w", err)
	}
	return nil
}

// NewLogger returns a text logger on stderr: debug level when verbose,
// warnings otherwise.
func NewLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func createProvider(settings config.Settings) (llm.Provider, error) {
	providerType, err := llm.ParseProviderType(settings.LLM.Provider)
	if err != nil {
		return nil, err
	}

	apiKey, err := config.APIKeyFor(settings.LLM.Provider)
	if err != nil {
		return nil, err
	}

	return providerType.
		Model(settings.LLM.Model).
		MaxTokens(settings.LLM.MaxTokens).
		Temperature(float32(settings.LLM.Temperature)).
		APIKey(apiKey)
}

// truncateString truncates a string to maxLen runes, preserving UTF-8 boundaries.
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
