// Package pipeline runs one conversation turn end to end: classify the
// utterance, assemble its context, call the model, and record the exchange.
//
// Information Hiding:
// - Component wiring (history, fragment cache, retrieval, sources) hidden behind Config
// - Turn supersession: only the latest prepared turn per key may be committed
// - Flag detection on replies (flow artifacts) hidden inside Chat
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/richinex/contextloom/assembler"
	"github.com/richinex/contextloom/catalog"
	"github.com/richinex/contextloom/fragment"
	"github.com/richinex/contextloom/history"
	"github.com/richinex/contextloom/intent"
	cljson "github.com/richinex/contextloom/internal/json"
	"github.com/richinex/contextloom/llm"
	"github.com/richinex/contextloom/workspace"
)

// ErrTurnSuperseded is returned by Commit when a newer turn was prepared for
// the same key, or the turn was already committed.
var ErrTurnSuperseded = errors.New("turn superseded")

// ErrNoProvider is returned by Chat when no model provider is configured.
var ErrNoProvider = errors.New("no LLM provider configured")

// Config wires a pipeline.
type Config struct {
	History   *history.Store
	Cache     *fragment.Cache
	Retriever assembler.Retriever
	Catalog   catalog.Source
	Workspace workspace.Source
	// Provider is required for Chat and StreamChat only.
	Provider llm.Provider

	MaxRecent    int
	K            int
	SystemPrompt string
	// Budget is the default token budget; zero means unlimited.
	Budget    int
	Estimator assembler.Estimator
	Logger    *slog.Logger
}

// Turn is a prepared, not yet committed, exchange.
type Turn struct {
	ID        string
	Key       history.Key
	Utterance string
	Decision  intent.Decision
	Payload   *assembler.Payload
	StartedAt time.Time
}

// Reply is the outcome of a committed turn.
type Reply struct {
	Turn     *Turn
	Content  string
	Flags    history.Flags
	Usage    *llm.TokenUsage
	Duration time.Duration
}

// Pipeline is safe for concurrent use. Turns for different keys proceed
// independently.
type Pipeline struct {
	history   *history.Store
	cache     *fragment.Cache
	workspace workspace.Source
	assembler *assembler.Assembler
	maxRecent int
	budget    int
	logger    *slog.Logger

	mu       sync.Mutex
	latest   map[string]string
	provider llm.Provider
	usage    llm.TokenUsage
}

// New creates a pipeline from config.
func New(config Config) (*Pipeline, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	asm, err := assembler.New(assembler.Config{
		History:      config.History,
		Cache:        config.Cache,
		Retriever:    config.Retriever,
		Catalog:      config.Catalog,
		Workspace:    config.Workspace,
		MaxRecent:    config.MaxRecent,
		K:            config.K,
		SystemPrompt: config.SystemPrompt,
		Estimator:    config.Estimator,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create assembler: %w", err)
	}
	maxRecent := config.MaxRecent
	if maxRecent <= 0 {
		maxRecent = config.History.MaxRecent()
	}
	return &Pipeline{
		history:   config.History,
		cache:     config.Cache,
		workspace: config.Workspace,
		assembler: asm,
		provider:  config.Provider,
		maxRecent: maxRecent,
		budget:    config.Budget,
		logger:    logger,
		latest:    make(map[string]string),
	}, nil
}

// TurnOptions adjusts a single turn's assembly.
type TurnOptions struct {
	// Budget is the token budget; negative uses the configured default and
	// zero means unlimited.
	Budget int
	// K overrides the configured retrieval depth when positive.
	K int
}

// Prepare classifies utterance and assembles its context. A negative budget
// uses the configured default. The returned turn supersedes any earlier
// uncommitted turn for key.
func (p *Pipeline) Prepare(ctx context.Context, key history.Key, utterance string, budget int) (*Turn, error) {
	return p.PrepareWith(ctx, key, utterance, TurnOptions{Budget: budget})
}

// PrepareWith is Prepare with per-turn options.
func (p *Pipeline) PrepareWith(ctx context.Context, key history.Key, utterance string, opts TurnOptions) (*Turn, error) {
	budget := opts.Budget
	if budget < 0 {
		budget = p.budget
	}
	recent := p.history.Bounded(ctx, key, p.maxRecent)
	decision := intent.Explain(intent.Input{
		Utterance:      utterance,
		Recent:         recent.Messages,
		WorkspaceItems: p.workspaceSize(ctx),
	})
	if decision.Ambiguous {
		p.logger.Debug("Classification ambiguous",
			"key", key.String(), "category", decision.Category.String(), "cue", decision.Cue)
	}

	turn := &Turn{
		ID:        uuid.New().String(),
		Key:       key,
		Utterance: utterance,
		Decision:  decision,
		StartedAt: time.Now(),
	}
	p.mu.Lock()
	p.latest[key.String()] = turn.ID
	p.mu.Unlock()

	payload, err := p.assembler.Assemble(ctx, assembler.Request{
		Key:       key,
		Utterance: utterance,
		Category:  decision.Category,
		Budget:    budget,
		K:         opts.K,
	})
	if err != nil {
		return nil, err
	}
	turn.Payload = payload
	if payload.BudgetExceeded {
		p.logger.Warn("Context over budget",
			"key", key.String(), "tokens", payload.EstimatedTokens, "budget", payload.Budget)
	}
	return turn, nil
}

func (p *Pipeline) workspaceSize(ctx context.Context) int {
	if p.workspace == nil {
		return 0
	}
	items, err := p.workspace.Items(ctx)
	if err != nil {
		p.logger.Warn("Failed to read workspace for classification", "error", err)
		return 0
	}
	return len(items)
}

// Commit appends the turn's utterance and reply to history. It fails with
// ErrTurnSuperseded when turn is not the latest prepared turn for its key,
// and with the context error when ctx is done; nothing is recorded then.
func (p *Pipeline) Commit(ctx context.Context, turn *Turn, reply string, flags history.Flags) ([]history.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.latest[turn.Key.String()] != turn.ID {
		return nil, ErrTurnSuperseded
	}
	delete(p.latest, turn.Key.String())

	user := p.history.Append(ctx, turn.Key, history.UserMessage(turn.Utterance))
	assistant := p.history.Append(ctx, turn.Key, history.AssistantMessage(reply, flags))
	return []history.Message{user, assistant}, nil
}

// Chat runs a full turn against the configured provider.
func (p *Pipeline) Chat(ctx context.Context, key history.Key, utterance string) (*Reply, error) {
	return p.run(ctx, key, utterance, func(provider llm.Provider, messages []llm.ChatMessage) (string, *llm.TokenUsage, error) {
		resp, err := provider.Chat(ctx, messages)
		return resp.Content, resp.Usage, err
	})
}

// StreamChat is Chat with the reply streamed to onChunk as it arrives.
func (p *Pipeline) StreamChat(ctx context.Context, key history.Key, utterance string, onChunk func(string)) (*Reply, error) {
	return p.run(ctx, key, utterance, func(provider llm.Provider, messages []llm.ChatMessage) (string, *llm.TokenUsage, error) {
		return stream(ctx, provider, messages, onChunk)
	})
}

type streamResult struct {
	usage *llm.TokenUsage
	err   error
}

func stream(ctx context.Context, provider llm.Provider, messages []llm.ChatMessage, onChunk func(string)) (string, *llm.TokenUsage, error) {
	chunks := make(chan string, 100)
	resultCh := make(chan streamResult, 1)
	go func() {
		defer close(chunks)
		usage, err := provider.StreamChat(ctx, messages, chunks)
		resultCh <- streamResult{usage: usage, err: err}
	}()

	var response strings.Builder
	for chunk := range chunks {
		if onChunk != nil {
			onChunk(chunk)
		}
		response.WriteString(chunk)
	}
	result := <-resultCh
	if result.err != nil {
		return "", nil, result.err
	}
	return response.String(), result.usage, nil
}

// UseProvider replaces the model provider for subsequent turns.
func (p *Pipeline) UseProvider(provider llm.Provider) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.provider = provider
}

// Provider returns the current model provider, or nil.
func (p *Pipeline) Provider() llm.Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.provider
}

type callFunc func(provider llm.Provider, messages []llm.ChatMessage) (string, *llm.TokenUsage, error)

func (p *Pipeline) run(ctx context.Context, key history.Key, utterance string, call callFunc) (*Reply, error) {
	provider := p.Provider()
	if provider == nil {
		return nil, ErrNoProvider
	}
	turn, err := p.Prepare(ctx, key, utterance, -1)
	if err != nil {
		return nil, err
	}

	content, usage, err := call(provider, turn.Payload.Messages())
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.logger.Error("Provider call failed",
			"provider", provider.Name(), "key", key.String(), "error", err)
		if errors.Is(err, llm.ErrContextTooLong) {
			p.logger.Warn("Assembled context too long for the model; lower the token budget",
				"estimated_tokens", turn.Payload.EstimatedTokens, "budget", turn.Payload.Budget)
		}
		note := fmt.Sprintf("The %s provider failed: %v", provider.Name(), err)
		if _, cerr := p.Commit(ctx, turn, note, history.Flags{Error: true}); cerr != nil {
			p.logger.Debug("Failed turn not recorded", "error", cerr)
		}
		return nil, fmt.Errorf("failed to get reply from %s: %w", provider.Name(), err)
	}

	flags := DetectFlags(content)
	if _, err := p.Commit(ctx, turn, content, flags); err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.usage.Add(usage)
	p.mu.Unlock()
	return &Reply{
		Turn:     turn,
		Content:  content,
		Flags:    flags,
		Usage:    usage,
		Duration: time.Since(turn.StartedAt),
	}, nil
}

// DetectFlags marks a reply carrying a flow definition (a JSON object with a
// "nodes" array) as a flow artifact.
func DetectFlags(reply string) history.Flags {
	doc, err := cljson.Extract[struct {
		Nodes []map[string]any `json:"nodes"`
	}](reply)
	return history.Flags{FlowArtifact: err == nil && len(doc.Nodes) > 0}
}

// CatalogChanged drops cached catalog fragments. The next turn rebuilds.
func (p *Pipeline) CatalogChanged() {
	p.cache.Invalidate(fragment.ScopeCatalog)
}

// WorkspaceChanged drops cached workspace snapshots.
func (p *Pipeline) WorkspaceChanged() {
	p.cache.Invalidate(fragment.ScopeWorkspace)
}

// SwitchKey persists active and loads next. Any pending turn for active is
// superseded unless active and next are the same key.
func (p *Pipeline) SwitchKey(ctx context.Context, active, next history.Key) *history.Record {
	if active != next {
		p.mu.Lock()
		delete(p.latest, active.String())
		p.mu.Unlock()
	}
	return p.history.Switch(ctx, active, next)
}

// ClearHistory empties the history for key.
func (p *Pipeline) ClearHistory(ctx context.Context, key history.Key) error {
	p.mu.Lock()
	delete(p.latest, key.String())
	p.mu.Unlock()
	return p.history.Clear(ctx, key)
}

// History returns the bounded history view for key.
func (p *Pipeline) History(ctx context.Context, key history.Key) []history.Message {
	return p.history.BoundedView(ctx, key, p.maxRecent)
}

// CacheStats returns the fragment cache counters.
func (p *Pipeline) CacheStats() fragment.Stats {
	return p.cache.Stats()
}

// Usage returns the provider usage summed over every committed reply.
func (p *Pipeline) Usage() llm.TokenUsage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.usage
}

// Close flushes pending history saves.
func (p *Pipeline) Close(ctx context.Context) error {
	return p.history.Close(ctx)
}
