// Package assembler composes the context payload for one user turn.
//
// Information Hiding:
// - Inclusion rules per intent category hidden behind PolicyFor
// - Fragment reuse hidden behind the fragment cache
// - Budget enforcement and its truncation order hidden inside Assemble
package assembler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/richinex/contextloom/catalog"
	"github.com/richinex/contextloom/fragment"
	"github.com/richinex/contextloom/history"
	"github.com/richinex/contextloom/intent"
	"github.com/richinex/contextloom/knowledge"
	"github.com/richinex/contextloom/llm"
	"github.com/richinex/contextloom/workspace"
)

// DefaultK is the number of knowledge items retrieved when Config.K is zero.
const DefaultK = 5

// DefaultSystemPrompt is used when Config.SystemPrompt is empty.
const DefaultSystemPrompt = "You are an assistant that helps users build and edit automation flows. " +
	"Use only the node types listed or retrieved below. Keep answers concise."

// Catalog detail labels reported in Payload.CatalogDetail.
const (
	CatalogFull    = "full"
	CatalogCompact = "compact"
	CatalogOmitted = "omitted"
)

// Retriever returns the knowledge items relevant to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int, filter knowledge.Filter) (knowledge.Result, error)
}

// Config wires the assembler to its collaborators. History and Cache are
// required; a nil Retriever, Catalog or Workspace leaves that section empty.
type Config struct {
	History   *history.Store
	Cache     *fragment.Cache
	Retriever Retriever
	Catalog   catalog.Source
	Workspace workspace.Source

	// MaxRecent bounds the raw history window; zero uses the store's setting.
	MaxRecent int
	// K is the default retrieval depth.
	K            int
	SystemPrompt string
	Estimator    Estimator
	Logger       *slog.Logger
}

// Request is one assembly call.
type Request struct {
	Key       history.Key
	Utterance string
	Category  intent.Category
	// Budget is the token budget; zero or negative means unlimited.
	Budget int
	// K overrides Config.K when positive.
	K int
}

// Breakdown is the estimated size of each payload section.
type Breakdown struct {
	System    int `json:"system"`
	Catalog   int `json:"catalog"`
	Workspace int `json:"workspace"`
	Retrieved int `json:"retrieved"`
	Summary   int `json:"summary"`
	History   int `json:"history"`
	Utterance int `json:"utterance"`
}

// Payload is the assembled context for one turn.
type Payload struct {
	Category      intent.Category   `json:"category"`
	SystemPrompt  string            `json:"system_prompt"`
	Summary       history.Summary   `json:"summary"`
	History       []history.Message `json:"history"`
	Catalog       string            `json:"catalog,omitempty"`
	CatalogDetail string            `json:"catalog_detail,omitempty"`
	Workspace     string            `json:"workspace,omitempty"`
	Retrieved     knowledge.Result  `json:"retrieved"`
	Utterance     string            `json:"utterance"`

	Budget          int       `json:"budget"`
	EstimatedTokens int       `json:"estimated_tokens"`
	BudgetExceeded  bool      `json:"budget_exceeded"`
	Breakdown       Breakdown `json:"breakdown"`
	// Degradations lists every section that was shrunk or skipped.
	Degradations []string `json:"degradations,omitempty"`
}

// HistoryView returns the summary message (when anything was folded)
// followed by the raw recent messages.
func (p *Payload) HistoryView() []history.Message {
	view := make([]history.Message, 0, len(p.History)+1)
	if !p.Summary.IsZero() {
		view = append(view, p.Summary.Message())
	}
	return append(view, p.History...)
}

// Messages renders the payload as a chat transcript: one system message
// carrying the prompt and context sections, the recent history, and the
// utterance as the final user message.
func (p *Payload) Messages() []llm.ChatMessage {
	msgs := make([]llm.ChatMessage, 0, len(p.History)+2)
	msgs = append(msgs, llm.SystemMessage(p.systemContent()))
	for _, m := range p.History {
		msgs = append(msgs, llm.ChatMessage{Role: string(m.Role), Content: m.Content})
	}
	return append(msgs, llm.UserMessage(p.Utterance))
}

func (p *Payload) systemContent() string {
	sections := []string{p.SystemPrompt}
	if p.Catalog != "" {
		sections = append(sections, "## Catalog\n"+p.Catalog)
	}
	if p.Workspace != "" {
		sections = append(sections, "## Workspace\n"+p.Workspace)
	}
	if len(p.Retrieved) > 0 {
		sections = append(sections, "## Reference material\n"+renderRetrieved(p.Retrieved))
	}
	if !p.Summary.IsZero() {
		sections = append(sections, "## Earlier conversation\n"+p.Summary.Content())
	}
	var out []string
	for _, s := range sections {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, "\n\n")
}

func renderRetrieved(result knowledge.Result) string {
	var sb strings.Builder
	for _, s := range result {
		fmt.Fprintf(&sb, "### %s (%s)\n%s\n", s.Item.ID, s.Item.Kind, strings.TrimSpace(s.Item.Content))
	}
	return sb.String()
}

// Assembler builds payloads. It is safe for concurrent use.
type Assembler struct {
	history   *history.Store
	cache     *fragment.Cache
	retriever Retriever
	catalog   catalog.Source
	workspace workspace.Source
	maxRecent int
	k         int
	prompt    string
	estimator Estimator
	logger    *slog.Logger
}

// New creates an assembler from config.
func New(config Config) (*Assembler, error) {
	if config.History == nil {
		return nil, fmt.Errorf("assembler requires a history store")
	}
	if config.Cache == nil {
		return nil, fmt.Errorf("assembler requires a fragment cache")
	}
	a := &Assembler{
		history:   config.History,
		cache:     config.Cache,
		retriever: config.Retriever,
		catalog:   config.Catalog,
		workspace: config.Workspace,
		maxRecent: config.MaxRecent,
		k:         config.K,
		prompt:    config.SystemPrompt,
		estimator: config.Estimator,
		logger:    config.Logger,
	}
	if a.maxRecent <= 0 {
		a.maxRecent = config.History.MaxRecent()
	}
	if a.k <= 0 {
		a.k = DefaultK
	}
	if a.prompt == "" {
		a.prompt = DefaultSystemPrompt
	}
	if a.estimator == nil {
		a.estimator = CharEstimator{}
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a, nil
}

// Assemble composes the payload for req.
//
// Catalog and workspace fragments come from the fragment cache keyed by the
// hash of the entries read at the start of the call. A fragment build
// failure is returned wrapping fragment.ErrBuildFailed. Retrieval failures
// degrade to an empty retrieved section. When the payload exceeds the budget
// sections are shrunk in order: retrieved items (lowest score first), catalog
// detail, summary facts, then the oldest unflagged raw messages. The
// utterance and flagged messages are never dropped.
func (a *Assembler) Assemble(ctx context.Context, req Request) (*Payload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	policy := PolicyFor(req.Category)

	bounded := a.history.Bounded(ctx, req.Key, a.maxRecent)
	p := &Payload{
		Category:     req.Category,
		SystemPrompt: a.prompt,
		Summary:      bounded.Summary,
		History:      bounded.Messages,
		Retrieved:    knowledge.Result{},
		Utterance:    req.Utterance,
		Budget:       req.Budget,
	}

	var entries []catalog.Entry
	if policy.Catalog && a.catalog != nil {
		var err error
		entries, err = a.catalog.Entries(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read catalog: %w", err)
		}
		p.Catalog, err = a.catalogFragment(entries, catalog.DetailFull)
		if err != nil {
			return nil, err
		}
		p.CatalogDetail = CatalogFull
	}

	if policy.Workspace && a.workspace != nil {
		items, err := a.workspace.Items(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read workspace: %w", err)
		}
		p.Workspace, err = a.workspaceFragment(items, policy.WorkspaceMode)
		if err != nil {
			return nil, err
		}
	}

	if policy.Retrieve && a.retriever != nil {
		k := a.k
		if req.K > 0 {
			k = req.K
		}
		result, err := a.retriever.Retrieve(ctx, req.Utterance, k, policy.Filter)
		switch {
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case err != nil:
			a.logger.Warn("Retrieval unavailable, continuing without reference material",
				"key", req.Key.String(), "error", err)
			p.Degradations = append(p.Degradations, "retrieval unavailable")
		default:
			p.Retrieved = result
		}
	}

	a.enforceBudget(p, entries)
	p.Breakdown = a.breakdown(p)

	a.logger.Debug("Assembled context",
		"key", req.Key.String(),
		"category", req.Category.String(),
		"tokens", p.EstimatedTokens,
		"budget", p.Budget,
		"history", len(p.History),
		"retrieved", len(p.Retrieved),
		"catalog", p.CatalogDetail)
	return p, nil
}

func (a *Assembler) catalogFragment(entries []catalog.Entry, detail catalog.Detail) (string, error) {
	payload, _, err := a.cache.GetOrBuild(fragment.ScopeCatalog, catalog.Hash(entries, detail), func() (string, error) {
		if err := catalog.Validate(entries); err != nil {
			return "", err
		}
		return catalog.Render(entries, detail), nil
	})
	return payload, err
}

func (a *Assembler) workspaceFragment(items []workspace.Item, mode workspace.Mode) (string, error) {
	payload, _, err := a.cache.GetOrBuild(fragment.ScopeWorkspace, workspace.Hash(items, mode), func() (string, error) {
		if err := workspace.Validate(items); err != nil {
			return "", err
		}
		return workspace.Render(items, mode), nil
	})
	return payload, err
}

func (a *Assembler) estimate(p *Payload) int {
	return estimateMessages(a.estimator, p.Messages())
}

func (a *Assembler) enforceBudget(p *Payload, entries []catalog.Entry) {
	p.EstimatedTokens = a.estimate(p)
	if p.Budget <= 0 {
		return
	}
	over := func() bool {
		p.EstimatedTokens = a.estimate(p)
		return p.EstimatedTokens > p.Budget
	}

	dropped := 0
	for len(p.Retrieved) > 0 && over() {
		p.Retrieved = p.Retrieved[:len(p.Retrieved)-1]
		dropped++
	}
	if dropped > 0 {
		p.Degradations = append(p.Degradations, fmt.Sprintf("dropped %d retrieved items", dropped))
	}

	if p.CatalogDetail == CatalogFull && over() {
		compact, err := a.catalogFragment(entries, catalog.DetailCompact)
		if err != nil {
			a.logger.Warn("Compact catalog unavailable", "error", err)
		} else {
			p.Catalog = compact
			p.CatalogDetail = CatalogCompact
			p.Degradations = append(p.Degradations, "catalog reduced to compact")
		}
	}
	if p.Catalog != "" && over() {
		p.Catalog = ""
		p.CatalogDetail = CatalogOmitted
		p.Degradations = append(p.Degradations, "catalog omitted")
	}

	if len(p.Summary.Facts) > 0 && over() {
		trimmed := p.Summary.WithoutUnprotectedFacts()
		if len(trimmed.Facts) < len(p.Summary.Facts) {
			p.Summary = trimmed
			p.Degradations = append(p.Degradations, "summary reduced to protected facts")
		}
	}

	dropped = 0
	for over() {
		i := oldestUnflagged(p.History)
		if i < 0 {
			break
		}
		p.History = append(p.History[:i:i], p.History[i+1:]...)
		dropped++
	}
	if dropped > 0 {
		p.Degradations = append(p.Degradations, fmt.Sprintf("dropped %d history messages", dropped))
	}

	if over() {
		p.BudgetExceeded = true
		a.logger.Warn("Context exceeds budget after truncation",
			"tokens", p.EstimatedTokens, "budget", p.Budget)
	}
}

func oldestUnflagged(messages []history.Message) int {
	for i, m := range messages {
		if !m.Flags.Any() {
			return i
		}
	}
	return -1
}

func (a *Assembler) breakdown(p *Payload) Breakdown {
	b := Breakdown{
		System:    a.estimator.Estimate(p.SystemPrompt),
		Catalog:   a.estimator.Estimate(p.Catalog),
		Workspace: a.estimator.Estimate(p.Workspace),
		Retrieved: a.estimator.Estimate(renderRetrieved(p.Retrieved)),
		Utterance: a.estimator.Estimate(p.Utterance) + messageOverhead,
	}
	if !p.Summary.IsZero() {
		b.Summary = a.estimator.Estimate(p.Summary.Content())
	}
	for _, m := range p.History {
		b.History += a.estimator.Estimate(m.Content) + messageOverhead
	}
	return b
}
