package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/richinex/contextloom/config"
	"github.com/richinex/contextloom/history"
	"github.com/richinex/contextloom/knowledge"
	"github.com/richinex/contextloom/pipeline"
)

const chatHelp = `Commands:
  /reload catalog|workspace   re-read a source file and drop its cached fragments
  /switch provider[:model]    continue with another provider (each has its own history)
  /clear                      clear the current history
  /history                    show the bounded history view
  /context                    show the size of the last assembled context
  /stats                      show fragment cache counters and provider usage
  /help                       show this help
  exit                        quit`

// command is a parsed slash command.
type command struct {
	name string
	args []string
}

// parseCommand reports whether input is a slash command and splits it.
func parseCommand(input string) (command, bool) {
	if !strings.HasPrefix(input, "/") {
		return command{}, false
	}
	fields := strings.Fields(strings.TrimPrefix(input, "/"))
	if len(fields) == 0 {
		return command{}, false
	}
	return command{name: strings.ToLower(fields[0]), args: fields[1:]}, true
}

// parseSwitch splits "provider[:model]".
func parseSwitch(target string) (string, string, error) {
	provider, model, _ := strings.Cut(strings.TrimSpace(target), ":")
	if provider == "" {
		return "", "", errors.New("usage: /switch provider[:model]")
	}
	return provider, model, nil
}

// Chat starts an interactive session.
func Chat(ctx context.Context, opts Options) error {
	env, err := Open(ctx, opts, true)
	if err != nil {
		return err
	}
	defer env.Close(context.Background())

	if n := env.History.Get(ctx, env.Key).Len(); n > 0 {
		fmt.Printf("Resuming %s (%d messages)\n\n", env.Key, n)
	}
	fmt.Printf("Chat with %s (%s). Type /help for commands, 'exit' to quit.\n\n",
		env.Key.Provider, env.Key.Model)

	return env.chatLoop(ctx, os.Stdin, os.Stdout)
}

func (e *Environment) chatLoop(ctx context.Context, in io.Reader, out io.Writer) error {
	var last *pipeline.Reply
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}
		if cmd, ok := parseCommand(input); ok {
			if err := e.runCommand(ctx, cmd, last, out); err != nil {
				fmt.Fprintf(out, "Error: %v\n\n", err)
			}
			continue
		}

		fmt.Fprintln(out)
		reply, err := e.Pipeline.StreamChat(ctx, e.Key, input, func(chunk string) {
			fmt.Fprint(out, chunk)
		})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			fmt.Fprintf(out, "\nError: %v\n\n", err)
			continue
		}
		fmt.Fprint(out, "\n\n")
		if e.opts.Verbose {
			printReplyStats(out, reply)
		}
		last = reply
	}
	return scanner.Err()
}

func (e *Environment) runCommand(ctx context.Context, cmd command, last *pipeline.Reply, out io.Writer) error {
	switch cmd.name {
	case "help":
		fmt.Fprintln(out, chatHelp)
	case "reload":
		if len(cmd.args) != 1 {
			return errors.New("usage: /reload catalog|workspace")
		}
		var n int
		var err error
		switch cmd.args[0] {
		case "catalog":
			n, err = e.ReloadCatalog()
		case "workspace":
			n, err = e.ReloadWorkspace()
		default:
			return fmt.Errorf("unknown source %q", cmd.args[0])
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Reloaded %s (%d entries)\n\n", cmd.args[0], n)
	case "switch":
		if len(cmd.args) != 1 {
			return errors.New("usage: /switch provider[:model]")
		}
		record, err := e.Switch(ctx, cmd.args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Switched to %s (%s), %d messages\n\n", e.Key.Provider, e.Key.Model, record.Len())
	case "clear":
		if err := e.Pipeline.ClearHistory(ctx, e.Key); err != nil {
			return err
		}
		fmt.Fprintln(out, "History cleared.")
		fmt.Fprintln(out)
	case "history":
		printHistory(out, e.Pipeline.History(ctx, e.Key))
	case "context":
		if last == nil {
			return errors.New("no turn yet")
		}
		printPayload(out, last.Turn)
	case "stats":
		s := e.Pipeline.CacheStats()
		fmt.Fprintf(out, "Fragments: %d cached, %d hits, %d misses, %d builds, %d failures, %d invalidations\n",
			s.Entries, s.Hits, s.Misses, s.Builds, s.Failures, s.Invalidations)
		if e.Index != nil {
			fmt.Fprintf(out, "Knowledge: %s\n", knowledgeSummary(e.Index.Items()))
		}
		usage := e.Pipeline.Usage()
		fmt.Fprintf(out, "Provider usage this session: %s\n\n", &usage)
	default:
		return fmt.Errorf("unknown command /%s (try /help)", cmd.name)
	}
	return nil
}

// Switch persists the current history, moves to the history of another
// provider and model, and routes subsequent turns to that provider.
func (e *Environment) Switch(ctx context.Context, target string) (*history.Record, error) {
	name, model, err := parseSwitch(target)
	if err != nil {
		return nil, err
	}
	settings, err := config.Load(name, e.opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if model != "" {
		settings.LLM.Model = model
	}
	provider, err := createProvider(settings)
	if err != nil {
		return nil, err
	}

	next := history.Key{
		Provider:     settings.LLM.Provider,
		Model:        settings.LLM.Model,
		CredentialID: e.Key.CredentialID,
	}
	record := e.Pipeline.SwitchKey(ctx, e.Key, next)
	e.Pipeline.UseProvider(provider)
	e.Key = next
	e.Settings.LLM = settings.LLM
	return record, nil
}

const maxHistoryLine = 160

func printHistory(out io.Writer, view []history.Message) {
	if len(view) == 0 {
		fmt.Fprintln(out, "(empty)")
		fmt.Fprintln(out)
		return
	}
	for _, m := range view {
		label := ""
		if l := m.Flags.Label(); l != "" {
			label = " [" + l + "]"
		}
		line := strings.Join(strings.Fields(m.Content), " ")
		fmt.Fprintf(out, "%-9s%s %s\n", m.Role, label, truncateString(line, maxHistoryLine))
	}
	fmt.Fprintln(out)
}

func printPayload(out io.Writer, turn *pipeline.Turn) {
	p := turn.Payload
	fmt.Fprintf(out, "Intent: %s (cue %q", turn.Decision.Category, turn.Decision.Cue)
	if turn.Decision.Ambiguous {
		fmt.Fprint(out, ", ambiguous")
	}
	fmt.Fprintln(out, ")")
	budget := "unlimited"
	if p.Budget > 0 {
		budget = fmt.Sprint(p.Budget)
	}
	fmt.Fprintf(out, "Estimated tokens: %d of %s", p.EstimatedTokens, budget)
	if p.BudgetExceeded {
		fmt.Fprint(out, " (over budget)")
	}
	fmt.Fprintln(out)
	b := p.Breakdown
	fmt.Fprintf(out, "  system %d, catalog %d (%s), workspace %d, retrieved %d (%d items), summary %d, history %d (%d messages), utterance %d\n",
		b.System, b.Catalog, p.CatalogDetail, b.Workspace, b.Retrieved, len(p.Retrieved),
		b.Summary, b.History, len(p.History), b.Utterance)
	for _, d := range p.Degradations {
		fmt.Fprintf(out, "  - %s\n", d)
	}
	fmt.Fprintln(out)
}

func printReplyStats(out io.Writer, reply *pipeline.Reply) {
	fmt.Fprintf(out, "(%s, %d context tokens, %s", reply.Turn.Decision.Category,
		reply.Turn.Payload.EstimatedTokens, reply.Duration.Round(time.Millisecond))
	if reply.Usage != nil {
		fmt.Fprintf(out, ", usage %s", reply.Usage)
	}
	fmt.Fprint(out, ")\n\n")
}

// knowledgeSummary counts indexed items per kind, in Kinds order.
func knowledgeSummary(items []knowledge.Item) string {
	if len(items) == 0 {
		return "no items indexed"
	}
	counts := make(map[knowledge.Kind]int)
	for _, item := range items {
		counts[item.Kind]++
	}
	parts := make([]string, 0, len(counts))
	for _, kind := range knowledge.Kinds {
		if n := counts[kind]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s %d", kind, n))
		}
	}
	return fmt.Sprintf("%d items (%s)", len(items), strings.Join(parts, ", "))
}
