// Package main provides the contextloom CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"github.com/richinex/contextloom/cli"
	"github.com/richinex/contextloom/config"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	provider   string
	configPath string
	dbPath     string
	credential string
	budget     int
	verbose    bool
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "contextloom",
		Short: "Intent-aware context assembly for LLM flow builders",
		Long: `Assembles the context sent to a language model on every turn.

Each utterance is classified as a question, a create request or an update,
and only the context that category needs is sent:
- Bounded history with a running summary that keeps flow artifacts, errors and decisions
- Catalog and workspace fragments, cached by a hash of their inputs
- Knowledge items retrieved by embedding similarity`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&provider, "provider", "p", "",
		"LLM provider ("+strings.Join(config.SupportedProviders(), ", ")+")")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML settings file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default from settings)")
	rootCmd.PersistentFlags().StringVar(&credential, "credential", "default", "Credential identifier; part of the history key")
	rootCmd.PersistentFlags().IntVarP(&budget, "budget", "b", -1, "Token budget, 0 for unlimited (default from settings)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show debug logs and per-turn statistics")

	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(assembleCmd())
	rootCmd.AddCommand(indexCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(historyCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func options() cli.Options {
	opts := cli.DefaultOptions()
	opts.Provider = provider
	opts.ConfigPath = configPath
	opts.DBPath = dbPath
	opts.Credential = credential
	opts.Budget = budget
	opts.Verbose = verbose
	return opts
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive session",
		Long: `Start an interactive session. History is kept per provider, model and
credential, and persists across runs.

Type /help inside the session for commands (/reload, /switch, /clear, ...).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Chat(cmd.Context(), options())
		},
	}
}

func assembleCmd() *cobra.Command {
	var asJSON bool
	var withMessages bool
	var k int

	cmd := &cobra.Command{
		Use:   "assemble [utterance]",
		Short: "Show the context that would be sent for an utterance",
		Long: `Classify an utterance and assemble its context without calling a
provider or recording the turn.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Assemble(cmd.Context(), args[0], k, asJSON, withMessages, options())
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the payload as JSON")
	cmd.Flags().BoolVar(&withMessages, "messages", false, "Include the rendered chat messages")
	cmd.Flags().IntVarP(&k, "top", "k", 0, "Knowledge items to retrieve (default from settings)")

	return cmd
}

func indexCmd() *cobra.Command {
	var feed string

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Embed the knowledge feed into the embedding cache",
		Long: `Embed every knowledge item whose content changed since the last run.
Embedding provider: ` + strings.Join(cli.EmbeddingProviders(), ", ") + ` (CONTEXTLOOM_EMBEDDING_PROVIDER).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Index(cmd.Context(), feed, options())
		},
	}

	cmd.Flags().StringVar(&feed, "feed", "", "Knowledge feed (YAML or JSON); default from settings")

	return cmd
}

func searchCmd() *cobra.Command {
	var k int
	var kinds []string

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Retrieve knowledge items similar to a query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Search(cmd.Context(), args[0], k, kinds, options())
		},
	}

	cmd.Flags().IntVarP(&k, "top", "k", 5, "Number of items to return")
	cmd.Flags().StringSliceVar(&kinds, "kind", nil, "Restrict to kinds (nodeType, pattern, example, guide)")

	return cmd
}

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect stored conversation histories",
	}

	var asJSON bool
	show := &cobra.Command{
		Use:   "show [key]",
		Short: "Show the bounded view of a history (default: current provider)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.HistoryShow(cmd.Context(), firstArg(args), asJSON, options())
		},
	}
	show.Flags().BoolVar(&asJSON, "json", false, "Print messages as JSON")

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored history keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.HistoryList(cmd.Context(), options())
		},
	}

	clear := &cobra.Command{
		Use:   "clear [key]",
		Short: "Delete a history (default: current provider)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.HistoryClear(cmd.Context(), firstArg(args), options())
		},
	}

	cmd.AddCommand(show, list, clear)
	return cmd
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
