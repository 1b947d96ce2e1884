package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"convertbot/internal/config"
	"convertbot/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent conversion attempts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withHistory(ctx, cmd, func(store *history.Store) error {
				attempts, err := store.Recent(cmd.Context(), limit)
				if err != nil {
					return err
				}
				counts, err := store.CountByOutcome(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					if attempts == nil {
						attempts = []history.Attempt{}
					}
					return writeJSON(cmd, map[string]any{"attempts": attempts, "outcomes": counts})
				}
				printHistory(cmd, attempts, counts)
				return nil
			})
		},
	}
	historyCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of attempts to show")

	historyCmd.AddCommand(newHistoryPruneCommand(ctx))
	return historyCmd
}

func newHistoryPruneCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete attempts older than --older-than",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			return withHistory(ctx, cmd, func(store *history.Store) error {
				removed, err := store.Prune(cmd.Context(), time.Now().Add(-olderThan))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d attempts\n", removed)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Age cutoff")
	return cmd
}

func withHistory(ctx *commandContext, cmd *cobra.Command, fn func(*history.Store) error) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	if !historyAvailable(cfg) {
		fmt.Fprintln(cmd.OutOrStdout(), "History is disabled (set history.enabled = true)")
		return nil
	}
	store, err := history.Open(cfg.History.Path)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer store.Close()
	return fn(store)
}

func historyAvailable(cfg *config.Config) bool {
	return cfg.History.Enabled && strings.TrimSpace(cfg.History.Path) != ""
}

func printHistory(cmd *cobra.Command, attempts []history.Attempt, counts []history.OutcomeCount) {
	out := cmd.OutOrStdout()
	if len(attempts) == 0 {
		fmt.Fprintln(out, "No conversion attempts recorded")
		return
	}
	rows := make([][]string, 0, len(attempts))
	for _, a := range attempts {
		rows = append(rows, []string{
			humanize.Time(a.FinishedAt),
			a.ConversationID,
			a.Pair,
			a.FileName,
			a.Outcome,
			a.Duration.Round(time.Millisecond).String(),
		})
	}
	fmt.Fprint(out, renderTable(
		[]string{"When", "Chat", "Pair", "File", "Outcome", "Took"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
	))
	parts := make([]string, 0, len(counts))
	for _, c := range counts {
		parts = append(parts, fmt.Sprintf("%s=%d", c.Outcome, c.Count))
	}
	fmt.Fprintf(out, "\nOutcomes: %s\n", strings.Join(parts, ", "))
}
