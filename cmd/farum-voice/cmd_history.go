package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/PabloGalante/farum-voice/internal/domain"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [scenario]",
	Short: "Print the recent conversation history of a scenario",
	Long: `Print the history an agent would receive from fetchHistoryContext.

Without a scenario, list every stored scenario with its counts.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

var clearProfile string

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Erase all stored conversations (and optionally a user profile)",
	RunE:  runClear,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 0, "Number of recent messages (default: FARUM_HISTORY_LIMIT)")
	clearCmd.Flags().StringVar(&clearProfile, "profile", "", "Also clear this user's profile")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if len(args) == 0 {
		sums, err := a.history.Summaries(ctx)
		if err != nil {
			return fmt.Errorf("failed to list scenarios: %w", err)
		}
		if len(sums) == 0 {
			fmt.Fprintln(out, "No stored scenarios.")
			return nil
		}
		for _, s := range sums {
			fmt.Fprintf(out, "  %-32s %3d conversation(s) %5d message(s)\n", s.ScenarioName, s.ConversationCount, s.TotalMessages)
		}
		return nil
	}

	limit := historyLimit
	if limit <= 0 {
		limit = cfg.HistoryLimit
	}
	res := a.history.FetchHistory(ctx, args[0], limit)
	if !res.Success {
		return fmt.Errorf("history for %q unavailable", args[0])
	}
	fmt.Fprintln(out, res.HistoryText)
	fmt.Fprintln(out, strings.Repeat("─", 50))
	fmt.Fprintln(out, res.Summary)
	return nil
}

func runClear(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.history.ClearAll(ctx); err != nil {
		return fmt.Errorf("failed to clear conversations: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "All conversations cleared.")

	if clearProfile != "" {
		if err := a.profiles.Clear(ctx, domain.UserID(clearProfile)); err != nil {
			return fmt.Errorf("failed to clear profile: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Profile %q cleared.\n", clearProfile)
	}
	return nil
}
