package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/PabloGalante/farum-voice/internal/app/session"
	"github.com/PabloGalante/farum-voice/internal/domain"
)

var (
	replayScenario string
	replayQuiet    bool
)

// replayCmd feeds a recorded event stream through a session, exactly as the
// websocket would, and persists the result.
var replayCmd = &cobra.Command{
	Use:   "replay <events.jsonl>",
	Short: "Replay recorded transcript events (one JSON object per line)",
	Args:  cobra.ExactArgs(1),
	RunE:  runReplay,
}

func init() {
	replayCmd.Flags().StringVarP(&replayScenario, "scenario", "s", "", "Scenario to record into (default: FARUM_DEFAULT_SCENARIO)")
	replayCmd.Flags().BoolVarP(&replayQuiet, "quiet", "q", false, "Do not print the reconciled transcript")
}

func runReplay(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open events: %w", err)
	}
	defer f.Close()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	sessions := session.NewManager(a.registry, a.history, a.moderator)
	sess, err := sessions.Open(ctx, replayScenario)
	if err != nil {
		return err
	}

	var applied, dropped int
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for line := 1; sc.Scan(); line++ {
		data := strings.TrimSpace(sc.Text())
		if data == "" {
			continue
		}
		if err := sess.Handle(ctx, []byte(data)); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "line %d: %v\n", line, err)
			dropped++
			continue
		}
		applied++
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("failed to read events: %w", err)
	}

	items := sess.Transcript()
	pending := len(sess.Buffered())
	if err := sessions.Close(ctx, sess.ID()); err != nil {
		return fmt.Errorf("flush: %w", err)
	}

	out := cmd.OutOrStdout()
	if !replayQuiet {
		for _, it := range items {
			fmt.Fprintln(out, formatItem(it))
		}
		fmt.Fprintln(out, strings.Repeat("─", 50))
	}
	fmt.Fprintf(out, "Scenario: %s\n", sess.Scenario())
	fmt.Fprintf(out, "Events: %d applied, %d dropped\n", applied, dropped)
	fmt.Fprintf(out, "Final agent: %s\n", sess.Agent().ID)
	fmt.Fprintf(out, "Messages recorded: %d\n", pending)
	return nil
}

func formatItem(it domain.TranscriptItem) string {
	switch it.Kind {
	case domain.ItemBreadcrumb:
		return fmt.Sprintf("  · %s", it.Title)
	default:
		line := fmt.Sprintf("%-9s %s", string(it.Role)+":", it.Title)
		if it.Guardrail != nil && it.Guardrail.Flagged() {
			line += fmt.Sprintf("  [guardrail: %s]", it.Guardrail.Category)
		}
		return line
	}
}
