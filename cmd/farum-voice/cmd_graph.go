package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/PabloGalante/farum-voice/internal/app/agentflow"
)

var graphCmd = &cobra.Command{
	Use:   "graph [scenario]",
	Short: "Validate and print an agent handoff graph",
	Long: `Print the agents of a scenario, their tools, their handoffs and the
number of hops to the safety agent.

With --graph-file the YAML file is validated and printed instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGraph,
}

func runGraph(cmd *cobra.Command, args []string) error {
	var (
		g   *agentflow.Graph
		err error
	)
	if graphFile != "" {
		g, err = agentflow.LoadGraphFile(graphFile)
	} else {
		var r *agentflow.Registry
		r, err = buildRegistry(cfg)
		if err == nil {
			scenario := ""
			if len(args) == 1 {
				scenario = args[0]
			}
			g, err = r.Lookup(scenario)
		}
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Entry:  %s\n", g.EntryPoint().ID)
	fmt.Fprintf(out, "Safety: %s\n", g.Safety().ID)
	fmt.Fprintln(out, strings.Repeat("─", 50))
	for _, n := range g.Nodes() {
		fmt.Fprintf(out, "%s (hops to safety: %d)\n", n.ID, g.HopsToSafety(n.ID))
		fmt.Fprintf(out, "  tools:    %v\n", n.Tools)
		fmt.Fprintf(out, "  handoffs: %v\n", n.Handoffs)
	}
	return nil
}
