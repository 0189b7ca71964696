package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show memory counts for the agent",
		Run:   runStats,
	}
	agents := &cobra.Command{
		Use:   "agents",
		Short: "List every agent namespace in the store",
		Run:   runAgents,
	}
	RootCmd.AddCommand(stats, agents)
}

func runStats(cmd *cobra.Command, args []string) {
	eng, _, err := openEngine()
	if err != nil {
		exitErr("open", err)
	}
	defer eng.Close()

	s, err := eng.Stats(cmd.Context(), agentID())
	if err != nil {
		exitErr("stats", err)
	}
	if formatFlag == "text" {
		fmt.Printf("total=%d active=%d archived=%d\n", s.TotalMemories, s.ActiveMemories, s.ArchivedMemories)
		return
	}
	printJSON(s)
}

func runAgents(cmd *cobra.Command, args []string) {
	eng, _, err := openEngine()
	if err != nil {
		exitErr("open", err)
	}
	defer eng.Close()

	infos, err := eng.ListAgents(cmd.Context())
	if err != nil {
		exitErr("agents", err)
	}
	printJSON(infos)
}
