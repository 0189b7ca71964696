package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	decay := &cobra.Command{
		Use:   "decay",
		Short: "Run a decay pass now",
		Long:  "Recompute decay scores for every active memory of the agent.",
		Run:   runDecay,
	}
	compress := &cobra.Command{
		Use:   "compress",
		Short: "Run a compression pass now",
		Long: "Cluster near-duplicate memories by embedding similarity and merge " +
			"each cluster into one record. Requires an embedding backend.",
		Run: runCompress,
	}
	cleanup := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete expired memories",
		Run:   runCleanup,
	}
	RootCmd.AddCommand(decay, compress, cleanup)
}

func runDecay(cmd *cobra.Command, args []string) {
	eng, _, err := openEngine()
	if err != nil {
		exitErr("open", err)
	}
	defer eng.Close()

	updated, err := eng.RunDecayPass(cmd.Context(), agentID())
	if err != nil {
		exitErr("decay", err)
	}
	if formatFlag == "text" {
		fmt.Printf("updated %d\n", updated)
		return
	}
	printJSON(map[string]int{"updated": updated})
}

func runCompress(cmd *cobra.Command, args []string) {
	eng, _, err := openEngine()
	if err != nil {
		exitErr("open", err)
	}
	defer eng.Close()

	result, err := eng.RunCompression(cmd.Context(), agentID())
	if err != nil {
		exitErr("compress", err)
	}
	printJSON(result)
}

func runCleanup(cmd *cobra.Command, args []string) {
	eng, _, err := openEngine()
	if err != nil {
		exitErr("open", err)
	}
	defer eng.Close()

	removed, err := eng.CleanupExpired(cmd.Context(), agentID())
	if err != nil {
		exitErr("cleanup", err)
	}
	if formatFlag == "text" {
		fmt.Printf("removed %d\n", removed)
		return
	}
	printJSON(map[string]int{"removed": removed})
}
