package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/korelabs/kore/internal/storage"
)

func init() {
	cmd := &cobra.Command{
		Use:   "rm <id>...",
		Short: "Delete memories permanently",
		Long:  "Delete memories by id. For a reversible removal use archive instead.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runRm,
	}
	RootCmd.AddCommand(cmd)
}

func runRm(cmd *cobra.Command, args []string) {
	eng, _, err := openEngine()
	if err != nil {
		exitErr("open", err)
	}
	defer eng.Close()

	deleted := 0
	for _, arg := range args {
		id := parseID(arg)
		ok, err := eng.Delete(cmd.Context(), agentID(), id)
		if err != nil {
			exitErr("rm", err)
		}
		if !ok {
			exitErr("rm", fmt.Errorf("memory %d: %w", id, storage.ErrNotFound))
		}
		deleted++
	}

	if formatFlag == "text" {
		fmt.Printf("deleted %d\n", deleted)
		return
	}
	printJSON(map[string]int{"deleted": deleted})
}
