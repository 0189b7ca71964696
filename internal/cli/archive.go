package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/korelabs/kore/internal/storage"
)

func init() {
	archive := &cobra.Command{
		Use:   "archive <id>",
		Short: "Soft-delete a memory",
		Long:  "Archived memories leave search and decay but stay recoverable via restore.",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			runArchiveOp(cmd, args[0], "archive")
		},
	}
	restore := &cobra.Command{
		Use:   "restore <id>",
		Short: "Bring an archived memory back",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			runArchiveOp(cmd, args[0], "restore")
		},
	}
	RootCmd.AddCommand(archive, restore)
}

func runArchiveOp(cmd *cobra.Command, arg, op string) {
	id := parseID(arg)

	eng, _, err := openEngine()
	if err != nil {
		exitErr("open", err)
	}
	defer eng.Close()

	var ok bool
	if op == "archive" {
		ok, err = eng.Archive(cmd.Context(), agentID(), id)
	} else {
		ok, err = eng.Restore(cmd.Context(), agentID(), id)
	}
	if err != nil {
		exitErr(op, err)
	}
	if !ok {
		exitErr(op, fmt.Errorf("memory %d: %w", id, storage.ErrNotFound))
	}

	if formatFlag == "text" {
		fmt.Printf("%sd [%d]\n", op, id)
		return
	}
	printJSON(map[string]any{"id": id, op: true})
}
