package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/korelabs/kore/internal/storage"
)

func init() {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Fetch one memory by id",
		Args:  cobra.ExactArgs(1),
		Run:   runGet,
	}
	RootCmd.AddCommand(cmd)
}

func parseID(arg string) int64 {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		exitErr("parse id", fmt.Errorf("%q is not a memory id", arg))
	}
	return id
}

func runGet(cmd *cobra.Command, args []string) {
	id := parseID(args[0])

	eng, _, err := openEngine()
	if err != nil {
		exitErr("open", err)
	}
	defer eng.Close()

	rec, ok, err := eng.Get(cmd.Context(), agentID(), id)
	if err != nil {
		exitErr("get", err)
	}
	if !ok {
		exitErr("get", fmt.Errorf("memory %d: %w", id, storage.ErrNotFound))
	}

	printJSON(rec)
}
