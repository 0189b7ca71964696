package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/korelabs/kore/internal/storage"
	"github.com/korelabs/kore/pkg/types"
)

func init() {
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Edit a memory in place",
		Long:  "Change content, category or importance. Editing content re-embeds the memory.",
		Args:  cobra.ExactArgs(1),
		Run:   runUpdate,
	}

	cmd.Flags().String("content", "", "Replacement content")
	cmd.Flags().String("category", "", "New category")
	cmd.Flags().IntP("importance", "i", 0, "New importance 1-5")

	RootCmd.AddCommand(cmd)
}

func runUpdate(cmd *cobra.Command, args []string) {
	id := parseID(args[0])

	var req types.UpdateRequest
	if cmd.Flags().Changed("content") {
		v, _ := cmd.Flags().GetString("content")
		req.Content = &v
	}
	if cmd.Flags().Changed("category") {
		v, _ := cmd.Flags().GetString("category")
		req.Category = &v
	}
	if cmd.Flags().Changed("importance") {
		v, _ := cmd.Flags().GetInt("importance")
		req.Importance = &v
	}
	if req.Empty() {
		exitErr("update", fmt.Errorf("nothing to change; pass --content, --category or --importance"))
	}

	eng, _, err := openEngine()
	if err != nil {
		exitErr("open", err)
	}
	defer eng.Close()

	ok, err := eng.Update(cmd.Context(), agentID(), id, req)
	if err != nil {
		exitErr("update", err)
	}
	if !ok {
		exitErr("update", fmt.Errorf("memory %d: %w", id, storage.ErrNotFound))
	}

	rec, _, err := eng.Get(cmd.Context(), agentID(), id)
	if err != nil {
		exitErr("update", err)
	}
	printJSON(rec)
}
