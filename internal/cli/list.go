package cli

import (
	"github.com/spf13/cobra"

	"github.com/korelabs/kore/internal/engine"
)

func init() {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List memories",
		Long:  "List memories oldest-first without reinforcing them. --archived lists soft-deleted memories instead.",
		Run:   runList,
	}

	cmd.Flags().String("category", "", "Filter by category")
	cmd.Flags().IntP("limit", "l", engine.DefaultLimit, "Max results per page")
	cmd.Flags().String("cursor", "", "Continue from a previous page")
	cmd.Flags().Bool("archived", false, "List archived memories")

	RootCmd.AddCommand(cmd)
}

func runList(cmd *cobra.Command, args []string) {
	category, _ := cmd.Flags().GetString("category")
	limit, _ := cmd.Flags().GetInt("limit")
	cursor, _ := cmd.Flags().GetString("cursor")
	archived, _ := cmd.Flags().GetBool("archived")

	eng, _, err := openEngine()
	if err != nil {
		exitErr("open", err)
	}
	defer eng.Close()

	if archived {
		records, err := eng.ListArchived(cmd.Context(), agentID(), limit)
		if err != nil {
			exitErr("list archived", err)
		}
		printRecords(records, "")
		return
	}

	res, err := eng.Timeline(cmd.Context(), engine.SearchRequest{
		AgentID:  agentID(),
		Query:    "*",
		Category: category,
		Limit:    limit,
		Cursor:   cursor,
	})
	if err != nil {
		exitErr("list", err)
	}

	printRecords(res.Records, res.NextCursor)
}
