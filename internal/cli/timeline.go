package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/korelabs/kore/internal/engine"
)

func init() {
	cmd := &cobra.Command{
		Use:   "timeline [query]",
		Short: "Browse memories chronologically",
		Long: "List memories oldest-first, optionally filtered by query and " +
			"category. Browsing does not reinforce.",
		Run: runTimeline,
	}

	cmd.Flags().String("category", "", "Filter by category")
	cmd.Flags().IntP("limit", "l", engine.DefaultLimit, "Max results per page")
	cmd.Flags().String("cursor", "", "Continue from a previous page")

	RootCmd.AddCommand(cmd)
}

func runTimeline(cmd *cobra.Command, args []string) {
	category, _ := cmd.Flags().GetString("category")
	limit, _ := cmd.Flags().GetInt("limit")
	cursor, _ := cmd.Flags().GetString("cursor")

	query := strings.Join(args, " ")
	if strings.TrimSpace(query) == "" {
		query = "*"
	}

	eng, _, err := openEngine()
	if err != nil {
		exitErr("open", err)
	}
	defer eng.Close()

	res, err := eng.Timeline(cmd.Context(), engine.SearchRequest{
		AgentID:  agentID(),
		Query:    query,
		Category: category,
		Limit:    limit,
		Cursor:   cursor,
	})
	if err != nil {
		exitErr("timeline", err)
	}

	printRecords(res.Records, res.NextCursor)
}
