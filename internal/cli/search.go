package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/korelabs/kore/internal/engine"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search memories",
		Long: "Hybrid search: semantic when an embedding backend is reachable, " +
			"lexical full-text otherwise. Results reinforce the returned page. " +
			"Use \"*\" to list everything.",
		Args: cobra.MinimumNArgs(1),
		Run:  runSearch,
	}

	cmd.Flags().String("category", "", "Filter by category")
	cmd.Flags().IntP("limit", "l", engine.DefaultLimit, "Max results per page")
	cmd.Flags().String("cursor", "", "Continue from a previous page")
	cmd.Flags().Bool("lexical", false, "Skip semantic retrieval even when available")

	RootCmd.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	category, _ := cmd.Flags().GetString("category")
	limit, _ := cmd.Flags().GetInt("limit")
	cursor, _ := cmd.Flags().GetString("cursor")
	lexical, _ := cmd.Flags().GetBool("lexical")

	eng, _, err := openEngine()
	if err != nil {
		exitErr("open", err)
	}
	defer eng.Close()

	res, err := eng.Search(cmd.Context(), engine.SearchRequest{
		AgentID:  agentID(),
		Query:    strings.Join(args, " "),
		Category: category,
		Limit:    limit,
		Semantic: !lexical,
		Cursor:   cursor,
	})
	if err != nil {
		exitErr("search", err)
	}

	printRecords(res.Records, res.NextCursor)
}
