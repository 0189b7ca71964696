package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/korelabs/kore/internal/engine"
)

func init() {
	tag := &cobra.Command{
		Use:   "tag",
		Short: "Manage memory tags",
	}

	add := &cobra.Command{
		Use:   "add <id> <tag>...",
		Short: "Attach tags to a memory",
		Args:  cobra.MinimumNArgs(2),
		Run:   runTagAdd,
	}
	rm := &cobra.Command{
		Use:   "rm <id> <tag>...",
		Short: "Detach tags from a memory",
		Args:  cobra.MinimumNArgs(2),
		Run:   runTagRm,
	}
	ls := &cobra.Command{
		Use:   "ls <id>",
		Short: "List a memory's tags",
		Args:  cobra.ExactArgs(1),
		Run:   runTagLs,
	}
	find := &cobra.Command{
		Use:   "find <tag>",
		Short: "List memories carrying a tag",
		Args:  cobra.ExactArgs(1),
		Run:   runTagFind,
	}
	find.Flags().IntP("limit", "l", engine.DefaultLimit, "Max results")

	tag.AddCommand(add, rm, ls, find)
	RootCmd.AddCommand(tag)
}

func runTagAdd(cmd *cobra.Command, args []string) {
	id := parseID(args[0])

	eng, _, err := openEngine()
	if err != nil {
		exitErr("open", err)
	}
	defer eng.Close()

	added, err := eng.AddTags(cmd.Context(), agentID(), id, args[1:])
	if err != nil {
		exitErr("tag add", err)
	}
	printJSON(map[string]int{"added": added})
}

func runTagRm(cmd *cobra.Command, args []string) {
	id := parseID(args[0])

	eng, _, err := openEngine()
	if err != nil {
		exitErr("open", err)
	}
	defer eng.Close()

	removed, err := eng.RemoveTags(cmd.Context(), agentID(), id, args[1:])
	if err != nil {
		exitErr("tag rm", err)
	}
	printJSON(map[string]int{"removed": removed})
}

func runTagLs(cmd *cobra.Command, args []string) {
	id := parseID(args[0])

	eng, _, err := openEngine()
	if err != nil {
		exitErr("open", err)
	}
	defer eng.Close()

	tags, err := eng.GetTags(cmd.Context(), agentID(), id)
	if err != nil {
		exitErr("tag ls", err)
	}
	if formatFlag == "text" {
		for _, t := range tags {
			fmt.Println(t)
		}
		return
	}
	printJSON(tags)
}

func runTagFind(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")

	eng, _, err := openEngine()
	if err != nil {
		exitErr("open", err)
	}
	defer eng.Close()

	records, err := eng.SearchByTag(cmd.Context(), agentID(), args[0], limit)
	if err != nil {
		exitErr("tag find", err)
	}
	printRecords(records, "")
}
