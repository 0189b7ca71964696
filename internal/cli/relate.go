package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	relate := &cobra.Command{
		Use:   "relate <source-id> <target-id>",
		Short: "Link two memories",
		Long:  "Record a typed, directed relation between two memories of the same agent.",
		Args:  cobra.ExactArgs(2),
		Run:   runRelate,
	}
	relate.Flags().String("as", "related", "Relation type (e.g. follows, contradicts, elaborates)")

	relations := &cobra.Command{
		Use:   "relations <id>",
		Short: "List a memory's relations",
		Long:  "Show every relation the memory participates in, either direction.",
		Args:  cobra.ExactArgs(1),
		Run:   runRelations,
	}

	RootCmd.AddCommand(relate, relations)
}

func runRelate(cmd *cobra.Command, args []string) {
	sourceID := parseID(args[0])
	targetID := parseID(args[1])
	relation, _ := cmd.Flags().GetString("as")

	eng, _, err := openEngine()
	if err != nil {
		exitErr("open", err)
	}
	defer eng.Close()

	if err := eng.AddRelation(cmd.Context(), agentID(), sourceID, targetID, relation); err != nil {
		exitErr("relate", err)
	}
	printJSON(map[string]any{"source_id": sourceID, "target_id": targetID, "relation": relation})
}

func runRelations(cmd *cobra.Command, args []string) {
	id := parseID(args[0])

	eng, _, err := openEngine()
	if err != nil {
		exitErr("open", err)
	}
	defer eng.Close()

	rels, err := eng.GetRelations(cmd.Context(), agentID(), id)
	if err != nil {
		exitErr("relations", err)
	}
	printJSON(rels)
}
