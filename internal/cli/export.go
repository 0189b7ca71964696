package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/korelabs/kore/pkg/types"
)

// snapshot is the export envelope. SnapshotID makes separately taken exports
// distinguishable even when their contents coincide.
type snapshot struct {
	SnapshotID string               `json:"snapshot_id"`
	AgentID    string               `json:"agent_id"`
	ExportedAt time.Time            `json:"exported_at"`
	Count      int                  `json:"count"`
	Records    []types.MemoryRecord `json:"records"`
}

func init() {
	export := &cobra.Command{
		Use:   "export [file]",
		Short: "Export all memories as a JSON snapshot",
		Long:  "Write every active memory of the agent to a file or stdout.",
		Args:  cobra.MaximumNArgs(1),
		Run:   runExport,
	}
	imp := &cobra.Command{
		Use:   "import [file]",
		Short: "Import memories from a snapshot",
		Long: "Read a snapshot (or a bare record array) from a file or stdin and " +
			"re-save its records. Imported memories are re-scored, re-embedded and " +
			"start fresh; ids are not preserved.",
		Args: cobra.MaximumNArgs(1),
		Run:  runImport,
	}
	RootCmd.AddCommand(export, imp)
}

func runExport(cmd *cobra.Command, args []string) {
	eng, _, err := openEngine()
	if err != nil {
		exitErr("open", err)
	}
	defer eng.Close()

	records, err := eng.Export(cmd.Context(), agentID())
	if err != nil {
		exitErr("export", err)
	}

	snap := snapshot{
		SnapshotID: uuid.New().String(),
		AgentID:    agentID(),
		ExportedAt: time.Now().UTC(),
		Count:      len(records),
		Records:    records,
	}

	out := os.Stdout
	if len(args) > 0 {
		f, err := os.Create(args[0])
		if err != nil {
			exitErr("export", err)
		}
		defer f.Close()
		out = f
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(snap); err != nil {
		exitErr("export", err)
	}
}

func runImport(cmd *cobra.Command, args []string) {
	var raw []byte
	var err error
	if len(args) > 0 {
		raw, err = os.ReadFile(args[0])
	} else {
		raw, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		exitErr("import", err)
	}

	records, err := decodeSnapshot(raw)
	if err != nil {
		exitErr("import", err)
	}

	eng, _, err := openEngine()
	if err != nil {
		exitErr("open", err)
	}
	defer eng.Close()

	imported, err := eng.Import(cmd.Context(), agentID(), records)
	if err != nil {
		exitErr("import", err)
	}

	if formatFlag == "text" {
		fmt.Printf("imported %d of %d\n", imported, len(records))
		return
	}
	printJSON(map[string]int{"imported": imported, "total": len(records)})
}

// decodeSnapshot accepts either the snapshot envelope or a bare record array.
func decodeSnapshot(raw []byte) ([]types.MemoryRecord, error) {
	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err == nil && snap.Records != nil {
		return snap.Records, nil
	}
	var records []types.MemoryRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("not a snapshot or record array: %w", err)
	}
	return records, nil
}
