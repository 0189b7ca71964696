package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/korelabs/kore/pkg/types"
)

func init() {
	cmd := &cobra.Command{
		Use:   "save [content]",
		Short: "Store a memory",
		Long:  "Store a memory. Content can be a positional arg or piped via stdin. Importance is auto-scored when omitted.",
		Run:   runSave,
	}

	cmd.Flags().String("category", "", "Category (default: general)")
	cmd.Flags().IntP("importance", "i", 0, "Importance 1-5 (0 = auto-score from content)")
	cmd.Flags().Int("ttl", 0, "Expiry in hours (0 = no expiry)")

	RootCmd.AddCommand(cmd)
}

func runSave(cmd *cobra.Command, args []string) {
	category, _ := cmd.Flags().GetString("category")
	importance, _ := cmd.Flags().GetInt("importance")
	ttl, _ := cmd.Flags().GetInt("ttl")

	var content string
	if len(args) > 0 {
		content = strings.Join(args, " ")
	} else {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				exitErr("read stdin", err)
			}
			content = string(b)
		}
	}
	if strings.TrimSpace(content) == "" {
		exitErr("save", fmt.Errorf("content is required (positional arg or stdin)"))
	}

	req := types.SaveRequest{
		Content:  content,
		Category: category,
		TTLHours: ttl,
	}
	if importance != 0 {
		req.Importance = &importance
	}

	eng, _, err := openEngine()
	if err != nil {
		exitErr("open", err)
	}
	defer eng.Close()

	rec, err := eng.Save(cmd.Context(), agentID(), req)
	if err != nil {
		exitErr("save", err)
	}

	if formatFlag == "text" {
		fmt.Printf("saved [%d] %s/%d\n", rec.ID, rec.Category, rec.Importance)
		return
	}
	printJSON(rec)
}
