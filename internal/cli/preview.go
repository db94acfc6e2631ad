package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cineast/internal/search"
)

var previewRows int

var previewCmd = &cobra.Command{
	Use:   "preview [entity]",
	Short: "Show stored entities or the first rows of one",
	Long: `Without an argument, list every stored entity with its row count.
With an entity name, print its first rows as JSON lines.

Examples:
  cineast preview
  cineast preview features_AverageColorRaster -n 3`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPreview,
}

func init() {
	rootCmd.AddCommand(previewCmd)
	previewCmd.Flags().IntVarP(&previewRows, "rows", "n", 10, "number of rows to show (0 for all)")
}

func runPreview(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	ctx := cmd.Context()

	b, err := openBackend(cfg, GetRootDir(), logger)
	if err != nil {
		return err
	}
	defer b.close()

	if len(args) == 0 {
		names, err := b.creator.Entities(ctx)
		if err != nil {
			return err
		}
		if len(names) == 0 {
			fmt.Println("No entities. Run 'cineast setup' first.")
		}
		for _, n := range names {
			fmt.Printf("%-32s %d rows\n", n, b.count(ctx, n))
		}
		return nil
	}

	sel := search.NewSelector(b.engine, logger)
	if err := sel.Open(ctx, args[0]); err != nil {
		return err
	}
	defer sel.Close()

	rows, err := sel.Preview(ctx, previewRows)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			return err
		}
	}
	return nil
}
