package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"cineast/internal/usecase"
)

var setupClean bool

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Create the storage entities",
	Long: `Create the catalog entities and the entities of every enabled feature module.
Existing entities are left alone unless --clean is given, which drops everything first.

Examples:
  cineast setup
  cineast setup --clean`,
	Args: cobra.NoArgs,
	RunE: runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
	setupCmd.Flags().BoolVar(&setupClean, "clean", false, "drop all entities before creating them")
}

func runSetup(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	ctx := cmd.Context()

	b, err := openBackend(cfg, GetRootDir(), logger)
	if err != nil {
		return err
	}
	defer b.close()

	mods, err := enabledModules(cfg, logger)
	if err != nil {
		return err
	}
	seq := usecase.SetupSequence{Clean: setupClean, Layers: layers(mods)}
	if err := seq.Run(ctx, b.creator, logger); err != nil {
		return fmt.Errorf("setup failed: %w", err)
	}

	names, err := b.creator.Entities(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Entities:\n")
	for _, n := range names {
		fmt.Printf("  %-32s %d rows\n", n, b.count(ctx, n))
	}
	return nil
}
