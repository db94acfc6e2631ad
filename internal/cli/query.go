package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"cineast/internal/adapter/cache"
	"cineast/internal/adapter/fs"
	"cineast/internal/domain"
	"cineast/internal/port"
	"cineast/internal/search"
	"cineast/internal/segment"
	"cineast/internal/usecase"
)

var (
	querySegment  string
	queryImage    string
	queryCategory []string
	queryModule   string
	queryTopK     int
	queryJSON     bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Find segments similar to a stored segment or an example image",
	Long: `Run a similarity query for each requested category (default: all configured
categories) and print the merged ranking. Lower distances are closer.

Examples:
  cineast query --id v_photos_3
  cineast query --image probe.jpg --category globalcolor -k 10
  cineast query --id v_clip_12 --module AverageColorRaster --json`,
	Args: cobra.NoArgs,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVar(&querySegment, "id", "", "id of a stored segment to query with")
	queryCmd.Flags().StringVar(&queryImage, "image", "", "example image to query with")
	queryCmd.Flags().StringSliceVar(&queryCategory, "category", nil, "categories to run (default all)")
	queryCmd.Flags().StringVar(&queryModule, "module", "", "query a single module instead of categories")
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of results (default from config)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
	queryCmd.MarkFlagsOneRequired("id", "image")
	queryCmd.MarkFlagsMutuallyExclusive("id", "image")
	queryCmd.MarkFlagsMutuallyExclusive("category", "module")
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	ctx := cmd.Context()

	if cfg.Database.Engine == "bolt" {
		if _, err := os.Stat(cfg.DBPath(GetRootDir())); os.IsNotExist(err) {
			return fmt.Errorf("no features found. Run 'cineast extract' first")
		}
	}

	q := usecase.Query{SegmentID: querySegment, Limit: queryTopK}
	if queryImage != "" {
		img, err := fs.ImageDecoder{}.Decode(ctx, queryImage)
		if err != nil {
			return fmt.Errorf("failed to decode %s: %w", queryImage, err)
		}
		example, err := segment.FromImage("query", img)
		if err != nil {
			return err
		}
		q.Example = example
	}

	b, err := openBackend(cfg, GetRootDir(), logger)
	if err != nil {
		return err
	}
	defer b.close()

	mods, err := enabledModules(cfg, logger)
	if err != nil {
		return err
	}
	results := cache.NewQueryCache(len(mods)*max(len(cfg.Retrieve.Categories), 1), time.Minute)
	selectors := search.Factory{Engine: b.engine, Logger: logger}
	retrievers := make([]port.Retriever, len(mods))
	for i, m := range mods {
		if err := m.InitSelector(selectors.NewSelector()); err != nil {
			return fmt.Errorf("module %s: %w", m.Name(), err)
		}
		defer m.Finish()
		retrievers[i] = cache.NewCachedRetriever(m, results)
	}

	qc, err := cfg.QueryConfig()
	if err != nil {
		return err
	}
	cats, err := categories(cfg)
	if err != nil {
		return err
	}
	if queryModule != "" {
		cats = nil
	}
	uc, err := usecase.NewRetrieveUseCase(retrievers, cats, qc, logger)
	if err != nil {
		return err
	}

	var batch *domain.ResultBatch
	if queryModule != "" {
		content, err := uc.Module(ctx, q, queryModule)
		if err != nil {
			return err
		}
		batch = &domain.ResultBatch{
			Categories: []string{queryModule},
			Results:    []domain.CategoryResult{{Category: queryModule, Content: content}},
		}
	} else {
		batch, err = uc.Retrieve(ctx, q, queryCategory...)
		if err != nil {
			return err
		}
	}

	if queryJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(batch)
	}

	for _, r := range batch.Results {
		fmt.Printf("\n=== %s (%d results) ===\n", r.Category, len(r.Content))
		for i, res := range r.Content {
			fmt.Printf("%3d. %-40s %.6f\n", i+1, res.ID, res.Distance)
		}
	}
	return nil
}
