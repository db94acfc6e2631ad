package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"cineast/internal/adapter/fs"
	"cineast/internal/framecache"
	"cineast/internal/port"
	"cineast/internal/segment"
	"cineast/internal/usecase"
)

var (
	extractManifest string
	extractImages   string
	extractPattern  string
	extractObject   string
	extractWorkers  int
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract features from segments",
	Long: `Extract the enabled features from the segments of one multimedia object.
Segments come either from a YAML manifest (a segmented video) or from a folder
of images, each image being one segment. Already extracted segments are skipped.

Examples:
  cineast extract --images ./photos
  cineast extract --images ./photos --pattern "**/*.png" --object holiday
  cineast extract --manifest clip.yaml`,
	Args: cobra.NoArgs,
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)
	extractCmd.Flags().StringVar(&extractManifest, "manifest", "", "segment manifest (yaml)")
	extractCmd.Flags().StringVar(&extractImages, "images", "", "directory of images, one segment per image")
	extractCmd.Flags().StringVar(&extractPattern, "pattern", fs.ImagePattern, "glob selecting images under --images")
	extractCmd.Flags().StringVar(&extractObject, "object", "", "object name for --images (default is the directory name)")
	extractCmd.Flags().IntVarP(&extractWorkers, "workers", "w", 0, "worker count (default from config)")
	extractCmd.MarkFlagsOneRequired("manifest", "images")
	extractCmd.MarkFlagsMutuallyExclusive("manifest", "images")
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	ctx := cmd.Context()

	var src port.SegmentSource
	if extractManifest != "" {
		m, err := fs.LoadManifest(extractManifest)
		if err != nil {
			return fmt.Errorf("failed to load manifest: %w", err)
		}
		src = m
	} else {
		root, err := filepath.Abs(extractImages)
		if err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}
		set, err := fs.NewImageSet(fs.NewWalker(), root, extractPattern, extractObject)
		if err != nil {
			return fmt.Errorf("failed to scan images: %w", err)
		}
		src = set
	}

	cacheCfg, err := cfg.FrameCache(logger)
	if err != nil {
		return err
	}
	mods, err := enabledModules(cfg, logger)
	if err != nil {
		return err
	}

	b, err := openBackend(cfg, GetRootDir(), logger)
	if err != nil {
		return err
	}
	defer b.close()

	if err := (usecase.SetupSequence{Layers: layers(mods)}).Run(ctx, b.creator, logger); err != nil {
		return fmt.Errorf("setup failed: %w", err)
	}
	cat, err := usecase.NewCatalog(b.writers).Write(ctx, src)
	if err != nil {
		return fmt.Errorf("failed to write catalog: %w", err)
	}

	frames := framecache.New(cacheCfg, logger)
	defer frames.Close()

	decoder := fs.ImageDecoder{}
	containers := make([]port.SegmentContainer, len(cat.Segments))
	for i, s := range cat.Segments {
		containers[i] = segment.New(s, decoder, frames)
	}
	extractors := make([]port.Extractor, len(mods))
	for i, m := range mods {
		extractors[i] = m
	}

	workers := cfg.Extraction.Workers
	if extractWorkers > 0 {
		workers = extractWorkers
	}
	d := usecase.NewDispatcher(extractors, usecase.FactoryInitializer(b.writers), usecase.DispatcherOptions{Workers: workers}, logger)

	fmt.Printf("Extracting %d segments of %s with %d modules...\n", len(containers), cat.Object.Name, len(mods))
	var (
		bar     *progressbar.ProgressBar
		barMu   sync.Mutex
		started = time.Now()
	)
	progress := func(done, total int) {
		barMu.Lock()
		defer barMu.Unlock()
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("[cyan]Extracting[reset]"),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]=[reset]",
					SaucerHead:    "[green]>[reset]",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
				progressbar.OptionOnCompletion(func() {
					fmt.Println()
				}),
			)
		}
		_ = bar.Set(done)
	}

	result, err := d.Run(ctx, containers, progress)
	if result != nil {
		stats := frames.Stats()
		fmt.Printf("\nExtraction complete:\n")
		fmt.Printf("  Object:           %s (%s)\n", cat.Object.Name, cat.Object.ID)
		fmt.Printf("  Segments:         %d (%d new in catalog)\n", result.Segments, cat.SegmentsWritten)
		fmt.Printf("  Feature rows:     %d written\n", result.Written)
		fmt.Printf("  Frame spills:     %d\n", stats.Spills)
		fmt.Printf("  Elapsed:          %s\n", formatDuration(time.Since(started)))
		if len(result.Failures) > 0 {
			fmt.Printf("\nFailures:\n")
			for _, f := range result.Failures {
				fmt.Printf("  - %v\n", f)
			}
		}
	}
	if err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}
	if b.bolt != nil {
		path := cfg.DBPath(GetRootDir())
		if info, err := os.Stat(path); err == nil {
			fmt.Printf("\nFeatures stored at: %s (%s)\n", path, humanize.IBytes(uint64(info.Size())))
		}
	}
	return nil
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
