package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/huewheel/internal/pipeline"
	"github.com/MeKo-Tech/huewheel/internal/worker"
)

var extractCmd = &cobra.Command{
	Use:   "extract [image or directory]...",
	Short: "Extract color palettes from images",
	Long: `Extract a color palette from each image. Directories are searched
recursively for PNG, JPEG, GIF, WebP, BMP and TIFF files.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExtract,
}

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	addAnalysisFlags(extractCmd, "extract")

	extractCmd.Flags().String("output-dir", "", "Write one <name>.wheel.png per image into this directory")
	extractCmd.Flags().Bool("json", false, "Print palettes as JSON instead of text")
	extractCmd.Flags().IntP("workers", "w", 0, "Number of images processed in parallel (default: number of CPUs)")
	extractCmd.Flags().Bool("progress", false, "Show progress bar")
	extractCmd.Flags().Bool("force", false, "Recompute palettes that are already archived")
	extractCmd.Flags().Bool("allow-failures", false, "Exit successfully even if some images fail")

	bindFlags(extractCmd, []flagBinding{
		{"extract.output_dir", "output-dir"},
		{"extract.json", "json"},
		{"extract.workers", "workers"},
		{"extract.progress", "progress"},
		{"extract.force", "force"},
		{"extract.allow_failures", "allow-failures"},
	})
}

func runExtract(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	params, err := analysisParams("extract")
	if err != nil {
		return err
	}
	loadOpts, err := loadOptions("extract")
	if err != nil {
		return err
	}
	outputDir := viper.GetString("extract.output_dir")
	asJSON := viper.GetBool("extract.json")
	workers := viper.GetInt("extract.workers")
	showProgress := viper.GetBool("extract.progress")
	force := viper.GetBool("extract.force")
	allowFailures := viper.GetBool("extract.allow_failures")

	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	paths, err := collectImages(args)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no images found in %s", strings.Join(args, ", "))
	}

	cfg := pipeline.Config{
		Params:   params,
		Load:     loadOpts,
		WheelDir: outputDir,
		Logger:   logger,
	}
	store, err := openArchive()
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
		cfg.Store = store
	}

	ex, err := pipeline.NewExtractor(cfg)
	if err != nil {
		return fmt.Errorf("failed to init extractor: %w", err)
	}

	logger.Info("Starting palette extraction",
		"images", len(paths),
		"workers", workers,
		"clusters", params.Clusters,
		"wheel_size", params.WheelSize,
		"seed", params.Seed,
		"output_dir", outputDir,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Info("Received interrupt signal, cancelling...")
			cancel()
		case <-ctx.Done():
		}
	}()

	tasks := make([]worker.Task, len(paths))
	for i, p := range paths {
		tasks[i] = worker.Task{Path: p, Force: force}
	}

	var statusLine io.Writer
	if showProgress {
		statusLine = cmd.ErrOrStderr()
	}
	progress := worker.NewProgress(len(tasks), statusLine)
	pool := worker.New(worker.Config{
		Workers:    workers,
		Extractor:  ex,
		OnProgress: progress.Observe,
	})

	results := pool.Run(ctx, tasks)
	progress.Done()

	var (
		failedCount int
		outputs     []*pipeline.Output
	)
	for _, r := range results {
		if r.Err != nil {
			failedCount++
			logger.Error("Palette extraction failed", "path", r.Task.Path, "error", r.Err)
			continue
		}
		outputs = append(outputs, r.Output)
	}

	logger.Info(progress.Summary())

	if err := printOutputs(cmd.OutOrStdout(), outputs, asJSON); err != nil {
		return err
	}

	if failedCount > 0 {
		if allowFailures {
			logger.Warn("Some images failed, but continuing due to --allow-failures flag", "failed_count", failedCount)
			return nil
		}
		return fmt.Errorf("%d images failed", failedCount)
	}
	return nil
}

// collectImages expands args into a sorted, de-duplicated list of image
// files. Files named explicitly are kept whatever their extension.
func collectImages(args []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		p = filepath.Clean(p)
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", arg, err)
		}
		if !info.IsDir() {
			add(arg)
			continue
		}

		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && isImagePath(path) {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", arg, err)
		}
	}

	sort.Strings(out)
	return out, nil
}

func isImagePath(path string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(path))]
}

func printOutputs(w io.Writer, outputs []*pipeline.Output, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if outputs == nil {
			outputs = []*pipeline.Output{}
		}
		if err := enc.Encode(outputs); err != nil {
			return fmt.Errorf("failed to encode palettes: %w", err)
		}
		return nil
	}

	for _, out := range outputs {
		fmt.Fprintf(w, "%s\n", out.Source)
		for _, s := range out.Palette {
			fmt.Fprintf(w, "  %s  h=%5.1f s=%.2f v=%.2f  %5.1f%%\n", s.Hex, s.HSV.H, s.HSV.S, s.HSV.V, s.Weight*100)
		}
		if out.WheelPath != "" {
			fmt.Fprintf(w, "  wheel: %s\n", out.WheelPath)
		}
	}
	return nil
}
