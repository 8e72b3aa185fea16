package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/huewheel/internal/analysis"
	"github.com/MeKo-Tech/huewheel/internal/imageload"
	"github.com/MeKo-Tech/huewheel/internal/palettedb"
)

type flagBinding struct {
	key  string
	flag string
}

func bindFlags(cmd *cobra.Command, bindings []flagBinding) {
	for _, bf := range bindings {
		if err := viper.BindPFlag(bf.key, cmd.Flags().Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

// addAnalysisFlags registers the flags shared by every command that extracts
// palettes and binds them under prefix.
func addAnalysisFlags(cmd *cobra.Command, prefix string) {
	d := analysis.DefaultParams()

	cmd.Flags().IntP("clusters", "k", d.Clusters, "Number of palette colors")
	cmd.Flags().Int("wheel-size", d.WheelSize, "Wheel buffer size in pixels (square)")
	cmd.Flags().Int64("seed", d.Seed, "Seed for k-means++ initialization")
	cmd.Flags().Int("max-iterations", d.MaxIterations, "Maximum k-means iterations")
	cmd.Flags().Int("raster-workers", runtime.NumCPU(), "Goroutines used to rasterize one wheel")
	cmd.Flags().Float64("marker-radius", d.MarkerRadius, "Radius of centroid markers on the wheel (0 disables)")
	cmd.Flags().Int("max-width", imageload.DefaultMaxWidth, "Fit images into this width before analysis (-1 keeps the original size)")
	cmd.Flags().Int("max-height", imageload.DefaultMaxHeight, "Fit images into this height before analysis (-1 keeps the original size)")
	cmd.Flags().Float64("pixel-ratio", 1, "Device pixel ratio applied to the fitted size")

	bindFlags(cmd, []flagBinding{
		{prefix + ".clusters", "clusters"},
		{prefix + ".wheel_size", "wheel-size"},
		{prefix + ".seed", "seed"},
		{prefix + ".max_iterations", "max-iterations"},
		{prefix + ".raster_workers", "raster-workers"},
		{prefix + ".marker_radius", "marker-radius"},
		{prefix + ".max_width", "max-width"},
		{prefix + ".max_height", "max-height"},
		{prefix + ".pixel_ratio", "pixel-ratio"},
	})
}

func analysisParams(prefix string) (analysis.Params, error) {
	p := analysis.DefaultParams()
	p.Clusters = viper.GetInt(prefix + ".clusters")
	p.WheelSize = viper.GetInt(prefix + ".wheel_size")
	p.Seed = viper.GetInt64(prefix + ".seed")
	p.MaxIterations = viper.GetInt(prefix + ".max_iterations")
	p.Workers = viper.GetInt(prefix + ".raster_workers")
	p.MarkerRadius = viper.GetFloat64(prefix + ".marker_radius")

	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

func loadOptions(prefix string) (imageload.Options, error) {
	opts := imageload.Options{
		MaxWidth:   viper.GetInt(prefix + ".max_width"),
		MaxHeight:  viper.GetInt(prefix + ".max_height"),
		PixelRatio: viper.GetFloat64(prefix + ".pixel_ratio"),
	}
	if opts.PixelRatio <= 0 {
		return opts, fmt.Errorf("pixel ratio must be positive, got %v", opts.PixelRatio)
	}
	return opts, nil
}

// openArchive opens the palette archive named by --db, or returns nil when
// archiving is disabled.
func openArchive() (*palettedb.Store, error) {
	path := viper.GetString("db")
	if path == "" {
		return nil, nil
	}
	store, err := palettedb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open palette archive %s: %w", path, err)
	}
	logger.Debug("Palette archive opened", "path", path)
	return store, nil
}
