package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/huewheel/internal/sample"
)

var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Generate synthetic images with a known palette",
	Long:  "Generate noise-based images painted with a fixed set of hues, for trying out and benchmarking extraction.",
	RunE:  runSample,
}

func init() {
	rootCmd.AddCommand(sampleCmd)

	d := sample.DefaultParams()
	hues := make([]string, len(d.Hues))
	for i, h := range d.Hues {
		hues[i] = strconv.FormatFloat(h, 'f', -1, 64)
	}

	sampleCmd.Flags().String("dir", "samples", "Output directory for generated images")
	sampleCmd.Flags().Int("count", 1, "Number of images to generate")
	sampleCmd.Flags().Int("width", d.Width, "Image width in pixels")
	sampleCmd.Flags().Int("height", d.Height, "Image height in pixels")
	sampleCmd.Flags().String("hues", strings.Join(hues, ","), "Comma-separated hues in degrees")
	sampleCmd.Flags().Float64("saturation", d.Saturation, "Base saturation (0..1)")
	sampleCmd.Flags().Float64("scale", d.Scale, "Noise feature size in pixels")
	sampleCmd.Flags().Int64("seed", d.Seed, "Deterministic seed for noise generation")
	sampleCmd.Flags().Bool("force", false, "Overwrite images that already exist")

	bindFlags(sampleCmd, []flagBinding{
		{"sample.dir", "dir"},
		{"sample.count", "count"},
		{"sample.width", "width"},
		{"sample.height", "height"},
		{"sample.hues", "hues"},
		{"sample.saturation", "saturation"},
		{"sample.scale", "scale"},
		{"sample.seed", "seed"},
		{"sample.force", "force"},
	})
}

func runSample(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	hues, err := parseHues(viper.GetString("sample.hues"))
	if err != nil {
		return fmt.Errorf("invalid hues: %w", err)
	}

	dir := viper.GetString("sample.dir")
	count := viper.GetInt("sample.count")
	force := viper.GetBool("sample.force")
	p := sample.Params{
		Width:      viper.GetInt("sample.width"),
		Height:     viper.GetInt("sample.height"),
		Hues:       hues,
		Saturation: viper.GetFloat64("sample.saturation"),
		Scale:      viper.GetFloat64("sample.scale"),
		Seed:       viper.GetInt64("sample.seed"),
	}

	result, err := sample.WriteSamples(dir, count, p, force)
	if err != nil {
		return err
	}

	logger.Info("Sample generation complete",
		"dir", dir,
		"written", len(result.Written),
		"skipped", len(result.Skipped),
	)
	return nil
}

// parseHues parses "h1,h2,..." into hue angles in degrees.
func parseHues(s string) ([]float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("at least one hue is required")
	}

	parts := strings.Split(s, ",")
	hues := make([]float64, 0, len(parts))
	for i, part := range parts {
		val, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number at position %d: %w", i, err)
		}
		if val < 0 || val >= 360 {
			return nil, fmt.Errorf("hue %.1f at position %d must be within [0,360)", val, i)
		}
		hues = append(hues, val)
	}
	return hues, nil
}
