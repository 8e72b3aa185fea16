// Package pipeline wires image loading, palette analysis and the palette
// archive into a single extraction step shared by the CLI and the server.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/MeKo-Tech/huewheel/internal/analysis"
	"github.com/MeKo-Tech/huewheel/internal/imageload"
	"github.com/MeKo-Tech/huewheel/internal/palettedb"
)

// Store is the part of the palette archive the extractor needs.
type Store interface {
	Lookup(ctx context.Context, key palettedb.Key) (*palettedb.Entry, error)
	Save(ctx context.Context, e palettedb.Entry) (int64, error)
}

// Config configures an Extractor.
type Config struct {
	Params analysis.Params
	Load   imageload.Options
	// Store is optional; without it every image is analysed.
	Store Store
	// WheelDir, when set, receives one <name>.wheel.png per extracted image.
	WheelDir string
	Logger   *slog.Logger
}

// Output is the result of extracting one image.
type Output struct {
	Source       string            `json:"source"`
	Fingerprint  string            `json:"fingerprint"`
	VisibleCells int               `json:"visible_cells"`
	Palette      []analysis.Swatch `json:"palette"`
	Cached       bool              `json:"cached"`
	// Iterations is the number of k-means rounds; zero for archived palettes.
	Iterations int    `json:"iterations,omitempty"`
	WheelPath  string `json:"wheel_path,omitempty"`
	// WheelPNG is the encoded wheel with centroid markers.
	WheelPNG []byte `json:"-"`
}

// Extractor turns images into palettes.
type Extractor struct {
	analyzer *analysis.Analyzer
	store    Store
	logger   *slog.Logger
	wheelDir string
	load     imageload.Options
}

// NewExtractor validates the configuration and prepares an extractor.
func NewExtractor(cfg Config) (*Extractor, error) {
	a, err := analysis.NewAnalyzer(cfg.Params, cfg.Logger)
	if err != nil {
		return nil, err
	}
	return &Extractor{
		analyzer: a,
		store:    cfg.Store,
		logger:   cfg.Logger,
		wheelDir: cfg.WheelDir,
		load:     cfg.Load,
	}, nil
}

// Params returns the analysis parameters in use.
func (e *Extractor) Params() analysis.Params {
	return e.analyzer.Params()
}

// ExtractFile loads the image at path and extracts its palette.
func (e *Extractor) ExtractFile(ctx context.Context, path string, force bool) (*Output, error) {
	e.log().Debug("Loading image", "path", path)
	img, err := imageload.Load(path, e.load)
	if err != nil {
		return nil, err
	}
	return e.ExtractImage(ctx, path, img.Pixels, force)
}

// ExtractImage extracts the palette of an already decoded image. Unless force
// is set, a palette archived for the same pixels and settings is reused.
func (e *Extractor) ExtractImage(ctx context.Context, source string, img image.Image, force bool) (*Output, error) {
	params := e.analyzer.Params()
	key := palettedb.Key{
		Fingerprint: analysis.Fingerprint(img),
		Clusters:    params.Clusters,
		Seed:        params.Seed,
		WheelSize:   params.WheelSize,
	}

	if e.store != nil && !force {
		entry, err := e.store.Lookup(ctx, key)
		switch {
		case err == nil && len(entry.WheelPNG) > 0:
			e.log().Info("Palette already archived; skipping analysis", "source", source, "fingerprint", key.Fingerprint)
			out := &Output{
				Source:       source,
				Fingerprint:  entry.Fingerprint,
				VisibleCells: entry.VisibleCells,
				Palette:      entry.Swatches,
				Cached:       true,
				WheelPNG:     entry.WheelPNG,
			}
			return out, e.writeWheel(out)
		case err != nil && !errors.Is(err, palettedb.ErrNotFound):
			return nil, fmt.Errorf("failed to look up palette: %w", err)
		}
	}

	report, err := e.analyzer.AnalyzeFingerprinted(ctx, img, key.Fingerprint)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, report.Wheel); err != nil {
		return nil, fmt.Errorf("failed to encode wheel: %w", err)
	}

	out := &Output{
		Source:       source,
		Fingerprint:  report.Fingerprint,
		VisibleCells: report.VisibleCells,
		Palette:      report.Palette,
		Iterations:   report.Iterations,
		WheelPNG:     buf.Bytes(),
	}

	if e.store != nil {
		if _, err := e.store.Save(ctx, palettedb.FromReport(report, params, source, out.WheelPNG)); err != nil {
			return nil, fmt.Errorf("failed to archive palette: %w", err)
		}
	}

	return out, e.writeWheel(out)
}

func (e *Extractor) writeWheel(out *Output) error {
	if e.wheelDir == "" {
		return nil
	}
	if err := os.MkdirAll(e.wheelDir, 0o755); err != nil {
		return fmt.Errorf("failed to create wheel dir: %w", err)
	}

	out.WheelPath = filepath.Join(e.wheelDir, WheelName(out.Source))
	e.log().Debug("Writing wheel", "path", out.WheelPath)
	if err := os.WriteFile(out.WheelPath, out.WheelPNG, 0o644); err != nil {
		return fmt.Errorf("failed to write wheel: %w", err)
	}
	return nil
}

// WheelName derives the wheel file name for a source image path.
func WheelName(source string) string {
	base := filepath.Base(source)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "image"
	}
	return base + ".wheel.png"
}

func (e *Extractor) log() *slog.Logger {
	if e.logger != nil {
		return e.logger
	}
	return slog.Default()
}
