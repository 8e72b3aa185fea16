// Package analysis wires rasterization, clustering and pick seeding into a
// single palette extraction step.
package analysis

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"math/rand"
	"time"

	"github.com/MeKo-Tech/huewheel/internal/cluster"
	"github.com/MeKo-Tech/huewheel/internal/colorspace"
	"github.com/MeKo-Tech/huewheel/internal/picks"
	"github.com/MeKo-Tech/huewheel/internal/wheel"
)

// Params configures an analysis run.
type Params struct {
	// WheelSize is the side of the square wheel buffer in device pixels.
	WheelSize     int
	Clusters      int
	Seed          int64
	MaxIterations int
	Workers       int
	// MarkerRadius is the radius of the centroid dots; 0 disables markers.
	MarkerRadius float64
	MarkerColor  color.NRGBA
}

// DefaultParams returns the settings used by the CLI and server.
func DefaultParams() Params {
	return Params{
		WheelSize:     300,
		Clusters:      5,
		Seed:          1337,
		MaxIterations: cluster.DefaultMaxIterations,
		MarkerRadius:  wheel.DefaultMarkerRadius,
		MarkerColor:   color.NRGBA{A: 255},
	}
}

// Validate checks the parameters before any work is done.
func (p Params) Validate() error {
	if p.WheelSize < 2 {
		return fmt.Errorf("wheel size must be at least 2, got %d", p.WheelSize)
	}
	if p.Clusters < 1 {
		return fmt.Errorf("%w: got %d", cluster.ErrInvalidK, p.Clusters)
	}
	if p.MarkerRadius < 0 {
		return errors.New("marker radius must not be negative")
	}
	return nil
}

// Swatch is one extracted palette color.
type Swatch struct {
	HSV      colorspace.HSV   `json:"hsv"`
	RGB      colorspace.RGB   `json:"rgb"`
	Hex      string           `json:"hex"`
	Coord    colorspace.Coord `json:"coord"`
	Centroid [2]float64       `json:"centroid"`
	// Weight is the share of visible wheel cells assigned to this swatch.
	Weight float64 `json:"weight"`
}

// Report is the result of analysing one image. The caller owns Wheel.
type Report struct {
	Wheel        *image.NRGBA  `json:"-"`
	Fingerprint  string        `json:"fingerprint"`
	Radius       int           `json:"radius"`
	VisibleCells int           `json:"visible_cells"`
	Palette      []Swatch      `json:"palette"`
	Iterations   int           `json:"iterations"`
	Converged    bool          `json:"converged"`
	Elapsed      time.Duration `json:"elapsed"`
}

// Picks returns a fresh pick state seeded with the palette, in order.
func (r *Report) Picks() *picks.State {
	colors := make([]colorspace.HSV, len(r.Palette))
	for i, s := range r.Palette {
		colors[i] = s.HSV
	}
	return picks.FromColors(colors)
}

// Analyzer extracts palettes with fixed parameters.
type Analyzer struct {
	logger *slog.Logger
	params Params
}

// NewAnalyzer validates params and prepares an analyzer.
func NewAnalyzer(params Params, logger *slog.Logger) (*Analyzer, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Analyzer{params: params, logger: logger}, nil
}

// Params returns the analyzer's parameters.
func (a *Analyzer) Params() Params {
	return a.params
}

// Analyze rasterizes img onto the wheel, clusters the visible cells and
// converts the centroids to colors. img is read but never retained.
func (a *Analyzer) Analyze(ctx context.Context, img image.Image) (*Report, error) {
	return a.AnalyzeFingerprinted(ctx, img, Fingerprint(img))
}

// AnalyzeFingerprinted is Analyze for callers that already hashed img with
// Fingerprint. The report carries fingerprint as given.
func (a *Analyzer) AnalyzeFingerprinted(ctx context.Context, img image.Image, fingerprint string) (*Report, error) {
	start := time.Now()
	p := a.params

	renderer, err := wheel.NewRenderer(p.WheelSize, p.WheelSize, wheel.Options{
		Workers: p.Workers,
		Logger:  a.logger,
	})
	if err != nil {
		return nil, err
	}

	a.log().Debug("Rasterizing wheel", "wheel_size", p.WheelSize)
	raster, err := renderer.Rasterize(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("failed to rasterize wheel: %w", err)
	}

	a.log().Debug("Clustering visible cells", "cells", raster.Visible.Len(), "k", p.Clusters)
	res, err := cluster.KMeansContext(ctx, raster.Visible.Sorted(), p.Clusters,
		rand.New(rand.NewSource(p.Seed)), cluster.Options{MaxIterations: p.MaxIterations})
	if err != nil {
		return nil, fmt.Errorf("failed to cluster wheel cells: %w", err)
	}

	if p.MarkerRadius > 0 {
		wheel.DrawMarkers(raster.Wheel, res.Centroids, p.MarkerRadius, p.MarkerColor)
	}

	report := &Report{
		Wheel:        raster.Wheel,
		Fingerprint:  fingerprint,
		Radius:       raster.Radius,
		VisibleCells: raster.Visible.Len(),
		Palette:      buildPalette(res, raster.Radius, raster.Visible.Len()),
		Iterations:   res.Iterations,
		Converged:    res.Converged,
		Elapsed:      time.Since(start),
	}

	a.log().Info("Extracted palette",
		"colors", len(report.Palette),
		"visible_cells", report.VisibleCells,
		"iterations", report.Iterations,
		"elapsed", report.Elapsed,
	)
	return report, nil
}

func buildPalette(res cluster.Result, radius, visible int) []Swatch {
	colors := res.Colors(radius)
	coords := res.Coords()

	out := make([]Swatch, len(colors))
	for i, c := range colors {
		rgb := c.RGB()
		out[i] = Swatch{
			HSV:      c,
			RGB:      rgb,
			Hex:      rgb.Hex(),
			Coord:    coords[i],
			Centroid: [2]float64{res.Centroids[i].X(), res.Centroids[i].Y()},
		}
		if visible > 0 {
			out[i].Weight = float64(res.Sizes[i]) / float64(visible)
		}
	}
	return out
}

// Fingerprint identifies an image by its dimensions and pixels.
func Fingerprint(img image.Image) string {
	h := sha256.New()
	if img == nil {
		return hex.EncodeToString(h.Sum(nil))
	}

	b := img.Bounds()
	var dims [8]byte
	binary.BigEndian.PutUint32(dims[0:4], uint32(b.Dx()))
	binary.BigEndian.PutUint32(dims[4:8], uint32(b.Dy()))
	h.Write(dims[:])

	if n, ok := img.(*image.NRGBA); ok {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			off := n.PixOffset(b.Min.X, y)
			h.Write(n.Pix[off : off+b.Dx()*4])
		}
		return hex.EncodeToString(h.Sum(nil))
	}

	px := make([]byte, 4)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			px[0], px[1], px[2], px[3] = c.R, c.G, c.B, c.A
			h.Write(px)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (a *Analyzer) log() *slog.Logger {
	if a.logger != nil {
		return a.logger
	}
	return slog.Default()
}
