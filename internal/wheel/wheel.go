// Package wheel projects the pixels of an image onto the hue/saturation wheel.
package wheel

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"runtime"
	"sync"

	"github.com/MeKo-Tech/huewheel/internal/colorspace"
	"golang.org/x/image/draw"
)

const (
	// BackgroundAlpha is the alpha of wheel cells whose color is absent from the image.
	BackgroundAlpha = 75
	// VisibleAlpha is the alpha of wheel cells whose color appears in the image.
	VisibleAlpha = 255
)

// ErrInvalidSize is returned when the wheel bounding box is empty.
var ErrInvalidSize = errors.New("wheel size must be positive")

// Options configures a Renderer.
type Options struct {
	// Workers is the number of goroutines used per pass (default: GOMAXPROCS).
	Workers int
	Logger  *slog.Logger
}

// Result is the output of a rasterization. The caller owns every field.
type Result struct {
	Wheel   *image.NRGBA
	Visible *CoordSet
	Radius  int
}

// Renderer rasterizes images onto a wheel of a fixed size.
type Renderer struct {
	logger  *slog.Logger
	width   int
	height  int
	radius  int
	workers int
}

// NewRenderer creates a renderer for a width x height wheel buffer.
// The disk radius is min(width, height) / 2 and its center is (radius, radius).
func NewRenderer(width, height int, opts Options) (*Renderer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	radius := min(width, height) / 2
	if radius <= 0 {
		return nil, fmt.Errorf("%w: %dx%d leaves no radius", ErrInvalidSize, width, height)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	return &Renderer{
		logger:  opts.Logger,
		width:   width,
		height:  height,
		radius:  radius,
		workers: workers,
	}, nil
}

// Radius returns the disk radius in pixels.
func (r *Renderer) Radius() int {
	return r.radius
}

// Rasterize renders the wheel backdrop and marks every cell whose hue and
// saturation occur in img. A nil or empty image yields the backdrop alone.
//
// A cancelled context discards the partial buffer and returns ctx.Err().
func Rasterize(ctx context.Context, img image.Image, width, height int) (*Result, error) {
	r, err := NewRenderer(width, height, Options{})
	if err != nil {
		return nil, err
	}
	return r.Rasterize(ctx, img)
}

// Rasterize runs the background and visibility passes. See the package-level Rasterize.
func (r *Renderer) Rasterize(ctx context.Context, img image.Image) (*Result, error) {
	dst := image.NewNRGBA(image.Rect(0, 0, r.width, r.height))

	if err := r.renderBackground(ctx, dst); err != nil {
		return nil, err
	}

	visible, err := r.collectVisible(ctx, toNRGBA(img))
	if err != nil {
		return nil, err
	}
	for c := range visible.m {
		dst.Pix[dst.PixOffset(c.X, c.Y)+3] = VisibleAlpha
	}

	r.log().Debug("Rasterized wheel",
		"width", r.width,
		"height", r.height,
		"radius", r.radius,
		"visible_cells", visible.Len(),
	)

	return &Result{Wheel: dst, Visible: visible, Radius: r.radius}, nil
}

// renderBackground paints the static hue/saturation gradient. Each worker owns
// a disjoint band of output rows.
func (r *Renderer) renderBackground(ctx context.Context, dst *image.NRGBA) error {
	radius := r.radius
	r2 := radius * radius

	return parallelRows(ctx, r.height, r.workers, func(y0, y1 int) error {
		for y := y0; y < y1; y++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			dy := y - radius
			row := dst.Pix[y*dst.Stride : y*dst.Stride+r.width*4]
			for x := 0; x < r.width; x++ {
				dx := x - radius
				if dx*dx+dy*dy > r2 {
					continue
				}
				h, s, l := colorspace.ToHSV(float64(dx), float64(dy), radius)
				c := colorspace.HSVToRGB(h, s, l)
				i := x * 4
				row[i+0] = c.R
				row[i+1] = c.G
				row[i+2] = c.B
				row[i+3] = BackgroundAlpha
			}
		}
		return nil
	})
}

// collectVisible maps every opaque image pixel onto the wheel. Workers scan
// disjoint bands of image rows into private sets that are merged afterwards,
// so no two goroutines touch the same memory.
func (r *Renderer) collectVisible(ctx context.Context, src *image.NRGBA) (*CoordSet, error) {
	if src == nil || src.Bounds().Empty() {
		return NewCoordSet(0), nil
	}

	b := src.Bounds()
	rows := b.Dy()
	workers := min(r.workers, rows)
	partial := make([]*CoordSet, workers)

	err := parallelBands(ctx, rows, workers, func(band, y0, y1 int) error {
		set := NewCoordSet(256)
		for y := y0; y < y1; y++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			off := y * src.Stride
			for x := 0; x < b.Dx(); x++ {
				p := src.Pix[off+x*4 : off+x*4+4 : off+x*4+4]
				// Fully transparent pixels carry no color, so they are not counted as black.
				if p[3] == 0 {
					continue
				}
				hsv := colorspace.RGBToHSV(colorspace.RGB{R: p[0], G: p[1], B: p[2]})
				c := colorspace.ToWheelCoordinate(hsv.H, hsv.S, r.radius)
				// Rounding near the rim can land one cell past the buffer; drop it.
				if c.X < 0 || c.Y < 0 || c.X >= r.width || c.Y >= r.height {
					continue
				}
				set.Add(c)
			}
		}
		partial[band] = set
		return nil
	})
	if err != nil {
		return nil, err
	}

	merged := NewCoordSet(0)
	for _, set := range partial {
		merged.Merge(set)
	}
	return merged, nil
}

func (r *Renderer) log() *slog.Logger {
	if r.logger != nil {
		return r.logger
	}
	return slog.Default()
}

// parallelRows splits [0, rows) into contiguous bands, one per worker.
func parallelRows(ctx context.Context, rows, workers int, fn func(y0, y1 int) error) error {
	return parallelBands(ctx, rows, workers, func(_ int, y0, y1 int) error {
		return fn(y0, y1)
	})
}

func parallelBands(ctx context.Context, rows, workers int, fn func(band, y0, y1 int) error) error {
	if rows <= 0 {
		return ctx.Err()
	}
	if workers <= 0 {
		workers = 1
	}
	if workers > rows {
		workers = rows
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	band := (rows + workers - 1) / workers
	for i := 0; i < workers; i++ {
		y0 := i * band
		y1 := min(y0+band, rows)
		if y0 >= y1 {
			continue
		}
		wg.Add(1)
		go func(i, y0, y1 int) {
			defer wg.Done()
			if err := fn(i, y0, y1); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(i, y0, y1)
	}
	wg.Wait()

	return firstErr
}

// toNRGBA returns img as an *image.NRGBA with its origin at (0,0).
func toNRGBA(img image.Image) *image.NRGBA {
	if img == nil {
		return nil
	}
	b := img.Bounds()
	if n, ok := img.(*image.NRGBA); ok && b.Min == (image.Point{}) {
		return n
	}
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
