// Package imageload decodes source photographs and prepares their pixel buffers
// for analysis.
package imageload

import (
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"os"

	"github.com/disintegration/gift"

	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder

	_ "golang.org/x/image/bmp"  // Register BMP decoder
	_ "golang.org/x/image/tiff" // Register TIFF decoder
	_ "golang.org/x/image/webp" // Register WebP decoder
)

const (
	// DefaultMaxWidth and DefaultMaxHeight bound the analysed image. Larger
	// images are shrunk to fit, preserving aspect ratio.
	DefaultMaxWidth  = 600
	DefaultMaxHeight = 600
)

// ErrEmptyImage is returned when a decoded image has no pixels.
var ErrEmptyImage = errors.New("image has no pixels")

// Options controls how a decoded image is prepared.
type Options struct {
	// MaxWidth/MaxHeight bound the image in CSS pixels (0 uses the defaults,
	// negative disables fitting).
	MaxWidth  int
	MaxHeight int
	// PixelRatio scales the fitted size to device pixels (0 means 1).
	PixelRatio float64
}

// Image is a prepared pixel buffer together with its source metadata.
type Image struct {
	Pixels *image.NRGBA
	Format string
	// SourceWidth/SourceHeight are the dimensions before fitting.
	SourceWidth  int
	SourceHeight int
}

// Load opens and prepares the image at path.
func Load(path string, opts Options) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image %s: %w", path, err)
	}
	defer f.Close()

	img, err := Decode(f, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load image %s: %w", path, err)
	}
	return img, nil
}

// Decode reads an image in any registered format and prepares it.
func Decode(r io.Reader, opts Options) (*Image, error) {
	src, format, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if src.Bounds().Empty() {
		return nil, ErrEmptyImage
	}

	b := src.Bounds()
	return &Image{
		Pixels:       Prepare(src, opts),
		Format:       format,
		SourceWidth:  b.Dx(),
		SourceHeight: b.Dy(),
	}, nil
}

// Prepare fits src into the configured box, scales it to device pixels and
// returns a fresh NRGBA buffer with its origin at (0,0).
func Prepare(src image.Image, opts Options) *image.NRGBA {
	w, h := TargetSize(src.Bounds().Dx(), src.Bounds().Dy(), opts)

	filters := []gift.Filter{}
	if w != src.Bounds().Dx() || h != src.Bounds().Dy() {
		filters = append(filters, gift.Resize(w, h, gift.LinearResampling))
	}
	g := gift.New(filters...)

	db := g.Bounds(src.Bounds())
	dst := image.NewNRGBA(image.Rect(0, 0, db.Dx(), db.Dy()))
	g.Draw(dst, src)
	return dst
}

// TargetSize returns the device-pixel size of an image of w x h after fitting.
// Fitting scales by min(maxW/w, maxH/h), so small images are enlarged too.
func TargetSize(w, h int, opts Options) (int, int) {
	if w <= 0 || h <= 0 {
		return 0, 0
	}

	maxW, maxH := opts.MaxWidth, opts.MaxHeight
	if maxW == 0 {
		maxW = DefaultMaxWidth
	}
	if maxH == 0 {
		maxH = DefaultMaxHeight
	}
	ratio := opts.PixelRatio
	if ratio <= 0 {
		ratio = 1
	}

	scale := 1.0
	if maxW > 0 && maxH > 0 {
		scale = math.Min(float64(maxW)/float64(w), float64(maxH)/float64(h))
	}
	scale *= ratio

	tw := int(math.Round(float64(w) * scale))
	th := int(math.Round(float64(h) * scale))
	return max(tw, 1), max(th, 1)
}
