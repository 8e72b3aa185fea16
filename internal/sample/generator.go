// Package sample generates synthetic photographs with a known set of hues.
// They feed the sample command, benchmarks and tests that need an image whose
// palette is known in advance.
package sample

import (
	"fmt"
	"image"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"github.com/aquilax/go-perlin"

	"github.com/MeKo-Tech/huewheel/internal/colorspace"
)

// Params defines a synthetic image.
type Params struct {
	Width  int
	Height int
	// Hues are the hues in degrees the image is painted with.
	Hues []float64
	// Saturation is the base saturation in [0,1]; noise lowers it by up to 0.4.
	Saturation float64
	// Scale is the noise feature size in pixels.
	Scale float64
	Seed  int64
}

// WriteResult reports which samples were written or skipped.
type WriteResult struct {
	Written []string
	Skipped []string
}

// DefaultParams returns a landscape-sized image with five well separated hues.
func DefaultParams() Params {
	return Params{
		Width:      320,
		Height:     240,
		Hues:       []float64{10, 45, 130, 210, 285},
		Saturation: 0.85,
		Scale:      40,
		Seed:       1337,
	}
}

func (p Params) validate() error {
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("size must be positive, got %dx%d", p.Width, p.Height)
	}
	if len(p.Hues) == 0 {
		return fmt.Errorf("at least one hue is required")
	}
	if p.Saturation < 0 || p.Saturation > 1 {
		return fmt.Errorf("saturation must be within [0,1]")
	}
	if p.Scale <= 0 {
		return fmt.Errorf("scale must be positive")
	}
	return nil
}

// Generate paints an opaque image whose pixels all carry one of p.Hues.
// One noise field picks the hue region, two more vary saturation and value.
func Generate(p Params) (*image.NRGBA, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	regions := perlin.NewPerlin(2.0, 2.0, 3, p.Seed)
	shade := perlin.NewPerlin(2.0, 2.0, 3, p.Seed+1)
	grain := perlin.NewPerlin(2.0, 2.0, 2, p.Seed+2)

	img := image.NewNRGBA(image.Rect(0, 0, p.Width, p.Height))
	for y := 0; y < p.Height; y++ {
		ny := float64(y) / p.Scale
		for x := 0; x < p.Width; x++ {
			nx := float64(x) / p.Scale

			hue := p.Hues[regionIndex(regions.Noise2D(nx, ny), len(p.Hues))]
			v := 0.5 + 0.5*unit(shade.Noise2D(nx*2, ny*2))
			s := p.Saturation - 0.4*unit(grain.Noise2D(nx*4, ny*4))

			c := colorspace.HSV{H: colorspace.ClipHue(hue), S: clamp01(s), V: v}
			img.SetNRGBA(x, y, c.RGB().NRGBA(255))
		}
	}
	return img, nil
}

// WriteSamples writes count PNG samples into dir. Each sample uses its own
// seed derived from p.Seed.
func WriteSamples(dir string, count int, p Params, overwrite bool) (WriteResult, error) {
	result := WriteResult{}
	if count <= 0 {
		return result, fmt.Errorf("count must be positive")
	}
	if err := p.validate(); err != nil {
		return result, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return result, fmt.Errorf("failed to create sample dir: %w", err)
	}

	for i := 0; i < count; i++ {
		path := filepath.Join(dir, fmt.Sprintf("sample-%02d.png", i))
		if !overwrite {
			if _, err := os.Stat(path); err == nil {
				result.Skipped = append(result.Skipped, path)
				continue
			}
		}

		sp := p
		sp.Seed = p.Seed + int64(i)*1000
		img, err := Generate(sp)
		if err != nil {
			return result, err
		}
		if err := writePNG(path, img); err != nil {
			return result, err
		}
		result.Written = append(result.Written, path)
	}
	return result, nil
}

func writePNG(path string, img image.Image) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create sample %s: %w", path, err)
	}
	defer file.Close()

	if err := png.Encode(file, img); err != nil {
		return fmt.Errorf("failed to encode sample %s: %w", path, err)
	}
	return nil
}

// regionIndex maps a noise value to one of n bands. Perlin output clusters
// around zero, so it is stretched before banding to reach the outer hues.
func regionIndex(val float64, n int) int {
	i := int(math.Floor(unit(val*1.8) * float64(n)))
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// unit maps roughly [-1,1] noise to [0,1].
func unit(val float64) float64 {
	return clamp01((val + 1) / 2)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
