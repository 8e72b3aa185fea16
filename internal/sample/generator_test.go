package sample

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/huewheel/internal/analysis"
	"github.com/MeKo-Tech/huewheel/internal/colorspace"
)

func hueDistance(a, b float64) float64 {
	d := math.Abs(a - b)
	if d > 180 {
		d = 360 - d
	}
	return d
}

func TestGenerateUsesOnlyGivenHues(t *testing.T) {
	p := DefaultParams()
	p.Width, p.Height = 96, 64

	img, err := Generate(p)
	require.NoError(t, err)
	require.Equal(t, 96, img.Bounds().Dx())
	require.Equal(t, 64, img.Bounds().Dy())

	seen := map[float64]bool{}
	for y := 0; y < 64; y++ {
		for x := 0; x < 96; x++ {
			c := img.NRGBAAt(x, y)
			require.Equal(t, uint8(255), c.A)

			hsv := colorspace.RGBToHSV(colorspace.RGB{R: c.R, G: c.G, B: c.B})
			best := math.Inf(1)
			var bestHue float64
			for _, h := range p.Hues {
				if d := hueDistance(hsv.H, h); d < best {
					best, bestHue = d, h
				}
			}
			require.Less(t, best, 3.0, "pixel (%d,%d) hue %.2f", x, y, hsv.H)
			seen[bestHue] = true
		}
	}
	assert.Greater(t, len(seen), 1, "expected more than one hue region")
}

func TestGenerateDeterministic(t *testing.T) {
	p := DefaultParams()
	p.Width, p.Height = 40, 30

	a, err := Generate(p)
	require.NoError(t, err)
	b, err := Generate(p)
	require.NoError(t, err)
	assert.Equal(t, a.Pix, b.Pix)

	p.Seed++
	c, err := Generate(p)
	require.NoError(t, err)
	assert.NotEqual(t, a.Pix, c.Pix)
}

func TestGenerateInvalidParams(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Params)
	}{
		{"zero width", func(p *Params) { p.Width = 0 }},
		{"no hues", func(p *Params) { p.Hues = nil }},
		{"saturation", func(p *Params) { p.Saturation = 1.5 }},
		{"scale", func(p *Params) { p.Scale = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.modify(&p)
			_, err := Generate(p)
			assert.Error(t, err)
		})
	}
}

func TestWriteSamples(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "samples")
	p := DefaultParams()
	p.Width, p.Height = 16, 16

	result, err := WriteSamples(dir, 2, p, false)
	require.NoError(t, err)
	require.Len(t, result.Written, 2)
	for _, path := range result.Written {
		_, err := os.Stat(path)
		require.NoError(t, err)
	}

	again, err := WriteSamples(dir, 2, p, false)
	require.NoError(t, err)
	assert.Empty(t, again.Written)
	assert.Len(t, again.Skipped, 2)

	_, err = WriteSamples(dir, 0, p, true)
	assert.Error(t, err)
}

func TestRegionIndexBounds(t *testing.T) {
	for _, v := range []float64{-5, -1, 0, 0.3, 1, 5} {
		i := regionIndex(v, 4)
		assert.GreaterOrEqual(t, i, 0)
		assert.Less(t, i, 4)
	}
	assert.Equal(t, 0, regionIndex(-1, 4))
	assert.Equal(t, 3, regionIndex(1, 4))
}

func BenchmarkAnalyzeSample(b *testing.B) {
	img, err := Generate(DefaultParams())
	if err != nil {
		b.Fatal(err)
	}
	a, err := analysis.NewAnalyzer(analysis.DefaultParams(), nil)
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := a.Analyze(context.Background(), img); err != nil {
			b.Fatal(err)
		}
	}
}
