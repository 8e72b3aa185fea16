package wheel

import (
	"image"
	"image/color"
	"math"

	"github.com/paulmach/orb"
	"golang.org/x/image/vector"
)

// DefaultMarkerRadius matches the dot size used to flag palette centroids.
const DefaultMarkerRadius = 5

// markerSegments is the polygon resolution of a marker disc.
const markerSegments = 32

// DrawMarkers fills an anti-aliased disc at each centroid. Centroids are in
// wheel buffer space. Markers are clipped to the buffer.
func DrawMarkers(dst *image.NRGBA, centroids []orb.Point, markerRadius float64, fill color.Color) {
	if dst == nil || len(centroids) == 0 {
		return
	}
	if markerRadius <= 0 {
		markerRadius = DefaultMarkerRadius
	}
	if fill == nil {
		fill = color.NRGBA{A: 255}
	}

	b := dst.Bounds()
	ras := vector.NewRasterizer(b.Dx(), b.Dy())

	for _, c := range centroids {
		// Sample the disc at pixel centers.
		cx := float32(c.X() + 0.5)
		cy := float32(c.Y() + 0.5)
		for i := 0; i <= markerSegments; i++ {
			a := 2 * math.Pi * float64(i) / markerSegments
			x := cx + float32(markerRadius*math.Cos(a))
			y := cy + float32(markerRadius*math.Sin(a))
			if i == 0 {
				ras.MoveTo(x, y)
			} else {
				ras.LineTo(x, y)
			}
		}
		ras.ClosePath()
	}

	ras.Draw(dst, b, image.NewUniform(fill), image.Point{})
}
