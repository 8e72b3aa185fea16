// Package colorspace maps between HSV colors, RGB colors and cells of the
// hue/saturation color wheel.
//
// The wheel places hue on the angle and saturation on the distance from the
// center. Saturation is squared on the way out and square-rooted on the way
// back, which gives the low-saturation region more room on screen.
package colorspace

import (
	"fmt"
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// HueOffset rotates the wheel so that hue 0 sits at the chosen visual origin.
const HueOffset = 150.0

// HSV is a color in hue (degrees, [0,360)), saturation and value ([0,1]).
type HSV struct {
	H float64
	S float64
	V float64
}

// RGB is an 8-bit color. Alpha is tracked by the pixel buffers, not here.
type RGB struct {
	R uint8
	G uint8
	B uint8
}

// Coord is a wheel cell in buffer space. The wheel center is at (radius, radius).
type Coord struct {
	X int
	Y int
}

// Offset returns the offset of c from the wheel center.
func (c Coord) Offset(radius int) (dx, dy float64) {
	return float64(c.X - radius), float64(c.Y - radius)
}

// InDisk reports whether c lies on the wheel disk of the given radius.
func (c Coord) InDisk(radius int) bool {
	dx := c.X - radius
	dy := c.Y - radius
	return dx*dx+dy*dy <= radius*radius
}

// String returns the coordinate as "x,y".
func (c Coord) String() string {
	return fmt.Sprintf("%d,%d", c.X, c.Y)
}

// ClipHue wraps h into [0,360).
func ClipHue(h float64) float64 {
	if math.IsNaN(h) || math.IsInf(h, 0) {
		return 0
	}
	if h >= 0 && h < 360 {
		return h
	}
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	// A tiny negative h rounds up to exactly 360 above.
	if h >= 360 {
		h = 0
	}
	return h
}

// ToWheelCoordinate maps a hue/saturation pair to a wheel cell in buffer space.
// A NaN hue (achromatic color) is treated as 0.
func ToWheelCoordinate(h, s float64, radius int) Coord {
	if math.IsNaN(h) {
		h = 0
	}
	r := float64(radius)
	l := s * s * r
	rads := (h - HueOffset) * math.Pi / 180

	return Coord{
		X: int(math.Round(l*math.Cos(rads))) + radius,
		Y: int(math.Round(l*math.Sin(rads))) + radius,
	}
}

// ToHSV maps an offset from the wheel center back to hue, saturation and the
// lightness used to shade the wheel backdrop. The offset must lie on the disk;
// callers filter out-of-disk offsets first.
//
// radius must be positive.
func ToHSV(dx, dy float64, radius int) (h, s, lightness float64) {
	if radius <= 0 {
		panic(fmt.Sprintf("colorspace: radius must be positive, got %d", radius))
	}
	r := float64(radius)
	l := math.Hypot(dx, dy)

	if l > 0 {
		h = ClipHue(math.Atan2(dy, dx)*180/math.Pi + HueOffset)
	}
	s = math.Sqrt(l / r)
	lightness = (l/r)*0.5 + 0.5
	return h, s, lightness
}

// HSVAt returns the color drawn at wheel cell c: the cell's hue and saturation
// with the backdrop lightness as value.
func HSVAt(c Coord, radius int) HSV {
	dx, dy := c.Offset(radius)
	h, s, l := ToHSV(dx, dy, radius)
	return HSV{H: h, S: s, V: l}
}

// HSVToRGB converts an HSV color to 8-bit RGB.
func HSVToRGB(h, s, v float64) RGB {
	r, g, b := colorful.Hsv(ClipHue(h), clamp01(s), clamp01(v)).Clamped().RGB255()
	return RGB{R: r, G: g, B: b}
}

// RGBToHSV converts an 8-bit RGB color to HSV. Fully desaturated colors have
// no defined hue; they get h = 0.
func RGBToHSV(c RGB) HSV {
	h, s, v := colorful.Color{
		R: float64(c.R) / 255,
		G: float64(c.G) / 255,
		B: float64(c.B) / 255,
	}.Hsv()
	if math.IsNaN(h) {
		h = 0
	}
	return HSV{H: h, S: s, V: v}
}

// RGB converts the color to 8-bit RGB.
func (c HSV) RGB() RGB {
	return HSVToRGB(c.H, c.S, c.V)
}

// Coord returns the wheel cell for the color's hue and saturation.
func (c HSV) Coord(radius int) Coord {
	return ToWheelCoordinate(c.H, c.S, radius)
}

// NRGBA returns the color as a non-premultiplied color with the given alpha.
func (c RGB) NRGBA(alpha uint8) color.NRGBA {
	return color.NRGBA{R: c.R, G: c.G, B: c.B, A: alpha}
}

// Hex returns the color as a lowercase "#rrggbb" string.
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// FromColor converts any color to RGB, dropping alpha. Premultiplied colors
// are un-premultiplied first.
func FromColor(c color.Color) RGB {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	return RGB{R: n.R, G: n.G, B: n.B}
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
