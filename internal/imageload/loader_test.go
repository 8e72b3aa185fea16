package imageload

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func solidImage(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestTargetSize(t *testing.T) {
	tests := []struct {
		name  string
		w, h  int
		opts  Options
		wantW int
		wantH int
	}{
		{"landscape shrinks", 1200, 800, Options{}, 600, 400},
		{"portrait shrinks", 300, 900, Options{}, 200, 600},
		{"small enlarges", 100, 50, Options{}, 600, 300},
		{"pixel ratio", 1200, 800, Options{PixelRatio: 2}, 1200, 800},
		{"custom box", 1000, 1000, Options{MaxWidth: 100, MaxHeight: 50}, 50, 50},
		{"fitting disabled", 37, 11, Options{MaxWidth: -1, MaxHeight: -1}, 37, 11},
		{"empty", 0, 10, Options{}, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := TargetSize(tt.w, tt.h, tt.opts)
			if w != tt.wantW || h != tt.wantH {
				t.Errorf("TargetSize(%d,%d) = %dx%d, want %dx%d", tt.w, tt.h, w, h, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestDecodeFitsAndKeepsColor(t *testing.T) {
	red := color.NRGBA{R: 255, A: 255}
	data := encodePNG(t, solidImage(1200, 600, red))

	img, err := Decode(bytes.NewReader(data), Options{})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if img.Format != "png" {
		t.Errorf("expected png format, got %q", img.Format)
	}
	if img.SourceWidth != 1200 || img.SourceHeight != 600 {
		t.Errorf("unexpected source size %dx%d", img.SourceWidth, img.SourceHeight)
	}
	if b := img.Pixels.Bounds(); b != image.Rect(0, 0, 600, 300) {
		t.Errorf("unexpected bounds %v", b)
	}
	if got := img.Pixels.NRGBAAt(300, 150); got != red {
		t.Errorf("resampled solid color changed: %v", got)
	}
}

func TestPrepareWithoutFittingCopies(t *testing.T) {
	src := image.NewRGBA(image.Rect(3, 4, 5, 6))
	src.Set(3, 4, color.RGBA{R: 10, G: 20, B: 30, A: 255})

	dst := Prepare(src, Options{MaxWidth: -1, MaxHeight: -1})
	if dst.Bounds() != image.Rect(0, 0, 2, 2) {
		t.Fatalf("expected origin-aligned 2x2 buffer, got %v", dst.Bounds())
	}
	if got := dst.NRGBAAt(0, 0); got != (color.NRGBA{R: 10, G: 20, B: 30, A: 255}) {
		t.Errorf("unexpected pixel %v", got)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode(bytes.NewReader([]byte("not an image")), Options{}); err == nil {
		t.Fatal("expected error for garbage input")
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blue.png")
	if err := os.WriteFile(path, encodePNG(t, solidImage(10, 10, color.NRGBA{B: 255, A: 255})), 0o644); err != nil {
		t.Fatal(err)
	}

	img, err := Load(path, Options{MaxWidth: 20, MaxHeight: 20})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if img.Pixels.Bounds().Dx() != 20 {
		t.Errorf("expected enlarged width 20, got %d", img.Pixels.Bounds().Dx())
	}

	_, err = Load(filepath.Join(dir, "missing.png"), Options{})
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}
