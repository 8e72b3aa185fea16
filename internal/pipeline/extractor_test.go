package pipeline

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/huewheel/internal/analysis"
	"github.com/MeKo-Tech/huewheel/internal/imageload"
	"github.com/MeKo-Tech/huewheel/internal/palettedb"
)

func writePrimaries(t *testing.T, dir string) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 255})
	img.SetNRGBA(1, 0, color.NRGBA{G: 255, A: 255})
	img.SetNRGBA(0, 1, color.NRGBA{B: 255, A: 255})
	img.SetNRGBA(1, 1, color.NRGBA{R: 255, G: 255, B: 255, A: 255})

	path := filepath.Join(dir, "primaries.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

func testConfig() Config {
	params := analysis.DefaultParams()
	params.WheelSize = 201
	params.Clusters = 4
	return Config{
		Params: params,
		Load:   imageload.Options{MaxWidth: -1, MaxHeight: -1},
	}
}

func TestExtractFileWithoutStore(t *testing.T) {
	dir := t.TempDir()
	path := writePrimaries(t, dir)

	cfg := testConfig()
	cfg.WheelDir = filepath.Join(dir, "wheels")
	ex, err := NewExtractor(cfg)
	require.NoError(t, err)

	out, err := ex.ExtractFile(context.Background(), path, false)
	require.NoError(t, err)
	assert.False(t, out.Cached)
	assert.Equal(t, 4, out.VisibleCells)
	assert.Len(t, out.Palette, 4)
	assert.Equal(t, filepath.Join(dir, "wheels", "primaries.wheel.png"), out.WheelPath)

	f, err := os.Open(out.WheelPath)
	require.NoError(t, err)
	defer f.Close()
	wheelImg, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 201, wheelImg.Bounds().Dx())
}

func TestExtractReusesArchivedPalette(t *testing.T) {
	dir := t.TempDir()
	path := writePrimaries(t, dir)

	store, err := palettedb.Open(filepath.Join(dir, "palettes.db"))
	require.NoError(t, err)
	defer store.Close()

	cfg := testConfig()
	cfg.Store = store
	ex, err := NewExtractor(cfg)
	require.NoError(t, err)

	ctx := context.Background()
	first, err := ex.ExtractFile(ctx, path, false)
	require.NoError(t, err)
	require.False(t, first.Cached)

	second, err := ex.ExtractFile(ctx, path, false)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.Equal(t, first.Palette, second.Palette)
	assert.Equal(t, first.WheelPNG, second.WheelPNG)

	forced, err := ex.ExtractFile(ctx, path, true)
	require.NoError(t, err)
	assert.False(t, forced.Cached)

	entries, err := store.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

type recordingStore struct {
	lookups []palettedb.Key
	saved   []palettedb.Entry
}

func (s *recordingStore) Lookup(_ context.Context, key palettedb.Key) (*palettedb.Entry, error) {
	s.lookups = append(s.lookups, key)
	return nil, palettedb.ErrNotFound
}

func (s *recordingStore) Save(_ context.Context, e palettedb.Entry) (int64, error) {
	s.saved = append(s.saved, e)
	return int64(len(s.saved)), nil
}

func TestExtractImageUsesOneFingerprint(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 3, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 200, G: 40, B: 40, A: 255})
	img.SetNRGBA(1, 0, color.NRGBA{R: 40, G: 200, B: 40, A: 255})
	img.SetNRGBA(2, 0, color.NRGBA{R: 40, G: 40, B: 200, A: 255})

	store := &recordingStore{}
	cfg := testConfig()
	cfg.Params.Clusters = 3
	cfg.Store = store
	ex, err := NewExtractor(cfg)
	require.NoError(t, err)

	out, err := ex.ExtractImage(context.Background(), "three.png", img, false)
	require.NoError(t, err)

	want := analysis.Fingerprint(img)
	assert.Equal(t, want, out.Fingerprint)
	require.Len(t, store.lookups, 1)
	require.Len(t, store.saved, 1)
	assert.Equal(t, want, store.lookups[0].Fingerprint)
	assert.Equal(t, store.lookups[0], store.saved[0].Key)
	assert.Positive(t, out.Iterations)
}

func TestExtractFileMissing(t *testing.T) {
	ex, err := NewExtractor(testConfig())
	require.NoError(t, err)

	_, err = ex.ExtractFile(context.Background(), filepath.Join(t.TempDir(), "nope.png"), false)
	assert.Error(t, err)
}

func TestNewExtractorRejectsInvalidParams(t *testing.T) {
	cfg := testConfig()
	cfg.Params.Clusters = 0
	_, err := NewExtractor(cfg)
	assert.Error(t, err)
}

func TestWheelName(t *testing.T) {
	tests := map[string]string{
		"photos/beach.jpg":   "beach.wheel.png",
		"sunset.tar.png":     "sunset.tar.wheel.png",
		"noext":              "noext.wheel.png",
		"":                   "image.wheel.png",
		"upload/.hidden.png": ".hidden.wheel.png",
	}
	for in, want := range tests {
		assert.Equal(t, want, WheelName(in), "source %q", in)
	}
}
