package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/huewheel/internal/pipeline"
)

func TestParseHues(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []float64
		wantErr bool
	}{
		{name: "single", input: "120", want: []float64{120}},
		{name: "with spaces", input: "10, 45 ,130", want: []float64{10, 45, 130}},
		{name: "fractional", input: "0,359.5", want: []float64{0, 359.5}},
		{name: "empty string", input: "", wantErr: true},
		{name: "invalid number", input: "10,abc", wantErr: true},
		{name: "negative", input: "-5", wantErr: true},
		{name: "full turn", input: "360", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseHues(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("parseHues(%q) expected error, got nil", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseHues(%q) unexpected error: %v", tt.input, err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("parseHues(%q) = %v, want %v", tt.input, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("parseHues(%q) = %v, want %v", tt.input, got, tt.want)
				}
			}
		})
	}
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestCollectImages(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "b.PNG"))
	touch(t, filepath.Join(dir, "a.jpg"))
	touch(t, filepath.Join(dir, "notes.txt"))
	touch(t, filepath.Join(dir, "nested", "c.webp"))
	explicit := filepath.Join(dir, "raw.dat")
	touch(t, explicit)

	got, err := collectImages([]string{dir, explicit, filepath.Join(dir, "a.jpg")})
	if err != nil {
		t.Fatalf("collectImages: %v", err)
	}

	want := []string{
		filepath.Join(dir, "a.jpg"),
		filepath.Join(dir, "b.PNG"),
		filepath.Join(dir, "nested", "c.webp"),
		explicit,
	}
	if len(got) != len(want) {
		t.Fatalf("collectImages = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("collectImages[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	if _, err := collectImages([]string{filepath.Join(dir, "missing")}); err == nil {
		t.Error("expected error for missing path")
	}
}

func TestSampleThenExtract(t *testing.T) {
	dir := t.TempDir()
	samples := filepath.Join(dir, "samples")
	wheels := filepath.Join(dir, "wheels")
	db := filepath.Join(dir, "palettes.db")

	rootCmd.SetArgs([]string{"sample", "--dir", samples, "--count", "2", "--width", "48", "--height", "32", "--hues", "0,120,240"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("sample: %v", err)
	}

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	defer rootCmd.SetOut(nil)

	rootCmd.SetArgs([]string{"extract", samples, "--db", db, "--json", "-k", "3", "--wheel-size", "101", "--output-dir", wheels, "--workers", "2"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("extract: %v", err)
	}

	var outputs []pipeline.Output
	if err := json.Unmarshal(out.Bytes(), &outputs); err != nil {
		t.Fatalf("decode extract output: %v\n%s", err, out.String())
	}
	if len(outputs) != 2 {
		t.Fatalf("expected 2 palettes, got %d", len(outputs))
	}
	for _, o := range outputs {
		if len(o.Palette) == 0 || len(o.Palette) > 3 {
			t.Errorf("%s: unexpected palette size %d", o.Source, len(o.Palette))
		}
		if _, err := os.Stat(o.WheelPath); err != nil {
			t.Errorf("%s: wheel not written: %v", o.Source, err)
		}
	}

	out.Reset()
	rootCmd.SetArgs([]string{"history", "--db", db, "--json"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("history: %v", err)
	}
	var items []historyItem
	if err := json.Unmarshal(out.Bytes(), &items); err != nil {
		t.Fatalf("decode history output: %v\n%s", err, out.String())
	}
	if len(items) != 2 {
		t.Errorf("expected 2 archived palettes, got %d", len(items))
	}
}
