//go:build js && wasm
// +build js,wasm

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"syscall/js"

	"github.com/MeKo-Tech/huewheel/internal/analysis"
	"github.com/MeKo-Tech/huewheel/internal/colorspace"
	"github.com/MeKo-Tech/huewheel/internal/picks"
)

// session holds the image currently shown by the page and its picks. A newer
// huewheelAnalyze call supersedes one that is still running.
var session = analysis.NewSession(nil)

func errorResult(format string, args ...any) map[string]any {
	return map[string]any{"error": fmt.Sprintf(format, args...)}
}

// analyze is called from JavaScript as
// huewheelAnalyze(rgbaBytes, width, height, wheelSize, k, seed).
// rgbaBytes holds non-premultiplied RGBA rows as returned by getImageData.
// It returns a Promise resolving to the report as JSON and the wheel as RGBA
// bytes, or to {stale: true} when a later call replaced this image.
func analyze(this js.Value, args []js.Value) any {
	if len(args) < 6 {
		return errorResult("expected 6 arguments, got %d", len(args))
	}

	width, height := args[1].Int(), args[2].Int()
	if width < 0 || height < 0 {
		return errorResult("invalid image size %dx%d", width, height)
	}
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	if n := js.CopyBytesToGo(img.Pix, args[0]); n != len(img.Pix) {
		return errorResult("expected %d bytes of pixel data, got %d", len(img.Pix), n)
	}

	params := analysis.DefaultParams()
	params.WheelSize = args[3].Int()
	params.Clusters = args[4].Int()
	params.Seed = int64(args[5].Int())
	params.Workers = 1

	a, err := analysis.NewAnalyzer(params, nil)
	if err != nil {
		return errorResult("%v", err)
	}

	executor := js.FuncOf(func(this js.Value, p []js.Value) any {
		resolve := p[0]
		go func() {
			resolve.Invoke(load(a, img))
		}()
		return nil
	})
	defer executor.Release()
	return js.Global().Get("Promise").New(executor)
}

func load(a *analysis.Analyzer, img image.Image) map[string]any {
	report, err := session.LoadWith(context.Background(), a, img)
	if errors.Is(err, analysis.ErrStale) {
		return map[string]any{"stale": true}
	}
	if err != nil {
		return errorResult("%v", err)
	}

	body, err := json.Marshal(report)
	if err != nil {
		return errorResult("failed to encode report: %v", err)
	}

	wheel := js.Global().Get("Uint8ClampedArray").New(len(report.Wheel.Pix))
	js.CopyBytesToJS(wheel, report.Wheel.Pix)

	return map[string]any{
		"report":     string(body),
		"wheel":      wheel,
		"wheelWidth": report.Wheel.Bounds().Dx(),
		"picks":      picksJSON(session.Picks()),
	}
}

// current returns the loaded image's picks and wheel radius.
func current() (*picks.State, int, bool) {
	report := session.Report()
	if report == nil {
		return nil, 0, false
	}
	return session.Picks(), report.Radius, true
}

// withPicks runs fn against the current picks and returns the updated list.
func withPicks(args []js.Value, want int, fn func(s *picks.State, radius int) error) any {
	state, radius, ok := current()
	if !ok {
		return errorResult("no image loaded")
	}
	if len(args) < want {
		return errorResult("expected %d arguments, got %d", want, len(args))
	}
	if err := fn(state, radius); err != nil {
		return errorResult("%v", err)
	}
	return map[string]any{"picks": picksJSON(state)}
}

// addPick is called as huewheelAddPick(x, y) when the wheel is clicked.
func addPick(this js.Value, args []js.Value) any {
	return withPicks(args, 2, func(s *picks.State, radius int) error {
		c := colorspace.Coord{X: args[0].Int(), Y: args[1].Int()}
		if !c.InDisk(radius) {
			return fmt.Errorf("point %s is outside the wheel", c)
		}
		s.AddFromCoord(c, radius)
		return nil
	})
}

// movePick is called as huewheelMovePick(id, x, y) while a pick is dragged
// on the wheel canvas.
func movePick(this js.Value, args []js.Value) any {
	return withPicks(args, 3, func(s *picks.State, radius int) error {
		_, err := s.MoveTo(args[0].String(), colorspace.Coord{X: args[1].Int(), Y: args[2].Int()}, radius)
		return err
	})
}

// updatePick is called as huewheelUpdatePick(id, h, s, v) from the sliders.
func updatePick(this js.Value, args []js.Value) any {
	return withPicks(args, 4, func(s *picks.State, _ int) error {
		_, err := s.Update(args[0].String(), args[1].Float(), args[2].Float(), args[3].Float())
		return err
	})
}

// removePick is called as huewheelRemovePick(id).
func removePick(this js.Value, args []js.Value) any {
	return withPicks(args, 1, func(s *picks.State, _ int) error {
		return s.Remove(args[0].String())
	})
}

// selectPick is called as huewheelSelectPick(id).
func selectPick(this js.Value, args []js.Value) any {
	return withPicks(args, 1, func(s *picks.State, _ int) error {
		return s.Select(args[0].String())
	})
}

// deselectPick is called as huewheelDeselectPick().
func deselectPick(this js.Value, args []js.Value) any {
	return withPicks(args, 0, func(s *picks.State, _ int) error {
		s.Deselect()
		return nil
	})
}

type picksView struct {
	Picks  []picks.Pick `json:"picks"`
	Active string       `json:"active,omitempty"`
}

func picksJSON(s *picks.State) string {
	view := picksView{Picks: s.All()}
	if p, ok := s.Active(); ok {
		view.Active = p.ID
	}
	body, err := json.Marshal(view)
	if err != nil {
		return `{"picks":[]}`
	}
	return string(body)
}

func main() {
	c := make(chan struct{})

	js.Global().Set("huewheelAnalyze", js.FuncOf(analyze))
	js.Global().Set("huewheelAddPick", js.FuncOf(addPick))
	js.Global().Set("huewheelMovePick", js.FuncOf(movePick))
	js.Global().Set("huewheelUpdatePick", js.FuncOf(updatePick))
	js.Global().Set("huewheelRemovePick", js.FuncOf(removePick))
	js.Global().Set("huewheelSelectPick", js.FuncOf(selectPick))
	js.Global().Set("huewheelDeselectPick", js.FuncOf(deselectPick))

	fmt.Println("HueWheel WASM module loaded")
	<-c
}
