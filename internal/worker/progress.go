package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Tally is a snapshot of the results seen so far.
type Tally struct {
	Total     int
	Analysed  int
	Reused    int
	Failed    int
	Cancelled int
	// Cells is the number of visible wheel cells over all extracted images.
	Cells int
	// Rounds is the number of k-means rounds over all analysed images.
	Rounds int
	// Busy is the extraction time spent on analysed images.
	Busy    time.Duration
	Slowest Result
}

// Done returns how many tasks have finished, whatever their outcome.
func (t Tally) Done() int {
	return t.Analysed + t.Reused + t.Failed + t.Cancelled
}

// MeanRounds returns the average number of k-means rounds per analysed image.
func (t Tally) MeanRounds() float64 {
	if t.Analysed == 0 {
		return 0
	}
	return float64(t.Rounds) / float64(t.Analysed)
}

// MeanBusy returns the average extraction time of an analysed image.
func (t Tally) MeanBusy() time.Duration {
	if t.Analysed == 0 {
		return 0
	}
	return t.Busy / time.Duration(t.Analysed)
}

// Progress tallies extraction results. With a non-nil writer it redraws a
// status line after every image.
type Progress struct {
	out   io.Writer
	now   func() time.Time
	start time.Time

	mu    sync.Mutex
	tally Tally
	width int
}

// NewProgress creates a tracker for total images. out may be nil to collect
// the tally without drawing anything.
func NewProgress(total int, out io.Writer) *Progress {
	p := &Progress{out: out, now: time.Now}
	p.start = p.now()
	p.tally.Total = total
	return p
}

// Observe records one finished task. It has the ProgressFunc signature.
func (p *Progress) Observe(r Result) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t := &p.tally
	switch {
	case errors.Is(r.Err, context.Canceled), errors.Is(r.Err, context.DeadlineExceeded):
		t.Cancelled++
	case r.Err != nil:
		t.Failed++
	case r.Output.Cached:
		t.Reused++
		t.Cells += r.Output.VisibleCells
	default:
		t.Analysed++
		t.Cells += r.Output.VisibleCells
		t.Rounds += r.Output.Iterations
		t.Busy += r.Elapsed
		if t.Analysed == 1 || r.Elapsed > t.Slowest.Elapsed {
			t.Slowest = r
		}
	}

	if p.out != nil {
		p.draw(describe(r))
	}
}

// Tally returns the results seen so far.
func (p *Progress) Tally() Tally {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tally
}

// Done ends the status line.
func (p *Progress) Done() {
	if p.out == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.width > 0 {
		fmt.Fprintln(p.out)
		p.width = 0
	}
}

// Summary describes the whole run in one line.
func (p *Progress) Summary() string {
	t := p.Tally()
	elapsed := p.now().Sub(p.start).Round(time.Millisecond)

	var b strings.Builder
	fmt.Fprintf(&b, "Extracted %d/%d images in %s: %d analysed, %d reused from archive, %d failed",
		t.Analysed+t.Reused, t.Total, elapsed, t.Analysed, t.Reused, t.Failed)
	if t.Cancelled > 0 {
		fmt.Fprintf(&b, ", %d cancelled", t.Cancelled)
	}
	if t.Analysed > 0 {
		fmt.Fprintf(&b, "; %d wheel cells, %.1f k-means rounds per image, slowest %s (%s)",
			t.Cells, t.MeanRounds(), filepath.Base(t.Slowest.Task.Path), t.Slowest.Elapsed.Round(time.Millisecond))
	}
	return b.String()
}

// draw rewrites the status line. Callers hold p.mu.
func (p *Progress) draw(last string) {
	t := p.tally
	line := fmt.Sprintf("[%d/%d] %d analysed, %d reused, %d failed", t.Done(), t.Total, t.Analysed, t.Reused, t.Failed)
	if t.Analysed > 0 {
		line += fmt.Sprintf(" | %s/image", t.MeanBusy().Round(time.Millisecond))
	}
	line += " | " + last

	// Blank out whatever the previous, longer line left behind.
	pad := max(p.width-len(line), 0)
	p.width = len(line)
	fmt.Fprint(p.out, "\r"+line+strings.Repeat(" ", pad))
}

func describe(r Result) string {
	name := filepath.Base(r.Task.Path)
	switch {
	case r.Err != nil && (errors.Is(r.Err, context.Canceled) || errors.Is(r.Err, context.DeadlineExceeded)):
		return name + ": cancelled"
	case r.Err != nil:
		return name + ": failed"
	case r.Output.Cached:
		return fmt.Sprintf("%s: %d colors (archived)", name, len(r.Output.Palette))
	default:
		return fmt.Sprintf("%s: %d colors from %d cells", name, len(r.Output.Palette), r.Output.VisibleCells)
	}
}
