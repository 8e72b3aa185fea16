package analysis

import (
	"context"
	"errors"
	"image"
	"sync"

	"github.com/MeKo-Tech/huewheel/internal/picks"
)

// ErrStale is returned by Session.Load when a newer load superseded it.
var ErrStale = errors.New("analysis superseded by a newer image")

var errNoAnalyzer = errors.New("session has no analyzer")

// Session tracks the image currently on screen. Loading a new image cancels
// any analysis still running for the previous one, and results of superseded
// loads are discarded instead of being merged.
type Session struct {
	analyze func(context.Context, image.Image) (*Report, error)

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	report *Report
	picks  *picks.State
}

// NewSession creates a session backed by the analyzer. a may be nil when every
// image is loaded with LoadWith.
func NewSession(a *Analyzer) *Session {
	s := &Session{picks: picks.New()}
	if a != nil {
		s.analyze = a.Analyze
	}
	return s
}

// Load analyses img and, unless a newer Load started meanwhile, makes it the
// session's current image with picks seeded from the palette.
func (s *Session) Load(ctx context.Context, img image.Image) (*Report, error) {
	return s.load(ctx, s.analyze, img)
}

// LoadWith is Load with a different analyzer for this image only. It
// supersedes pending loads just like Load does.
func (s *Session) LoadWith(ctx context.Context, a *Analyzer, img image.Image) (*Report, error) {
	if a == nil {
		return s.load(ctx, nil, img)
	}
	return s.load(ctx, a.Analyze, img)
}

func (s *Session) load(ctx context.Context, analyze func(context.Context, image.Image) (*Report, error), img image.Image) (*Report, error) {
	if analyze == nil {
		return nil, errNoAnalyzer
	}

	s.mu.Lock()
	s.gen++
	gen := s.gen
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	// The previous image's picks are gone as soon as a new one is requested.
	s.report = nil
	s.picks = picks.New()
	s.mu.Unlock()
	defer cancel()

	report, err := analyze(ctx, img)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return nil, ErrStale
	}
	s.cancel = nil
	if err != nil {
		return nil, err
	}
	s.report = report
	s.picks = report.Picks()
	return report, nil
}

// Report returns the current image's report, or nil while none is loaded.
func (s *Session) Report() *Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report
}

// Picks returns the current image's pick state. Callers must not use it
// concurrently with Load.
func (s *Session) Picks() *picks.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.picks
}
