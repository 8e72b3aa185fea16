// Package picks holds the user's color picks for the currently loaded image.
//
// At most one pick is active at a time. Adding a pick makes it active and
// removing the active pick clears the selection. A pick stores only its HSV
// value; its wheel position is recomputed on demand so the two never drift.
package picks

import (
	"errors"
	"fmt"

	"github.com/MeKo-Tech/huewheel/internal/colorspace"
	"github.com/google/uuid"
)

// ErrUnknownPick is returned for an ID that is not in the state.
var ErrUnknownPick = errors.New("unknown pick")

// Pick is a single user-adjustable color.
type Pick struct {
	ID string  `json:"id"`
	H  float64 `json:"h"`
	S  float64 `json:"s"`
	V  float64 `json:"v"`
}

// HSV returns the pick's color.
func (p Pick) HSV() colorspace.HSV {
	return colorspace.HSV{H: p.H, S: p.S, V: p.V}
}

// RGB returns the pick's color as 8-bit RGB.
func (p Pick) RGB() colorspace.RGB {
	return colorspace.HSVToRGB(p.H, p.S, p.V)
}

// Coord returns the pick's cell on a wheel of the given radius.
func (p Pick) Coord(radius int) colorspace.Coord {
	return colorspace.ToWheelCoordinate(p.H, p.S, radius)
}

// State is an ordered collection of picks. It is not safe for concurrent use.
type State struct {
	picks  []Pick
	active string
	newID  func() string
}

// New returns an empty state.
func New() *State {
	return &State{newID: func() string { return uuid.NewString() }}
}

// FromColors returns a state seeded with one pick per color, in order. The
// last color is active, as if each had been added in turn.
func FromColors(colors []colorspace.HSV) *State {
	s := New()
	for _, c := range colors {
		s.Add(c.H, c.S, c.V)
	}
	return s
}

// Add appends a pick and makes it active.
func (s *State) Add(h, sat, v float64) Pick {
	p := Pick{ID: s.newID()}
	p.H, p.S, p.V = normalize(h, sat, v)
	s.picks = append(s.picks, p)
	s.active = p.ID
	return p
}

// AddFromCoord adds a pick for a click on the wheel. The value is taken from
// the wheel backdrop at that cell.
func (s *State) AddFromCoord(c colorspace.Coord, radius int) Pick {
	hsv := colorspace.HSVAt(c, radius)
	return s.Add(hsv.H, hsv.S, hsv.V)
}

// Update replaces a pick's color. Hue is wrapped and s/v are clamped to [0,1].
func (s *State) Update(id string, h, sat, v float64) (Pick, error) {
	i := s.index(id)
	if i < 0 {
		return Pick{}, fmt.Errorf("%w: %s", ErrUnknownPick, id)
	}
	p := &s.picks[i]
	p.H, p.S, p.V = normalize(h, sat, v)
	return *p, nil
}

// MoveTo sets a pick's hue and saturation from a wheel cell, keeping its value.
func (s *State) MoveTo(id string, c colorspace.Coord, radius int) (Pick, error) {
	i := s.index(id)
	if i < 0 {
		return Pick{}, fmt.Errorf("%w: %s", ErrUnknownPick, id)
	}
	dx, dy := c.Offset(radius)
	h, sat, _ := colorspace.ToHSV(dx, dy, radius)
	return s.Update(id, h, sat, s.picks[i].V)
}

// Remove deletes a pick. Removing the active pick clears the selection.
func (s *State) Remove(id string) error {
	i := s.index(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownPick, id)
	}
	s.picks = append(s.picks[:i], s.picks[i+1:]...)
	if s.active == id {
		s.active = ""
	}
	return nil
}

// Select makes a pick active.
func (s *State) Select(id string) error {
	if s.index(id) < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownPick, id)
	}
	s.active = id
	return nil
}

// Deselect clears the active pick.
func (s *State) Deselect() {
	s.active = ""
}

// Active returns the active pick, if any.
func (s *State) Active() (Pick, bool) {
	i := s.index(s.active)
	if i < 0 {
		return Pick{}, false
	}
	return s.picks[i], true
}

// Get returns the pick with the given ID.
func (s *State) Get(id string) (Pick, bool) {
	i := s.index(id)
	if i < 0 {
		return Pick{}, false
	}
	return s.picks[i], true
}

// All returns a copy of the picks in insertion order.
func (s *State) All() []Pick {
	out := make([]Pick, len(s.picks))
	copy(out, s.picks)
	return out
}

// Len returns the number of picks.
func (s *State) Len() int {
	return len(s.picks)
}

// Reset drops every pick, e.g. when a new image is loaded.
func (s *State) Reset() {
	s.picks = nil
	s.active = ""
}

func (s *State) index(id string) int {
	if id == "" {
		return -1
	}
	for i := range s.picks {
		if s.picks[i].ID == id {
			return i
		}
	}
	return -1
}

func normalize(h, s, v float64) (float64, float64, float64) {
	return colorspace.ClipHue(h), clamp01(s), clamp01(v)
}

func clamp01(x float64) float64 {
	switch {
	case x < 0:
		return 0
	case x > 1:
		return 1
	default:
		return x
	}
}
