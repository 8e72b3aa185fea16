package wheel

import (
	"sort"

	"github.com/MeKo-Tech/huewheel/internal/colorspace"
)

// CoordSet is a set of wheel cells. Repeated pixels that land on the same
// cell collapse to a single entry.
type CoordSet struct {
	m map[colorspace.Coord]struct{}
}

// NewCoordSet creates an empty set with room for n cells.
func NewCoordSet(n int) *CoordSet {
	return &CoordSet{m: make(map[colorspace.Coord]struct{}, n)}
}

// Add inserts c and reports whether it was new.
func (s *CoordSet) Add(c colorspace.Coord) bool {
	if _, ok := s.m[c]; ok {
		return false
	}
	s.m[c] = struct{}{}
	return true
}

// Has reports whether c is in the set.
func (s *CoordSet) Has(c colorspace.Coord) bool {
	if s == nil {
		return false
	}
	_, ok := s.m[c]
	return ok
}

// Len returns the number of cells in the set.
func (s *CoordSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.m)
}

// Merge adds every cell of other to s.
func (s *CoordSet) Merge(other *CoordSet) {
	if other == nil {
		return
	}
	for c := range other.m {
		s.m[c] = struct{}{}
	}
}

// Sorted returns the cells in row-major order.
func (s *CoordSet) Sorted() []colorspace.Coord {
	if s == nil {
		return nil
	}
	out := make([]colorspace.Coord, 0, len(s.m))
	for c := range s.m {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Y != out[j].Y {
			return out[i].Y < out[j].Y
		}
		return out[i].X < out[j].X
	})
	return out
}
