// Package cluster reduces the visible wheel cells to a few representative
// centroids with k-means and k-means++ seeding.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/MeKo-Tech/huewheel/internal/colorspace"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

const (
	// DefaultMaxIterations bounds the Lloyd iterations.
	DefaultMaxIterations = 100
	// DefaultSeed seeds the random source when the caller passes none.
	DefaultSeed = 1
)

// ErrInvalidK is returned when fewer than one cluster is requested.
var ErrInvalidK = errors.New("cluster count must be at least 1")

// Options tunes the clustering loop.
type Options struct {
	MaxIterations int
}

// Result holds the centroids in wheel buffer space. Sizes[i] is the number of
// points assigned to Centroids[i].
type Result struct {
	Centroids  []orb.Point
	Sizes      []int
	Iterations int
	Converged  bool
}

// KMeans clusters points into at most k groups. The random source drives the
// seeding only; the same source state and input always give the same result.
// A nil rng uses DefaultSeed.
func KMeans(points []colorspace.Coord, k int, rng *rand.Rand) (Result, error) {
	return KMeansContext(context.Background(), points, k, rng, Options{})
}

// KMeansContext is KMeans with cancellation, checked once per iteration.
func KMeansContext(ctx context.Context, points []colorspace.Coord, k int, rng *rand.Rand, opts Options) (Result, error) {
	if k < 1 {
		return Result{}, fmt.Errorf("%w: got %d", ErrInvalidK, k)
	}
	if len(points) == 0 {
		return Result{}, nil
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(DefaultSeed))
	}
	maxIter := opts.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}

	pts := make([]orb.Point, len(points))
	for i, c := range points {
		pts[i] = orb.Point{float64(c.X), float64(c.Y)}
	}

	centroids := seedPlusPlus(pts, min(k, len(pts)), rng)
	assign := make([]int, len(pts))
	for i := range assign {
		assign[i] = -1
	}

	res := Result{}
	sums := make([]orb.Point, len(centroids))
	sizes := make([]int, len(centroids))

	for iter := 0; iter < maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		res.Iterations = iter + 1

		changed := false
		for i, p := range pts {
			best := nearest(p, centroids)
			if assign[i] != best {
				assign[i] = best
				changed = true
			}
		}
		if !changed {
			res.Converged = true
			break
		}

		for j := range sums {
			sums[j] = orb.Point{}
			sizes[j] = 0
		}
		for i, p := range pts {
			j := assign[i]
			sums[j][0] += p[0]
			sums[j][1] += p[1]
			sizes[j]++
		}
		for j := range centroids {
			// An emptied cluster keeps its previous centroid.
			if sizes[j] == 0 {
				continue
			}
			n := float64(sizes[j])
			centroids[j] = orb.Point{sums[j][0] / n, sums[j][1] / n}
		}
	}

	res.Centroids = centroids
	res.Sizes = make([]int, len(centroids))
	for _, j := range assign {
		res.Sizes[j]++
	}
	return res, nil
}

// seedPlusPlus picks k initial centroids: the first uniformly, each following
// one with probability proportional to its squared distance from the nearest
// centroid chosen so far. Fewer than k seeds are returned only when every
// remaining point coincides with a seed.
func seedPlusPlus(pts []orb.Point, k int, rng *rand.Rand) []orb.Point {
	seeds := make([]orb.Point, 0, k)
	seeds = append(seeds, pts[rng.Intn(len(pts))])

	dist := make([]float64, len(pts))
	for i, p := range pts {
		dist[i] = planar.DistanceSquared(p, seeds[0])
	}

	for len(seeds) < k {
		var sum float64
		for _, d := range dist {
			sum += d
		}
		if sum == 0 {
			break
		}

		target := rng.Float64() * sum
		pick := -1
		var acc float64
		for i, d := range dist {
			if d == 0 {
				continue
			}
			pick = i
			acc += d
			if acc > target {
				break
			}
		}

		seed := pts[pick]
		seeds = append(seeds, seed)
		for i, p := range pts {
			if d := planar.DistanceSquared(p, seed); d < dist[i] {
				dist[i] = d
			}
		}
	}

	return seeds
}

// nearest returns the index of the closest centroid. Ties go to the lower index.
func nearest(p orb.Point, centroids []orb.Point) int {
	best := 0
	bestDist := math.Inf(1)
	for j, c := range centroids {
		if d := planar.DistanceSquared(p, c); d < bestDist {
			best = j
			bestDist = d
		}
	}
	return best
}

// Coords returns the centroids rounded to the nearest wheel cell.
func (r Result) Coords() []colorspace.Coord {
	out := make([]colorspace.Coord, len(r.Centroids))
	for i, c := range r.Centroids {
		out[i] = colorspace.Coord{X: int(math.Round(c.X())), Y: int(math.Round(c.Y()))}
	}
	return out
}

// Colors converts each centroid to the color drawn at that point of the wheel.
func (r Result) Colors(radius int) []colorspace.HSV {
	out := make([]colorspace.HSV, len(r.Centroids))
	for i, c := range r.Centroids {
		h, s, l := colorspace.ToHSV(c.X()-float64(radius), c.Y()-float64(radius), radius)
		// Means of rim cells can sit a fraction of a pixel past the disk.
		out[i] = colorspace.HSV{H: h, S: math.Min(s, 1), V: math.Min(l, 1)}
	}
	return out
}
