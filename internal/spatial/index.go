// Package spatial answers great-circle nearest-neighbor queries over a
// forecast grid.
//
// The index embeds every sample on the unit sphere in R³ and builds a static
// k-d tree over the embedded points. Euclidean (chord) distance in the
// embedding is monotone in great-circle distance, so the chord-nearest point
// is exactly the haversine-nearest point; the reported distance is converted
// back to kilometers of arc. This keeps queries sub-linear for the ~65k-sample
// OVATION grid, which is rebuilt once per grid version and queried once per
// subscription.
package spatial

import (
	"math"
	"sort"

	"github.com/couchcryptid/aurora-alert-service/internal/domain"
)

// Index is an immutable nearest-neighbor structure over one grid snapshot.
// Safe for concurrent queries.
type Index struct {
	root *node
}

type point struct {
	x, y, z float64
	sample  domain.GridSample
}

type node struct {
	p           point
	axis        int
	left, right *node
}

// NewIndex builds an index over the grid's samples. It refuses to build over
// zero samples, returning domain.ErrEmptyGrid.
func NewIndex(grid *domain.Grid) (*Index, error) {
	if grid == nil || len(grid.Samples) == 0 {
		return nil, domain.ErrEmptyGrid
	}
	pts := make([]point, len(grid.Samples))
	for i, s := range grid.Samples {
		x, y, z := embed(s.Lat, s.Lon)
		pts[i] = point{x: x, y: y, z: z, sample: s}
	}
	return &Index{root: build(pts, 0)}, nil
}

// Nearest returns the grid sample closest to the target under great-circle
// distance, with the distance in kilometers. Ties resolve to whichever sample
// the traversal reaches first. Out-of-range targets pass through unchanged;
// the sphere math stays well-defined.
func (idx *Index) Nearest(lat, lon float64) domain.NearestMatch {
	tx, ty, tz := embed(lat, lon)
	best := nnState{bestSq: math.Inf(1)}
	search(idx.root, [3]float64{tx, ty, tz}, &best)

	// Chord length on the unit sphere back to arc length in km.
	chord := math.Sqrt(best.bestSq)
	if chord > 2 {
		chord = 2
	}
	return domain.NearestMatch{
		Sample:     best.best.sample,
		DistanceKm: 2 * earthRadiusKm * math.Asin(chord/2),
	}
}

// embed projects a lat/lon pair in degrees onto the unit sphere.
func embed(lat, lon float64) (x, y, z float64) {
	phi := lat * math.Pi / 180
	lambda := lon * math.Pi / 180
	cosPhi := math.Cos(phi)
	return cosPhi * math.Cos(lambda), cosPhi * math.Sin(lambda), math.Sin(phi)
}

func build(pts []point, depth int) *node {
	if len(pts) == 0 {
		return nil
	}
	axis := depth % 3
	sort.Slice(pts, func(i, j int) bool {
		return coord(pts[i], axis) < coord(pts[j], axis)
	})
	mid := len(pts) / 2
	return &node{
		p:     pts[mid],
		axis:  axis,
		left:  build(pts[:mid], depth+1),
		right: build(pts[mid+1:], depth+1),
	}
}

func coord(p point, axis int) float64 {
	switch axis {
	case 0:
		return p.x
	case 1:
		return p.y
	default:
		return p.z
	}
}

type nnState struct {
	best   point
	bestSq float64
}

func search(n *node, target [3]float64, state *nnState) {
	if n == nil {
		return
	}

	d := distSq(n.p, target)
	if d < state.bestSq {
		state.bestSq = d
		state.best = n.p
	}

	planeDelta := target[n.axis] - coord(n.p, n.axis)
	near, far := n.left, n.right
	if planeDelta > 0 {
		near, far = n.right, n.left
	}

	search(near, target, state)
	if planeDelta*planeDelta < state.bestSq {
		search(far, target, state)
	}
}

func distSq(p point, target [3]float64) float64 {
	dx := p.x - target[0]
	dy := p.y - target[1]
	dz := p.z - target[2]
	return dx*dx + dy*dy + dz*dz
}
