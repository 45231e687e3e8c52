package spatial

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/quadtree"
)

// InvalidCoordinateError means a query coordinate has no graph node
// within the snap radius. It is fatal to the single query that produced
// it and nothing else.
type InvalidCoordinateError struct {
	Point   orb.Point
	RadiusM float64
}

func (e *InvalidCoordinateError) Error() string {
	return fmt.Sprintf("no node within %.0fm of (%.6f, %.6f)", e.RadiusM, e.Point[0], e.Point[1])
}

// indexedPoint ties a graph node id to its location for quadtree storage.
type indexedPoint struct {
	id    int32
	point orb.Point
}

func (p *indexedPoint) Point() orb.Point { return p.point }

// Index answers nearest-node lookups for arbitrary coordinates. It is
// populated during graph assembly and read-only afterwards, so queries
// can share it without locking.
type Index struct {
	tree *quadtree.Quadtree
	size int
}

func NewIndex() *Index {
	return &Index{
		tree: quadtree.New(orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}}),
	}
}

func (idx *Index) Add(id int32, point orb.Point) error {
	if err := idx.tree.Add(&indexedPoint{id: id, point: point}); err != nil {
		return fmt.Errorf("indexing node %d: %w", id, err)
	}
	idx.size++
	return nil
}

func (idx *Index) Size() int { return idx.size }

// Snapped is the result of mapping a coordinate to the graph: the
// nearest node and the geodesic distance to it.
type Snapped struct {
	NodeID    int32
	DistanceM float64
}

// Snap finds the nearest indexed node. A coordinate farther than
// radiusM from every node fails with *InvalidCoordinateError.
func (idx *Index) Snap(point orb.Point, radiusM float64) (Snapped, error) {
	nearest := idx.tree.Find(point)
	if nearest == nil {
		return Snapped{}, &InvalidCoordinateError{Point: point, RadiusM: radiusM}
	}

	candidate := nearest.(*indexedPoint)
	distance := geo.DistanceHaversine(point, candidate.point)
	if distance > radiusM {
		return Snapped{}, &InvalidCoordinateError{Point: point, RadiusM: radiusM}
	}
	return Snapped{NodeID: candidate.id, DistanceM: distance}, nil
}

// Within returns the ids of all indexed nodes inside radiusM of point.
// The quadtree is queried with a bounding pad first, then candidates are
// filtered by exact haversine distance.
func (idx *Index) Within(point orb.Point, radiusM float64) []int32 {
	bound := geo.NewBoundAroundPoint(point, radiusM)
	pointers := idx.tree.InBound(nil, bound)

	var ids []int32
	for _, ptr := range pointers {
		candidate := ptr.(*indexedPoint)
		if geo.DistanceHaversine(point, candidate.point) <= radiusM {
			ids = append(ids, candidate.id)
		}
	}
	return ids
}
