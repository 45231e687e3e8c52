package router

import (
	"fmt"
	"sort"

	"github.com/paulmach/orb"

	"github.com/transitrouter/internal/graph"
)

// ReachablePoint is one node inside an isochrone: where it is and how
// long it takes to get there.
type ReachablePoint struct {
	Node      graph.NodeID
	Point     orb.Point
	TravelSec int
}

// Isochrone returns every node reachable from source within cutoffSec
// when leaving at depSec, ordered by node id. The cutoff is additionally
// capped by the graph's window duration, like any other query. Callers
// wanting a polygon can buffer the returned points themselves.
func (r *Router) Isochrone(depSec int, source graph.NodeID, cutoffSec int) ([]ReachablePoint, error) {
	if cutoffSec <= 0 {
		return nil, fmt.Errorf("cutoff %ds is not positive", cutoffSec)
	}
	if err := r.check(depSec, source); err != nil {
		return nil, err
	}

	res := r.search(depSec, source, noTarget, false)
	r.report(QueryIsochrone, res.stats)

	points := make([]ReachablePoint, 0, len(res.arrivals))
	for node, arrival := range res.arrivals {
		if arrival-depSec > cutoffSec {
			continue
		}
		points = append(points, ReachablePoint{
			Node:      node,
			Point:     r.g.Node(node).Point,
			TravelSec: arrival - depSec,
		})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Node < points[j].Node })
	return points, nil
}

// IsochroneFrom is Isochrone for an arbitrary coordinate, snapped to its
// nearest graph node.
func (r *Router) IsochroneFrom(depSec int, point orb.Point, cutoffSec int) ([]ReachablePoint, error) {
	source, err := r.snap(point)
	if err != nil {
		return nil, err
	}
	return r.Isochrone(depSec, source, cutoffSec)
}
