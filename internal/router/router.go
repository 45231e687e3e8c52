package router

import (
	"container/heap"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/paulmach/orb"

	"github.com/transitrouter/internal/graph"
)

// ErrNoPath means the target exists but cannot be reached from the
// source before the time window closes.
var ErrNoPath = errors.New("no path within the time window")

// Router runs earliest-arrival queries against a shared graph. The
// graph is never written after assembly, so one Router serves any
// number of goroutines.
type Router struct {
	g           *graph.Graph
	snapRadiusM float64
	observer    Observer
}

// New wires a router to a graph. snapRadiusM bounds how far a query
// coordinate may be from the nearest node; observer may be nil.
func New(g *graph.Graph, snapRadiusM float64, observer Observer) *Router {
	if snapRadiusM <= 0 {
		snapRadiusM = graph.DefaultSnapRadiusM
	}
	return &Router{g: g, snapRadiusM: snapRadiusM, observer: observer}
}

func (r *Router) Graph() *graph.Graph { return r.g }

// SingleSource computes the earliest arrival time at every node
// reachable from source when leaving at depSec. Only nodes reachable
// before depSec + window duration appear in the result.
func (r *Router) SingleSource(depSec int, source graph.NodeID) (map[graph.NodeID]int, error) {
	if err := r.check(depSec, source); err != nil {
		return nil, err
	}
	res := r.search(depSec, source, noTarget, false)
	r.report(QuerySingleSource, res.stats)
	return res.arrivals, nil
}

// SingleSourceFrom is SingleSource for an arbitrary coordinate. The
// coordinate is snapped to the nearest graph node, which then stands in
// for it; snapping fails with *spatial.InvalidCoordinateError when no
// node lies within the snap radius.
func (r *Router) SingleSourceFrom(depSec int, point orb.Point) (map[graph.NodeID]int, error) {
	source, err := r.snap(point)
	if err != nil {
		return nil, err
	}
	return r.SingleSource(depSec, source)
}

// ShortestPath returns the travel time in seconds from source to target
// when leaving at depSec, or ErrNoPath. The search stops as soon as the
// target is settled.
func (r *Router) ShortestPath(depSec int, source, target graph.NodeID) (int, error) {
	if err := r.check(depSec, source); err != nil {
		return 0, err
	}
	if err := r.check(depSec, target); err != nil {
		return 0, err
	}

	res := r.search(depSec, source, target, false)
	r.report(QueryPointToPoint, res.stats)

	arrival, ok := res.arrivals[target]
	if !ok {
		return 0, fmt.Errorf("node %d from node %d at %ds: %w", target, source, depSec, ErrNoPath)
	}
	return arrival - depSec, nil
}

// ShortestPathBetween is ShortestPath between two coordinates, both
// snapped to their nearest graph node.
func (r *Router) ShortestPathBetween(depSec int, from, to orb.Point) (int, error) {
	source, err := r.snap(from)
	if err != nil {
		return 0, err
	}
	target, err := r.snap(to)
	if err != nil {
		return 0, err
	}
	return r.ShortestPath(depSec, source, target)
}

func (r *Router) snap(point orb.Point) (graph.NodeID, error) {
	snapped, err := r.g.Index().Snap(point, r.snapRadiusM)
	if err != nil {
		return 0, err
	}
	return graph.NodeID(snapped.NodeID), nil
}

func (r *Router) check(depSec int, node graph.NodeID) error {
	if depSec < 0 {
		return fmt.Errorf("departure time %ds is negative", depSec)
	}
	if node < 0 || int(node) >= r.g.NumNodes() {
		return fmt.Errorf("node %d is out of range [0, %d)", node, r.g.NumNodes())
	}
	return nil
}

func (r *Router) report(kind string, stats QueryStats) {
	if r.observer == nil {
		return
	}
	stats.Kind = kind
	r.observer.ObserveQuery(stats)
}

const noTarget = graph.NodeID(-1)

// label is the best known state at a node.
type label struct {
	arrivalSec int
	transfers  int
}

func (l label) improvedBy(arrivalSec, transfers int) bool {
	if arrivalSec != l.arrivalSec {
		return arrivalSec < l.arrivalSec
	}
	return transfers < l.transfers
}

// step records how a node was reached, for itinerary reconstruction.
type step struct {
	prev      graph.NodeID
	edge      int32
	conn      *graph.Connection
	departSec int
	arriveSec int
}

type searchResult struct {
	arrivals map[graph.NodeID]int
	preds    map[graph.NodeID]step
	stats    QueryStats
}

// search is the time-dependent Dijkstra core. Keys are (arrival,
// transfers) pairs ordered lexicographically, so of two equally fast
// paths the one with fewer boardings wins. Expansion stops once the
// cheapest frontier entry arrives after depSec + window duration, or
// earlier when the target is settled.
//
// Fixed edges (street, transfer) cost their walk time; transit edges
// cost the wait for the next scheduled departure plus the ride. A
// transit edge with no departure left is a dead end at that time.
func (r *Router) search(depSec int, source, target graph.NodeID, keepPred bool) *searchResult {
	start := time.Now()
	_, durationSec := r.g.Window()
	horizon := depSec + durationSec

	labels := make(map[graph.NodeID]label)
	arrivals := make(map[graph.NodeID]int)
	var preds map[graph.NodeID]step
	if keepPred {
		preds = make(map[graph.NodeID]step)
	}

	relaxed := 0
	frontier := &queue{{arrivalSec: depSec, transfers: 0, node: source}}
	heap.Init(frontier)
	labels[source] = label{arrivalSec: depSec}

	for frontier.Len() > 0 {
		current := heap.Pop(frontier).(item)
		if current.arrivalSec > horizon {
			break
		}
		if _, done := arrivals[current.node]; done {
			continue
		}
		arrivals[current.node] = current.arrivalSec
		if current.node == target {
			break
		}

		for _, edgeIdx := range r.g.OutEdges(current.node) {
			edge := r.g.Edge(edgeIdx)
			to := edge.To
			if _, done := arrivals[to]; done {
				continue
			}

			next := item{node: to, transfers: current.transfers}
			var conn *graph.Connection
			if edge.Kind == graph.EdgeTransit {
				conn = edge.NextConnection(current.arrivalSec)
				if conn == nil {
					continue
				}
				next.arrivalSec = conn.ArrivalSec
				next.tripID = conn.TripID
				if conn.TripID != current.tripID {
					next.transfers++
				}
			} else {
				next.arrivalSec = current.arrivalSec + int(math.Ceil(edge.TravelSec))
			}
			if next.arrivalSec > horizon {
				continue
			}

			best, seen := labels[to]
			if seen && !best.improvedBy(next.arrivalSec, next.transfers) {
				continue
			}
			labels[to] = label{arrivalSec: next.arrivalSec, transfers: next.transfers}
			heap.Push(frontier, next)
			relaxed++
			if keepPred {
				preds[to] = step{
					prev:      current.node,
					edge:      edgeIdx,
					conn:      conn,
					departSec: current.arrivalSec,
					arriveSec: next.arrivalSec,
				}
			}
		}
	}

	return &searchResult{
		arrivals: arrivals,
		preds:    preds,
		stats: QueryStats{
			Source:       source,
			DepartureSec: depSec,
			Settled:      len(arrivals),
			Relaxed:      relaxed,
			Reached:      len(labels),
			Elapsed:      time.Since(start),
		},
	}
}
