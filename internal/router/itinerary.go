package router

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"github.com/transitrouter/internal/graph"
)

// LegMode distinguishes walking from riding.
type LegMode string

const (
	LegWalk    LegMode = "walk"
	LegTransit LegMode = "transit"
)

// Leg is one homogeneous stretch of an itinerary: a walk, or a ride on
// a single trip. Consecutive graph edges on the same trip collapse into
// one transit leg; consecutive street and transfer hops collapse into
// one walk leg.
type Leg struct {
	Mode     LegMode
	From     graph.NodeID
	To       graph.NodeID
	FromID   string
	ToID     string
	FromName string
	ToName   string
	StartSec int
	EndSec   int
	TripID   string
	RouteID  string

	// Geometry is the ridden stretch of the trip's shapes.txt line,
	// present only on transit legs of trips that ship a shape.
	Geometry orb.LineString
}

func (l Leg) DurationSec() int { return l.EndSec - l.StartSec }

// Itinerary is a reconstructed journey. Time not covered by a leg is
// waiting: either before boarding the first vehicle or between a walk's
// end and the next departure.
type Itinerary struct {
	Source       graph.NodeID
	Target       graph.NodeID
	DepartureSec int
	ArrivalSec   int
	Legs         []Leg
}

// TravelSec is the door-to-door time, waits included. It always equals
// the scalar result of ShortestPath for the same query.
func (it *Itinerary) TravelSec() int { return it.ArrivalSec - it.DepartureSec }

// Transfers counts vehicle changes: boardings beyond the first.
func (it *Itinerary) Transfers() int {
	boardings := 0
	for _, leg := range it.Legs {
		if leg.Mode == LegTransit {
			boardings++
		}
	}
	if boardings == 0 {
		return 0
	}
	return boardings - 1
}

// DetailedItinerary reconstructs the full journey from source to target
// leaving at depSec. Returns ErrNoPath when the target is unreachable
// within the window.
func (r *Router) DetailedItinerary(depSec int, source, target graph.NodeID) (*Itinerary, error) {
	if err := r.check(depSec, source); err != nil {
		return nil, err
	}
	if err := r.check(depSec, target); err != nil {
		return nil, err
	}

	res := r.search(depSec, source, target, true)
	r.report(QueryItinerary, res.stats)

	arrival, ok := res.arrivals[target]
	if !ok {
		return nil, fmt.Errorf("node %d from node %d at %ds: %w", target, source, depSec, ErrNoPath)
	}

	it := &Itinerary{
		Source:       source,
		Target:       target,
		DepartureSec: depSec,
		ArrivalSec:   arrival,
		Legs:         r.assembleLegs(res.preds, source, target),
	}
	return it, nil
}

// DetailedItineraryBetween is DetailedItinerary between coordinates.
func (r *Router) DetailedItineraryBetween(depSec int, from, to orb.Point) (*Itinerary, error) {
	source, err := r.snap(from)
	if err != nil {
		return nil, err
	}
	target, err := r.snap(to)
	if err != nil {
		return nil, err
	}
	return r.DetailedItinerary(depSec, source, target)
}

// assembleLegs walks the predecessor chain back from target, reverses
// it, and merges adjacent steps of the same kind.
func (r *Router) assembleLegs(preds map[graph.NodeID]step, source, target graph.NodeID) []Leg {
	var chain []step
	for node := target; node != source; {
		s, ok := preds[node]
		if !ok {
			return nil
		}
		chain = append(chain, s)
		node = s.prev
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}

	var legs []Leg
	for _, s := range chain {
		edge := r.g.Edge(s.edge)

		if edge.Kind == graph.EdgeTransit {
			if n := len(legs); n > 0 && legs[n-1].Mode == LegTransit && legs[n-1].TripID == s.conn.TripID {
				r.extendLeg(&legs[n-1], edge.To, s.conn.ArrivalSec)
				continue
			}
			legs = append(legs, r.newLeg(LegTransit, edge, s.conn.DepartureSec, s.conn.ArrivalSec, s.conn))
			continue
		}

		if n := len(legs); n > 0 && legs[n-1].Mode == LegWalk {
			r.extendLeg(&legs[n-1], edge.To, s.arriveSec)
			continue
		}
		legs = append(legs, r.newLeg(LegWalk, edge, s.departSec, s.arriveSec, nil))
	}

	for i := range legs {
		if legs[i].Mode == LegTransit {
			legs[i].Geometry = r.legGeometry(&legs[i])
		}
	}
	return legs
}

// legGeometry cuts the trip's shape down to the stretch between the
// boarding and alighting stops, by nearest shape vertex.
func (r *Router) legGeometry(leg *Leg) orb.LineString {
	shape, ok := r.g.TripShape(leg.TripID)
	if !ok {
		return nil
	}

	board := nearestVertex(shape, r.g.Node(leg.From).Point)
	alight := nearestVertex(shape, r.g.Node(leg.To).Point)
	if board >= alight {
		// A loop shape can place the alighting stop on an earlier
		// vertex; the full line is still honest geometry.
		return shape
	}
	return shape[board : alight+1]
}

func nearestVertex(line orb.LineString, point orb.Point) int {
	best, bestDist := 0, geo.DistanceHaversine(line[0], point)
	for i := 1; i < len(line); i++ {
		if d := geo.DistanceHaversine(line[i], point); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

func (r *Router) newLeg(mode LegMode, edge *graph.Edge, startSec, endSec int, conn *graph.Connection) Leg {
	from, to := r.g.Node(edge.From), r.g.Node(edge.To)
	leg := Leg{
		Mode:     mode,
		From:     edge.From,
		To:       edge.To,
		FromID:   from.SourceID,
		ToID:     to.SourceID,
		FromName: from.Name,
		ToName:   to.Name,
		StartSec: startSec,
		EndSec:   endSec,
	}
	if conn != nil {
		leg.TripID = conn.TripID
		leg.RouteID = conn.RouteID
	}
	return leg
}

func (r *Router) extendLeg(leg *Leg, to graph.NodeID, endSec int) {
	node := r.g.Node(to)
	leg.To = to
	leg.ToID = node.SourceID
	leg.ToName = node.Name
	leg.EndSec = endSec
}
