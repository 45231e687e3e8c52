package graph

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"github.com/stretchr/testify/require"

	"github.com/transitrouter/internal/common/logger"
	"github.com/transitrouter/internal/feed"
	"github.com/transitrouter/internal/street"
	"github.com/transitrouter/pkg/gtfs/models"
)

func testStops() []models.Stop {
	return []models.Stop{
		{StopID: "A", StopName: "Alpha", StopLat: -37.8100, StopLon: 144.9600},
		{StopID: "B", StopName: "Bravo", StopLat: -37.8100, StopLon: 144.9605},  // ~44m east of A
		{StopID: "C", StopName: "Charlie", StopLat: -37.8100, StopLon: 145.0600}, // ~8.8km east
	}
}

func trip(id string, stops []string, times []int) models.Trip {
	t := models.Trip{TripID: id, RouteID: "r1", ServiceID: "wd"}
	for i, stop := range stops {
		t.StopTimes = append(t.StopTimes, models.StopTime{
			TripID:       id,
			StopID:       stop,
			StopSequence: i + 1,
			ArrivalSec:   times[i],
			DepartureSec: times[i],
		})
	}
	return t
}

func testOptions() Options {
	return Options{DepartureSec: 28800, DurationSec: 3600}
}

func TestBuildRejectsInvalidWindow(t *testing.T) {
	data := &feed.Data{Stops: testStops()}

	_, err := Build(data, nil, Options{DepartureSec: 28800, DurationSec: 0}, logger.Nop())
	require.ErrorIs(t, err, ErrInvalidTimeWindow)

	_, err = Build(data, nil, Options{DepartureSec: -1, DurationSec: 3600}, logger.Nop())
	require.ErrorIs(t, err, ErrInvalidTimeWindow)
}

func TestBuildFiltersConnectionsByWindow(t *testing.T) {
	data := &feed.Data{
		Stops: testStops(),
		Trips: []models.Trip{
			trip("early", []string{"A", "C"}, []int{28799, 29000}),   // departs before the window
			trip("at_start", []string{"A", "C"}, []int{28800, 29400}), // departure == window start is kept
			trip("late", []string{"A", "C"}, []int{32400, 33000}),     // departure == window end is dropped
			trip("inside", []string{"A", "C"}, []int{32399, 33000}),
		},
	}

	g, err := Build(data, nil, testOptions(), logger.Nop())
	require.NoError(t, err)

	from, ok := g.StopNode("A")
	require.True(t, ok)
	to, ok := g.StopNode("C")
	require.True(t, ok)

	var conns []Connection
	for _, idx := range g.OutEdges(from) {
		edge := g.Edge(idx)
		if edge.Kind == EdgeTransit && edge.To == to {
			conns = edge.Connections
		}
	}
	require.Len(t, conns, 2)
	require.Equal(t, "at_start", conns[0].TripID)
	require.Equal(t, "inside", conns[1].TripID)
}

func TestBuildSortsConnectionsByDeparture(t *testing.T) {
	data := &feed.Data{
		Stops: testStops(),
		Trips: []models.Trip{
			trip("second", []string{"A", "C"}, []int{29400, 30000}),
			trip("first", []string{"A", "C"}, []int{28900, 29500}),
		},
	}

	g, err := Build(data, nil, testOptions(), logger.Nop())
	require.NoError(t, err)

	from, _ := g.StopNode("A")
	for _, idx := range g.OutEdges(from) {
		edge := g.Edge(idx)
		if edge.Kind != EdgeTransit {
			continue
		}
		require.Equal(t, "first", edge.Connections[0].TripID)
		require.Equal(t, "second", edge.Connections[1].TripID)

		next := edge.NextConnection(29000)
		require.NotNil(t, next)
		require.Equal(t, "second", next.TripID)
		require.Nil(t, edge.NextConnection(29401))
	}
}

func TestBuildRejectsDecreasingArrival(t *testing.T) {
	data := &feed.Data{
		Stops: testStops(),
		Trips: []models.Trip{
			trip("bad", []string{"A", "C"}, []int{29000, 28900}),
		},
	}

	_, err := Build(data, nil, testOptions(), logger.Nop())
	var feedErr *feed.FeedError
	require.ErrorAs(t, err, &feedErr)
}

func TestBuildAddsSymmetricTransferEdges(t *testing.T) {
	data := &feed.Data{Stops: testStops()}

	g, err := Build(data, nil, testOptions(), logger.Nop())
	require.NoError(t, err)

	a, _ := g.StopNode("A")
	b, _ := g.StopNode("B")
	c, _ := g.StopNode("C")

	forward := transferTravel(g, a, b)
	backward := transferTravel(g, b, a)
	require.NotNil(t, forward)
	require.NotNil(t, backward)
	require.Equal(t, *forward, *backward)

	// C is far outside the transfer radius of both.
	require.Nil(t, transferTravel(g, a, c))
	require.Nil(t, transferTravel(g, c, b))
}

func transferTravel(g *Graph, from, to NodeID) *float64 {
	for _, idx := range g.OutEdges(from) {
		edge := g.Edge(idx)
		if edge.Kind == EdgeTransfer && edge.To == to {
			return &edge.TravelSec
		}
	}
	return nil
}

func TestBuildConnectsStopsToStreets(t *testing.T) {
	network := &street.Network{
		Nodes: []street.Node{
			{OSMID: osm.NodeID(10), Point: orb.Point{144.9601, -37.8100}},
			{OSMID: osm.NodeID(11), Point: orb.Point{144.9611, -37.8100}},
		},
		Edges: []street.Edge{
			{From: 0, To: 1, LengthM: 88, TravelSec: 88 / street.WalkSpeed},
			{From: 1, To: 0, LengthM: 88, TravelSec: 88 / street.WalkSpeed},
		},
	}
	data := &feed.Data{Stops: testStops()}

	g, err := Build(data, network, testOptions(), logger.Nop())
	require.NoError(t, err)
	require.Equal(t, 5, g.NumNodes())

	a, ok := g.StopNode("A")
	require.True(t, ok)
	require.Equal(t, NodeStop, g.Node(a).Type)
	require.Equal(t, NodeStreet, g.Node(NodeID(0)).Type)

	// Stop A links to street node 0 in both directions.
	var toStreet, toStop bool
	for _, idx := range g.OutEdges(a) {
		edge := g.Edge(idx)
		if edge.Kind == EdgeTransfer && edge.To == NodeID(0) {
			toStreet = true
		}
	}
	for _, idx := range g.OutEdges(NodeID(0)) {
		edge := g.Edge(idx)
		if edge.Kind == EdgeTransfer && edge.To == a {
			toStop = true
		}
	}
	require.True(t, toStreet)
	require.True(t, toStop)
}

func TestBuildAttachesTripShapes(t *testing.T) {
	shaped := trip("t1", []string{"A", "C"}, []int{28800, 29400})
	shaped.ShapeID = "sh1"
	bare := trip("t2", []string{"A", "C"}, []int{29000, 29600})
	missing := trip("t3", []string{"A", "C"}, []int{29200, 29800})
	missing.ShapeID = "gone"

	line := orb.LineString{{144.9600, -37.8100}, {145.0600, -37.8100}}
	data := &feed.Data{
		Stops:  testStops(),
		Trips:  []models.Trip{shaped, bare, missing},
		Shapes: map[string]orb.LineString{"sh1": line},
	}

	g, err := Build(data, nil, testOptions(), logger.Nop())
	require.NoError(t, err)

	got, ok := g.TripShape("t1")
	require.True(t, ok)
	require.Equal(t, line, got)

	_, ok = g.TripShape("t2")
	require.False(t, ok)
	_, ok = g.TripShape("t3")
	require.False(t, ok)
}

func TestGraphWindowAndMapping(t *testing.T) {
	data := &feed.Data{Stops: testStops()}

	g, err := Build(data, nil, testOptions(), logger.Nop())
	require.NoError(t, err)

	dep, dur := g.Window()
	require.Equal(t, 28800, dep)
	require.Equal(t, 3600, dur)

	mapping := g.Mapping()
	require.Len(t, mapping, g.NumNodes())
	a, _ := g.StopNode("A")
	require.Equal(t, "A", mapping[a].SourceID)
	require.Equal(t, NodeStop, mapping[a].Type)

	require.Equal(t, g.NumNodes(), g.Index().Size())
}
