package graph

import (
	"sort"

	"github.com/paulmach/orb"

	"github.com/transitrouter/internal/spatial"
)

// NodeID is a stable index into the graph's node arena. IDs are assigned
// once during assembly and never change afterwards.
type NodeID int32

// NodeType discriminates the two node kinds. The set is closed, so nodes
// are a tagged struct rather than an interface hierarchy.
type NodeType uint8

const (
	NodeStreet NodeType = iota
	NodeStop
)

func (t NodeType) String() string {
	if t == NodeStop {
		return "stop"
	}
	return "street"
}

// Node is one graph vertex: a street location or a transit stop.
// SourceID preserves the identifier from the input data set (OSM node id
// or GTFS stop_id).
type Node struct {
	Type     NodeType
	SourceID string
	Name     string
	Point    orb.Point
}

// EdgeKind discriminates the three edge kinds.
type EdgeKind uint8

const (
	EdgeStreet EdgeKind = iota
	EdgeTransfer
	EdgeTransit
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeTransfer:
		return "transfer"
	case EdgeTransit:
		return "transit"
	default:
		return "street"
	}
}

// Connection is one scheduled departure over a transit edge: a single
// trip leg between two consecutive stops.
type Connection struct {
	DepartureSec int
	ArrivalSec   int
	TripID       string
	RouteID      string
}

// Edge is a directed graph edge. Street and transfer edges carry a fixed
// traversal time; transit edges carry the departures between their stop
// pair, sorted by departure time for binary search.
type Edge struct {
	Kind        EdgeKind
	From        NodeID
	To          NodeID
	TravelSec   float64
	Connections []Connection
}

// NextConnection returns the earliest connection departing at or after
// nowSec, or nil when the last departure has already left.
func (e *Edge) NextConnection(nowSec int) *Connection {
	i := sort.Search(len(e.Connections), func(i int) bool {
		return e.Connections[i].DepartureSec >= nowSec
	})
	if i == len(e.Connections) {
		return nil
	}
	return &e.Connections[i]
}

// Graph is the immutable multimodal routing graph. After Build returns,
// no node or edge is ever mutated or removed, so any number of queries
// may read it concurrently without synchronization. A different time
// window requires building a new instance.
type Graph struct {
	nodes []Node
	edges []Edge
	adj   [][]int32

	index      *spatial.Index
	stopIDs    map[string]NodeID
	tripShapes map[string]orb.LineString

	departureSec int
	durationSec  int
}

func (g *Graph) NumNodes() int { return len(g.nodes) }
func (g *Graph) NumEdges() int { return len(g.edges) }

func (g *Graph) Node(id NodeID) *Node { return &g.nodes[id] }
func (g *Graph) Edge(i int32) *Edge   { return &g.edges[i] }

// OutEdges returns the indices of the edges leaving id. The slice is
// shared and must not be modified.
func (g *Graph) OutEdges(id NodeID) []int32 { return g.adj[id] }

// Index exposes the spatial index for coordinate snapping.
func (g *Graph) Index() *spatial.Index { return g.index }

// Window returns the (departure, duration) pair the graph was built for,
// in seconds since midnight.
func (g *Graph) Window() (departureSec, durationSec int) {
	return g.departureSec, g.durationSec
}

// StopNode resolves a GTFS stop_id to its node.
func (g *Graph) StopNode(stopID string) (NodeID, bool) {
	id, ok := g.stopIDs[stopID]
	return id, ok
}

// TripShape returns the shapes.txt geometry of a trip, if the feed
// shipped one. The line string is shared and must not be modified.
func (g *Graph) TripShape(tripID string) (orb.LineString, bool) {
	line, ok := g.tripShapes[tripID]
	return line, ok
}

// NodeInfo is the read-only introspection record for one node.
type NodeInfo struct {
	ID       NodeID
	Type     NodeType
	SourceID string
	Point    orb.Point
}

// Mapping returns an introspection view of all nodes. The map is built
// fresh on every call so callers can do whatever they want with it.
func (g *Graph) Mapping() map[NodeID]NodeInfo {
	mapping := make(map[NodeID]NodeInfo, len(g.nodes))
	for i := range g.nodes {
		id := NodeID(i)
		mapping[id] = NodeInfo{
			ID:       id,
			Type:     g.nodes[i].Type,
			SourceID: g.nodes[i].SourceID,
			Point:    g.nodes[i].Point,
		}
	}
	return mapping
}
