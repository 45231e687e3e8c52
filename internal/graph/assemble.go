package graph

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"github.com/transitrouter/internal/common/logger"
	"github.com/transitrouter/internal/feed"
	"github.com/transitrouter/internal/spatial"
	"github.com/transitrouter/internal/street"
)

// ErrInvalidTimeWindow reports a non-positive duration or malformed
// departure time. It is fatal at construction.
var ErrInvalidTimeWindow = errors.New("invalid time window")

// Options configures one graph build. A graph is valid only for the
// (weekday, window) combination it was built with; changing either means
// building a new graph.
type Options struct {
	DepartureSec    int
	DurationSec     int
	TransferRadiusM float64
	SnapRadiusM     float64
}

const (
	DefaultTransferRadiusM = 200.0
	DefaultSnapRadiusM     = 500.0
)

func (o *Options) withDefaults() Options {
	opts := *o
	if opts.TransferRadiusM == 0 {
		opts.TransferRadiusM = DefaultTransferRadiusM
	}
	if opts.SnapRadiusM == 0 {
		opts.SnapRadiusM = DefaultSnapRadiusM
	}
	return opts
}

// Build assembles the immutable multimodal graph from loaded feed data
// and the walk network:
//
//  1. street nodes and stop nodes get stable global indices;
//  2. consecutive stop-time pairs become transit connections, kept only
//     when the departure falls inside the window;
//  3. stops within the transfer radius are linked by symmetric transfer
//     edges;
//  4. every stop is linked to its nearest street node so walking legs
//     can traverse street geometry.
//
// The feed data is expected to be pre-filtered to the target weekday.
func Build(data *feed.Data, network *street.Network, opts Options, log logger.Logger) (*Graph, error) {
	if opts.DurationSec <= 0 {
		return nil, fmt.Errorf("%w: duration %ds is not positive", ErrInvalidTimeWindow, opts.DurationSec)
	}
	if opts.DepartureSec < 0 {
		return nil, fmt.Errorf("%w: departure %ds is negative", ErrInvalidTimeWindow, opts.DepartureSec)
	}
	opts = opts.withDefaults()

	start := time.Now()
	g := &Graph{
		stopIDs:      make(map[string]NodeID),
		tripShapes:   make(map[string]orb.LineString),
		departureSec: opts.DepartureSec,
		durationSec:  opts.DurationSec,
	}

	addStreetNodes(g, network)
	addStopNodes(g, data)

	connections, err := addTransitEdges(g, data, opts)
	if err != nil {
		return nil, err
	}
	transfers := addTransferEdges(g, opts.TransferRadiusM)
	links := connectStopsToStreets(g, network)
	attachTripShapes(g, data)

	g.index = spatial.NewIndex()
	for i := range g.nodes {
		if err := g.index.Add(int32(i), g.nodes[i].Point); err != nil {
			return nil, err
		}
	}

	buildAdjacency(g)

	log.Info("Graph assembled",
		"nodes", len(g.nodes),
		"edges", len(g.edges),
		"connections", connections,
		"transfer_edges", transfers,
		"street_links", links,
		"window_departure", opts.DepartureSec,
		"window_duration", opts.DurationSec,
		"elapsed", time.Since(start).String(),
	)
	return g, nil
}

func addStreetNodes(g *Graph, network *street.Network) {
	if network == nil {
		return
	}
	for _, node := range network.Nodes {
		g.nodes = append(g.nodes, Node{
			Type:     NodeStreet,
			SourceID: strconv.FormatInt(int64(node.OSMID), 10),
			Point:    node.Point,
		})
	}
	for _, edge := range network.Edges {
		g.edges = append(g.edges, Edge{
			Kind:      EdgeStreet,
			From:      NodeID(edge.From),
			To:        NodeID(edge.To),
			TravelSec: edge.TravelSec,
		})
	}
}

func addStopNodes(g *Graph, data *feed.Data) {
	for _, stop := range data.Stops {
		id := NodeID(len(g.nodes))
		g.nodes = append(g.nodes, Node{
			Type:     NodeStop,
			SourceID: stop.StopID,
			Name:     stop.StopName,
			Point:    [2]float64{stop.StopLon, stop.StopLat},
		})
		g.stopIDs[stop.StopID] = id
	}
}

// addTransitEdges expands each trip into connections between consecutive
// stops. Connections for one stop pair share a single edge, sorted by
// departure so the router can binary-search the next departure.
func addTransitEdges(g *Graph, data *feed.Data, opts Options) (int, error) {
	windowEnd := opts.DepartureSec + opts.DurationSec
	edgeByPair := make(map[[2]NodeID]int32)
	connections := 0

	for _, trip := range data.Trips {
		for i := 0; i+1 < len(trip.StopTimes); i++ {
			current, next := trip.StopTimes[i], trip.StopTimes[i+1]

			if current.DepartureSec < opts.DepartureSec || current.DepartureSec >= windowEnd {
				continue
			}
			// A decreasing arrival would put a negative weight into the
			// search and silently corrupt every result.
			if next.ArrivalSec < current.DepartureSec {
				return 0, &feed.FeedError{
					Table: "stop_times.txt",
					Err: fmt.Errorf("trip %s: arrival at %s precedes departure from %s",
						trip.TripID, next.StopID, current.StopID),
				}
			}

			from, ok := g.stopIDs[current.StopID]
			if !ok {
				continue
			}
			to, ok := g.stopIDs[next.StopID]
			if !ok {
				continue
			}

			conn := Connection{
				DepartureSec: current.DepartureSec,
				ArrivalSec:   next.ArrivalSec,
				TripID:       trip.TripID,
				RouteID:      trip.RouteID,
			}

			pair := [2]NodeID{from, to}
			if idx, ok := edgeByPair[pair]; ok {
				g.edges[idx].Connections = append(g.edges[idx].Connections, conn)
			} else {
				edgeByPair[pair] = int32(len(g.edges))
				g.edges = append(g.edges, Edge{
					Kind:        EdgeTransit,
					From:        from,
					To:          to,
					Connections: []Connection{conn},
				})
			}
			connections++
		}
	}

	for _, idx := range edgeByPair {
		conns := g.edges[idx].Connections
		sort.Slice(conns, func(a, b int) bool {
			return conns[a].DepartureSec < conns[b].DepartureSec
		})
	}
	return connections, nil
}

// attachTripShapes resolves each trip's shape_id to its loaded geometry
// so itineraries can carry the ridden line string.
func attachTripShapes(g *Graph, data *feed.Data) {
	if len(data.Shapes) == 0 {
		return
	}
	for _, trip := range data.Trips {
		if trip.ShapeID == "" {
			continue
		}
		if line, ok := data.Shapes[trip.ShapeID]; ok {
			g.tripShapes[trip.TripID] = line
		}
	}
}

// addTransferEdges links every pair of stops within the walk radius.
// Each stop's loop adds only the outgoing direction; the counterpart is
// added when the other stop is processed, which keeps weights symmetric.
func addTransferEdges(g *Graph, radiusM float64) int {
	if radiusM <= 0 {
		return 0
	}

	stopIndex := spatial.NewIndex()
	for i := range g.nodes {
		if g.nodes[i].Type == NodeStop {
			// Index errors are impossible here: stop coordinates were
			// already accepted by the loader.
			_ = stopIndex.Add(int32(i), g.nodes[i].Point)
		}
	}

	count := 0
	for i := range g.nodes {
		if g.nodes[i].Type != NodeStop {
			continue
		}
		from := NodeID(i)
		for _, neighbor := range stopIndex.Within(g.nodes[i].Point, radiusM) {
			to := NodeID(neighbor)
			if to == from {
				continue
			}
			travel := walkSeconds(g.nodes[from].Point, g.nodes[to].Point)
			g.edges = append(g.edges, Edge{Kind: EdgeTransfer, From: from, To: to, TravelSec: travel})
			count++
		}
	}
	return count
}

// connectStopsToStreets attaches each stop to its nearest street node in
// both directions so itineraries can start and end anywhere on the
// street network.
func connectStopsToStreets(g *Graph, network *street.Network) int {
	if network == nil || len(network.Nodes) == 0 {
		return 0
	}

	streetIndex := spatial.NewIndex()
	for i := range g.nodes {
		if g.nodes[i].Type == NodeStreet {
			_ = streetIndex.Add(int32(i), g.nodes[i].Point)
		}
	}

	count := 0
	for i := range g.nodes {
		if g.nodes[i].Type != NodeStop {
			continue
		}
		// No radius cap: a stop far from any mapped street still needs a
		// way onto the network, and a long link only costs walk time.
		snapped, err := streetIndex.Snap(g.nodes[i].Point, maxSnapM)
		if err != nil {
			continue
		}
		stop, node := NodeID(i), NodeID(snapped.NodeID)
		travel := snapped.DistanceM / street.WalkSpeed
		g.edges = append(g.edges,
			Edge{Kind: EdgeTransfer, From: stop, To: node, TravelSec: travel},
			Edge{Kind: EdgeTransfer, From: node, To: stop, TravelSec: travel},
		)
		count += 2
	}
	return count
}

// maxSnapM is effectively "no limit" for the stop-to-street attachment.
const maxSnapM = 1e9

func walkSeconds(a, b orb.Point) float64 {
	return geo.DistanceHaversine(a, b) / street.WalkSpeed
}

func buildAdjacency(g *Graph) {
	g.adj = make([][]int32, len(g.nodes))
	for i := range g.edges {
		from := g.edges[i].From
		g.adj[from] = append(g.adj[from], int32(i))
	}
}
