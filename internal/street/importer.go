package street

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"

	"github.com/transitrouter/internal/common/logger"
)

// WalkSpeed is the fixed pedestrian speed in meters per second used to
// turn edge lengths into traversal times.
const WalkSpeed = 1.39

// NetworkImportError reports a corrupt or empty street extract. It is
// fatal at graph construction time.
type NetworkImportError struct {
	Path string
	Err  error
}

func (e *NetworkImportError) Error() string {
	return fmt.Sprintf("street extract %s: %v", e.Path, e.Err)
}

func (e *NetworkImportError) Unwrap() error { return e.Err }

// Node is a walkable street location.
type Node struct {
	OSMID  osm.NodeID
	Point  orb.Point
	Degree int
}

// Edge is a directed pedestrian connection between two nodes, indexed
// into Network.Nodes. Every undirected way segment produces two edges.
type Edge struct {
	From      int32
	To        int32
	LengthM   float64
	TravelSec float64
}

// Network is the walkable street graph extracted from OSM data.
// Disconnected components are kept: an unreachable island must show up
// as an unreachable query result, not disappear at load time.
type Network struct {
	Nodes []Node
	Edges []Edge
}

// Import reads an OSM .pbf extract and builds the walk network. A file
// that cannot be decoded, or one that yields no walkable edges, fails
// with a *NetworkImportError.
func Import(ctx context.Context, path string, log logger.Logger) (*Network, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &NetworkImportError{Path: path, Err: err}
	}
	defer file.Close()

	start := time.Now()

	// PBF files order nodes before ways, so one scan collects both.
	coords := make(map[osm.NodeID]orb.Point)
	var ways []*osm.Way

	scanner := osmpbf.New(ctx, file, runtime.GOMAXPROCS(0))
	defer scanner.Close()
	scanner.SkipRelations = true

	for scanner.Scan() {
		switch o := scanner.Object().(type) {
		case *osm.Node:
			coords[o.ID] = orb.Point{o.Lon, o.Lat}
		case *osm.Way:
			if walkable(o) {
				ways = append(ways, o)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &NetworkImportError{Path: path, Err: err}
	}

	network, err := buildNetwork(coords, ways)
	if err != nil {
		return nil, &NetworkImportError{Path: path, Err: err}
	}

	log.Info("Street network imported",
		"path", path,
		"nodes", len(network.Nodes),
		"edges", len(network.Edges),
		"elapsed", time.Since(start).String(),
	)
	return network, nil
}

// buildNetwork materializes graph nodes for every node referenced by a
// walkable way and links consecutive way nodes in both directions with
// haversine-length weights.
func buildNetwork(coords map[osm.NodeID]orb.Point, ways []*osm.Way) (*Network, error) {
	network := &Network{}
	nodeIndex := make(map[osm.NodeID]int32)

	resolve := func(id osm.NodeID) (int32, bool) {
		if idx, ok := nodeIndex[id]; ok {
			return idx, true
		}
		point, ok := coords[id]
		if !ok {
			// Way references a node outside the extract clip.
			return 0, false
		}
		idx := int32(len(network.Nodes))
		network.Nodes = append(network.Nodes, Node{OSMID: id, Point: point})
		nodeIndex[id] = idx
		return idx, true
	}

	for _, way := range ways {
		for i := 0; i+1 < len(way.Nodes); i++ {
			from, ok := resolve(way.Nodes[i].ID)
			if !ok {
				continue
			}
			to, ok := resolve(way.Nodes[i+1].ID)
			if !ok {
				continue
			}
			if from == to {
				continue
			}

			length := geo.DistanceHaversine(network.Nodes[from].Point, network.Nodes[to].Point)
			travel := length / WalkSpeed
			network.Edges = append(network.Edges,
				Edge{From: from, To: to, LengthM: length, TravelSec: travel},
				Edge{From: to, To: from, LengthM: length, TravelSec: travel},
			)
			network.Nodes[from].Degree++
			network.Nodes[to].Degree++
		}
	}

	if len(network.Nodes) == 0 || len(network.Edges) == 0 {
		return nil, fmt.Errorf("no walkable ways found")
	}
	return network, nil
}

// walkable applies the pedestrian profile: any highway-tagged way that
// is not a motor-only road and does not forbid foot traffic.
func walkable(way *osm.Way) bool {
	highway := way.Tags.Find("highway")
	if highway == "" {
		return false
	}
	switch highway {
	case "motorway", "motorway_link", "trunk", "trunk_link":
		return false
	}
	if way.Tags.Find("foot") == "no" {
		return false
	}
	if way.Tags.Find("access") == "private" {
		return false
	}
	return true
}
