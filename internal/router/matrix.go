package router

import (
	"context"
	"fmt"
	"runtime"

	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"

	"github.com/transitrouter/internal/graph"
)

// Unreachable marks a matrix cell whose destination cannot be reached
// within the time window, or whose origin or destination failed to
// snap. Individual failures never abort the batch.
const Unreachable = -1

// Matrix holds travel times in seconds, one row per origin and one
// column per destination, in input order.
type Matrix struct {
	Times [][]int
}

// ODMatrix computes travel times from every origin to every destination
// when leaving at depSec. Origins snapping to the same graph node share
// one single-source query. workers caps parallelism; zero means
// GOMAXPROCS. The only error is context cancellation.
func (r *Router) ODMatrix(ctx context.Context, origins, destinations []orb.Point, depSec, workers int) (*Matrix, error) {
	if depSec < 0 {
		return nil, fmt.Errorf("departure time %ds is negative", depSec)
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	m := &Matrix{Times: make([][]int, len(origins))}
	for i := range m.Times {
		row := make([]int, len(destinations))
		for j := range row {
			row[j] = Unreachable
		}
		m.Times[i] = row
	}

	destNodes := make([]graph.NodeID, len(destinations))
	destOK := make([]bool, len(destinations))
	for j, point := range destinations {
		node, err := r.snap(point)
		if err != nil {
			continue
		}
		destNodes[j] = node
		destOK[j] = true
	}

	// Rows for origins snapped to the same node are identical, so one
	// query per distinct node suffices.
	groups := make(map[graph.NodeID][]int)
	for i, point := range origins {
		node, err := r.snap(point)
		if err != nil {
			continue
		}
		groups[node] = append(groups[node], i)
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for node, rows := range groups {
		node, rows := node, rows
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			res := r.search(depSec, node, noTarget, false)
			r.report(QueryMatrixRow, res.stats)

			for j := range destinations {
				if !destOK[j] {
					continue
				}
				arrival, ok := res.arrivals[destNodes[j]]
				if !ok {
					continue
				}
				for _, i := range rows {
					m.Times[i][j] = arrival - depSec
				}
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return m, nil
}
