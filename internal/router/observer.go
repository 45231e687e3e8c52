package router

import (
	"time"

	"github.com/transitrouter/internal/common/logger"
	"github.com/transitrouter/internal/graph"
)

// Query kinds reported to observers.
const (
	QuerySingleSource = "single_source"
	QueryPointToPoint = "point_to_point"
	QueryItinerary    = "itinerary"
	QueryMatrixRow    = "matrix_row"
	QueryIsochrone    = "isochrone"
)

// QueryStats summarizes one finished search for metrics and event sinks.
// Settled counts nodes whose earliest arrival was confirmed; Reached
// counts every node that got a label inside the window, including
// frontier nodes left unconfirmed by an early target exit, so
// Reached >= Settled always holds.
type QueryStats struct {
	Kind         string
	Source       graph.NodeID
	DepartureSec int
	Settled      int
	Relaxed      int
	Reached      int
	Elapsed      time.Duration
}

// Observer receives stats after every query. Implementations must be
// safe for concurrent use: matrix workers report in parallel.
type Observer interface {
	ObserveQuery(stats QueryStats)
}

// MultiObserver fans stats out to several sinks.
type MultiObserver []Observer

func (m MultiObserver) ObserveQuery(stats QueryStats) {
	for _, o := range m {
		o.ObserveQuery(stats)
	}
}

// LogObserver writes one debug line per query.
type LogObserver struct {
	log logger.Logger
}

func NewLogObserver(log logger.Logger) *LogObserver {
	return &LogObserver{log: log}
}

func (o *LogObserver) ObserveQuery(stats QueryStats) {
	o.log.Debug("Query finished",
		"kind", stats.Kind,
		"source", int32(stats.Source),
		"departure", stats.DepartureSec,
		"settled", stats.Settled,
		"relaxed", stats.Relaxed,
		"reached", stats.Reached,
		"elapsed", stats.Elapsed.String(),
	)
}
