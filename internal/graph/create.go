package graph

import (
	"context"

	"github.com/transitrouter/internal/common/logger"
	"github.com/transitrouter/internal/feed"
	"github.com/transitrouter/internal/street"
	"github.com/transitrouter/pkg/gtfs/models"
)

// CreateGraph is the one-call construction path: load the feed for the
// weekday, import the street extract, assemble the graph. Feed problems
// surface as *feed.FeedError, street problems as
// *street.NetworkImportError, window problems as ErrInvalidTimeWindow.
func CreateGraph(ctx context.Context, feedPath, streetPath string, weekday models.Weekday, opts Options, log logger.Logger) (*Graph, error) {
	data, err := feed.Load(feedPath, weekday, log)
	if err != nil {
		return nil, err
	}

	network, err := street.Import(ctx, streetPath, log)
	if err != nil {
		return nil, err
	}

	return Build(data, network, opts, log)
}

// CreateGraphFromDatabase builds the graph from a Postgres-resident feed
// instead of CSV files. The street extract is still read from disk.
func CreateGraphFromDatabase(ctx context.Context, dsn, streetPath string, weekday models.Weekday, opts Options, log logger.Logger) (*Graph, error) {
	data, err := feed.LoadFromDatabase(ctx, dsn, weekday, log)
	if err != nil {
		return nil, err
	}

	network, err := street.Import(ctx, streetPath, log)
	if err != nil {
		return nil, err
	}

	return Build(data, network, opts, log)
}
