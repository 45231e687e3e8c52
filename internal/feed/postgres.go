package feed

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	_ "github.com/lib/pq"
	"github.com/paulmach/orb"

	"github.com/transitrouter/internal/common/logger"
	"github.com/transitrouter/pkg/gtfs/models"
)

// LoadFromDatabase reads the same feed tables from Postgres instead of
// CSV files, for deployments where the feed is imported into a database
// ahead of time. Times are stored as GTFS HH:MM:SS text and parsed with
// the same no-wraparound rule as the file loader.
func LoadFromDatabase(ctx context.Context, dsn string, weekday models.Weekday, log logger.Logger) (*Data, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, &FeedError{Table: "database", Err: fmt.Errorf("opening database: %w", err)}
	}
	defer conn.Close()

	if err := conn.PingContext(ctx); err != nil {
		return nil, &FeedError{Table: "database", Err: fmt.Errorf("pinging database: %w", err)}
	}

	start := time.Now()
	data := &Data{Routes: make(map[string]models.Route)}

	if err := loadStops(ctx, conn, data); err != nil {
		return nil, err
	}
	if err := loadRoutes(ctx, conn, data); err != nil {
		return nil, err
	}
	tripIndex, err := loadActiveTrips(ctx, conn, weekday, data)
	if err != nil {
		return nil, err
	}
	if err := loadStopTimes(ctx, conn, tripIndex, data); err != nil {
		return nil, err
	}
	loadShapes(ctx, conn, data, log)

	for i := range data.Trips {
		trip := &data.Trips[i]
		sort.Slice(trip.StopTimes, func(a, b int) bool {
			return trip.StopTimes[a].StopSequence < trip.StopTimes[b].StopSequence
		})
		if err := checkStopTimes(trip); err != nil {
			return nil, err
		}
	}

	log.Info("Feed loaded from database",
		"weekday", string(weekday),
		"stops", len(data.Stops),
		"active_trips", len(data.Trips),
		"elapsed", time.Since(start).String(),
	)
	return data, nil
}

func loadStops(ctx context.Context, conn *sql.DB, data *Data) error {
	rows, err := conn.QueryContext(ctx,
		`SELECT stop_id, COALESCE(stop_name, ''), stop_lat, stop_lon FROM stops`)
	if err != nil {
		return &FeedError{Table: "stops", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var stop models.Stop
		if err := rows.Scan(&stop.StopID, &stop.StopName, &stop.StopLat, &stop.StopLon); err != nil {
			return &FeedError{Table: "stops", Err: err}
		}
		data.Stops = append(data.Stops, stop)
	}
	return wrapRowsErr("stops", rows)
}

func loadRoutes(ctx context.Context, conn *sql.DB, data *Data) error {
	rows, err := conn.QueryContext(ctx,
		`SELECT route_id, COALESCE(agency_id, ''), COALESCE(route_short_name, ''),
		        COALESCE(route_long_name, ''), route_type
		   FROM routes`)
	if err != nil {
		return &FeedError{Table: "routes", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var route models.Route
		if err := rows.Scan(&route.RouteID, &route.AgencyID, &route.RouteShortName,
			&route.RouteLongName, &route.RouteType); err != nil {
			return &FeedError{Table: "routes", Err: err}
		}
		data.Routes[route.RouteID] = route
	}
	return wrapRowsErr("routes", rows)
}

func loadActiveTrips(ctx context.Context, conn *sql.DB, weekday models.Weekday, data *Data) (map[string]int, error) {
	// weekday comes from the models.Weekday enum, so interpolating the
	// column name is safe.
	query := fmt.Sprintf(
		`SELECT t.trip_id, t.route_id, t.service_id, COALESCE(t.shape_id, '')
		   FROM trips t
		   JOIN calendar c ON c.service_id = t.service_id
		  WHERE c.%s = 1`, string(weekday))

	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, &FeedError{Table: "trips", Err: err}
	}
	defer rows.Close()

	tripIndex := make(map[string]int)
	for rows.Next() {
		var trip models.Trip
		if err := rows.Scan(&trip.TripID, &trip.RouteID, &trip.ServiceID, &trip.ShapeID); err != nil {
			return nil, &FeedError{Table: "trips", Err: err}
		}
		tripIndex[trip.TripID] = len(data.Trips)
		data.Trips = append(data.Trips, trip)
	}
	return tripIndex, wrapRowsErr("trips", rows)
}

func loadStopTimes(ctx context.Context, conn *sql.DB, tripIndex map[string]int, data *Data) error {
	rows, err := conn.QueryContext(ctx,
		`SELECT trip_id, stop_id, stop_sequence, arrival_time, departure_time
		   FROM stop_times`)
	if err != nil {
		return &FeedError{Table: "stop_times", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var (
			stopTime  models.StopTime
			arrival   string
			departure string
		)
		if err := rows.Scan(&stopTime.TripID, &stopTime.StopID, &stopTime.StopSequence,
			&arrival, &departure); err != nil {
			return &FeedError{Table: "stop_times", Err: err}
		}

		idx, ok := tripIndex[stopTime.TripID]
		if !ok {
			continue
		}
		if stopTime.ArrivalSec, err = models.ParseTime(arrival); err != nil {
			return &FeedError{Table: "stop_times", Err: err}
		}
		if stopTime.DepartureSec, err = models.ParseTime(departure); err != nil {
			return &FeedError{Table: "stop_times", Err: err}
		}
		data.Trips[idx].StopTimes = append(data.Trips[idx].StopTimes, stopTime)
	}
	return wrapRowsErr("stop_times", rows)
}

// loadShapes mirrors the optional shapes.txt table: a database without a
// shapes table still yields a routable feed, just without trip geometry.
func loadShapes(ctx context.Context, conn *sql.DB, data *Data, log logger.Logger) {
	rows, err := conn.QueryContext(ctx,
		`SELECT shape_id, shape_pt_lat, shape_pt_lon, shape_pt_sequence FROM shapes`)
	if err != nil {
		log.Warn("Shapes table not readable, trip geometry disabled", "error", err)
		data.Shapes = map[string]orb.LineString{}
		return
	}
	defer rows.Close()

	shapePoints := make(map[string][]models.ShapePoint)
	for rows.Next() {
		var point models.ShapePoint
		if err := rows.Scan(&point.ShapeID, &point.Lat, &point.Lon, &point.Sequence); err != nil {
			log.Warn("Skipping unreadable shape point", "error", err)
			continue
		}
		shapePoints[point.ShapeID] = append(shapePoints[point.ShapeID], point)
	}
	if err := rows.Err(); err != nil {
		log.Warn("Shapes scan ended early", "error", err)
	}
	data.Shapes = buildShapes(shapePoints)
}

func wrapRowsErr(table string, rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		return &FeedError{Table: table, Err: err}
	}
	return nil
}
