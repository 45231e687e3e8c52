package feed

import (
	"fmt"
	"sort"
	"time"

	"github.com/paulmach/orb"

	"github.com/transitrouter/internal/common/logger"
	"github.com/transitrouter/pkg/gtfs/models"
)

// FeedError reports a missing or malformed schedule table. It is fatal at
// graph construction time.
type FeedError struct {
	Table string
	Err   error
}

func (e *FeedError) Error() string {
	return fmt.Sprintf("feed table %s: %v", e.Table, e.Err)
}

func (e *FeedError) Unwrap() error { return e.Err }

// Data is the immutable result of loading a feed for one weekday: stops,
// the trips active that day with their stop times in sequence order, and
// the trip geometries from shapes.txt keyed by shape_id.
type Data struct {
	Stops  []models.Stop
	Trips  []models.Trip
	Routes map[string]models.Route
	Shapes map[string]orb.LineString
}

// Load parses the GTFS feed at path (directory or .zip) and returns the
// records relevant for the requested weekday. Trips whose service is not
// active on that weekday are dropped here so the graph assembler never
// sees them.
func Load(path string, weekday models.Weekday, log logger.Logger) (*Data, error) {
	start := time.Now()

	activeServices := make(map[string]bool)
	routes := make(map[string]models.Route)
	tripIndex := make(map[string]int)
	shapePoints := make(map[string][]models.ShapePoint)
	data := &Data{Routes: routes}
	droppedTrips := 0

	parser := NewParser(log)
	callbacks := ParseCallbacks{
		OnStop: func(stop *models.Stop) error {
			data.Stops = append(data.Stops, *stop)
			return nil
		},
		OnRoute: func(route *models.Route) error {
			routes[route.RouteID] = *route
			return nil
		},
		OnCalendar: func(calendar *models.Calendar) error {
			if calendar.ActiveOn(weekday) {
				activeServices[calendar.ServiceID] = true
			}
			return nil
		},
		OnTrip: func(trip *models.Trip) error {
			if !activeServices[trip.ServiceID] {
				droppedTrips++
				return nil
			}
			tripIndex[trip.TripID] = len(data.Trips)
			data.Trips = append(data.Trips, *trip)
			return nil
		},
		OnStopTime: func(stopTime *models.StopTime) error {
			idx, ok := tripIndex[stopTime.TripID]
			if !ok {
				// Trip filtered out by the weekday, or dangling reference.
				return nil
			}
			data.Trips[idx].StopTimes = append(data.Trips[idx].StopTimes, *stopTime)
			return nil
		},
		OnShapePoint: func(shapePoint *models.ShapePoint) error {
			shapePoints[shapePoint.ShapeID] = append(shapePoints[shapePoint.ShapeID], *shapePoint)
			return nil
		},
	}

	if err := parser.Parse(path, callbacks); err != nil {
		return nil, err
	}

	for i := range data.Trips {
		trip := &data.Trips[i]
		sort.Slice(trip.StopTimes, func(a, b int) bool {
			return trip.StopTimes[a].StopSequence < trip.StopTimes[b].StopSequence
		})
		if err := checkStopTimes(trip); err != nil {
			return nil, err
		}
	}
	data.Shapes = buildShapes(shapePoints)

	log.Info("Feed loaded",
		"path", path,
		"weekday", string(weekday),
		"stops", len(data.Stops),
		"active_trips", len(data.Trips),
		"inactive_trips", droppedTrips,
		"shapes", len(data.Shapes),
		"elapsed", time.Since(start).String(),
	)
	return data, nil
}

// checkStopTimes enforces the per-trip structural invariants: strictly
// increasing stop sequences and arrival never after departure at a stop.
func checkStopTimes(trip *models.Trip) error {
	for i, st := range trip.StopTimes {
		if i > 0 && st.StopSequence <= trip.StopTimes[i-1].StopSequence {
			return &FeedError{
				Table: "stop_times.txt",
				Err:   fmt.Errorf("trip %s: stop_sequence not strictly increasing at index %d", trip.TripID, i),
			}
		}
		if st.ArrivalSec > st.DepartureSec {
			return &FeedError{
				Table: "stop_times.txt",
				Err:   fmt.Errorf("trip %s stop %s: arrival after departure", trip.TripID, st.StopID),
			}
		}
	}
	return nil
}

// buildShapes orders each shape's vertices by sequence and converts them
// to line strings. A shape with fewer than two points carries no usable
// geometry and is dropped.
func buildShapes(shapePoints map[string][]models.ShapePoint) map[string]orb.LineString {
	shapes := make(map[string]orb.LineString, len(shapePoints))
	for shapeID, points := range shapePoints {
		if len(points) < 2 {
			continue
		}
		sort.Slice(points, func(a, b int) bool {
			return points[a].Sequence < points[b].Sequence
		})
		line := make(orb.LineString, len(points))
		for i, point := range points {
			line[i] = orb.Point{point.Lon, point.Lat}
		}
		shapes[shapeID] = line
	}
	return shapes
}

func parseDate(value string) (time.Time, error) {
	return time.Parse("20060102", value)
}
