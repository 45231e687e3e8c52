package feed

import (
	"archive/zip"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/transitrouter/internal/common/logger"
	"github.com/transitrouter/pkg/gtfs/models"
)

// Parser reads GTFS tables from a feed directory or a .zip archive and
// streams typed records through callbacks. Files are parsed in an order
// that keeps referential lookups possible for the caller.
type Parser struct {
	logger logger.Logger
}

func NewParser(log logger.Logger) *Parser {
	return &Parser{logger: log}
}

type ParseCallbacks struct {
	OnStop         func(stop *models.Stop) error
	OnRoute        func(route *models.Route) error
	OnTrip         func(trip *models.Trip) error
	OnStopTime     func(stopTime *models.StopTime) error
	OnCalendar     func(calendar *models.Calendar) error
	OnCalendarDate func(calendarDate *models.CalendarDate) error
	OnShapePoint   func(shapePoint *models.ShapePoint) error
	OnFileComplete func(fileName string) error
}

// Tables required for graph construction. agency.txt is checked by the
// feed validator but not needed here.
var requiredFiles = []string{
	"stops.txt",
	"calendar.txt",
	"trips.txt",
	"stop_times.txt",
}

var parseOrder = []string{
	"stops.txt",
	"routes.txt",
	"calendar.txt",
	"calendar_dates.txt",
	"shapes.txt",
	"trips.txt",
	"stop_times.txt",
}

// feedFile abstracts over directory entries and zip members.
type feedFile struct {
	name string
	open func() (io.ReadCloser, error)
}

// Parse reads the feed at path. Missing required tables or rows that do
// not parse produce a *FeedError.
func (p *Parser) Parse(path string, callbacks ParseCallbacks) error {
	files, closer, err := openFeed(path)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	for _, name := range requiredFiles {
		if _, ok := files[name]; !ok {
			return &FeedError{Table: name, Err: fmt.Errorf("required table missing")}
		}
	}

	for _, name := range parseOrder {
		file, ok := files[name]
		if !ok {
			p.logger.Debug("Optional table not present", "file", name)
			continue
		}
		if err := p.parseFile(file, callbacks); err != nil {
			return err
		}
	}
	return nil
}

func openFeed(path string) (map[string]feedFile, io.Closer, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, &FeedError{Table: path, Err: err}
	}

	files := make(map[string]feedFile)

	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, nil, &FeedError{Table: path, Err: err}
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
				continue
			}
			full := filepath.Join(path, entry.Name())
			files[entry.Name()] = feedFile{
				name: entry.Name(),
				open: func() (io.ReadCloser, error) { return os.Open(full) },
			}
		}
		return files, nil, nil
	}

	reader, err := zip.OpenReader(path)
	if err != nil {
		return nil, nil, &FeedError{Table: path, Err: fmt.Errorf("opening zip file: %w", err)}
	}
	for _, file := range reader.File {
		base := filepath.Base(file.Name)
		if !strings.HasSuffix(base, ".txt") {
			continue
		}
		f := file
		files[base] = feedFile{
			name: base,
			open: func() (io.ReadCloser, error) { return f.Open() },
		}
	}
	return files, reader, nil
}

func (p *Parser) parseFile(file feedFile, callbacks ParseCallbacks) error {
	rc, err := file.open()
	if err != nil {
		return &FeedError{Table: file.name, Err: err}
	}
	defer rc.Close()

	reader := csv.NewReader(rc)
	reader.FieldsPerRecord = -1 // Variable number of fields
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return &FeedError{Table: file.name, Err: fmt.Errorf("reading header: %w", err)}
	}

	headerMap := make(map[string]int)
	for i, h := range header {
		headerMap[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}

	count := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return &FeedError{Table: file.name, Err: fmt.Errorf("reading record: %w", err)}
		}

		if err := p.dispatchRecord(file.name, record, headerMap, callbacks); err != nil {
			return err
		}

		count++
		if count%100000 == 0 {
			p.logger.Debug("Progress", "file", file.name, "records", count)
		}
	}

	p.logger.Info("Table parsed", "file", file.name, "records", count)

	if callbacks.OnFileComplete != nil {
		if err := callbacks.OnFileComplete(file.name); err != nil {
			return err
		}
	}
	return nil
}

func (p *Parser) dispatchRecord(fileName string, record []string, headerMap map[string]int, callbacks ParseCallbacks) error {
	switch fileName {
	case "stops.txt":
		if callbacks.OnStop != nil {
			return callbacks.OnStop(p.parseStop(record, headerMap))
		}
	case "routes.txt":
		if callbacks.OnRoute != nil {
			return callbacks.OnRoute(p.parseRoute(record, headerMap))
		}
	case "trips.txt":
		if callbacks.OnTrip != nil {
			return callbacks.OnTrip(p.parseTrip(record, headerMap))
		}
	case "stop_times.txt":
		if callbacks.OnStopTime != nil {
			stopTime, err := p.parseStopTime(record, headerMap)
			if err != nil {
				return &FeedError{Table: fileName, Err: err}
			}
			return callbacks.OnStopTime(stopTime)
		}
	case "calendar.txt":
		if callbacks.OnCalendar != nil {
			return callbacks.OnCalendar(p.parseCalendar(record, headerMap))
		}
	case "calendar_dates.txt":
		if callbacks.OnCalendarDate != nil {
			calendarDate, err := p.parseCalendarDate(record, headerMap)
			if err != nil {
				p.logger.Warn("Skipping malformed calendar_dates record", "error", err)
				return nil
			}
			return callbacks.OnCalendarDate(calendarDate)
		}
	case "shapes.txt":
		if callbacks.OnShapePoint != nil {
			return callbacks.OnShapePoint(p.parseShapePoint(record, headerMap))
		}
	}
	return nil
}

// Helper functions to safely get values from CSV records
func (p *Parser) getString(record []string, headerMap map[string]int, field string) string {
	if idx, ok := headerMap[field]; ok && idx < len(record) {
		return strings.TrimSpace(record[idx])
	}
	return ""
}

func (p *Parser) getInt(record []string, headerMap map[string]int, field string, defaultVal int) int {
	str := p.getString(record, headerMap, field)
	if str == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(str)
	if err != nil {
		return defaultVal
	}
	return val
}

func (p *Parser) getFloat(record []string, headerMap map[string]int, field string, defaultVal float64) float64 {
	str := p.getString(record, headerMap, field)
	if str == "" {
		return defaultVal
	}
	val, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return defaultVal
	}
	return val
}

func (p *Parser) parseStop(record []string, headerMap map[string]int) *models.Stop {
	return &models.Stop{
		StopID:        p.getString(record, headerMap, "stop_id"),
		StopName:      p.getString(record, headerMap, "stop_name"),
		StopLat:       p.getFloat(record, headerMap, "stop_lat", 0),
		StopLon:       p.getFloat(record, headerMap, "stop_lon", 0),
		LocationType:  p.getInt(record, headerMap, "location_type", 0),
		ParentStation: p.getString(record, headerMap, "parent_station"),
	}
}

func (p *Parser) parseRoute(record []string, headerMap map[string]int) *models.Route {
	return &models.Route{
		RouteID:        p.getString(record, headerMap, "route_id"),
		AgencyID:       p.getString(record, headerMap, "agency_id"),
		RouteShortName: p.getString(record, headerMap, "route_short_name"),
		RouteLongName:  p.getString(record, headerMap, "route_long_name"),
		RouteType:      p.getInt(record, headerMap, "route_type", 0),
	}
}

func (p *Parser) parseTrip(record []string, headerMap map[string]int) *models.Trip {
	return &models.Trip{
		TripID:    p.getString(record, headerMap, "trip_id"),
		RouteID:   p.getString(record, headerMap, "route_id"),
		ServiceID: p.getString(record, headerMap, "service_id"),
		ShapeID:   p.getString(record, headerMap, "shape_id"),
	}
}

func (p *Parser) parseStopTime(record []string, headerMap map[string]int) (*models.StopTime, error) {
	arrival, err := models.ParseTime(p.getString(record, headerMap, "arrival_time"))
	if err != nil {
		return nil, fmt.Errorf("parsing arrival_time: %w", err)
	}
	departure, err := models.ParseTime(p.getString(record, headerMap, "departure_time"))
	if err != nil {
		return nil, fmt.Errorf("parsing departure_time: %w", err)
	}

	return &models.StopTime{
		TripID:       p.getString(record, headerMap, "trip_id"),
		StopID:       p.getString(record, headerMap, "stop_id"),
		StopSequence: p.getInt(record, headerMap, "stop_sequence", 0),
		ArrivalSec:   arrival,
		DepartureSec: departure,
	}, nil
}

func (p *Parser) parseCalendar(record []string, headerMap map[string]int) *models.Calendar {
	return &models.Calendar{
		ServiceID: p.getString(record, headerMap, "service_id"),
		Monday:    p.getInt(record, headerMap, "monday", 0),
		Tuesday:   p.getInt(record, headerMap, "tuesday", 0),
		Wednesday: p.getInt(record, headerMap, "wednesday", 0),
		Thursday:  p.getInt(record, headerMap, "thursday", 0),
		Friday:    p.getInt(record, headerMap, "friday", 0),
		Saturday:  p.getInt(record, headerMap, "saturday", 0),
		Sunday:    p.getInt(record, headerMap, "sunday", 0),
	}
}

func (p *Parser) parseShapePoint(record []string, headerMap map[string]int) *models.ShapePoint {
	return &models.ShapePoint{
		ShapeID:  p.getString(record, headerMap, "shape_id"),
		Lat:      p.getFloat(record, headerMap, "shape_pt_lat", 0),
		Lon:      p.getFloat(record, headerMap, "shape_pt_lon", 0),
		Sequence: p.getInt(record, headerMap, "shape_pt_sequence", 0),
	}
}

func (p *Parser) parseCalendarDate(record []string, headerMap map[string]int) (*models.CalendarDate, error) {
	date, err := parseDate(p.getString(record, headerMap, "date"))
	if err != nil {
		return nil, fmt.Errorf("parsing date: %w", err)
	}

	return &models.CalendarDate{
		ServiceID:     p.getString(record, headerMap, "service_id"),
		Date:          date,
		ExceptionType: p.getInt(record, headerMap, "exception_type", 0),
	}, nil
}
