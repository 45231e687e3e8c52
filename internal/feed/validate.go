package feed

import (
	"encoding/csv"
	"io"
	"regexp"
	"strings"

	"github.com/transitrouter/internal/common/logger"
)

var timePattern = regexp.MustCompile(`^\d{1,2}:[0-5]\d:[0-5]\d$`)

// ValidateFeed checks the feed at path for the problems that would make
// graph construction meaningless: missing required tables, missing
// required columns, broken references between tables and malformed time
// values. Findings are logged; the function never fails, it returns false
// when a critical problem was found.
func ValidateFeed(path string, log logger.Logger) bool {
	files, closer, err := openFeed(path)
	if err != nil {
		log.Warn("Invalid feed path", "path", path, "error", err)
		return false
	}
	if closer != nil {
		defer closer.Close()
	}

	required := []string{"agency.txt", "stops.txt", "routes.txt", "trips.txt", "stop_times.txt", "calendar.txt"}
	for _, name := range required {
		if _, ok := files[name]; !ok {
			log.Warn("Required feed table missing", "file", name)
			return false
		}
	}

	tables := make(map[string]*tableScan, len(required))
	critical := false
	for _, name := range required {
		scan, err := scanTable(files[name])
		if err != nil {
			log.Warn("Unreadable feed table", "file", name, "error", err)
			return false
		}
		tables[name] = scan
	}

	requiredColumns := map[string][]string{
		"agency.txt":     {"agency_id"},
		"stops.txt":      {"stop_id"},
		"routes.txt":     {"route_id", "agency_id"},
		"trips.txt":      {"trip_id", "route_id", "service_id"},
		"stop_times.txt": {"trip_id", "stop_id", "departure_time", "arrival_time"},
		"calendar.txt":   {"service_id"},
	}
	for name, columns := range requiredColumns {
		scan := tables[name]
		if scan.rows == 0 {
			log.Warn("Feed table is empty", "file", name)
			critical = true
		}
		for _, column := range columns {
			if _, ok := scan.columns[column]; !ok {
				log.Warn("Required column missing", "file", name, "column", column)
				critical = true
			}
		}
	}

	relations := []struct {
		childFile, childCol, parentFile, parentCol string
	}{
		{"routes.txt", "agency_id", "agency.txt", "agency_id"},
		{"trips.txt", "route_id", "routes.txt", "route_id"},
		{"stop_times.txt", "trip_id", "trips.txt", "trip_id"},
		{"stop_times.txt", "stop_id", "stops.txt", "stop_id"},
	}
	for _, rel := range relations {
		missing := missingReferences(tables[rel.childFile], rel.childCol, tables[rel.parentFile], rel.parentCol)
		if missing > 0 {
			log.Warn("Broken references between feed tables",
				"from", rel.childFile+"."+rel.childCol,
				"to", rel.parentFile+"."+rel.parentCol,
				"count", missing,
			)
			critical = true
		}
	}

	// Malformed times are a warning: the loader rejects them row by row
	// and reports which trip is affected.
	for _, column := range []string{"departure_time", "arrival_time"} {
		if n := invalidTimes(tables["stop_times.txt"], column); n > 0 {
			log.Warn("Malformed time values in stop_times.txt", "column", column, "count", n)
		}
	}

	if critical {
		log.Warn("Feed contains critical errors", "path", path)
		return false
	}
	log.Info("Feed is valid", "path", path)
	return true
}

// tableScan keeps just enough of a table to validate it: the header map
// and the distinct values of each column that takes part in a check.
type tableScan struct {
	columns map[string]int
	values  map[string]map[string]bool
	rows    int
}

var checkedColumns = map[string]bool{
	"agency_id":      true,
	"stop_id":        true,
	"route_id":       true,
	"trip_id":        true,
	"service_id":     true,
	"departure_time": true,
	"arrival_time":   true,
}

func scanTable(file feedFile) (*tableScan, error) {
	rc, err := file.open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	reader := csv.NewReader(rc)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, err
	}

	scan := &tableScan{
		columns: make(map[string]int),
		values:  make(map[string]map[string]bool),
	}
	for i, h := range header {
		name := strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		scan.columns[name] = i
		if checkedColumns[name] {
			scan.values[name] = make(map[string]bool)
		}
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		scan.rows++
		for name, set := range scan.values {
			if idx := scan.columns[name]; idx < len(record) {
				set[strings.TrimSpace(record[idx])] = true
			}
		}
	}
	return scan, nil
}

func missingReferences(child *tableScan, childCol string, parent *tableScan, parentCol string) int {
	childValues, ok := child.values[childCol]
	if !ok {
		return 0
	}
	parentValues := parent.values[parentCol]
	missing := 0
	for value := range childValues {
		if value == "" {
			continue
		}
		if !parentValues[value] {
			missing++
		}
	}
	return missing
}

func invalidTimes(scan *tableScan, column string) int {
	invalid := 0
	for value := range scan.values[column] {
		if value == "" || !timePattern.MatchString(value) {
			invalid++
		}
	}
	return invalid
}
