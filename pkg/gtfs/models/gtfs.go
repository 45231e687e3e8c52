package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Stop is a single boarding location from stops.txt.
type Stop struct {
	StopID        string
	StopName      string
	StopLat       float64
	StopLon       float64
	LocationType  int
	ParentStation string
}

// Route from routes.txt. Only the fields the router needs are kept.
type Route struct {
	RouteID        string
	AgencyID       string
	RouteShortName string
	RouteLongName  string
	RouteType      int
}

// Trip from trips.txt with its stop times attached in sequence order.
// ShapeID is empty when the feed ships no geometry for the trip.
type Trip struct {
	TripID    string
	RouteID   string
	ServiceID string
	ShapeID   string
	StopTimes []StopTime
}

// StopTime is one scheduled call of a trip at a stop. Times are seconds
// since midnight of the service day and may exceed 86399 for trips
// crossing midnight. They must never be wrapped modulo a day.
type StopTime struct {
	TripID       string
	StopID       string
	StopSequence int
	ArrivalSec   int
	DepartureSec int
}

// Calendar from calendar.txt: which weekdays a service runs, and between
// which dates.
type Calendar struct {
	ServiceID string
	Monday    int
	Tuesday   int
	Wednesday int
	Thursday  int
	Friday    int
	Saturday  int
	Sunday    int
	StartDate time.Time
	EndDate   time.Time
}

// ShapePoint is one vertex of a trip geometry from shapes.txt.
type ShapePoint struct {
	ShapeID  string
	Lat      float64
	Lon      float64
	Sequence int
}

// CalendarDate from calendar_dates.txt. ExceptionType 1 adds service on
// the date, 2 removes it.
type CalendarDate struct {
	ServiceID     string
	Date          time.Time
	ExceptionType int
}

const (
	ServiceAdded   = 1
	ServiceRemoved = 2
)

// Weekday is a lowercase GTFS calendar column name ("monday" .. "sunday").
type Weekday string

const (
	Monday    Weekday = "monday"
	Tuesday   Weekday = "tuesday"
	Wednesday Weekday = "wednesday"
	Thursday  Weekday = "thursday"
	Friday    Weekday = "friday"
	Saturday  Weekday = "saturday"
	Sunday    Weekday = "sunday"
)

// ParseWeekday normalizes a user-supplied weekday name.
func ParseWeekday(s string) (Weekday, error) {
	switch w := Weekday(strings.ToLower(strings.TrimSpace(s))); w {
	case Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday:
		return w, nil
	default:
		return "", fmt.Errorf("invalid weekday %q", s)
	}
}

// ActiveOn reports whether the service runs on the given weekday.
func (c *Calendar) ActiveOn(day Weekday) bool {
	switch day {
	case Monday:
		return c.Monday == 1
	case Tuesday:
		return c.Tuesday == 1
	case Wednesday:
		return c.Wednesday == 1
	case Thursday:
		return c.Thursday == 1
	case Friday:
		return c.Friday == 1
	case Saturday:
		return c.Saturday == 1
	case Sunday:
		return c.Sunday == 1
	}
	return false
}

// ParseTime converts a GTFS HH:MM:SS value to seconds since midnight.
// Hours past 23 are legal and denote service running past midnight, so
// "25:10:00" parses to 90600, never 4200.
func ParseTime(value string) (int, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid time %q: expected HH:MM:SS", value)
	}

	hours, err := strconv.Atoi(parts[0])
	if err != nil || hours < 0 {
		return 0, fmt.Errorf("invalid hours in %q", value)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("invalid minutes in %q", value)
	}
	seconds, err := strconv.Atoi(parts[2])
	if err != nil || seconds < 0 || seconds > 59 {
		return 0, fmt.Errorf("invalid seconds in %q", value)
	}

	return hours*3600 + minutes*60 + seconds, nil
}

// FormatTime renders seconds since midnight back to HH:MM:SS. Hours are
// not wrapped, mirroring ParseTime.
func FormatTime(sec int) string {
	return fmt.Sprintf("%02d:%02d:%02d", sec/3600, sec%3600/60, sec%60)
}
