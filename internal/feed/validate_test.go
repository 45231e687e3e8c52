package feed

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/transitrouter/internal/common/logger"
)

func TestValidateFeedAcceptsWellFormedFeed(t *testing.T) {
	dir := writeFeed(t, fixtureFiles())
	require.True(t, ValidateFeed(dir, logger.Nop()))
}

func TestValidateFeedMissingTable(t *testing.T) {
	files := fixtureFiles()
	delete(files, "agency.txt")
	dir := writeFeed(t, files)
	require.False(t, ValidateFeed(dir, logger.Nop()))
}

func TestValidateFeedMissingColumn(t *testing.T) {
	files := fixtureFiles()
	files["trips.txt"] = "trip_id,route_id\nt1,r1\n"
	dir := writeFeed(t, files)
	require.False(t, ValidateFeed(dir, logger.Nop()))
}

func TestValidateFeedEmptyTable(t *testing.T) {
	files := fixtureFiles()
	files["stops.txt"] = "stop_id,stop_name,stop_lat,stop_lon\n"
	dir := writeFeed(t, files)
	require.False(t, ValidateFeed(dir, logger.Nop()))
}

func TestValidateFeedBrokenReference(t *testing.T) {
	files := fixtureFiles()
	files["trips.txt"] = "trip_id,route_id,service_id\nt1,missing_route,wd\nt2,r1,we\n"
	dir := writeFeed(t, files)
	require.False(t, ValidateFeed(dir, logger.Nop()))
}

func TestValidateFeedMalformedTimesAreWarningsOnly(t *testing.T) {
	files := fixtureFiles()
	files["stop_times.txt"] = "trip_id,stop_id,stop_sequence,arrival_time,departure_time\n" +
		"t1,A,1,not-a-time,08:00:00\n" +
		"t2,B,1,10:00:00,10:00:00\n"
	dir := writeFeed(t, files)
	require.True(t, ValidateFeed(dir, logger.Nop()))
}

func TestValidateFeedBadPath(t *testing.T) {
	require.False(t, ValidateFeed("/nonexistent/feed", logger.Nop()))
}
