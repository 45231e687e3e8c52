package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadFromEnvWithDefaults(t *testing.T) {
	t.Setenv("ROUTER_CONFIG_FILE", "")
	t.Setenv("FEED_PATH", "/data/gtfs")
	t.Setenv("STREET_PATH", "/data/streets.osm.pbf")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "/data/gtfs", cfg.Feed.Path)
	require.Equal(t, "monday", cfg.Feed.Weekday)
	require.Equal(t, "08:00:00", cfg.Window.Departure)
	require.Equal(t, 4*3600, cfg.Window.DurationSec)
	require.Equal(t, 200.0, cfg.Routing.TransferRadiusM)
	require.Equal(t, 500.0, cfg.Routing.SnapRadiusM)
	require.Equal(t, ":9090", cfg.Metrics.Addr)
	require.Equal(t, "router.queries", cfg.Events.Subject)
	require.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ROUTER_CONFIG_FILE", "")
	t.Setenv("FEED_PATH", "/data/gtfs")
	t.Setenv("STREET_PATH", "/data/streets.osm.pbf")
	t.Setenv("FEED_WEEKDAY", "saturday")
	t.Setenv("WINDOW_DEPARTURE", "06:30:00")
	t.Setenv("WINDOW_DURATION_SEC", "7200")
	t.Setenv("OD_WORKERS", "8")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "saturday", cfg.Feed.Weekday)
	require.Equal(t, "06:30:00", cfg.Window.Departure)
	require.Equal(t, 7200, cfg.Window.DurationSec)
	require.Equal(t, 8, cfg.Routing.Workers)
}

func TestLoadRequiresExactlyOneFeedSource(t *testing.T) {
	t.Setenv("ROUTER_CONFIG_FILE", "")
	t.Setenv("STREET_PATH", "/data/streets.osm.pbf")
	t.Setenv("FEED_PATH", "")
	t.Setenv("FEED_DATABASE_URL", "")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("FEED_PATH", "/data/gtfs")
	t.Setenv("FEED_DATABASE_URL", "postgres://localhost/gtfs")
	_, err = Load()
	require.Error(t, err)
}

func TestLoadRejectsBadWeekday(t *testing.T) {
	t.Setenv("ROUTER_CONFIG_FILE", "")
	t.Setenv("FEED_PATH", "/data/gtfs")
	t.Setenv("STREET_PATH", "/data/streets.osm.pbf")
	t.Setenv("FEED_WEEKDAY", "funday")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	content := `
feed:
  path: /data/gtfs
  weekday: friday
street:
  path: /data/streets.osm.pbf
window:
  departure: "07:00:00"
  duration_sec: 10800
routing:
  transfer_radius_m: 150
  workers: 4
metrics:
  enabled: true
  addr: ":2112"
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	require.Equal(t, "friday", cfg.Feed.Weekday)
	require.Equal(t, 10800, cfg.Window.DurationSec)
	require.Equal(t, 150.0, cfg.Routing.TransferRadiusM)
	require.Equal(t, 4, cfg.Routing.Workers)
	require.True(t, cfg.Metrics.Enabled)
	require.Equal(t, ":2112", cfg.Metrics.Addr)
	// Unset values still get their defaults.
	require.Equal(t, 500.0, cfg.Routing.SnapRadiusM)
	require.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile("/nonexistent/config.yaml")
	require.Error(t, err)
}
