package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Feed    FeedConfig    `yaml:"feed" validate:"required"`
	Street  StreetConfig  `yaml:"street" validate:"required"`
	Window  WindowConfig  `yaml:"window" validate:"required"`
	Routing RoutingConfig `yaml:"routing"`
	Metrics MetricsConfig `yaml:"metrics"`
	Events  EventsConfig  `yaml:"events"`
	Logging LoggingConfig `yaml:"logging"`
}

// FeedConfig selects the GTFS source: a directory/zip path, or a Postgres
// DSN when the feed has been imported into a database beforehand.
type FeedConfig struct {
	Path        string `yaml:"path"`
	DatabaseURL string `yaml:"database_url"`
	Weekday     string `yaml:"weekday" validate:"required,oneof=monday tuesday wednesday thursday friday saturday sunday"`
}

type StreetConfig struct {
	Path string `yaml:"path" validate:"required"`
}

// WindowConfig bounds the schedule slice the graph is built for.
// Departure is a GTFS HH:MM:SS value, DurationSec the window length.
type WindowConfig struct {
	Departure   string `yaml:"departure" validate:"required"`
	DurationSec int    `yaml:"duration_sec" validate:"gt=0"`
}

type RoutingConfig struct {
	TransferRadiusM float64 `yaml:"transfer_radius_m" validate:"gte=0"`
	SnapRadiusM     float64 `yaml:"snap_radius_m" validate:"gt=0"`
	Workers         int     `yaml:"workers" validate:"gte=0"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// EventsConfig enables per-query event publishing over NATS when URL is set.
type EventsConfig struct {
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	FilePath string `yaml:"file_path"`
}

// Load builds the configuration from environment variables with defaults.
// If ROUTER_CONFIG_FILE points to a YAML file it is loaded first and env
// vars override nothing in it; the two sources are alternatives, matching
// how the feed sources work.
func Load() (*Config, error) {
	if path := os.Getenv("ROUTER_CONFIG_FILE"); path != "" {
		return LoadFile(path)
	}

	cfg := &Config{
		Feed: FeedConfig{
			Path:        getEnv("FEED_PATH", ""),
			DatabaseURL: getEnv("FEED_DATABASE_URL", ""),
			Weekday:     getEnv("FEED_WEEKDAY", "monday"),
		},
		Street: StreetConfig{
			Path: getEnv("STREET_PATH", ""),
		},
		Window: WindowConfig{
			Departure:   getEnv("WINDOW_DEPARTURE", "08:00:00"),
			DurationSec: getIntEnv("WINDOW_DURATION_SEC", 4*3600),
		},
		Routing: RoutingConfig{
			TransferRadiusM: getFloatEnv("TRANSFER_RADIUS_M", 200),
			SnapRadiusM:     getFloatEnv("SNAP_RADIUS_M", 500),
			Workers:         getIntEnv("OD_WORKERS", 0),
		},
		Metrics: MetricsConfig{
			Enabled: getEnv("METRICS_ENABLED", "false") == "true",
			Addr:    getEnv("METRICS_ADDR", ":9090"),
		},
		Events: EventsConfig{
			NATSURL: getEnv("EVENTS_NATS_URL", ""),
			Subject: getEnv("EVENTS_SUBJECT", "router.queries"),
		},
		Logging: LoggingConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			FilePath: getEnv("LOG_FILE", "transitrouter.log"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads configuration from a YAML file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Feed.Weekday == "" {
		cfg.Feed.Weekday = "monday"
	}
	if cfg.Window.Departure == "" {
		cfg.Window.Departure = "08:00:00"
	}
	if cfg.Window.DurationSec == 0 {
		cfg.Window.DurationSec = 4 * 3600
	}
	if cfg.Routing.TransferRadiusM == 0 {
		cfg.Routing.TransferRadiusM = 200
	}
	if cfg.Routing.SnapRadiusM == 0 {
		cfg.Routing.SnapRadiusM = 500
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9090"
	}
	if cfg.Events.Subject == "" {
		cfg.Events.Subject = "router.queries"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.FilePath == "" {
		cfg.Logging.FilePath = "transitrouter.log"
	}
}

// Validate checks structural constraints plus the rules the tags cannot
// express: exactly one feed source must be configured.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Feed.Path == "" && c.Feed.DatabaseURL == "" {
		return fmt.Errorf("invalid configuration: either feed.path or feed.database_url must be set")
	}
	if c.Feed.Path != "" && c.Feed.DatabaseURL != "" {
		return fmt.Errorf("invalid configuration: feed.path and feed.database_url are mutually exclusive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
