package main

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/paulmach/orb"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/transitrouter/internal/common/config"
	"github.com/transitrouter/internal/common/logger"
	"github.com/transitrouter/internal/feed"
	"github.com/transitrouter/internal/graph"
	"github.com/transitrouter/internal/metrics"
	"github.com/transitrouter/internal/publisher"
	"github.com/transitrouter/internal/router"
	"github.com/transitrouter/pkg/gtfs/models"
)

func main() {
	var (
		validateOnly = flag.Bool("validate", false, "validate the GTFS feed and exit")
		fromArg      = flag.String("from", "", "origin as lon,lat")
		toArg        = flag.String("to", "", "destination as lon,lat")
		departArg    = flag.String("depart", "", "departure time HH:MM:SS (default: window departure)")
		originsArg   = flag.String("origins", "", "file with one origin lon,lat per line (matrix mode)")
		destsArg     = flag.String("destinations", "", "file with one destination lon,lat per line (matrix mode)")
		outArg       = flag.String("out", "", "matrix output file (default: stdout)")
		reachArg     = flag.String("isochrone", "", "isochrone origin as lon,lat")
		cutoffArg    = flag.Int("cutoff", 1800, "isochrone cutoff in seconds")
	)
	flag.Parse()

	// A missing .env is fine; env vars and the YAML file still apply.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log := logger.NewWithLevel(
		logger.ParseLevel(cfg.Logging.Level),
		logger.ConsoleWriter(),
		logger.FileWriter(cfg.Logging.FilePath),
	)

	if *validateOnly {
		if cfg.Feed.Path == "" {
			log.Fatal("Feed validation needs a file-based feed", "hint", "set FEED_PATH")
		}
		if !feed.ValidateFeed(cfg.Feed.Path, log) {
			os.Exit(1)
		}
		return
	}

	weekday, err := models.ParseWeekday(cfg.Feed.Weekday)
	if err != nil {
		log.Fatal("Invalid weekday", "error", err)
	}
	departureSec, err := models.ParseTime(cfg.Window.Departure)
	if err != nil {
		log.Fatal("Invalid window departure", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Shutdown signal received")
		cancel()
	}()

	log.Info("Building routing graph",
		"weekday", string(weekday),
		"window_departure", cfg.Window.Departure,
		"window_duration_sec", cfg.Window.DurationSec,
	)

	opts := graph.Options{
		DepartureSec:    departureSec,
		DurationSec:     cfg.Window.DurationSec,
		TransferRadiusM: cfg.Routing.TransferRadiusM,
		SnapRadiusM:     cfg.Routing.SnapRadiusM,
	}

	var g *graph.Graph
	if cfg.Feed.DatabaseURL != "" {
		g, err = graph.CreateGraphFromDatabase(ctx, cfg.Feed.DatabaseURL, cfg.Street.Path, weekday, opts, log)
	} else {
		g, err = graph.CreateGraph(ctx, cfg.Feed.Path, cfg.Street.Path, weekday, opts, log)
	}
	if err != nil {
		log.Fatal("Failed to build graph", "error", err)
	}

	observers := router.MultiObserver{router.NewLogObserver(log)}

	if cfg.Metrics.Enabled {
		registry := prometheus.NewRegistry()
		collector := metrics.NewCollector(registry)
		collector.SetGraphSize(g.NumNodes(), g.NumEdges())
		observers = append(observers, collector)

		server := metrics.NewServer(cfg.Metrics.Addr, registry, log)
		server.Start()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Warn("Metrics server shutdown failed", "error", err)
			}
		}()
	}

	if cfg.Events.NATSURL != "" {
		pub, err := publisher.New(cfg.Events.NATSURL, cfg.Events.Subject, log)
		if err != nil {
			log.Fatal("Failed to connect event publisher", "error", err)
		}
		defer pub.Close()
		observers = append(observers, pub)
	}

	rt := router.New(g, cfg.Routing.SnapRadiusM, observers)

	depSec := departureSec
	if *departArg != "" {
		depSec, err = models.ParseTime(*departArg)
		if err != nil {
			log.Fatal("Invalid departure time", "error", err)
		}
	}

	switch {
	case *originsArg != "" && *destsArg != "":
		err = runMatrix(ctx, rt, *originsArg, *destsArg, *outArg, depSec, cfg.Routing.Workers, log)
	case *fromArg != "" && *toArg != "":
		err = runItinerary(rt, *fromArg, *toArg, depSec, log)
	case *reachArg != "":
		err = runIsochrone(rt, *reachArg, depSec, *cutoffArg, log)
	default:
		log.Info("No query requested; graph build complete",
			"nodes", g.NumNodes(), "edges", g.NumEdges())
	}
	if err != nil {
		log.Fatal("Query failed", "error", err)
	}
}

func runItinerary(rt *router.Router, fromArg, toArg string, depSec int, log logger.Logger) error {
	from, err := parsePoint(fromArg)
	if err != nil {
		return fmt.Errorf("parsing -from: %w", err)
	}
	to, err := parsePoint(toArg)
	if err != nil {
		return fmt.Errorf("parsing -to: %w", err)
	}

	itinerary, err := rt.DetailedItineraryBetween(depSec, from, to)
	if err != nil {
		return err
	}

	log.Info("Itinerary found",
		"travel_sec", itinerary.TravelSec(),
		"transfers", itinerary.Transfers(),
		"legs", len(itinerary.Legs),
	)

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(itinerary)
}

func runIsochrone(rt *router.Router, originArg string, depSec, cutoffSec int, log logger.Logger) error {
	origin, err := parsePoint(originArg)
	if err != nil {
		return fmt.Errorf("parsing -isochrone: %w", err)
	}

	points, err := rt.IsochroneFrom(depSec, origin, cutoffSec)
	if err != nil {
		return err
	}

	log.Info("Isochrone computed", "cutoff_sec", cutoffSec, "reachable", len(points))

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(points)
}

func runMatrix(ctx context.Context, rt *router.Router, originsPath, destsPath, outPath string, depSec, workers int, log logger.Logger) error {
	origins, err := readPoints(originsPath)
	if err != nil {
		return fmt.Errorf("reading origins: %w", err)
	}
	destinations, err := readPoints(destsPath)
	if err != nil {
		return fmt.Errorf("reading destinations: %w", err)
	}

	start := time.Now()
	matrix, err := rt.ODMatrix(ctx, origins, destinations, depSec, workers)
	if err != nil {
		return err
	}
	log.Info("Matrix computed",
		"origins", len(origins),
		"destinations", len(destinations),
		"elapsed", time.Since(start).String(),
	)

	out := os.Stdout
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	w := csv.NewWriter(out)
	for _, row := range matrix.Times {
		record := make([]string, len(row))
		for j, sec := range row {
			record[j] = strconv.Itoa(sec)
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// parsePoint parses "lon,lat" into an orb.Point.
func parsePoint(s string) (orb.Point, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return orb.Point{}, fmt.Errorf("want lon,lat, got %q", s)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return orb.Point{}, fmt.Errorf("bad longitude in %q: %w", s, err)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return orb.Point{}, fmt.Errorf("bad latitude in %q: %w", s, err)
	}
	return orb.Point{lon, lat}, nil
}

func readPoints(path string) ([]orb.Point, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var points []orb.Point
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		point, err := parsePoint(line)
		if err != nil {
			return nil, err
		}
		points = append(points, point)
	}
	return points, scanner.Err()
}
