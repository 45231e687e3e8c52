package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/transitrouter/internal/common/logger"
	"github.com/transitrouter/internal/router"
)

// Collector implements router.Observer and exports per-query counters
// and timings. Safe for concurrent use; matrix workers report in
// parallel.
type Collector struct {
	queries  *prometheus.CounterVec
	duration *prometheus.HistogramVec
	settled  *prometheus.HistogramVec
	reached  *prometheus.HistogramVec

	graphNodes prometheus.Gauge
	graphEdges prometheus.Gauge
}

func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		queries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "router_queries_total",
			Help: "Number of routing queries, by kind.",
		}, []string{"kind"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "router_query_duration_seconds",
			Help:    "Query wall time, by kind.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"kind"}),
		settled: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "router_query_settled_nodes",
			Help:    "Nodes settled per query, by kind.",
			Buckets: prometheus.ExponentialBuckets(10, 4, 10),
		}, []string{"kind"}),
		reached: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "router_query_reached_nodes",
			Help:    "Nodes reached within the window per query, by kind.",
			Buckets: prometheus.ExponentialBuckets(10, 4, 10),
		}, []string{"kind"}),
		graphNodes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "router_graph_nodes",
			Help: "Nodes in the active graph.",
		}),
		graphEdges: factory.NewGauge(prometheus.GaugeOpts{
			Name: "router_graph_edges",
			Help: "Edges in the active graph.",
		}),
	}
}

func (c *Collector) ObserveQuery(stats router.QueryStats) {
	c.queries.WithLabelValues(stats.Kind).Inc()
	c.duration.WithLabelValues(stats.Kind).Observe(stats.Elapsed.Seconds())
	c.settled.WithLabelValues(stats.Kind).Observe(float64(stats.Settled))
	c.reached.WithLabelValues(stats.Kind).Observe(float64(stats.Reached))
}

// SetGraphSize records the dimensions of the graph currently serving
// queries.
func (c *Collector) SetGraphSize(nodes, edges int) {
	c.graphNodes.Set(float64(nodes))
	c.graphEdges.Set(float64(edges))
}

// Server exposes the registry on /metrics.
type Server struct {
	httpServer *http.Server
	log        logger.Logger
}

func NewServer(addr string, gatherer prometheus.Gatherer, log logger.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log,
	}
}

// Start serves in the background until Shutdown.
func (s *Server) Start() {
	go func() {
		s.log.Info("Metrics server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("Metrics server stopped", "error", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
