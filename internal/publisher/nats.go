package publisher

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/transitrouter/internal/common/logger"
	"github.com/transitrouter/internal/router"
)

// queryEvent is the wire form of one finished query.
type queryEvent struct {
	Kind         string    `json:"kind"`
	Source       int32     `json:"source"`
	DepartureSec int       `json:"departure_sec"`
	Settled      int       `json:"settled"`
	Reached      int       `json:"reached"`
	ElapsedMs    float64   `json:"elapsed_ms"`
	Timestamp    time.Time `json:"timestamp"`
}

// Publisher implements router.Observer by emitting one NATS message per
// query. Publishing is fire-and-forget: a failed publish is logged and
// never slows the query path.
type Publisher struct {
	conn    *nats.Conn
	subject string
	log     logger.Logger
}

func New(url, subject string, log logger.Logger) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("transitrouter"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	log.Info("Connected to NATS", "url", url, "subject", subject)
	return &Publisher{conn: conn, subject: subject, log: log}, nil
}

func (p *Publisher) ObserveQuery(stats router.QueryStats) {
	event := queryEvent{
		Kind:         stats.Kind,
		Source:       int32(stats.Source),
		DepartureSec: stats.DepartureSec,
		Settled:      stats.Settled,
		Reached:      stats.Reached,
		ElapsedMs:    float64(stats.Elapsed.Microseconds()) / 1000,
		Timestamp:    time.Now().UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		p.log.Error("Failed to encode query event", "error", err)
		return
	}
	if err := p.conn.Publish(p.subject, payload); err != nil {
		p.log.Error("Failed to publish query event", "error", err)
	}
}

func (p *Publisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.log.Warn("NATS drain failed", "error", err)
	}
}
