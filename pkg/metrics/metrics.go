package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// WSConnections tracks open websocket connections.
	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ws_connections_active",
		Help: "Open websocket connections.",
	})

	// Broadcasts counts room events fanned out to subscribers.
	Broadcasts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "room_broadcasts_total",
		Help: "Room events fanned out to subscribers.",
	})
)

// Handler exposes Prometheus metrics at /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}
