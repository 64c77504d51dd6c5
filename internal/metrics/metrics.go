package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "carnelia",
		Name:      "sessions_active",
		Help:      "Number of currently joined sessions",
	})

	RoomsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "carnelia",
		Name:      "rooms_created_total",
		Help:      "Total number of rooms created",
	})

	DocumentsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "carnelia",
		Name:      "documents_open",
		Help:      "Number of open documents across all rooms",
	})

	OpsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "carnelia",
		Name:      "ops_applied_total",
		Help:      "Total accepted mutations by operation type",
	}, []string{"op"})

	BroadcastDrops = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "carnelia",
		Name:      "broadcast_drops_total",
		Help:      "Sessions torn down because their outbound queue was full",
	})

	ProtocolErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "carnelia",
		Name:      "protocol_errors_total",
		Help:      "Connections closed due to protocol violations",
	})

	SnapshotWrites = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "carnelia",
		Name:      "snapshot_writes_total",
		Help:      "Successful document snapshot writes",
	})

	SnapshotWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "carnelia",
		Name:      "snapshot_write_failures_total",
		Help:      "Failed document snapshot writes",
	})
)

// Handler exposes the default Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
