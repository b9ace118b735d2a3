package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Directions for envelope accounting.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "donuts",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "donuts",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	connectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "donuts",
			Subsystem: "host",
			Name:      "connections_active",
			Help:      "Open client connections.",
		},
	)
	connectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "donuts",
			Subsystem: "host",
			Name:      "connections_total",
			Help:      "Accepted client connections.",
		},
	)
	contextsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "donuts",
			Subsystem: "host",
			Name:      "contexts_active",
			Help:      "Commands currently executing across all connections.",
		},
	)
	commands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "donuts",
			Subsystem: "command",
			Name:      "executions_total",
			Help:      "Dispatched commands by outcome.",
		},
		[]string{"command", "outcome"},
	)
	commandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "donuts",
			Subsystem: "command",
			Name:      "duration_seconds",
			Help:      "Command execution duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"command", "outcome"},
	)
	envelopes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "donuts",
			Subsystem: "protocol",
			Name:      "envelopes_total",
			Help:      "Envelopes read and written by type.",
		},
		[]string{"direction", "type"},
	)
	protocolErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "donuts",
			Subsystem: "protocol",
			Name:      "errors_total",
			Help:      "Connection-level protocol failures by kind.",
		},
		[]string{"kind"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			connectionsActive,
			connectionsTotal,
			contextsActive,
			commands,
			commandDuration,
			envelopes,
			protocolErrors,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func ConnectionOpened() {
	RegisterMetrics()
	connectionsTotal.Inc()
	connectionsActive.Inc()
}

func ConnectionClosed() {
	RegisterMetrics()
	connectionsActive.Dec()
}

func ContextOpened() {
	RegisterMetrics()
	contextsActive.Inc()
}

func ContextClosed() {
	RegisterMetrics()
	contextsActive.Dec()
}

func RecordCommand(command string, success bool, duration time.Duration) {
	RegisterMetrics()
	outcome := "ok"
	if !success {
		outcome = "error"
	}
	commands.WithLabelValues(command, outcome).Inc()
	commandDuration.WithLabelValues(command, outcome).Observe(duration.Seconds())
}

func RecordEnvelope(direction, kind string) {
	RegisterMetrics()
	envelopes.WithLabelValues(direction, kind).Inc()
}

func RecordProtocolError(kind string) {
	RegisterMetrics()
	protocolErrors.WithLabelValues(kind).Inc()
}
