package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	linkFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "snestrace",
			Subsystem: "link",
			Name:      "frames_total",
			Help:      "Frames received from the emulator by message type.",
		},
		[]string{"type"},
	)
	linkPayloadBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "snestrace",
			Subsystem: "link",
			Name:      "payload_bytes_total",
			Help:      "Payload bytes received from the emulator.",
		},
	)
	linkProtocolErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "snestrace",
			Subsystem: "link",
			Name:      "protocol_errors_total",
			Help:      "Sessions ended by a protocol violation.",
		},
		[]string{"reason"},
	)
	linkConnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "snestrace",
			Subsystem: "link",
			Name:      "connects_total",
			Help:      "Connect attempts by result.",
		},
		[]string{"result"},
	)
	linkState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "snestrace",
			Subsystem: "link",
			Name:      "state",
			Help:      "Current link state (0 disconnected, 1 connecting, 2 connected, 3 handshake complete, 4 error).",
		},
	)
	importModifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "snestrace",
			Subsystem: "import",
			Name:      "modifications_total",
			Help:      "Attribute writes applied to the annotation store by field.",
		},
		[]string{"field"},
	)
	importEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "snestrace",
			Subsystem: "import",
			Name:      "events_total",
			Help:      "Trace events handled by the importer by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "snestrace",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "snestrace",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			linkFrames,
			linkPayloadBytes,
			linkProtocolErrors,
			linkConnects,
			linkState,
			importModifications,
			importEvents,
			httpRequests,
			httpDuration,
		)
	})
}

func RecordFrame(msgType string, payloadLen int) {
	RegisterMetrics()
	linkFrames.WithLabelValues(msgType).Inc()
	linkPayloadBytes.Add(float64(payloadLen))
}

func RecordProtocolError(reason string) {
	RegisterMetrics()
	linkProtocolErrors.WithLabelValues(reason).Inc()
}

func RecordConnect(success bool) {
	RegisterMetrics()
	result := "failure"
	if success {
		result = "success"
	}
	linkConnects.WithLabelValues(result).Inc()
}

func SetLinkState(state int) {
	RegisterMetrics()
	linkState.Set(float64(state))
}

func RecordModification(field string) {
	RegisterMetrics()
	importModifications.WithLabelValues(field).Inc()
}

func RecordImportEvent(kind, outcome string) {
	RegisterMetrics()
	importEvents.WithLabelValues(kind, outcome).Inc()
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}
