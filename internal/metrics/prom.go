package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name:        "toolbridge_build_info",
			Help:        "Build information",
			ConstLabels: prometheus.Labels{"component": "bridge"},
		},
		[]string{"date", "sha", "version"},
	)

	connectionMode = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "toolbridge_connection_mode",
			Help: "Active connection mode (1 for the current mode)",
		},
		[]string{"mode"},
	)

	callsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "toolbridge_calls_started_total",
			Help: "Number of reverse tool calls accepted for execution",
		},
	)

	callsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolbridge_calls_completed_total",
			Help: "Number of reverse tool calls answered",
		},
		[]string{"outcome"},
	)

	callDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "toolbridge_call_duration_seconds",
			Help:    "Reverse tool call duration",
			Buckets: prometheus.DefBuckets,
		},
	)

	duplicateCalls = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "toolbridge_duplicate_calls_total",
			Help: "Number of reverse calls dropped as duplicates",
		},
	)

	streamReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "toolbridge_stream_reconnects_total",
			Help: "Number of relay stream reconnect attempts",
		},
	)

	toolsRegistered = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "toolbridge_tools_registered",
			Help: "Number of tools the relay accepted",
		},
	)
)

var (
	modeMu   sync.Mutex
	lastMode string
)

// Register registers all metrics with the provided registerer.
func Register(r prometheus.Registerer) {
	r.MustRegister(buildInfo, connectionMode, callsStarted, callsCompleted, callDuration, duplicateCalls, streamReconnects, toolsRegistered)
}

// SetBuildInfo sets the build info metric for the bridge.
func SetBuildInfo(version, sha, date string) {
	buildInfo.WithLabelValues(date, sha, version).Set(1)
}

// SetConnectionMode marks mode as the active connection mode.
func SetConnectionMode(mode string) {
	modeMu.Lock()
	defer modeMu.Unlock()
	if lastMode != "" && lastMode != mode {
		connectionMode.WithLabelValues(lastMode).Set(0)
	}
	connectionMode.WithLabelValues(mode).Set(1)
	lastMode = mode
}

// RecordCallStarted increments the accepted call counter.
func RecordCallStarted() {
	callsStarted.Inc()
}

// RecordCallCompleted increments the answered call counter and records the
// call duration.
func RecordCallCompleted(success bool, d time.Duration) {
	outcome := "success"
	if !success {
		outcome = "error"
	}
	callsCompleted.WithLabelValues(outcome).Inc()
	callDuration.Observe(d.Seconds())
}

// RecordDuplicateCall increments the duplicate call counter.
func RecordDuplicateCall() {
	duplicateCalls.Inc()
}

// RecordStreamReconnect increments the stream reconnect counter.
func RecordStreamReconnect() {
	streamReconnects.Inc()
}

// SetToolsRegistered sets the registered tool gauge.
func SetToolsRegistered(n int) {
	toolsRegistered.Set(float64(n))
}
