package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "provisioning",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "provisioning",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "provisioning",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	provisionRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "provisioning",
			Subsystem: "runs",
			Name:      "total",
			Help:      "Total number of provisioning runs by outcome.",
		},
		[]string{"outcome"},
	)

	provisionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "provisioning",
			Subsystem: "runs",
			Name:      "duration_seconds",
			Help:      "Duration of provisioning runs.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms up
		},
		[]string{"outcome"},
	)

	degradedSteps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "provisioning",
			Subsystem: "runs",
			Name:      "degraded_steps_total",
			Help:      "Total number of non-fatal step failures across runs.",
		},
	)

	engineCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "provisioning",
			Subsystem: "engine",
			Name:      "calls_total",
			Help:      "Total number of workflow engine API calls.",
		},
		[]string{"operation", "status"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		provisionRuns,
		provisionDuration,
		degradedSteps,
		engineCalls,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// Recorder adapts the package counters to the orchestrator's metrics hook.
type Recorder struct{}

// RecordProvisionRun records one provisioning run outcome.
func (Recorder) RecordProvisionRun(outcome string, degraded int, duration time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	if duration <= 0 {
		duration = time.Millisecond
	}
	provisionRuns.WithLabelValues(outcome).Inc()
	provisionDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	if degraded > 0 {
		degradedSteps.Add(float64(degraded))
	}
}

// RecordEngineCall records one workflow engine API call.
func RecordEngineCall(operation string, status int) {
	if operation == "" {
		operation = "unknown"
	}
	engineCalls.WithLabelValues(operation, strconv.Itoa(status)).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses resource ids so metric cardinality stays bounded.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "v1" {
		switch {
		case parts[2] == "activations" && len(parts) == 4:
			return "/api/v1/activations/:id"
		case parts[2] == "activations" && len(parts) == 5:
			return "/api/v1/activations/:id/" + parts[4]
		default:
			return "/api/v1/" + parts[2]
		}
	}
	return "/" + parts[0]
}
