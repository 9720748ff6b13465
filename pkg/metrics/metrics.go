// Package metrics exposes the gateway's Prometheus counters and histograms on
// a private registry. Every record method is safe on a nil receiver and never
// panics into the caller.
package metrics

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for toolgate_tool_calls_total.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics holds all Prometheus metrics for the gateway
type Metrics struct {
	// Backend metrics
	forwardCalls    *prometheus.CounterVec
	forwardDuration *prometheus.HistogramVec
	scriptRuns      *prometheus.CounterVec
	scriptDuration  *prometheus.HistogramVec
	authFailures    *prometheus.CounterVec

	// Call metrics
	toolCalls        *prometheus.CounterVec
	policyViolations *prometheus.CounterVec

	// Configuration reload metrics
	configReloads *prometheus.CounterVec

	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	registry *prometheus.Registry
	logger   *slog.Logger
}

// New creates a metrics instance with every gateway series registered.
func New(logger *slog.Logger) *Metrics {
	if logger == nil {
		logger = slog.Default()
	}
	registry := prometheus.NewRegistry()

	m := &Metrics{
		forwardCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolgate_forward_calls_total",
				Help: "Total number of calls forwarded to HTTP backends by upstream status",
			},
			[]string{"backend", "tool", "status"},
		),

		forwardDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "toolgate_forward_duration_seconds",
				Help:    "HTTP backend call latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"backend", "tool"},
		),

		scriptRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolgate_script_runs_total",
				Help: "Total number of script executions by result",
			},
			[]string{"script", "success"},
		),

		scriptDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "toolgate_script_duration_seconds",
				Help:    "Script execution time in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"script", "success"},
		),

		authFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolgate_auth_failures_total",
				Help: "Total number of upstream 401/403 responses",
			},
			[]string{"backend", "tool"},
		),

		toolCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolgate_tool_calls_total",
				Help: "Total number of tool calls handled by outcome",
			},
			[]string{"tool", "outcome"},
		),

		policyViolations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolgate_policy_violations_total",
				Help: "Total number of calls rejected by tool policy",
			},
			[]string{"tool"},
		),

		configReloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolgate_config_reloads_total",
				Help: "Total number of registry reload attempts by status",
			},
			[]string{"status"},
		),

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolgate_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "toolgate_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		registry: registry,
		logger:   logger,
	}

	registry.MustRegister(
		m.forwardCalls,
		m.forwardDuration,
		m.scriptRuns,
		m.scriptDuration,
		m.authFailures,
		m.toolCalls,
		m.policyViolations,
		m.configReloads,
		m.httpRequestsTotal,
		m.httpRequestDuration,
	)

	return m
}

// guard runs record and swallows any panic it raises.
func (m *Metrics) guard(name string, record func()) {
	if m == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("metrics record panicked", "metric", name, "panic", fmt.Sprint(r))
		}
	}()
	record()
}

// RecordForward records one call to an HTTP backend. status is the upstream
// HTTP status, or 0 when no response was received.
func (m *Metrics) RecordForward(backend, tool string, status int, duration time.Duration) {
	m.guard("forward", func() {
		m.forwardCalls.WithLabelValues(backend, tool, strconv.Itoa(status)).Inc()
		m.forwardDuration.WithLabelValues(backend, tool).Observe(duration.Seconds())
	})
}

// RecordScriptRun records one script execution
func (m *Metrics) RecordScriptRun(script string, success bool, duration time.Duration) {
	m.guard("script", func() {
		label := strconv.FormatBool(success)
		m.scriptRuns.WithLabelValues(script, label).Inc()
		m.scriptDuration.WithLabelValues(script, label).Observe(duration.Seconds())
	})
}

// RecordAuthFailure records an upstream authentication rejection
func (m *Metrics) RecordAuthFailure(backend, tool string) {
	m.guard("auth_failure", func() {
		m.authFailures.WithLabelValues(backend, tool).Inc()
	})
}

// RecordToolCall records the final outcome of a call
func (m *Metrics) RecordToolCall(tool, outcome string) {
	m.guard("tool_call", func() {
		m.toolCalls.WithLabelValues(tool, outcome).Inc()
	})
}

// RecordPolicyViolation records a policy rejection
func (m *Metrics) RecordPolicyViolation(tool string) {
	m.guard("policy_violation", func() {
		m.policyViolations.WithLabelValues(tool).Inc()
	})
}

// RecordConfigReload records a configuration reload attempt
func (m *Metrics) RecordConfigReload(status string) {
	m.guard("config_reload", func() {
		m.configReloads.WithLabelValues(status).Inc()
	})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.guard("http_request", func() {
		m.httpRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
		m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	})
}

// Handler returns the Prometheus metrics HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      slog.NewLogLogger(m.logger.Handler(), slog.LevelError),
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Middleware records request count and latency for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		m.RecordHTTPRequest(r.Method, endpointName(r.URL.Path), strconv.Itoa(wrapped.statusCode), time.Since(start))
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, fmt.Errorf("underlying ResponseWriter does not support http.Hijacker")
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// endpointName keeps label cardinality bounded.
func endpointName(path string) string {
	switch path {
	case "/call", "/tools/call":
		return "call"
	case "/tools":
		return "tools"
	case "/health":
		return "health"
	case "/metrics":
		return "metrics"
	default:
		return "unknown"
	}
}
