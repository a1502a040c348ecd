// Package metrics provides Prometheus metrics collection
package metrics

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dreamsoft-pro/rae/infrastructure/runtime"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Error metrics
	ErrorsTotal *prometheus.CounterVec

	// LLM gateway metrics
	LLMCallsTotal    *prometheus.CounterVec
	LLMCallDuration  *prometheus.HistogramVec
	LLMCostUSDTotal  *prometheus.CounterVec

	// Retrieval metrics
	RetrievalLatency     *prometheus.HistogramVec
	RetrievalEarlyExits  *prometheus.CounterVec

	// Cost guard metrics
	BudgetRejectionsTotal *prometheus.CounterVec

	// Reflection metrics
	ReflectionAcceptanceTotal *prometheus.CounterVec

	// Background worker metrics
	WorkerCycleDuration *prometheus.HistogramVec

	// Database metrics
	DatabaseQueriesTotal    *prometheus.CounterVec
	DatabaseQueryDuration   *prometheus.HistogramVec
	DatabaseConnectionsOpen prometheus.Gauge

	// Service health
	ServiceUptime prometheus.Gauge
	ServiceInfo   *prometheus.GaugeVec
}

// New creates a new Metrics instance with all collectors registered
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new Metrics instance with a custom registry
func NewWithRegistry(serviceName string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP metrics
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"service", "method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"service", "method", "path"},
		),
		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Current number of HTTP requests being processed",
			},
		),

		// Error metrics
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "errors_total",
				Help: "Total number of errors",
			},
			[]string{"service", "type", "operation"},
		),

		// LLM gateway metrics
		LLMCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_calls_total",
				Help: "Total number of outbound LLM gateway calls",
			},
			[]string{"tenant", "profile", "provider", "status"},
		),
		LLMCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llm_call_duration_seconds",
				Help:    "LLM gateway call duration in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2, 5, 10, 30},
			},
			[]string{"tenant", "profile", "provider"},
		),
		LLMCostUSDTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_cost_usd_total",
				Help: "Accumulated LLM spend in USD",
			},
			[]string{"tenant", "profile"},
		),

		// Retrieval metrics
		RetrievalLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "retrieval_latency_seconds",
				Help:    "Hybrid retrieval query latency in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"tenant"},
		),
		RetrievalEarlyExits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "retrieval_early_exits_total",
				Help: "Total number of retrieval calls that took the safe early-exit path",
			},
			[]string{"tenant", "strategy"},
		),

		// Cost guard metrics
		BudgetRejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "budget_rejections_total",
				Help: "Total number of cost guard admission rejections",
			},
			[]string{"tenant", "period"},
		),

		// Reflection metrics
		ReflectionAcceptanceTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reflection_outcomes_total",
				Help: "Total number of reflection loop outcomes",
			},
			[]string{"tenant", "outcome"},
		),

		// Background worker metrics
		WorkerCycleDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "worker_cycle_duration_seconds",
				Help:    "Background worker cycle duration in seconds",
				Buckets: []float64{.1, .5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"cycle", "tenant", "status"},
		),

		// Database metrics
		DatabaseQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "database_queries_total",
				Help: "Total number of database queries",
			},
			[]string{"service", "operation", "status"},
		),
		DatabaseQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "database_query_duration_seconds",
				Help:    "Database query duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"service", "operation"},
		),
		DatabaseConnectionsOpen: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "database_connections_open",
				Help: "Current number of open database connections",
			},
		),

		// Service health
		ServiceUptime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "service_uptime_seconds",
				Help: "Service uptime in seconds",
			},
		),
		ServiceInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "service_info",
				Help: "Service information",
			},
			[]string{"service", "version", "environment"},
		),
	}

	// Register all collectors
	if registerer != nil {
		registerer.MustRegister(
			m.RequestsTotal,
			m.RequestDuration,
			m.RequestsInFlight,
			m.ErrorsTotal,
			m.LLMCallsTotal,
			m.LLMCallDuration,
			m.LLMCostUSDTotal,
			m.RetrievalLatency,
			m.RetrievalEarlyExits,
			m.BudgetRejectionsTotal,
			m.ReflectionAcceptanceTotal,
			m.WorkerCycleDuration,
			m.DatabaseQueriesTotal,
			m.DatabaseQueryDuration,
			m.DatabaseConnectionsOpen,
			m.ServiceUptime,
			m.ServiceInfo,
		)
	}

	// Set service info
	m.ServiceInfo.WithLabelValues(serviceName, "1.0.0", getEnvironment()).Set(1)

	return m
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(service, method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(service, method, path, status).Inc()
	m.RequestDuration.WithLabelValues(service, method, path).Observe(duration.Seconds())
}

// RecordError records an error
func (m *Metrics) RecordError(service, errorType, operation string) {
	m.ErrorsTotal.WithLabelValues(service, errorType, operation).Inc()
}

// RecordLLMCall records an outbound LLM gateway call.
func (m *Metrics) RecordLLMCall(tenant, profile, provider, status string, duration time.Duration, costUSD float64) {
	m.LLMCallsTotal.WithLabelValues(tenant, profile, provider, status).Inc()
	m.LLMCallDuration.WithLabelValues(tenant, profile, provider).Observe(duration.Seconds())
	if costUSD > 0 {
		m.LLMCostUSDTotal.WithLabelValues(tenant, profile).Add(costUSD)
	}
}

// RecordRetrieval records the latency of a hybrid retrieval call and whether
// it took the safe early-exit path.
func (m *Metrics) RecordRetrieval(tenant string, duration time.Duration, earlyExitStrategy string) {
	m.RetrievalLatency.WithLabelValues(tenant).Observe(duration.Seconds())
	if earlyExitStrategy != "" {
		m.RetrievalEarlyExits.WithLabelValues(tenant, earlyExitStrategy).Inc()
	}
}

// RecordBudgetRejection records a cost guard admission rejection.
func (m *Metrics) RecordBudgetRejection(tenant, period string) {
	m.BudgetRejectionsTotal.WithLabelValues(tenant, period).Inc()
}

// RecordReflectionOutcome records the outcome of a reflection loop (accepted, rejected, abandoned).
func (m *Metrics) RecordReflectionOutcome(tenant, outcome string) {
	m.ReflectionAcceptanceTotal.WithLabelValues(tenant, outcome).Inc()
}

// RecordWorkerCycle records the duration of a background worker cycle for one tenant.
func (m *Metrics) RecordWorkerCycle(cycle, tenant, status string, duration time.Duration) {
	m.WorkerCycleDuration.WithLabelValues(cycle, tenant, status).Observe(duration.Seconds())
}

// RecordDatabaseQuery records a database query
func (m *Metrics) RecordDatabaseQuery(service, operation, status string, duration time.Duration) {
	m.DatabaseQueriesTotal.WithLabelValues(service, operation, status).Inc()
	m.DatabaseQueryDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
}

// SetDatabaseConnections sets the number of open database connections
func (m *Metrics) SetDatabaseConnections(count int) {
	m.DatabaseConnectionsOpen.Set(float64(count))
}

// UpdateUptime updates the service uptime
func (m *Metrics) UpdateUptime(startTime time.Time) {
	m.ServiceUptime.Set(time.Since(startTime).Seconds())
}

// IncrementInFlight increments the in-flight requests counter
func (m *Metrics) IncrementInFlight() {
	m.RequestsInFlight.Inc()
}

// DecrementInFlight decrements the in-flight requests counter
func (m *Metrics) DecrementInFlight() {
	m.RequestsInFlight.Dec()
}

// Helper functions

func getEnvironment() string {
	return string(runtime.Env())
}

// Enabled returns whether Prometheus metrics should be exposed.
//
// Defaults:
// - production: disabled unless explicitly enabled via METRICS_ENABLED
// - non-production: enabled unless explicitly disabled via METRICS_ENABLED
func Enabled() bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("METRICS_ENABLED")))
	if raw == "" {
		return !runtime.IsProduction()
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// Global metrics instance
var (
	globalMetrics *Metrics
	globalMu      sync.Mutex
)

// Init initializes the global metrics instance
func Init(serviceName string) *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New(serviceName)
	}
	return globalMetrics
}

// Global returns the global metrics instance
func Global() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New("unknown")
	}
	return globalMetrics
}
