// Package metrics provides Prometheus metrics collection for the platform.
package metrics

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every Prometheus collector the platform registers.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	ErrorsTotal *prometheus.CounterVec

	DiscoveryRunsTotal    *prometheus.CounterVec
	DiscoveryRunDuration  *prometheus.HistogramVec
	DiscoveryAutomations  *prometheus.CounterVec

	DetectorFailuresTotal *prometheus.CounterVec
	DetectionsTotal       *prometheus.CounterVec

	WebsocketConnections prometheus.Gauge
	WebsocketMessagesSent *prometheus.CounterVec

	DatabaseQueriesTotal  *prometheus.CounterVec
	DatabaseQueryDuration *prometheus.HistogramVec
	DatabaseConnectionsOpen prometheus.Gauge

	ConnectionRefreshesTotal  *prometheus.CounterVec
	ConnectionRefreshDuration *prometheus.HistogramVec

	ServiceUptime prometheus.Gauge
	ServiceInfo   *prometheus.GaugeVec
}

// New creates a Metrics instance registered against the default registerer.
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a Metrics instance registered against registerer.
func NewWithRegistry(serviceName string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "http_requests_total", Help: "Total number of HTTP requests"},
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
			prometheus.GaugeOpts{Name: "http_requests_in_flight", Help: "Current number of HTTP requests being processed"},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "errors_total", Help: "Total number of errors"},
			[]string{"service", "type", "operation"},
		),
		DiscoveryRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "discovery_runs_total", Help: "Total number of discovery runs by terminal status"},
			[]string{"platform", "status"},
		),
		DiscoveryRunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "discovery_run_duration_seconds",
				Help:    "Discovery run duration in seconds",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"platform"},
		),
		DiscoveryAutomations: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "discovery_automations_total", Help: "Total automations upserted during discovery"},
			[]string{"platform", "automation_type"},
		),
		DetectorFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "detector_failures_total", Help: "Total detector failures, isolated per run"},
			[]string{"detector"},
		),
		DetectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "detections_total", Help: "Total detection patterns emitted"},
			[]string{"pattern_type", "severity"},
		),
		WebsocketConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "websocket_connections", Help: "Current number of authenticated websocket connections"},
		),
		WebsocketMessagesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "websocket_messages_sent_total", Help: "Total websocket messages published"},
			[]string{"message_type"},
		),
		DatabaseQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "database_queries_total", Help: "Total number of database queries"},
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
			prometheus.GaugeOpts{Name: "database_connections_open", Help: "Current number of open database connections"},
		),
		ConnectionRefreshesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "connection_refreshes_total", Help: "Total platform connection token refreshes by outcome"},
			[]string{"platform", "status"},
		),
		ConnectionRefreshDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "connection_refresh_duration_seconds",
				Help:    "Platform connection token refresh duration in seconds, including retries",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"platform"},
		),
		ServiceUptime: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "service_uptime_seconds", Help: "Service uptime in seconds"},
		),
		ServiceInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "service_info", Help: "Service information"},
			[]string{"service", "version", "environment"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.RequestsTotal, m.RequestDuration, m.RequestsInFlight, m.ErrorsTotal,
			m.DiscoveryRunsTotal, m.DiscoveryRunDuration, m.DiscoveryAutomations,
			m.DetectorFailuresTotal, m.DetectionsTotal,
			m.WebsocketConnections, m.WebsocketMessagesSent,
			m.DatabaseQueriesTotal, m.DatabaseQueryDuration, m.DatabaseConnectionsOpen,
			m.ConnectionRefreshesTotal, m.ConnectionRefreshDuration,
			m.ServiceUptime, m.ServiceInfo,
		)
	}

	m.ServiceInfo.WithLabelValues(serviceName, "1.0.0", environment()).Set(1)
	return m
}

func (m *Metrics) RecordHTTPRequest(service, method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(service, method, path, status).Inc()
	m.RequestDuration.WithLabelValues(service, method, path).Observe(duration.Seconds())
}

func (m *Metrics) RecordError(service, errorType, operation string) {
	m.ErrorsTotal.WithLabelValues(service, errorType, operation).Inc()
}

func (m *Metrics) RecordDiscoveryRun(platform, status string, duration time.Duration) {
	m.DiscoveryRunsTotal.WithLabelValues(platform, status).Inc()
	m.DiscoveryRunDuration.WithLabelValues(platform).Observe(duration.Seconds())
}

func (m *Metrics) RecordDetectorFailure(detector string) {
	m.DetectorFailuresTotal.WithLabelValues(detector).Inc()
}

func (m *Metrics) RecordDetection(patternType, severity string) {
	m.DetectionsTotal.WithLabelValues(patternType, severity).Inc()
}

func (m *Metrics) RecordDatabaseQuery(service, operation, status string, duration time.Duration) {
	m.DatabaseQueriesTotal.WithLabelValues(service, operation, status).Inc()
	m.DatabaseQueryDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
}

func (m *Metrics) SetDatabaseConnections(count int) { m.DatabaseConnectionsOpen.Set(float64(count)) }

func (m *Metrics) RecordConnectionRefresh(platform, status string, duration time.Duration) {
	m.ConnectionRefreshesTotal.WithLabelValues(platform, status).Inc()
	m.ConnectionRefreshDuration.WithLabelValues(platform).Observe(duration.Seconds())
}

func (m *Metrics) UpdateUptime(startTime time.Time) { m.ServiceUptime.Set(time.Since(startTime).Seconds()) }

func (m *Metrics) IncrementInFlight() { m.RequestsInFlight.Inc() }
func (m *Metrics) DecrementInFlight() { m.RequestsInFlight.Dec() }

func environment() string {
	env := strings.TrimSpace(os.Getenv("APP_ENV"))
	if env == "" {
		return "development"
	}
	return env
}

// Enabled reports whether Prometheus metrics should be exposed. Defaults to
// enabled unless explicitly disabled via METRICS_ENABLED.
func Enabled() bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("METRICS_ENABLED")))
	switch raw {
	case "0", "false", "no", "off":
		return false
	default:
		return true
	}
}

var (
	globalMetrics *Metrics
	globalMu      sync.Mutex
)

// Init initializes the global metrics instance.
func Init(serviceName string) *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalMetrics == nil {
		globalMetrics = New(serviceName)
	}
	return globalMetrics
}

// Global returns the global metrics instance.
func Global() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalMetrics == nil {
		globalMetrics = New("unknown")
	}
	return globalMetrics
}
