package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "recondora"

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	registry *prometheus.Registry

	// Tool metrics
	ToolExecutionsTotal      *prometheus.CounterVec
	ToolExecutionDuration    *prometheus.HistogramVec
	ToolExecutionErrorsTotal *prometheus.CounterVec
	LocalToolAvailable       *prometheus.GaugeVec

	// Batch metrics
	BatchesTotal       *prometheus.CounterVec
	BatchDuration      prometheus.Histogram
	BatchesInFlight    prometheus.Gauge
	ReportChunksTotal  prometheus.Counter
	ReportChunksPerRun prometheus.Histogram

	// Telegram metrics
	TelegramMessagesSentTotal     prometheus.Counter
	TelegramMessagesReceivedTotal prometheus.Counter
	TelegramErrorsTotal           prometheus.Counter
	RateLimitedTotal              prometheus.Counter

	// HTTP adapter metrics
	HTTPRequestsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics on a private registry
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		ToolExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_executions_total",
				Help:      "Total number of tool executions",
			},
			[]string{"tool_name", "kind", "status"},
		),
		ToolExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tool_execution_duration_seconds",
				Help:      "Duration of tool executions in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 45, 60},
			},
			[]string{"tool_name"},
		),
		ToolExecutionErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_execution_errors_total",
				Help:      "Total number of failed tool executions by error kind",
			},
			[]string{"tool_name", "error_kind"},
		),
		LocalToolAvailable: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "local_tool_available",
				Help:      "Whether the binary of a local tool is installed (1) or missing (0)",
			},
			[]string{"tool_name", "command"},
		),

		BatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batches_total",
				Help:      "Total number of recon requests by entry point and outcome",
			},
			[]string{"source", "status"},
		),
		BatchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_duration_seconds",
				Help:      "Wall time of a whole fan-out batch",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 45, 60, 90},
			},
		),
		BatchesInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "batches_in_flight",
				Help:      "Number of batches currently executing",
			},
		),
		ReportChunksTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "report_chunks_total",
				Help:      "Total number of report parts emitted",
			},
		),
		ReportChunksPerRun: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "report_chunks_per_report",
				Help:      "Number of parts a report was split into",
				Buckets:   []float64{1, 2, 3, 5, 8, 13},
			},
		),

		TelegramMessagesSentTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "telegram_messages_sent_total",
				Help:      "Total number of Telegram messages sent",
			},
		),
		TelegramMessagesReceivedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "telegram_messages_received_total",
				Help:      "Total number of Telegram messages received",
			},
		),
		TelegramErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "telegram_errors_total",
				Help:      "Total number of Telegram API errors",
			},
		),
		RateLimitedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limited_total",
				Help:      "Total number of recon requests rejected by the rate limiter",
			},
		),

		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP adapter requests",
			},
			[]string{"route", "code"},
		),
	}

	registry.MustRegister(
		m.ToolExecutionsTotal,
		m.ToolExecutionDuration,
		m.ToolExecutionErrorsTotal,
		m.LocalToolAvailable,
		m.BatchesTotal,
		m.BatchDuration,
		m.BatchesInFlight,
		m.ReportChunksTotal,
		m.ReportChunksPerRun,
		m.TelegramMessagesSentTotal,
		m.TelegramMessagesReceivedTotal,
		m.TelegramErrorsTotal,
		m.RateLimitedTotal,
		m.HTTPRequestsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// RecordToolExecution records one finished tool run. errorKind is empty on success.
func (m *Metrics) RecordToolExecution(tool, kind, errorKind string, duration time.Duration) {
	if m == nil {
		return
	}

	status := "success"
	if errorKind != "" {
		status = "error"
		m.ToolExecutionErrorsTotal.WithLabelValues(tool, errorKind).Inc()
	}

	m.ToolExecutionsTotal.WithLabelValues(tool, kind, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordBatch records a finished batch.
func (m *Metrics) RecordBatch(source, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.BatchesTotal.WithLabelValues(source, status).Inc()
	if duration > 0 {
		m.BatchDuration.Observe(duration.Seconds())
	}
}

// BatchStarted increments the in-flight gauge and returns the matching decrement.
func (m *Metrics) BatchStarted() func() {
	if m == nil {
		return func() {}
	}
	m.BatchesInFlight.Inc()
	return m.BatchesInFlight.Dec
}

// RecordReportChunks records how many parts a report was split into.
func (m *Metrics) RecordReportChunks(n int) {
	if m == nil {
		return
	}
	m.ReportChunksTotal.Add(float64(n))
	m.ReportChunksPerRun.Observe(float64(n))
}

// SetToolAvailable sets the availability gauge of a local tool.
func (m *Metrics) SetToolAvailable(tool, command string, available bool) {
	if m == nil {
		return
	}
	value := 0.0
	if available {
		value = 1
	}
	m.LocalToolAvailable.WithLabelValues(tool, command).Set(value)
}

// RecordTelegramReceived counts an incoming Telegram message.
func (m *Metrics) RecordTelegramReceived() {
	if m == nil {
		return
	}
	m.TelegramMessagesReceivedTotal.Inc()
}

// RecordTelegramSent counts a delivered Telegram message.
func (m *Metrics) RecordTelegramSent() {
	if m == nil {
		return
	}
	m.TelegramMessagesSentTotal.Inc()
}

// RecordTelegramError counts a failed Telegram call or handler.
func (m *Metrics) RecordTelegramError() {
	if m == nil {
		return
	}
	m.TelegramErrorsTotal.Inc()
}

// RecordRateLimited counts a rejected recon request.
func (m *Metrics) RecordRateLimited() {
	if m == nil {
		return
	}
	m.RateLimitedTotal.Inc()
}

// RecordHTTPRequest counts one HTTP adapter request.
func (m *Metrics) RecordHTTPRequest(route string, code int) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
