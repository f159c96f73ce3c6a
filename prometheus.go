package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusExporter serves a registry on its own listener.
type PrometheusExporter struct {
	Path     string // e.g., "/metrics"
	Listen   string // e.g., ":2550"
	Gatherer prometheus.Gatherer
}

// Handler returns the mux serving the metrics path.
func (e *PrometheusExporter) Handler() http.Handler {
	gatherer := e.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle(e.Path, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return mux
}

// Start blocks serving metrics.
func (e *PrometheusExporter) Start() error {
	return http.ListenAndServe(e.Listen, e.Handler())
}

// GatewayMetrics counts inbound commands, outbound sends and status callbacks.
type GatewayMetrics struct {
	inboundTotal   *prometheus.CounterVec
	outboundTotal  *prometheus.CounterVec
	statusTotal    *prometheus.CounterVec
	batchSize      prometheus.Histogram
	webhookLatency *prometheus.HistogramVec
	smsSegments    *prometheus.CounterVec
}

func NewGatewayMetrics(reg prometheus.Registerer) *GatewayMetrics {
	m := &GatewayMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "donor_msggw",
			Subsystem: "inbound",
			Name:      "messages_total",
			Help:      "Inbound messages by interpreted intent and outcome",
		}, []string{"intent", "outcome"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "donor_msggw",
			Subsystem: "outbound",
			Name:      "sends_total",
			Help:      "Outbound send attempts by result",
		}, []string{"status"}),
		statusTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "donor_msggw",
			Subsystem: "status",
			Name:      "callbacks_total",
			Help:      "Provider delivery-status callbacks by reported status",
		}, []string{"status"}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "donor_msggw",
			Subsystem: "outbound",
			Name:      "batch_size",
			Help:      "Recipients per dispatch",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "donor_msggw",
			Subsystem: "inbound",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of inbound webhook handling",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		smsSegments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "donor_msggw",
			Subsystem: "outbound",
			Name:      "sms_segments_total",
			Help:      "Billable SMS segments of successful sends by encoding",
		}, []string{"encoding"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.outboundTotal, m.statusTotal, m.batchSize, m.webhookLatency, m.smsSegments)
	return m
}

func (m *GatewayMetrics) ObserveInbound(intent IntentKind, outcome string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(string(intent), outcome).Inc()
}

func (m *GatewayMetrics) ObserveOutbound(status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(status).Inc()
}

func (m *GatewayMetrics) ObserveBatch(size int) {
	if m == nil {
		return
	}
	m.batchSize.Observe(float64(size))
}

func (m *GatewayMetrics) ObserveStatusCallback(status string) {
	if m == nil {
		return
	}
	if status == "" {
		status = "unknown"
	}
	m.statusTotal.WithLabelValues(status).Inc()
}

func (m *GatewayMetrics) ObserveWebhookLatency(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(outcome).Observe(seconds)
}

func (m *GatewayMetrics) ObserveSMSSegments(encoding string, segments int) {
	if m == nil || segments == 0 {
		return
	}
	m.smsSegments.WithLabelValues(encoding).Add(float64(segments))
}
