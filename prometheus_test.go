package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGatewayMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewGatewayMetrics(reg)

	m.ObserveInbound(IntentSetAvailable, "replied")
	m.ObserveInbound(IntentSetAvailable, "replied")
	m.ObserveOutbound("sent")
	m.ObserveOutbound("failed")
	m.ObserveStatusCallback("")
	m.ObserveBatch(5)
	m.ObserveWebhookLatency("replied", 0.01)
	m.ObserveSMSSegments(EncodingUCS2, 3)
	m.ObserveSMSSegments(EncodingUCS2, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.inboundTotal.WithLabelValues("set_available", "replied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outboundTotal.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.statusTotal.WithLabelValues("unknown")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.batchSize))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.smsSegments.WithLabelValues("ucs2")))
}

func TestGatewayMetrics_NilSafe(t *testing.T) {
	var m *GatewayMetrics
	assert.NotPanics(t, func() {
		m.ObserveInbound(IntentGreeting, "replied")
		m.ObserveOutbound("sent")
		m.ObserveBatch(1)
		m.ObserveStatusCallback("delivered")
		m.ObserveWebhookLatency("replied", 0.1)
		m.ObserveSMSSegments(EncodingGSM7, 1)
	})
}

func TestPrometheusExporter_Handler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewGatewayMetrics(reg)
	m.ObserveOutbound("sent")

	exporter := &PrometheusExporter{Path: "/metrics", Gatherer: reg}
	rec := httptest.NewRecorder()
	exporter.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `donor_msggw_outbound_sends_total{status="sent"} 1`)
}
