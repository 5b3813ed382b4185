package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/baker-beach/market-index/pkg/logger"
)

func collectMetric(t *testing.T, c prometheus.Collector, labels map[string]string) *dto.Metric {
	t.Helper()
	ch := make(chan prometheus.Metric, 100)
	c.Collect(ch)
	close(ch)

	for m := range ch {
		d := &dto.Metric{}
		if err := m.Write(d); err != nil {
			continue
		}
		matched := 0
		for _, lp := range d.GetLabel() {
			if v, ok := labels[lp.GetName()]; ok && v == lp.GetValue() {
				matched++
			}
		}
		if matched == len(labels) {
			return d
		}
	}
	return nil
}

func setupTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})
	return exporter
}

func TestRecovery_PanicReturns500(t *testing.T) {
	var buf bytes.Buffer
	h := Recovery(logger.NewWithWriter("test", "info", &buf))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("assembler exploded")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/index/products", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "INTERNAL_ERROR")
	assert.Contains(t, buf.String(), "assembler exploded")
}

func TestRequestLogging_SetsCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	var seen string
	h := RequestLogging(logger.NewWithWriter("test", "info", &buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.CorrelationIDFromContext(r.Context())
		w.WriteHeader(http.StatusAccepted)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(CorrelationHeader))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, float64(http.StatusAccepted), entry["status"])
	assert.Equal(t, seen, entry["correlation_id"])
}

func TestRequestLogging_KeepsInboundCorrelationID(t *testing.T) {
	h := RequestLogging(logger.Discard())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(CorrelationHeader, "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get(CorrelationHeader))
}

func TestRequestLogger_AddsProductCode(t *testing.T) {
	var buf bytes.Buffer
	base := logger.NewWithWriter("test", "info", &buf)

	r := chi.NewRouter()
	r.Use(RequestLogging(logger.Discard()))
	r.With(RequestLogger(base)).Post("/products/{code}", func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Info("indexing")
	})

	req := httptest.NewRequest(http.MethodPost, "/products/SKU-9", nil)
	req.Header.Set(CorrelationHeader, "corr-1")
	r.ServeHTTP(httptest.NewRecorder(), req)

	line := strings.TrimSpace(buf.String())
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "SKU-9", entry["product_code"])
	assert.Equal(t, "corr-1", entry["correlation_id"])
}

func TestPrometheusMetrics_RecordsRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(PrometheusMetrics("metrics-test"))
	r.Delete("/products/{code}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/products/A", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/products/B", nil))

	m := collectMetric(t, httpRequestsTotal, map[string]string{
		"service": "metrics-test",
		"path":    "/products/{code}",
		"status":  "204",
	})
	require.NotNil(t, m)
	assert.Equal(t, float64(2), m.GetCounter().GetValue())

	g := collectMetric(t, httpRequestsInFlight, map[string]string{"service": "metrics-test"})
	require.NotNil(t, g)
	assert.Zero(t, g.GetGauge().GetValue())
}

func TestTracing_NamesSpanAfterRoute(t *testing.T) {
	exporter := setupTestTracer(t)

	r := chi.NewRouter()
	r.Use(Tracing("test"))
	r.Post("/products/{code}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/products/SKU-1", nil))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "POST /products/{code}", spans[0].Name)
	assert.Equal(t, "Error", spans[0].Status.Code.String())
	assert.NotEmpty(t, rec.Header().Get("traceparent"))
}

func TestStatusWriter_WrapsOnce(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := wrap(rec)
	assert.Same(t, sw, wrap(sw))

	sw.WriteHeader(http.StatusTeapot)
	sw.WriteHeader(http.StatusOK)
	_, _ = sw.Write([]byte("ok"))

	assert.Equal(t, http.StatusTeapot, sw.status)
	assert.Equal(t, 2, sw.bytes)
}
