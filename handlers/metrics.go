package handlers

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"power-quality-processor/analytics"
	"power-quality-processor/models"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	requestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	samplesIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "samples_ingested_total",
			Help: "Samples that passed through validation, by validity",
		},
		[]string{"valid"},
	)

	validationFindingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "validation_findings_total",
			Help: "Validation warnings and errors raised on incoming samples",
		},
		[]string{"severity"},
	)

	samplesDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "samples_dropped_total",
			Help: "Samples dropped because the ingest queue was full",
		},
	)

	voltageAnomaliesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "voltage_anomalies_total",
			Help: "RMS voltage readings flagged as anomalous against the rolling window",
		},
	)
)

// MetricHooks exports the engine's ingest events as Prometheus counters.
func MetricHooks() analytics.Hooks {
	return analytics.Hooks{
		OnValidated: func(_ models.Sample, r models.ValidationResult) {
			samplesIngestedTotal.WithLabelValues(strconv.FormatBool(r.Valid)).Inc()
			validationFindingsTotal.WithLabelValues("warning").Add(float64(len(r.Warnings)))
			validationFindingsTotal.WithLabelValues("error").Add(float64(len(r.Errors)))
		},
		OnDropped: func() {
			samplesDroppedTotal.Inc()
		},
		OnAnomaly: func(_ models.Sample, _ float64) {
			voltageAnomaliesTotal.Inc()
		},
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrade pass through the instrumentation.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tpl
			}
		}

		next.ServeHTTP(rec, r)

		requestDurationSeconds.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
	})
}
