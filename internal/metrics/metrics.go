// Package metrics provides Prometheus metrics for uploads.
//
// UploadMetrics implements upload.Observer. It registers its collectors on
// a private registry so several instances (one per test, one per CLI run)
// never collide, and the registry can be scraped over HTTP or written to a
// node-exporter textfile.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zimbra-api/upload-api/pkg/response"
	"github.com/zimbra-api/upload-api/pkg/transport"
	"github.com/zimbra-api/upload-api/pkg/upload"
)

// Result label values
const (
	ResultSuccess        = "success"
	ResultTransportError = "transport_error"
	ResultStatusError    = "status_error"
	ResultParseError     = "parse_error"
	ResultError          = "error"
)

// UploadMetrics collects upload counters and timings
type UploadMetrics struct {
	registry *prometheus.Registry

	UploadsTotal      *prometheus.CounterVec
	UploadDuration    prometheus.Histogram
	UploadsInFlight   prometheus.Gauge
	FilesTotal        prometheus.Counter
	AttachmentsTotal  prometheus.Counter
	LastUploadSeconds prometheus.Gauge
}

// New creates upload metrics on a fresh registry
func New() *UploadMetrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &UploadMetrics{
		registry: reg,
		UploadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "zimbra",
				Subsystem: "upload",
				Name:      "requests_total",
				Help:      "Total number of upload requests by result",
			},
			[]string{"result"},
		),
		UploadDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "zimbra",
				Subsystem: "upload",
				Name:      "duration_seconds",
				Help:      "Upload duration in seconds, from encoding to decoded response",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 300},
			},
		),
		UploadsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "zimbra",
				Subsystem: "upload",
				Name:      "requests_in_flight",
				Help:      "Current number of uploads awaiting a response",
			},
		),
		FilesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "zimbra",
				Subsystem: "upload",
				Name:      "files_total",
				Help:      "Total number of files sent",
			},
		),
		AttachmentsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "zimbra",
				Subsystem: "upload",
				Name:      "attachments_total",
				Help:      "Total number of attachments reported by the server",
			},
		),
		LastUploadSeconds: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "zimbra",
				Subsystem: "upload",
				Name:      "last_success_timestamp_seconds",
				Help:      "Unix time of the last successful upload",
			},
		),
	}
}

// UploadStarted implements upload.Observer
func (m *UploadMetrics) UploadStarted(requestID string, files int) {
	m.UploadsInFlight.Inc()
	m.FilesTotal.Add(float64(files))
}

// UploadFinished implements upload.Observer
func (m *UploadMetrics) UploadFinished(requestID string, attachments int, elapsed time.Duration, err error) {
	m.UploadsInFlight.Dec()
	m.UploadDuration.Observe(elapsed.Seconds())
	m.UploadsTotal.WithLabelValues(Result(err)).Inc()

	if err == nil {
		m.AttachmentsTotal.Add(float64(attachments))
		m.LastUploadSeconds.SetToCurrentTime()
	}
}

// Result classifies an upload error into a result label
func Result(err error) string {
	var statusErr *transport.StatusError
	var transportErr *transport.Error
	var parseErr *response.ParseError

	switch {
	case err == nil:
		return ResultSuccess
	case errors.As(err, &statusErr):
		return ResultStatusError
	case errors.As(err, &transportErr):
		return ResultTransportError
	case errors.As(err, &parseErr):
		return ResultParseError
	default:
		return ResultError
	}
}

// Registry returns the registry holding the collectors
func (m *UploadMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler exposing the metrics
func (m *UploadMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WriteTextfile writes the metrics in the text exposition format for the
// node exporter textfile collector. The file is replaced atomically.
func (m *UploadMetrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

var _ upload.Observer = (*UploadMetrics)(nil)
