// Package telemetry exposes Prometheus metrics for the capture pipeline.
package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	CapturesTotal     = prometheus.NewCounter(prometheus.CounterOpts{Name: "proofbox_captures_total", Help: "Photos ingested into the local store"})
	UploadsTotal      = prometheus.NewCounter(prometheus.CounterOpts{Name: "proofbox_uploads_total", Help: "Uploads confirmed by the evidence service"})
	UploadFailures    = prometheus.NewCounter(prometheus.CounterOpts{Name: "proofbox_upload_failures_total", Help: "Upload attempts that failed and will retry or go terminal"})
	UploadsInFlight   = prometheus.NewGauge(prometheus.GaugeOpts{Name: "proofbox_uploads_inflight", Help: "Uploads currently in flight"})
	QueueDepth        = prometheus.NewGauge(prometheus.GaugeOpts{Name: "proofbox_upload_queue_depth", Help: "Records currently pending upload"})
	PayloadsReclaimed = prometheus.NewCounter(prometheus.CounterOpts{Name: "proofbox_payloads_reclaimed_total", Help: "Expired payloads removed by the TTL sweep"})
)

// Handler exposes the /metrics HTTP handler with singleton registration.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			CapturesTotal,
			UploadsTotal,
			UploadFailures,
			UploadsInFlight,
			QueueDepth,
			PayloadsReclaimed,
		)
	})
	return promhttp.Handler()
}
