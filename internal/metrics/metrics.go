package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics aggregates the pipeline counters behind a private registry so
// /metrics only exposes what this server produces.
type Metrics struct {
	registry *prometheus.Registry

	FramesProcessed *prometheus.CounterVec
	Detections      *prometheus.CounterVec
	Alerts          *prometheus.CounterVec
	Recordings      *prometheus.CounterVec
	UploadFailures  prometheus.Counter
	FaceLookups     prometheus.Counter
	ConnectedWS     prometheus.GaugeFunc
}

// New builds the metric set. wsClients reports the current WebSocket
// connection count; pass nil to skip the gauge.
func New(wsClients func() int) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		FramesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "falconeye_frames_processed_total",
			Help: "Frames pulled through the detection loop, per camera.",
		}, []string{"camera"}),
		Detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "falconeye_detections_total",
			Help: "Surviving detections after filtering, per camera and class.",
		}, []string{"camera", "class"}),
		Alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "falconeye_alerts_total",
			Help: "Alerts dispatched, per camera and kind.",
		}, []string{"camera", "kind"}),
		Recordings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "falconeye_recordings_total",
			Help: "Recording sessions started, per camera.",
		}, []string{"camera"}),
		UploadFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "falconeye_upload_failures_total",
			Help: "Clip uploads that failed and were left for retry.",
		}),
		FaceLookups: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "falconeye_face_lookups_total",
			Help: "Face recognition requests sent to the worker.",
		}),
	}

	registry.MustRegister(m.FramesProcessed, m.Detections, m.Alerts, m.Recordings,
		m.UploadFailures, m.FaceLookups)

	if wsClients != nil {
		m.ConnectedWS = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "falconeye_websocket_clients",
			Help: "Currently connected WebSocket clients.",
		}, func() float64 { return float64(wsClients()) })
		registry.MustRegister(m.ConnectedWS)
	}

	return m
}

// Handler returns the /metrics endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
