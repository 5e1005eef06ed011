package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Name:      "frames_processed_total",
		Help:      "Total number of frames processed",
	}, []string{"session_id"})

	FramesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Name:      "frames_dropped_total",
		Help:      "Total number of frames dropped before recognition",
	}, []string{"reason"})

	FacesDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Name:      "faces_detected_total",
		Help:      "Total number of faces surviving validation and post-filter",
	}, []string{"camera_id"})

	FacesRecognized = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Name:      "faces_recognized_total",
		Help:      "Total number of faces matched against the ANN index",
	}, []string{"camera_id"})

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sentinel",
		Name:      "inference_duration_seconds",
		Help:      "Duration of ML inference stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sentinel",
		Name:      "active_sessions",
		Help:      "Number of currently tracked frame extraction sessions",
	})

	ActiveFrameProcesses = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sentinel",
		Name:      "active_frame_processes",
		Help:      "Number of frames currently admitted for recognition, bounded by the global ceiling",
	})

	RestartCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Name:      "restart_count_total",
		Help:      "Total number of health-monitor-triggered session restarts",
	}, []string{"session_id"})

	ANNRebuilds = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sentinel",
		Name:      "ann_rebuilds_total",
		Help:      "Total number of full ANN index rebuilds",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sentinel",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sentinel",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections on the live-detection feed",
	})
)
