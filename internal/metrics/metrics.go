// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FramesTotal counts frames received by source
	FramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rawsniff_capture_frames_total",
			Help: "Total number of frames received",
		},
		[]string{"source"},
	)

	// BytesTotal counts captured bytes by source
	BytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rawsniff_capture_bytes_total",
			Help: "Total number of bytes received",
		},
		[]string{"source"},
	)

	// ReceiveErrorsTotal counts receive failures by errno name and outcome
	ReceiveErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rawsniff_capture_receive_errors_total",
			Help: "Total number of receive errors",
		},
		[]string{"source", "code", "outcome"}, // outcome: transient | fatal
	)

	// ParseErrorsTotal counts frames rejected by the header parser
	ParseErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rawsniff_parse_errors_total",
			Help: "Total number of header parse errors",
		},
		[]string{"kind", "layer"},
	)

	// PacketsTotal counts parsed packets by network and transport protocol
	PacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rawsniff_packets_total",
			Help: "Total number of parsed packets",
		},
		[]string{"network", "transport"},
	)

	// ParseLatencySeconds measures header parsing latency
	ParseLatencySeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rawsniff_parse_latency_seconds",
			Help:    "Latency of header parsing in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0000001, 2, 16), // 100ns to ~3ms
		},
	)

	// QueueDepth tracks frames waiting for a worker
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rawsniff_worker_queue_depth",
			Help: "Number of frames queued for parsing workers",
		},
	)

	// LoopState tracks the capture loop state
	LoopState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rawsniff_capture_loop_state",
			Help: "Current capture loop state (0=idle, 1=receiving, 2=dispatching, 3=stopped)",
		},
	)

	// SinkErrorsTotal counts sink delivery failures
	SinkErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rawsniff_sink_errors_total",
			Help: "Total number of sink errors",
		},
		[]string{"sink"},
	)
)
