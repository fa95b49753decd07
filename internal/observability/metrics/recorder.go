// Package metrics provides custom Prometheus metrics for the stream recorder.
package metrics

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// RecorderMetrics contains all Prometheus metrics related to the capture loop.
// All methods are safe to call on a nil receiver so the recorder can run
// without a registry.
type RecorderMetrics struct {
	BlocksProcessed  prometheus.Counter
	FramesProcessed  prometheus.Counter
	BytesWritten     prometheus.Counter
	MalformedBlocks  prometheus.Counter
	DroppedBlocks    prometheus.Counter
	CaptureErrors    *prometheus.CounterVec
	SegmentsOpened   prometheus.Counter
	SegmentsClosed   prometheus.Counter
	SegmentDuration  prometheus.Histogram
	SessionState     *prometheus.GaugeVec
	SampleFormatInfo *prometheus.GaugeVec
	registry         *prometheus.Registry
}

// NewRecorderMetrics creates a new instance of RecorderMetrics registered in registry.
func NewRecorderMetrics(registry *prometheus.Registry) (*RecorderMetrics, error) {
	m := &RecorderMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize recorder metrics: %w", err)
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register recorder metrics: %w", err)
	}
	return m, nil
}

// initMetrics initializes all metrics for RecorderMetrics.
func (m *RecorderMetrics) initMetrics() error {
	m.BlocksProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "streamrecorder_blocks_processed_total",
		Help: "Total number of sample blocks converted and written",
	})

	m.FramesProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "streamrecorder_frames_processed_total",
		Help: "Total number of sample frames written to segments",
	})

	m.BytesWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "streamrecorder_pcm_bytes_written_total",
		Help: "Total number of PCM payload bytes written to segments",
	})

	m.MalformedBlocks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "streamrecorder_malformed_blocks_total",
		Help: "Total number of blocks skipped because their length was not a whole number of samples",
	})

	m.DroppedBlocks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "streamrecorder_dropped_blocks_total",
		Help: "Total number of blocks dropped because the hand-off queue was full",
	})

	m.CaptureErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamrecorder_capture_errors_total",
			Help: "Total number of capture errors reported by the device, by kind",
		},
		[]string{"kind"},
	)

	m.SegmentsOpened = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "streamrecorder_segments_opened_total",
		Help: "Total number of segment files created",
	})

	m.SegmentsClosed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "streamrecorder_segments_closed_total",
		Help: "Total number of segment files finalized",
	})

	m.SegmentDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "streamrecorder_segment_duration_seconds",
		Help:    "Audio duration held by finalized segments",
		Buckets: prometheus.ExponentialBuckets(SegmentDurationBucketStart, SegmentDurationBucketFactor, SegmentDurationBucketCount),
	})

	m.SessionState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "streamrecorder_session_state",
			Help: "Current capture session state (1 for the active state, 0 otherwise)",
		},
		[]string{"state"},
	)

	m.SampleFormatInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "streamrecorder_sample_format_info",
			Help: "Negotiated sample representation and rate of the current session",
		},
		[]string{"format", "sample_rate"},
	)

	return nil
}

// SetState moves the state gauge from one state to another.
func (m *RecorderMetrics) SetState(from, to string) {
	if m == nil {
		return
	}
	if from != "" && from != to {
		m.SessionState.WithLabelValues(from).Set(0)
	}
	m.SessionState.WithLabelValues(to).Set(1)
}

// SetFormat records the negotiated sample representation.
func (m *RecorderMetrics) SetFormat(format string, sampleRate int) {
	if m == nil {
		return
	}
	m.SampleFormatInfo.Reset()
	m.SampleFormatInfo.WithLabelValues(format, strconv.Itoa(sampleRate)).Set(1)
}

// RecordBlock counts one written block.
func (m *RecorderMetrics) RecordBlock(frames, bytes int) {
	if m == nil {
		return
	}
	m.BlocksProcessed.Inc()
	m.FramesProcessed.Add(float64(frames))
	m.BytesWritten.Add(float64(bytes))
}

// RecordMalformedBlock counts one skipped block.
func (m *RecorderMetrics) RecordMalformedBlock() {
	if m == nil {
		return
	}
	m.MalformedBlocks.Inc()
}

// RecordDroppedBlock counts one block lost to queue overflow.
func (m *RecorderMetrics) RecordDroppedBlock() {
	if m == nil {
		return
	}
	m.DroppedBlocks.Inc()
}

// RecordCaptureError counts one capture error of the given kind.
func (m *RecorderMetrics) RecordCaptureError(kind string) {
	if m == nil {
		return
	}
	m.CaptureErrors.WithLabelValues(kind).Inc()
}

// RecordSegmentOpened counts one created segment.
func (m *RecorderMetrics) RecordSegmentOpened() {
	if m == nil {
		return
	}
	m.SegmentsOpened.Inc()
}

// RecordSegmentClosed counts one finalized segment and observes its duration.
func (m *RecorderMetrics) RecordSegmentClosed(durationSeconds float64) {
	if m == nil {
		return
	}
	m.SegmentsClosed.Inc()
	m.SegmentDuration.Observe(durationSeconds)
}

// Describe implements the prometheus.Collector interface.
func (m *RecorderMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.BlocksProcessed.Describe(ch)
	m.FramesProcessed.Describe(ch)
	m.BytesWritten.Describe(ch)
	m.MalformedBlocks.Describe(ch)
	m.DroppedBlocks.Describe(ch)
	m.CaptureErrors.Describe(ch)
	m.SegmentsOpened.Describe(ch)
	m.SegmentsClosed.Describe(ch)
	m.SegmentDuration.Describe(ch)
	m.SessionState.Describe(ch)
	m.SampleFormatInfo.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *RecorderMetrics) Collect(ch chan<- prometheus.Metric) {
	m.BlocksProcessed.Collect(ch)
	m.FramesProcessed.Collect(ch)
	m.BytesWritten.Collect(ch)
	m.MalformedBlocks.Collect(ch)
	m.DroppedBlocks.Collect(ch)
	m.CaptureErrors.Collect(ch)
	m.SegmentsOpened.Collect(ch)
	m.SegmentsClosed.Collect(ch)
	m.SegmentDuration.Collect(ch)
	m.SessionState.Collect(ch)
	m.SampleFormatInfo.Collect(ch)
}
