package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderMetricsCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewRecorderMetrics(registry)
	require.NoError(t, err)

	m.RecordBlock(1024, 2048)
	m.RecordBlock(512, 1024)
	m.RecordMalformedBlock()
	m.RecordDroppedBlock()
	m.RecordCaptureError(ErrorKindTransient)
	m.RecordCaptureError(ErrorKindTransient)
	m.RecordCaptureError(ErrorKindFatal)
	m.RecordSegmentOpened()
	m.RecordSegmentClosed(300)

	assert.InDelta(t, 2, testutil.ToFloat64(m.BlocksProcessed), 0)
	assert.InDelta(t, 1536, testutil.ToFloat64(m.FramesProcessed), 0)
	assert.InDelta(t, 3072, testutil.ToFloat64(m.BytesWritten), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.MalformedBlocks), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.DroppedBlocks), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.CaptureErrors.WithLabelValues(ErrorKindTransient)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.CaptureErrors.WithLabelValues(ErrorKindFatal)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.SegmentsOpened), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.SegmentsClosed), 0)
}

func TestRecorderMetricsState(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewRecorderMetrics(registry)
	require.NoError(t, err)

	m.SetState("", "negotiating")
	m.SetState("negotiating", "streaming")

	assert.InDelta(t, 0, testutil.ToFloat64(m.SessionState.WithLabelValues("negotiating")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.SessionState.WithLabelValues("streaming")), 0)

	m.SetFormat("float32", 16000)
	m.SetFormat("int16", 48000)
	assert.Equal(t, 1, testutil.CollectAndCount(m.SampleFormatInfo))
	assert.InDelta(t, 1, testutil.ToFloat64(m.SampleFormatInfo.WithLabelValues("int16", "48000")), 0)
}

func TestRecorderMetricsNilSafe(t *testing.T) {
	var m *RecorderMetrics
	assert.NotPanics(t, func() {
		m.SetState("", "streaming")
		m.SetFormat("int16", 16000)
		m.RecordBlock(1, 2)
		m.RecordMalformedBlock()
		m.RecordDroppedBlock()
		m.RecordCaptureError(ErrorKindFatal)
		m.RecordSegmentOpened()
		m.RecordSegmentClosed(1)
	})
}

func TestRecorderMetricsDoubleRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	_, err := NewRecorderMetrics(registry)
	require.NoError(t, err)

	_, err = NewRecorderMetrics(registry)
	assert.Error(t, err)
}

func TestDiskManagerMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewDiskManagerMetrics(registry)
	require.NoError(t, err)

	m.UpdateDiskUsage(1000, 4000, 75)
	m.RecordDiskCheck("ok", 0.002)
	m.RecordDiskCheck("low_space", 0.001)

	assert.InDelta(t, 1000, testutil.ToFloat64(m.diskFreeBytes), 0)
	assert.InDelta(t, 75, testutil.ToFloat64(m.diskUtilizationPercentage), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.diskChecksTotal.WithLabelValues("low_space")), 0)
}

func TestMQTTMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewMQTTMetrics(registry)
	require.NoError(t, err)

	m.UpdateConnectionStatus(true)
	m.IncrementMessagesDelivered()
	m.IncrementMessagesDropped()
	m.StartPublishTimer().ObserveDuration()

	assert.InDelta(t, 1, testutil.ToFloat64(m.ConnectionStatus), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.MessagesDelivered), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.MessagesDropped), 0)

	m.UpdateConnectionStatus(false)
	assert.InDelta(t, 0, testutil.ToFloat64(m.ConnectionStatus), 0)
}

func TestRecorderMetricsSegmentHistogram(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewRecorderMetrics(registry)
	require.NoError(t, err)

	m.RecordSegmentClosed(300)
	m.RecordSegmentClosed(120.5)

	var metric dto.Metric
	require.NoError(t, m.SegmentDuration.Write(&metric))
	h := metric.GetHistogram()
	require.NotNil(t, h)
	assert.Equal(t, uint64(2), h.GetSampleCount())
	assert.InDelta(t, 420.5, h.GetSampleSum(), 1e-9)
}
