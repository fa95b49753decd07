// Package metrics provides disk management metrics for observability
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// DiskManagerMetrics contains Prometheus metrics for the free space probe
type DiskManagerMetrics struct {
	registry *prometheus.Registry

	diskFreeBytes             prometheus.Gauge
	diskTotalBytes            prometheus.Gauge
	diskUtilizationPercentage prometheus.Gauge
	diskCheckDurationSeconds  prometheus.Histogram
	diskChecksTotal           *prometheus.CounterVec
}

// NewDiskManagerMetrics creates and registers new disk manager metrics
func NewDiskManagerMetrics(registry *prometheus.Registry) (*DiskManagerMetrics, error) {
	m := &DiskManagerMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, err
	}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// initMetrics initializes all Prometheus metrics
func (m *DiskManagerMetrics) initMetrics() error {
	m.diskFreeBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "diskmanager_disk_free_bytes",
		Help: "Free space in bytes on the filesystem holding the audio path",
	})

	m.diskTotalBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "diskmanager_disk_total_bytes",
		Help: "Total disk space in bytes",
	})

	m.diskUtilizationPercentage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "diskmanager_disk_utilization_percentage",
		Help: "Current disk utilization as a percentage",
	})

	m.diskCheckDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "diskmanager_disk_check_duration_seconds",
		Help:    "Time taken to check disk usage",
		Buckets: prometheus.ExponentialBuckets(LatencyBucketStart, LatencyBucketFactor, LatencyBucketCount),
	})

	m.diskChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diskmanager_disk_checks_total",
			Help: "Total number of free space checks by result",
		},
		[]string{"result"}, // ok, low_space, error
	)

	return nil
}

// UpdateDiskUsage records the latest usage sample
func (m *DiskManagerMetrics) UpdateDiskUsage(free, total uint64, usedPercent float64) {
	if m == nil {
		return
	}
	m.diskFreeBytes.Set(float64(free))
	m.diskTotalBytes.Set(float64(total))
	m.diskUtilizationPercentage.Set(usedPercent)
}

// RecordDiskCheck counts one check and observes how long it took
func (m *DiskManagerMetrics) RecordDiskCheck(result string, seconds float64) {
	if m == nil {
		return
	}
	m.diskChecksTotal.WithLabelValues(result).Inc()
	m.diskCheckDurationSeconds.Observe(seconds)
}

// Describe implements prometheus.Collector
func (m *DiskManagerMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.diskFreeBytes.Describe(ch)
	m.diskTotalBytes.Describe(ch)
	m.diskUtilizationPercentage.Describe(ch)
	m.diskCheckDurationSeconds.Describe(ch)
	m.diskChecksTotal.Describe(ch)
}

// Collect implements prometheus.Collector
func (m *DiskManagerMetrics) Collect(ch chan<- prometheus.Metric) {
	m.diskFreeBytes.Collect(ch)
	m.diskTotalBytes.Collect(ch)
	m.diskUtilizationPercentage.Collect(ch)
	m.diskCheckDurationSeconds.Collect(ch)
	m.diskChecksTotal.Collect(ch)
}
