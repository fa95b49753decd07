// Package diskmanager checks the filesystem holding the audio path for free space.
package diskmanager

import (
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/tphakala/streamrecorder/internal/errors"
	"github.com/tphakala/streamrecorder/internal/logger"
	"github.com/tphakala/streamrecorder/internal/observability/metrics"
)

const (
	componentDiskManager = "diskmanager"
	bytesPerMB           = 1024 * 1024
)

// ErrLowDiskSpace is returned when free space is below the configured minimum
var ErrLowDiskSpace = errors.Newf("insufficient free disk space").
	Component(componentDiskManager).
	Category(errors.CategoryDiskUsage).
	Build()

// DiskSpaceInfo holds detailed disk space information.
type DiskSpaceInfo struct {
	TotalBytes  uint64
	UsedBytes   uint64
	FreeBytes   uint64
	UsedPercent float64
}

// GetLogger returns the disk manager module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("diskmanager")
}

// GetDetailedDiskUsage returns usage of the filesystem containing path
func GetDetailedDiskUsage(path string) (DiskSpaceInfo, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return DiskSpaceInfo{}, errors.New(fmt.Errorf("failed to get disk usage for '%s': %w", path, err)).
			Component(componentDiskManager).
			Category(errors.CategoryDiskUsage).
			Context("operation", "disk_usage").
			Build()
	}
	return DiskSpaceInfo{
		TotalBytes:  usage.Total,
		UsedBytes:   usage.Used,
		FreeBytes:   usage.Free,
		UsedPercent: usage.UsedPercent,
	}, nil
}

// Option configures a SpaceChecker
type Option func(*SpaceChecker)

// WithMetrics records every check in m
func WithMetrics(m *metrics.DiskManagerMetrics) Option {
	return func(c *SpaceChecker) {
		c.metrics = m
	}
}

// WithUsageFunc replaces the usage probe
func WithUsageFunc(fn func(path string) (DiskSpaceInfo, error)) Option {
	return func(c *SpaceChecker) {
		c.usage = fn
	}
}

// SpaceChecker refuses new segments when the target filesystem runs low.
// A zero minimum only records usage.
type SpaceChecker struct {
	minFree uint64
	usage   func(path string) (DiskSpaceInfo, error)
	metrics *metrics.DiskManagerMetrics
}

// NewSpaceChecker returns a checker requiring minFreeMB megabytes free
func NewSpaceChecker(minFreeMB uint64, opts ...Option) *SpaceChecker {
	c := &SpaceChecker{
		minFree: minFreeMB * bytesPerMB,
		usage:   GetDetailedDiskUsage,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CheckFreeSpace returns ErrLowDiskSpace when dir's filesystem has less than
// the configured minimum free
func (c *SpaceChecker) CheckFreeSpace(dir string) error {
	start := time.Now()
	info, err := c.usage(dir)
	if err != nil {
		c.metrics.RecordDiskCheck("error", time.Since(start).Seconds())
		return err
	}
	c.metrics.UpdateDiskUsage(info.FreeBytes, info.TotalBytes, info.UsedPercent)

	if c.minFree > 0 && info.FreeBytes < c.minFree {
		c.metrics.RecordDiskCheck("low_space", time.Since(start).Seconds())
		GetLogger().Warn("free disk space below minimum",
			logger.String("path", dir),
			logger.Uint64("free_mb", info.FreeBytes/bytesPerMB),
			logger.Uint64("min_free_mb", c.minFree/bytesPerMB))
		return errors.New(fmt.Errorf("%w: %d MB free, %d MB required", ErrLowDiskSpace, info.FreeBytes/bytesPerMB, c.minFree/bytesPerMB)).
			Component(componentDiskManager).
			Category(errors.CategoryDiskUsage).
			Context("path", dir).
			Build()
	}

	c.metrics.RecordDiskCheck("ok", time.Since(start).Seconds())
	return nil
}
