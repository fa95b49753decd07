// Package metrics provides constants used across metric definitions.
package metrics

import "time"

// Capture error kinds used as label values.
const (
	// ErrorKindTransient is a capture error the loop retried.
	ErrorKindTransient = "transient"
	// ErrorKindFatal is a capture error that ended the session.
	ErrorKindFatal = "fatal"
)

// Histogram bucket configuration.
const (
	// SegmentDurationBucketStart is the smallest segment duration bucket in seconds.
	SegmentDurationBucketStart = 1.0
	// SegmentDurationBucketFactor is the exponential growth factor of the duration buckets.
	SegmentDurationBucketFactor = 2.0
	// SegmentDurationBucketCount covers 1 s up to roughly 4.5 hours.
	SegmentDurationBucketCount = 15

	// LatencyBucketStart is 1 ms.
	LatencyBucketStart = 0.001
	// LatencyBucketFactor doubles every bucket.
	LatencyBucketFactor = 2.0
	// LatencyBucketCount covers 1 ms up to roughly 0.5 s.
	LatencyBucketCount = 10

	// MessageSizeBucketStart is 64 bytes.
	MessageSizeBucketStart = 64
	// MessageSizeBucketCount covers 64 B up to 32 KiB.
	MessageSizeBucketCount = 10
)

// ShutdownTimeout bounds graceful shutdown of the telemetry server.
const ShutdownTimeout = 5 * time.Second
