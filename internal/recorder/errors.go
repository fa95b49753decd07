package recorder

import (
	"github.com/tphakala/streamrecorder/internal/errors"
)

// ComponentRecorder identifies recorder errors in logs and telemetry
const ComponentRecorder = "recorder"

// Sentinel errors. Every error returned by this package wraps one of them.
var (
	// ErrDeviceUnavailable is returned when no sample representation could be negotiated
	ErrDeviceUnavailable = errors.Newf("audio device unavailable").
		Component(ComponentRecorder).
		Category(errors.CategoryAudioSource).
		Context("operation", "negotiate_format").
		Build()

	// ErrTransientCapture marks a momentary capture failure worth retrying
	ErrTransientCapture = errors.Newf("transient capture error").
		Component(ComponentRecorder).
		Category(errors.CategoryRetry).
		Build()

	// ErrFatalCapture marks an unrecoverable capture failure such as a disconnected device
	ErrFatalCapture = errors.Newf("fatal capture error").
		Component(ComponentRecorder).
		Category(errors.CategoryAudioSource).
		Build()

	// ErrIOFailure is returned when a segment file cannot be created or written
	ErrIOFailure = errors.Newf("segment i/o failure").
		Component(ComponentRecorder).
		Category(errors.CategoryFileIO).
		Build()

	// ErrMalformedBlock is returned for blocks whose length is not a multiple of the sample width
	ErrMalformedBlock = errors.Newf("malformed sample block").
		Component(ComponentRecorder).
		Category(errors.CategoryValidation).
		Build()

	// ErrNotOpen is returned when writing without an open segment
	ErrNotOpen = errors.Newf("no segment open").
		Component(ComponentRecorder).
		Category(errors.CategoryState).
		Build()
)
