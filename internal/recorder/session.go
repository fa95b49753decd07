package recorder

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/streamrecorder/internal/errors"
)

// Session is the run-time context of one capture run. It is created at
// startup, owned by the Recorder while it runs and discarded when the
// recorder reaches a terminal state.
type Session struct {
	ID              string
	SampleRate      int
	Channels        int
	SegmentDuration time.Duration
	Stop            StopTime
	DeviceID        string // empty selects the system default
	Format          Representation
	StartedAt       time.Time
}

// NewSession returns a mono session with a fresh identifier
func NewSession(sampleRate int, segmentDuration time.Duration, stop StopTime, deviceID string) (*Session, error) {
	if sampleRate <= 0 {
		return nil, errors.New(fmt.Errorf("sample rate must be positive, got %d", sampleRate)).
			Component(ComponentRecorder).
			Category(errors.CategoryValidation).
			Context("sample_rate", sampleRate).
			Build()
	}
	if segmentDuration <= 0 {
		return nil, errors.New(fmt.Errorf("segment duration must be positive, got %s", segmentDuration)).
			Component(ComponentRecorder).
			Category(errors.CategoryValidation).
			Context("segment_duration", segmentDuration.String()).
			Build()
	}

	return &Session{
		ID:              uuid.NewString(),
		SampleRate:      sampleRate,
		Channels:        1,
		SegmentDuration: segmentDuration,
		Stop:            stop,
		DeviceID:        deviceID,
	}, nil
}

// State is the capture loop state
type State int32

const (
	StateNegotiating State = iota
	StateStreaming
	StateStopping
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNegotiating:
		return "negotiating"
	case StateStreaming:
		return "streaming"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Terminal reports whether no further transitions can happen from s
func (s State) Terminal() bool {
	return s == StateStopped || s == StateFailed
}

// Observer is notified of session lifecycle events. Callbacks run on the
// capture loop and must not block.
type Observer interface {
	StateChanged(s *Session, from, to State)
	SegmentClosed(s *Session, seg SegmentInfo)
}
