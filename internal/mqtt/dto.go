package mqtt

import (
	"time"

	"github.com/tphakala/streamrecorder/internal/recorder"
)

// StateEventDTO is published on <topic>/state when the session changes state.
type StateEventDTO struct {
	SessionID  string    `json:"sessionId"`
	Device     string    `json:"device"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Format     string    `json:"format,omitempty"`
	SampleRate int       `json:"sampleRate"`
	Timestamp  time.Time `json:"timestamp"`
}

// SegmentEventDTO is published on <topic>/segment when a segment is finalized.
type SegmentEventDTO struct {
	SessionID       string    `json:"sessionId"`
	Path            string    `json:"path"`
	Seq             int       `json:"seq"`
	Start           time.Time `json:"start"`
	DurationSeconds float64   `json:"durationSeconds"`
	Bytes           int64     `json:"bytes"`
	SampleRate      int       `json:"sampleRate"`
}

func newStateEvent(s *recorder.Session, from, to recorder.State, now time.Time) StateEventDTO {
	ev := StateEventDTO{
		SessionID:  s.ID,
		Device:     s.DeviceID,
		From:       from.String(),
		To:         to.String(),
		SampleRate: s.SampleRate,
		Timestamp:  now,
	}
	if from != recorder.StateNegotiating || to == recorder.StateStreaming {
		ev.Format = s.Format.String()
	}
	if ev.Device == "" {
		ev.Device = "default"
	}
	return ev
}

func newSegmentEvent(s *recorder.Session, seg recorder.SegmentInfo) SegmentEventDTO {
	return SegmentEventDTO{
		SessionID:       s.ID,
		Path:            seg.Path,
		Seq:             seg.Seq,
		Start:           seg.Start,
		DurationSeconds: seg.Duration().Seconds(),
		Bytes:           seg.Bytes,
		SampleRate:      seg.SampleRate,
	}
}
