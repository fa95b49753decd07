package recorder

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/streamrecorder/internal/errors"
	"github.com/tphakala/streamrecorder/internal/observability/metrics"
)

const (
	testRate   = 16000
	testFrames = 1600 // 100 ms at testRate
)

var testStart = time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)

func newTestRecorder(t *testing.T, dev Device, segment time.Duration, stop StopTime, mods ...func(*Config)) (*Recorder, string) {
	t.Helper()

	dir := t.TempDir()
	session, err := NewSession(testRate, segment, stop, "")
	require.NoError(t, err)

	cfg := Config{
		Session:           session,
		Device:            dev,
		OutputDir:         dir,
		StopCheckInterval: 10 * time.Millisecond,
		Clock:             func() time.Time { return testStart },
	}
	for _, mod := range mods {
		mod(&cfg)
	}

	r, err := New(cfg)
	require.NoError(t, err)
	return r, dir
}

// segmentFiles returns every wav file under dir in lexical order
func segmentFiles(t *testing.T, dir string) []string {
	t.Helper()

	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(path) == ".wav" {
			files = append(files, path)
		}
		return nil
	})
	require.NoError(t, err)
	sort.Strings(files)
	return files
}

// requireValidSegment checks the container and returns the decoded sample count
func requireValidSegment(t *testing.T, path string) []int {
	t.Helper()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(raw), wavHeaderSize)

	payload := len(raw) - wavHeaderSize
	assert.Equal(t, uint32(payload), binary.LittleEndian.Uint32(raw[dataSizeOffset:]), "declared data length")
	assert.Equal(t, uint32(len(raw)-8), binary.LittleEndian.Uint32(raw[riffSizeOffset:]), "declared riff length")

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	dec := wav.NewDecoder(f)
	require.True(t, dec.IsValidFile())
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)

	assert.Equal(t, 1, buf.Format.NumChannels)
	assert.Equal(t, testRate, buf.Format.SampleRate)
	assert.Equal(t, 16, int(dec.BitDepth))
	return buf.Data
}

func TestRunProducesContiguousSegments(t *testing.T) {
	obs := &recordingObserver{}
	c := &clip{rep: Float32, rate: testRate, frames: testFrames, value: 0.5, start: testStart}

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	dev := newFakeDevice(func(s *fakeStream) {
		// 12 seconds of audio
		if c.sendN(s, 120) {
			cancel()
		}
	}, Float32, Float24, Int16)

	r, dir := newTestRecorder(t, dev, 5*time.Second, Never(), func(cfg *Config) {
		cfg.Observers = []Observer{obs}
	})

	require.NoError(t, r.Run(ctx))
	assert.Equal(t, StateStopped, r.State())
	assert.Equal(t, Float32, r.Session().Format)
	assert.Equal(t, []Representation{Float32}, dev.Attempts())

	files := segmentFiles(t, dir)
	require.Len(t, files, 3)
	assert.Equal(t, []string{
		filepath.Join(dir, "20260301", "20260301h10m00s00S0001.wav"),
		filepath.Join(dir, "20260301", "20260301h10m00s05S0002.wav"),
		filepath.Join(dir, "20260301", "20260301h10m00s10S0003.wav"),
	}, files)

	wantSeconds := []int{5, 5, 2}
	for i, path := range files {
		samples := requireValidSegment(t, path)
		assert.Len(t, samples, wantSeconds[i]*testRate, path)
		assert.Equal(t, 16384, samples[0])
	}

	require.Len(t, obs.segments, 3)
	for i, seg := range obs.segments {
		assert.Equal(t, time.Duration(wantSeconds[i])*time.Second, seg.Duration())
		if i > 0 {
			prev := obs.segments[i-1]
			assert.Equal(t, prev.Start.Add(prev.Duration()), seg.Start, "segments must be contiguous")
		}
	}

	assert.Equal(t, [][2]State{
		{StateNegotiating, StateStreaming},
		{StateStreaming, StateStopping},
		{StateStopping, StateStopped},
	}, obs.transitions)
}

func TestRunNegotiationFailure(t *testing.T) {
	obs := &recordingObserver{}
	dev := newFakeDevice(nil)

	r, dir := newTestRecorder(t, dev, 5*time.Second, Never(), func(cfg *Config) {
		cfg.Observers = []Observer{obs}
	})

	err := r.Run(t.Context())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeviceUnavailable)
	assert.Equal(t, StateFailed, r.State())
	assert.Equal(t, []Representation{Float32, Float24, Int16}, dev.Attempts())
	assert.Equal(t, [][2]State{{StateNegotiating, StateFailed}}, obs.transitions)
	_, ok := r.Format()
	assert.False(t, ok)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunFallsBackToInt16(t *testing.T) {
	c := &clip{rep: Int16, rate: testRate, frames: testFrames, value: 0.25, start: testStart}

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	dev := newFakeDevice(func(s *fakeStream) {
		if c.sendN(s, 10) {
			cancel()
		}
	}, Int16)

	r, dir := newTestRecorder(t, dev, 5*time.Second, Never())

	require.NoError(t, r.Run(ctx))
	assert.Equal(t, []Representation{Float32, Float24, Int16}, dev.Attempts())
	assert.Equal(t, Int16, r.Session().Format)
	rep, ok := r.Format()
	assert.True(t, ok)
	assert.Equal(t, Int16, rep)

	files := segmentFiles(t, dir)
	require.Len(t, files, 1)
	samples := requireValidSegment(t, files[0])
	assert.Len(t, samples, 10*testFrames)
	assert.Equal(t, 8192, samples[0])
}

func TestRunCancelledMidSegment(t *testing.T) {
	c := &clip{rep: Float24, rate: testRate, frames: testFrames, value: -0.5, start: testStart}

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	dev := newFakeDevice(func(s *fakeStream) {
		if c.sendN(s, 30) {
			cancel()
		}
	}, Float24, Int16)

	r, dir := newTestRecorder(t, dev, 5*time.Second, Never())

	require.NoError(t, r.Run(ctx))
	assert.Equal(t, StateStopped, r.State())
	assert.Equal(t, Float24, r.Session().Format)

	files := segmentFiles(t, dir)
	require.Len(t, files, 1)
	samples := requireValidSegment(t, files[0])
	assert.Len(t, samples, 30*testFrames)
	assert.Equal(t, -16384, samples[0])
}

func TestRunCancelledBeforeNegotiation(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	dev := newFakeDevice(nil, Int16)
	r, dir := newTestRecorder(t, dev, 5*time.Second, Never())

	require.NoError(t, r.Run(ctx))
	assert.Equal(t, StateStopped, r.State())
	assert.Empty(t, dev.Attempts())
	assert.Empty(t, segmentFiles(t, dir))
	_, ok := r.Format()
	assert.False(t, ok)
}

func TestRunFatalCaptureError(t *testing.T) {
	obs := &recordingObserver{}
	c := &clip{rep: Int16, rate: testRate, frames: testFrames, value: 0.1, start: testStart}

	dev := newFakeDevice(func(s *fakeStream) {
		if c.sendN(s, 10) {
			s.fail(fmt.Errorf("%w: device disconnected", ErrFatalCapture))
		}
	}, Int16)

	r, dir := newTestRecorder(t, dev, 5*time.Second, Never(), func(cfg *Config) {
		cfg.Observers = []Observer{obs}
	})

	err := r.Run(t.Context())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFatalCapture)
	assert.Equal(t, StateFailed, r.State())

	files := segmentFiles(t, dir)
	require.Len(t, files, 1)
	assert.Len(t, requireValidSegment(t, files[0]), 10*testFrames)
	require.Len(t, obs.segments, 1)
	assert.Equal(t, [2]State{StateStreaming, StateFailed}, obs.transitions[len(obs.transitions)-1])
}

func TestRunStreamEnded(t *testing.T) {
	c := &clip{rep: Int16, rate: testRate, frames: testFrames, value: 0.1, start: testStart}

	dev := newFakeDevice(func(s *fakeStream) {
		if c.sendN(s, 3) {
			close(s.blocks)
		}
	}, Int16)

	r, dir := newTestRecorder(t, dev, 5*time.Second, Never())

	err := r.Run(t.Context())
	assert.ErrorIs(t, err, ErrFatalCapture)
	assert.Equal(t, StateFailed, r.State())

	files := segmentFiles(t, dir)
	require.Len(t, files, 1)
	assert.Len(t, requireValidSegment(t, files[0]), 3*testFrames)
}

func TestRunTransientErrors(t *testing.T) {
	transient := fmt.Errorf("%w: buffer overrun", ErrTransientCapture)

	t.Run("within retry bound", func(t *testing.T) {
		c := &clip{rep: Int16, rate: testRate, frames: testFrames, value: 0.1, start: testStart}
		ctx, cancel := context.WithCancel(t.Context())
		defer cancel()

		dev := newFakeDevice(func(s *fakeStream) {
			for range 3 {
				if !c.sendN(s, 5) || !s.fail(transient) || !s.fail(transient) {
					return
				}
			}
			cancel()
		}, Int16)

		registry := prometheus.NewRegistry()
		m, err := metrics.NewRecorderMetrics(registry)
		require.NoError(t, err)

		r, dir := newTestRecorder(t, dev, 5*time.Second, Never(), func(cfg *Config) {
			cfg.MaxRetries = 2
			cfg.Metrics = m
		})

		require.NoError(t, r.Run(ctx))
		assert.Equal(t, StateStopped, r.State())
		files := segmentFiles(t, dir)
		require.Len(t, files, 1)
		assert.Len(t, requireValidSegment(t, files[0]), 15*testFrames)
		assert.InDelta(t, 6, testutil.ToFloat64(m.CaptureErrors.WithLabelValues(metrics.ErrorKindTransient)), 0)
	})

	t.Run("retries exhausted", func(t *testing.T) {
		c := &clip{rep: Int16, rate: testRate, frames: testFrames, value: 0.1, start: testStart}

		dev := newFakeDevice(func(s *fakeStream) {
			if !c.sendN(s, 5) {
				return
			}
			for range 3 {
				if !s.fail(transient) {
					return
				}
			}
		}, Int16)

		r, dir := newTestRecorder(t, dev, 5*time.Second, Never(), func(cfg *Config) {
			cfg.MaxRetries = 2
		})

		err := r.Run(t.Context())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrFatalCapture)
		assert.ErrorIs(t, err, ErrTransientCapture)
		assert.Equal(t, StateFailed, r.State())

		files := segmentFiles(t, dir)
		require.Len(t, files, 1)
		assert.Len(t, requireValidSegment(t, files[0]), 5*testFrames)
	})
}

func TestRunSkipsMalformedBlock(t *testing.T) {
	c := &clip{rep: Int16, rate: testRate, frames: testFrames, value: 0.1, start: testStart}
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	dev := newFakeDevice(func(s *fakeStream) {
		if !c.sendN(s, 5) {
			return
		}
		if !s.send(Block{Data: []byte{1, 2, 3}, Captured: testStart.Add(510 * time.Millisecond)}) {
			return
		}
		if c.sendN(s, 5) {
			cancel()
		}
	}, Int16)

	registry := prometheus.NewRegistry()
	m, err := metrics.NewRecorderMetrics(registry)
	require.NoError(t, err)

	r, dir := newTestRecorder(t, dev, 5*time.Second, Never(), func(cfg *Config) {
		cfg.Metrics = m
	})

	require.NoError(t, r.Run(ctx))

	files := segmentFiles(t, dir)
	require.Len(t, files, 1)
	assert.Len(t, requireValidSegment(t, files[0]), 10*testFrames)
	assert.InDelta(t, 1, testutil.ToFloat64(m.MalformedBlocks), 0)
	assert.InDelta(t, 10, testutil.ToFloat64(m.BlocksProcessed), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.SegmentsClosed), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.SessionState.WithLabelValues(StateStopped.String())), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.SessionState.WithLabelValues(StateStreaming.String())), 0)
}

func TestRunStopsAtStopTime(t *testing.T) {
	start := time.Date(2026, time.March, 1, 14, 29, 58, 0, time.UTC)
	c := &clip{rep: Int16, rate: testRate, frames: testFrames, value: 0.1, start: start}

	dev := newFakeDevice(func(s *fakeStream) {
		c.sendN(s, 100)
	}, Int16)

	stop, err := DailyAt(14, 30)
	require.NoError(t, err)

	r, dir := newTestRecorder(t, dev, 5*time.Minute, stop)

	require.NoError(t, r.Run(t.Context()))
	assert.Equal(t, StateStopped, r.State())

	files := segmentFiles(t, dir)
	require.Len(t, files, 1)
	// the block captured at 14:30:00.0 is the last one written
	assert.Len(t, requireValidSegment(t, files[0]), 20*testFrames)
}

func TestRunSegmentCreationFailure(t *testing.T) {
	c := &clip{rep: Int16, rate: testRate, frames: testFrames, value: 0.1, start: testStart}
	dev := newFakeDevice(func(s *fakeStream) {
		c.sendN(s, 5)
	}, Int16)

	r, dir := newTestRecorder(t, dev, 5*time.Second, Never(), func(cfg *Config) {
		blocker := filepath.Join(cfg.OutputDir, "not-a-dir")
		require.NoError(t, os.WriteFile(blocker, nil, 0o600))
		cfg.OutputDir = blocker
	})

	err := r.Run(t.Context())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIOFailure)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileIO))
	assert.Equal(t, StateFailed, r.State())
	assert.Empty(t, segmentFiles(t, dir))
}

func TestRunTwice(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	r, _ := newTestRecorder(t, newFakeDevice(nil, Int16), 5*time.Second, Never())
	require.NoError(t, r.Run(ctx))
	assert.Error(t, r.Run(ctx))
}

func TestNewValidation(t *testing.T) {
	session, err := NewSession(testRate, time.Second, Never(), "")
	require.NoError(t, err)

	_, err = New(Config{Device: newFakeDevice(nil), OutputDir: t.TempDir()})
	require.Error(t, err)
	_, err = New(Config{Session: session, OutputDir: t.TempDir()})
	require.Error(t, err)
	_, err = New(Config{Session: session, Device: newFakeDevice(nil)})
	require.Error(t, err)

	r, err := New(Config{Session: session, Device: newFakeDevice(nil), OutputDir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, StateNegotiating, r.State())
	assert.Equal(t, DefaultQueueSize, r.cfg.QueueSize)
	assert.Equal(t, DefaultStopCheckInterval, r.cfg.StopCheckInterval)
	assert.Equal(t, 0, r.cfg.MaxRetries)
}

func TestNewMaxRetries(t *testing.T) {
	tests := []struct {
		name       string
		maxRetries int
		want       int
	}{
		{"negative selects default", -1, DefaultMaxRetries},
		{"zero kept", 0, 0},
		{"positive kept", 3, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newTestRecorder(t, newFakeDevice(nil), time.Second, Never(), func(cfg *Config) {
				cfg.MaxRetries = tt.maxRetries
			})
			assert.Equal(t, tt.want, r.cfg.MaxRetries)
		})
	}
}

func TestNewSession(t *testing.T) {
	s, err := NewSession(48000, 300*time.Second, Never(), "hw:1")
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, 1, s.Channels)
	assert.Equal(t, "hw:1", s.DeviceID)

	_, err = NewSession(0, time.Second, Never(), "")
	require.Error(t, err)
	_, err = NewSession(16000, 0, Never(), "")
	require.Error(t, err)
}
