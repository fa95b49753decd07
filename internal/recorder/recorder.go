// Package recorder captures a continuous mono audio stream and stores it as
// fixed-duration 16-bit PCM WAV segments.
//
// A Recorder negotiates a sample representation with a Device, converts every
// delivered block to 16-bit samples, writes them to the current segment,
// rotates segments on block boundaries and ends the session at a configured
// time of day or on cancellation.
package recorder

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/tphakala/streamrecorder/internal/errors"
	"github.com/tphakala/streamrecorder/internal/logger"
	"github.com/tphakala/streamrecorder/internal/observability/metrics"
)

const (
	DefaultQueueSize         = 16
	DefaultMaxRetries        = 5
	DefaultStopCheckInterval = time.Second

	progressStep = 20
)

// Config holds everything a Recorder needs. Session, Device and OutputDir are
// required; zero values elsewhere select defaults, except MaxRetries where 0
// makes the first transient error fatal and a negative value selects
// DefaultMaxRetries.
type Config struct {
	Session   *Session
	Device    Device
	OutputDir string

	Candidates        []Representation
	BlockFrames       int
	QueueSize         int
	MaxRetries        int
	StopCheckInterval time.Duration
	StopTolerance     time.Duration

	// Clock drives the periodic stop check. Defaults to time.Now.
	Clock func() time.Time

	Metrics      *metrics.RecorderMetrics
	Observers    []Observer
	SpaceChecker SpaceChecker
}

// Recorder runs one capture session
type Recorder struct {
	cfg     Config
	session *Session
	clock   func() time.Time
	stop    *StopEvaluator
	writer  *SegmentWriter
	metrics *metrics.RecorderMetrics
	log     logger.Logger

	state      atomic.Int32
	started    atomic.Bool
	negotiated atomic.Bool

	samples      []int16
	nextStart    time.Time
	lastProgress int
}

// New validates cfg and returns a Recorder in the negotiating state
func New(cfg Config) (*Recorder, error) {
	if cfg.Session == nil {
		return nil, configError("session is required")
	}
	if cfg.Device == nil {
		return nil, configError("device is required")
	}
	if cfg.OutputDir == "" {
		return nil, configError("output directory is required")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.StopCheckInterval <= 0 {
		cfg.StopCheckInterval = DefaultStopCheckInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	s := cfg.Session
	var opts []SegmentOption
	if cfg.SpaceChecker != nil {
		opts = append(opts, WithSpaceChecker(cfg.SpaceChecker))
	}

	r := &Recorder{
		cfg:     cfg,
		session: s,
		clock:   cfg.Clock,
		stop:    NewStopEvaluator(s.Stop, cfg.StopTolerance),
		writer:  NewSegmentWriter(cfg.OutputDir, s.SampleRate, s.SegmentDuration, opts...),
		metrics: cfg.Metrics,
		log: GetLogger().With(
			logger.String("session_id", s.ID),
			logger.String("device", deviceLabel(s.DeviceID))),
	}
	r.state.Store(int32(StateNegotiating))
	return r, nil
}

// State returns the current state
func (r *Recorder) State() State {
	return State(r.state.Load())
}

// Format returns the negotiated representation. ok is false until
// negotiation has succeeded.
func (r *Recorder) Format() (rep Representation, ok bool) {
	if !r.negotiated.Load() {
		return 0, false
	}
	return r.session.Format, true
}

// Session returns the session the recorder runs
func (r *Recorder) Session() *Session {
	return r.session
}

// Run negotiates a representation, then captures until the stop time is
// reached, ctx is cancelled or a fatal error occurs. It returns nil when the
// session ends in StateStopped and the cause when it ends in StateFailed. The
// open segment is finalized on every exit path.
func (r *Recorder) Run(ctx context.Context) error {
	if !r.started.CompareAndSwap(false, true) {
		return errors.New(fmt.Errorf("recorder already started")).
			Component(ComponentRecorder).
			Category(errors.CategoryState).
			Build()
	}

	s := r.session
	s.StartedAt = r.clock()
	r.metrics.SetState("", StateNegotiating.String())
	r.log.Info("capture session starting",
		logger.Int("sample_rate", s.SampleRate),
		logger.Duration("segment_duration", s.SegmentDuration),
		logger.String("stop_time", s.Stop.String()),
		logger.String("output_dir", r.cfg.OutputDir))

	req := OpenRequest{
		DeviceID:    s.DeviceID,
		SampleRate:  s.SampleRate,
		Channels:    s.Channels,
		BlockFrames: r.cfg.BlockFrames,
		QueueSize:   r.cfg.QueueSize,
	}
	rep, stream, err := Negotiate(ctx, r.cfg.Device, req, r.cfg.Candidates)
	if err != nil {
		if ctx.Err() != nil {
			r.setState(StateStopped)
			return nil
		}
		r.log.Error("format negotiation failed", logger.Error(err))
		r.setState(StateFailed)
		return err
	}
	s.Format = rep
	r.negotiated.Store(true)
	r.metrics.SetFormat(rep.String(), s.SampleRate)

	loopErr := r.stream(ctx, stream)
	if loopErr == nil {
		r.setState(StateStopping)
	}

	if err := r.finalizeSegment(); err != nil && loopErr == nil {
		loopErr = err
	}
	if err := stream.Close(); err != nil {
		r.log.Warn("failed to close capture stream", logger.Error(err))
	}

	if loopErr != nil {
		r.log.Error("capture session failed", logger.Error(loopErr))
		r.setState(StateFailed)
		return loopErr
	}

	r.setState(StateStopped)
	r.log.Info("capture session stopped")
	return nil
}

// stream starts the device and consumes blocks until a stop condition. It
// returns nil for a clean stop.
func (r *Recorder) stream(ctx context.Context, stream Stream) error {
	if err := stream.Start(); err != nil {
		return fatalCapture(err, "start_stream")
	}
	r.setState(StateStreaming)

	ticker := time.NewTicker(r.cfg.StopCheckInterval)
	defer ticker.Stop()

	blocks := stream.Blocks()
	errs := stream.Errors()
	retries := 0

	for {
		select {
		case <-ctx.Done():
			r.log.Info("capture cancelled", logger.String("reason", context.Cause(ctx).Error()))
			return nil

		case <-ticker.C:
			if r.stopDue(r.clock()) {
				return nil
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if !errors.Is(err, ErrTransientCapture) {
				r.metrics.RecordCaptureError(metrics.ErrorKindFatal)
				return fatalCapture(err, "read_block")
			}
			r.metrics.RecordCaptureError(metrics.ErrorKindTransient)
			retries++
			if retries > r.cfg.MaxRetries {
				return fatalCapture(fmt.Errorf("%d consecutive transient errors: %w", retries, err), "read_block")
			}
			r.log.Warn("transient capture error, retrying",
				logger.Error(err),
				logger.Int("attempt", retries),
				logger.Int("max_retries", r.cfg.MaxRetries))

		case blk, ok := <-blocks:
			if !ok {
				return fatalCapture(fmt.Errorf("capture stream ended"), "read_block")
			}
			retries = 0

			now := blk.Captured
			if now.IsZero() {
				now = r.clock()
			}
			if err := r.processBlock(blk.Data, now); err != nil {
				if !errors.Is(err, ErrMalformedBlock) {
					return err
				}
				r.metrics.RecordMalformedBlock()
				r.log.Warn("skipping malformed block",
					logger.Int("bytes", len(blk.Data)),
					logger.String("format", r.session.Format.String()))
				continue
			}
			if r.stopDue(now) {
				return nil
			}
		}
	}
}

// processBlock converts one block, writes it to the open segment and rotates
// when the segment has reached its duration at now
func (r *Recorder) processBlock(data []byte, now time.Time) error {
	samples, err := AppendConverted(r.samples[:0], data, r.session.Format)
	if err != nil {
		return err
	}
	r.samples = samples
	if len(samples) == 0 {
		return nil
	}

	if !r.writer.IsOpen() {
		start := r.nextStart
		if start.IsZero() {
			start = now.Add(-r.blockDuration(len(samples)))
		}
		if err := r.writer.Open(start); err != nil {
			return err
		}
		r.lastProgress = 0
		r.metrics.RecordSegmentOpened()
		r.log.Debug("segment opened", logger.String("path", r.writer.Current().Path))
	}

	if err := r.writer.Write(samples); err != nil {
		return err
	}
	r.metrics.RecordBlock(len(samples), len(samples)*bytesPerFrame)
	r.logProgress(now)

	if r.writer.ShouldRotate(now) {
		if err := r.finalizeSegment(); err != nil {
			return err
		}
		r.nextStart = now
	}
	return nil
}

func (r *Recorder) blockDuration(frames int) time.Duration {
	return time.Duration(frames) * time.Second / time.Duration(r.session.SampleRate)
}

func (r *Recorder) logProgress(now time.Time) {
	pct := int(r.writer.Elapsed(now) * 100 / r.session.SegmentDuration)
	step := pct / progressStep * progressStep
	if step <= r.lastProgress || step >= 100 {
		return
	}
	r.lastProgress = step
	r.log.Debug("segment progress",
		logger.Int("percent", step),
		logger.String("path", r.writer.Current().Path))
}

func (r *Recorder) stopDue(now time.Time) bool {
	if !r.stop.ShouldStop(now) {
		return false
	}
	r.log.Info("stop time reached",
		logger.String("stop_time", r.session.Stop.String()),
		logger.Time("now", now))
	return true
}

// finalizeSegment closes the open segment, if any, and notifies observers
func (r *Recorder) finalizeSegment() error {
	if !r.writer.IsOpen() {
		return nil
	}
	info, err := r.writer.Close()
	if err != nil {
		return err
	}

	r.metrics.RecordSegmentClosed(info.Duration().Seconds())
	r.log.Info("segment closed",
		logger.String("path", info.Path),
		logger.Duration("duration", info.Duration()),
		logger.Int64("bytes", info.Bytes))
	for _, o := range r.cfg.Observers {
		o.SegmentClosed(r.session, info)
	}
	return nil
}

func (r *Recorder) setState(to State) {
	from := State(r.state.Swap(int32(to)))
	if from == to {
		return
	}
	r.metrics.SetState(from.String(), to.String())
	r.log.Debug("state changed",
		logger.String("from", from.String()),
		logger.String("to", to.String()))
	for _, o := range r.cfg.Observers {
		o.StateChanged(r.session, from, to)
	}
}

func fatalCapture(err error, operation string) error {
	return errors.New(fmt.Errorf("%w: %w", ErrFatalCapture, err)).
		Component(ComponentRecorder).
		Category(errors.CategoryAudioSource).
		Context("operation", operation).
		Build()
}

func configError(msg string) error {
	return errors.Newf("invalid recorder config: %s", msg).
		Component(ComponentRecorder).
		Category(errors.CategoryConfiguration).
		Build()
}
