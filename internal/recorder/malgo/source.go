// Package malgo implements the recorder capture device on top of miniaudio.
package malgo

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
	"golang.org/x/time/rate"

	"github.com/tphakala/streamrecorder/internal/errors"
	"github.com/tphakala/streamrecorder/internal/logger"
	"github.com/tphakala/streamrecorder/internal/observability/metrics"
	"github.com/tphakala/streamrecorder/internal/recorder"
)

const (
	componentAudio = "audio"

	errorQueueSize   = 4
	dropLogInterval  = 10 * time.Second
	defaultQueueSize = 16
)

// GetLogger returns the audio device module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("audio")
}

// Option configures a Device
type Option func(*Device)

// WithMetrics counts dropped blocks in m
func WithMetrics(m *metrics.RecorderMetrics) Option {
	return func(d *Device) {
		d.metrics = m
	}
}

// WithBackend overrides the platform backend
func WithBackend(b malgo.Backend) Option {
	return func(d *Device) {
		d.backend = b
	}
}

var _ recorder.Device = (*Device)(nil)

// Device opens miniaudio capture streams
type Device struct {
	backend malgo.Backend
	metrics *metrics.RecorderMetrics
}

// New returns a Device using the platform backend
func New(opts ...Option) *Device {
	d := &Device{backend: backendForPlatform()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// formatFor maps a sample representation to the miniaudio format
func formatFor(rep recorder.Representation) (malgo.FormatType, bool) {
	switch rep {
	case recorder.Float32:
		return malgo.FormatF32, true
	case recorder.Float24:
		return malgo.FormatS24, true
	case recorder.Int16:
		return malgo.FormatS16, true
	default:
		return malgo.FormatUnknown, false
	}
}

// Open initializes the capture device for req. It fails when the device
// cannot be opened or does not deliver exactly the requested format and rate.
func (d *Device) Open(ctx context.Context, req recorder.OpenRequest) (recorder.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	format, ok := formatFor(req.Format)
	if !ok {
		return nil, openError(fmt.Errorf("unsupported sample representation %s", req.Format), req, "map_format")
	}

	log := GetLogger()
	mctx, err := malgo.InitContext([]malgo.Backend{d.backend}, malgo.ContextConfig{}, func(message string) {
		log.Trace("miniaudio", logger.String("message", message))
	})
	if err != nil {
		return nil, openError(err, req, "init_context")
	}

	s := &stream{
		mctx:    mctx,
		rep:     req.Format,
		blocks:  make(chan recorder.Block, queueSize(req.QueueSize)),
		errs:    make(chan error, errorQueueSize),
		metrics: d.metrics,
		dropLog: rate.NewLimiter(rate.Every(dropLogInterval), 1),
		log:     log,
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = format
	cfg.Capture.Channels = uint32(max(req.Channels, 1)) //nolint:gosec // mono only
	cfg.SampleRate = uint32(req.SampleRate)             //nolint:gosec // validated positive
	cfg.PeriodSizeInFrames = uint32(max(req.BlockFrames, 0))
	cfg.Alsa.NoMMap = 1

	if !isDefaultQuery(req.DeviceID) {
		infos, err := mctx.Devices(malgo.Capture)
		if err != nil {
			_ = s.releaseContext()
			return nil, openError(err, req, "enumerate_devices")
		}
		info, err := selectDevice(infos, req.DeviceID)
		if err != nil {
			_ = s.releaseContext()
			return nil, err
		}
		cfg.Capture.DeviceID = info.ID.Pointer()
		s.name = info.Name()
	}

	device, err := malgo.InitDevice(mctx.Context, cfg, malgo.DeviceCallbacks{
		Data: s.onData,
		Stop: s.onStop,
	})
	if err != nil {
		_ = s.releaseContext()
		return nil, openError(err, req, "init_device")
	}
	s.device = device

	if got := device.CaptureFormat(); got != format {
		_ = s.Close()
		return nil, openError(fmt.Errorf("device delivers format %d, requested %d", got, format), req, "check_format")
	}
	if got := device.SampleRate(); got != cfg.SampleRate {
		_ = s.Close()
		return nil, openError(fmt.Errorf("device runs at %d Hz, requested %d Hz", got, cfg.SampleRate), req, "check_rate")
	}

	return s, nil
}

func queueSize(n int) int {
	if n <= 0 {
		return defaultQueueSize
	}
	return n
}

// stream bridges the miniaudio callback thread to the capture loop through a
// bounded queue. The callback never blocks: when the queue is full the newest
// block is dropped and counted.
type stream struct {
	mctx   *malgo.AllocatedContext
	device *malgo.Device
	rep    recorder.Representation
	name   string

	blocks chan recorder.Block
	errs   chan error

	metrics *metrics.RecorderMetrics
	dropLog *rate.Limiter
	dropped atomic.Uint64
	log     logger.Logger

	closing   atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func (s *stream) Start() error {
	if err := s.device.Start(); err != nil {
		return errors.New(err).
			Component(componentAudio).
			Category(errors.CategoryAudioSource).
			Context("operation", "start_device").
			Context("device", s.label()).
			Build()
	}
	s.log.Info("capture device started",
		logger.String("device", s.label()),
		logger.String("format", s.rep.String()),
		logger.Int("sample_rate", int(s.device.SampleRate())))
	return nil
}

func (s *stream) Blocks() <-chan recorder.Block { return s.blocks }
func (s *stream) Errors() <-chan error          { return s.errs }

// Close stops the device and releases the context. No callback runs after
// Uninit returns, so the channels can be closed afterwards.
func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		if s.device != nil {
			s.device.Uninit()
		}
		s.closeErr = s.releaseContext()
		close(s.blocks)
		close(s.errs)

		if n := s.dropped.Load(); n > 0 {
			s.log.Warn("capture stream closed with dropped blocks", logger.Uint64("dropped", n))
		}
	})
	return s.closeErr
}

func (s *stream) releaseContext() error {
	if s.mctx == nil {
		return nil
	}
	err := s.mctx.Uninit()
	s.mctx.Free()
	s.mctx = nil
	return err
}

// onData runs on the miniaudio thread. The input buffer is reused by the
// driver and must be copied.
func (s *stream) onData(_, in []byte, _ uint32) {
	if s.closing.Load() {
		return
	}

	data := make([]byte, len(in))
	copy(data, in)

	select {
	case s.blocks <- recorder.Block{Data: data, Captured: time.Now()}:
	default:
		n := s.dropped.Add(1)
		s.metrics.RecordDroppedBlock()
		if s.dropLog.Allow() {
			s.log.Warn("capture queue full, dropping block",
				logger.Uint64("dropped_total", n),
				logger.Int("queue_size", cap(s.blocks)))
		}
	}
}

// onStop reports a device that stopped without being closed. It is the only
// error the bridge emits, and it is always fatal.
func (s *stream) onStop() {
	if s.closing.Load() {
		return
	}
	err := errors.New(fmt.Errorf("%w: capture device %s stopped unexpectedly", recorder.ErrFatalCapture, s.label())).
		Component(componentAudio).
		Category(errors.CategoryAudioSource).
		Context("backend", runtime.GOOS).
		Build()
	select {
	case s.errs <- err:
	default:
	}
}

func (s *stream) label() string {
	if s.name == "" {
		return "default"
	}
	return s.name
}

func openError(err error, req recorder.OpenRequest, operation string) error {
	return errors.New(err).
		Component(componentAudio).
		Category(errors.CategoryAudioSource).
		Context("operation", operation).
		Context("format", req.Format.String()).
		Context("sample_rate", req.SampleRate).
		Build()
}
