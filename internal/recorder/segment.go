package recorder

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/tphakala/streamrecorder/internal/errors"
)

const (
	bitDepth      = 16
	pcmFormat     = 1 // WAVE_FORMAT_PCM
	bytesPerFrame = bitDepth / 8

	// canonical PCM header: RIFF size at 4, data size at 40, samples from 44
	riffSizeOffset = 4
	dataSizeOffset = 40
	wavHeaderSize  = 44

	dayDirLayout    = "20060102"
	fileStampLayout = "20060102h15m04s05"

	// maxNameCollisions bounds the search for an unused file name
	maxNameCollisions = 100
)

// SpaceChecker is consulted before a segment file is created
type SpaceChecker interface {
	CheckFreeSpace(dir string) error
}

// SegmentInfo describes an output segment
type SegmentInfo struct {
	Path       string
	Seq        int
	Start      time.Time
	SampleRate int
	Samples    int64
	Bytes      int64 // PCM payload bytes, excluding the header
}

// Duration returns the audio duration held by the segment
func (s SegmentInfo) Duration() time.Duration {
	if s.SampleRate <= 0 {
		return 0
	}
	return time.Duration(s.Samples) * time.Second / time.Duration(s.SampleRate)
}

// SegmentOption configures a SegmentWriter
type SegmentOption func(*SegmentWriter)

// WithSpaceChecker makes Open refuse to create a segment when the checker fails
func WithSpaceChecker(sc SpaceChecker) SegmentOption {
	return func(w *SegmentWriter) {
		w.space = sc
	}
}

// SegmentWriter owns at most one open mono 16-bit WAV segment. Segments are
// stored as <root>/<YYYYMMDD>/<YYYYMMDD>h<HH>m<MM>s<SS>S<seq>.wav. The header
// sizes are rewritten after every write so the file is valid at any time.
// It is not safe for concurrent use.
type SegmentWriter struct {
	root       string
	sampleRate int
	duration   time.Duration
	space      SpaceChecker

	file *os.File
	enc  *wav.Encoder
	buf  *audio.IntBuffer
	cur  SegmentInfo
	seq  int
}

// NewSegmentWriter returns a writer rotating every duration
func NewSegmentWriter(root string, sampleRate int, duration time.Duration, opts ...SegmentOption) *SegmentWriter {
	w := &SegmentWriter{
		root:       root,
		sampleRate: sampleRate,
		duration:   duration,
		buf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
			SourceBitDepth: bitDepth,
		},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// IsOpen reports whether a segment is open
func (w *SegmentWriter) IsOpen() bool {
	return w.file != nil
}

// Current returns the open segment, or the zero value
func (w *SegmentWriter) Current() SegmentInfo {
	return w.cur
}

// Open creates a new segment whose audio starts at start and writes its header
func (w *SegmentWriter) Open(start time.Time) error {
	if w.file != nil {
		return ioFailure(fmt.Errorf("segment %s is still open", w.cur.Path), "open_segment", w.cur.Path)
	}

	dir := filepath.Join(w.root, start.Format(dayDirLayout))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ioFailure(err, "create_day_dir", dir)
	}

	if w.space != nil {
		if err := w.space.CheckFreeSpace(dir); err != nil {
			return ioFailure(err, "check_free_space", dir)
		}
	}

	file, seq, err := w.createFile(dir, start)
	if err != nil {
		return err
	}

	enc := wav.NewEncoder(file, w.sampleRate, bitDepth, 1, pcmFormat)
	w.buf.Data = w.buf.Data[:0]
	if err := enc.Write(w.buf); err != nil {
		_ = file.Close()
		return ioFailure(err, "write_header", file.Name())
	}

	w.file = file
	w.enc = enc
	w.seq = seq
	w.cur = SegmentInfo{
		Path:       file.Name(),
		Seq:        seq,
		Start:      start,
		SampleRate: w.sampleRate,
	}

	if err := w.patchHeader(); err != nil {
		_, _ = w.Close()
		return err
	}
	return nil
}

// createFile creates the next unused segment file in dir
func (w *SegmentWriter) createFile(dir string, start time.Time) (*os.File, int, error) {
	stamp := start.Format(fileStampLayout)
	seq := w.seq

	for range maxNameCollisions {
		seq++
		path := filepath.Join(dir, fmt.Sprintf("%sS%04d.wav", stamp, seq))
		file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644) //nolint:gosec // path built from config root
		if err == nil {
			return file, seq, nil
		}
		if !os.IsExist(err) {
			return nil, 0, ioFailure(err, "create_segment", path)
		}
	}

	return nil, 0, ioFailure(fmt.Errorf("no free segment name for %s in %s", stamp, dir), "create_segment", dir)
}

// Write appends samples to the open segment and updates the declared lengths
func (w *SegmentWriter) Write(samples []int16) error {
	if w.file == nil {
		return errors.New(ErrNotOpen).
			Component(ComponentRecorder).
			Category(errors.CategoryState).
			Context("operation", "write_segment").
			Build()
	}
	if len(samples) == 0 {
		return nil
	}

	data := w.buf.Data[:0]
	for _, s := range samples {
		data = append(data, int(s))
	}
	w.buf.Data = data

	if err := w.enc.Write(w.buf); err != nil {
		return ioFailure(err, "write_segment", w.cur.Path)
	}

	w.cur.Samples += int64(len(samples))
	w.cur.Bytes += int64(len(samples) * bytesPerFrame)

	return w.patchHeader()
}

// patchHeader rewrites the RIFF and data chunk sizes for the bytes written so far
func (w *SegmentWriter) patchHeader() error {
	var size [4]byte

	binary.LittleEndian.PutUint32(size[:], uint32(wavHeaderSize-8+w.cur.Bytes)) //nolint:gosec // segments stay far below 4 GiB
	if _, err := w.file.WriteAt(size[:], riffSizeOffset); err != nil {
		return ioFailure(err, "patch_header", w.cur.Path)
	}

	binary.LittleEndian.PutUint32(size[:], uint32(w.cur.Bytes)) //nolint:gosec // segments stay far below 4 GiB
	if _, err := w.file.WriteAt(size[:], dataSizeOffset); err != nil {
		return ioFailure(err, "patch_header", w.cur.Path)
	}

	return nil
}

// ShouldRotate reports whether the open segment has reached its duration at now
func (w *SegmentWriter) ShouldRotate(now time.Time) bool {
	return w.file != nil && now.Sub(w.cur.Start) >= w.duration
}

// Elapsed returns how far into the open segment now is
func (w *SegmentWriter) Elapsed(now time.Time) time.Duration {
	if w.file == nil {
		return 0
	}
	return now.Sub(w.cur.Start)
}

// Close finalizes the header, syncs and closes the open segment and returns
// its description. Without an open segment it returns the zero SegmentInfo.
func (w *SegmentWriter) Close() (SegmentInfo, error) {
	if w.file == nil {
		return SegmentInfo{}, nil
	}

	info := w.cur
	file, enc := w.file, w.enc
	w.file, w.enc, w.cur = nil, nil, SegmentInfo{}

	var errs []error
	// the encoder rewrites both chunk sizes and fsyncs
	if err := enc.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := file.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return info, ioFailure(errors.Join(errs...), "close_segment", info.Path)
	}
	return info, nil
}

func ioFailure(err error, operation, path string) error {
	return errors.New(fmt.Errorf("%w: %w", ErrIOFailure, err)).
		Component(ComponentRecorder).
		Category(errors.CategoryFileIO).
		FileContext(path, 0).
		Context("operation", operation).
		Build()
}
