package recorder

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"
)

// fakeDevice accepts the representations in accept and records every open attempt
type fakeDevice struct {
	mu       sync.Mutex
	accept   map[Representation]bool
	attempts []Representation
	script   func(s *fakeStream)
	stream   *fakeStream
}

func newFakeDevice(script func(s *fakeStream), accept ...Representation) *fakeDevice {
	d := &fakeDevice{accept: make(map[Representation]bool), script: script}
	for _, rep := range accept {
		d.accept[rep] = true
	}
	return d
}

func (d *fakeDevice) Open(_ context.Context, req OpenRequest) (Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.attempts = append(d.attempts, req.Format)
	if !d.accept[req.Format] {
		return nil, fmt.Errorf("format %s not supported", req.Format)
	}
	d.stream = &fakeStream{
		rep:    req.Format,
		blocks: make(chan Block),
		errs:   make(chan error),
		done:   make(chan struct{}),
		script: d.script,
	}
	return d.stream, nil
}

func (d *fakeDevice) Attempts() []Representation {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Representation(nil), d.attempts...)
}

// fakeStream runs its script on a goroutine once started. Sends give up
// when the stream is closed so the script never outlives Close.
type fakeStream struct {
	rep       Representation
	blocks    chan Block
	errs      chan error
	done      chan struct{}
	script    func(s *fakeStream)
	startErr  error
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func (s *fakeStream) Start() error {
	if s.startErr != nil {
		return s.startErr
	}
	if s.script != nil {
		s.wg.Go(func() { s.script(s) })
	}
	return nil
}

func (s *fakeStream) Blocks() <-chan Block { return s.blocks }
func (s *fakeStream) Errors() <-chan error { return s.errs }

func (s *fakeStream) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	s.wg.Wait()
	return nil
}

func (s *fakeStream) send(b Block) bool {
	select {
	case s.blocks <- b:
		return true
	case <-s.done:
		return false
	}
}

func (s *fakeStream) fail(err error) bool {
	select {
	case s.errs <- err:
		return true
	case <-s.done:
		return false
	}
}

// clip produces consecutive blocks of frames samples at value, timestamped
// from start as a real-time driver would
type clip struct {
	rep    Representation
	rate   int
	frames int
	value  float64
	start  time.Time
	n      int
}

func (c *clip) blockDuration() time.Duration {
	return time.Duration(c.frames) * time.Second / time.Duration(c.rate)
}

func (c *clip) next() Block {
	c.n++
	return Block{
		Data:     encodeBlock(c.rep, c.frames, c.value),
		Captured: c.start.Add(time.Duration(c.n) * c.blockDuration()),
	}
}

// sendN sends n blocks and reports whether all were delivered
func (c *clip) sendN(s *fakeStream, n int) bool {
	for range n {
		if !s.send(c.next()) {
			return false
		}
	}
	return true
}

// encodeBlock encodes frames copies of a normalized value in rep
func encodeBlock(rep Representation, frames int, value float64) []byte {
	buf := make([]byte, frames*rep.SampleWidth())
	for i := range frames {
		switch rep {
		case Float32:
			binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(float32(value)))
		case Float24:
			v := int32(math.Round(value * (1 << 23)))
			v = min(v, 1<<23-1)
			buf[i*3] = byte(v)
			buf[i*3+1] = byte(v >> 8)
			buf[i*3+2] = byte(v >> 16)
		case Int16:
			v := int16(min(math.Round(value*32768), math.MaxInt16))
			binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
		}
	}
	return buf
}

type recordingObserver struct {
	transitions [][2]State
	segments    []SegmentInfo
}

func (o *recordingObserver) StateChanged(_ *Session, from, to State) {
	o.transitions = append(o.transitions, [2]State{from, to})
}

func (o *recordingObserver) SegmentClosed(_ *Session, seg SegmentInfo) {
	o.segments = append(o.segments, seg)
}
