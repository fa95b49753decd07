package recorder

import (
	"context"
	"time"
)

// OpenRequest describes how a capture stream should be opened
type OpenRequest struct {
	DeviceID    string // empty selects the system default
	SampleRate  int
	Channels    int
	Format      Representation
	BlockFrames int // frames per delivered block, 0 lets the driver choose
	QueueSize   int // capacity of the block hand-off queue
}

// Block is one sample block as delivered by the driver
type Block struct {
	Data     []byte    // raw samples in the negotiated representation
	Captured time.Time // when the driver handed the block over, i.e. the end of its span
}

// Device opens capture streams. Open fails when the device rejects the
// requested representation or cannot be opened at all.
type Device interface {
	Open(ctx context.Context, req OpenRequest) (Stream, error)
}

// Stream is an opened capture stream.
//
// Blocks delivers sample blocks in arrival order and is closed when the
// stream ends. Errors delivers capture errors wrapping ErrTransientCapture or
// ErrFatalCapture. Close releases the device and may be called more than once.
type Stream interface {
	Start() error
	Blocks() <-chan Block
	Errors() <-chan error
	Close() error
}
