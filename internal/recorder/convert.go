package recorder

import (
	"encoding/binary"
	"math"

	"github.com/tphakala/streamrecorder/internal/errors"
)

const (
	maxInt16 = math.MaxInt16
	minInt16 = math.MinInt16

	// float samples are scaled by 2^15 so -1.0 maps to the 16-bit minimum
	floatScale = 32768.0
)

// Convert transforms a block in representation rep into 16-bit samples.
// Int16 input is decoded unchanged. Float input is scaled to the 16-bit
// range, rounded and clamped. A block whose length is not a multiple of the
// sample width fails with ErrMalformedBlock.
func Convert(block []byte, rep Representation) ([]int16, error) {
	return AppendConverted(nil, block, rep)
}

// AppendConverted is Convert that appends to dst, letting callers reuse a buffer
func AppendConverted(dst []int16, block []byte, rep Representation) ([]int16, error) {
	width := rep.SampleWidth()
	if width == 0 {
		return dst, errors.New(ErrMalformedBlock).
			Component(ComponentRecorder).
			Category(errors.CategoryValidation).
			Context("representation", rep.String()).
			Build()
	}
	if len(block)%width != 0 {
		return dst, errors.New(ErrMalformedBlock).
			Component(ComponentRecorder).
			Category(errors.CategoryValidation).
			Context("representation", rep.String()).
			Context("block_bytes", len(block)).
			Build()
	}

	n := len(block) / width
	dst = growInt16(dst, n)
	out := dst[len(dst)-n:]

	switch rep {
	case Int16:
		for i := range out {
			out[i] = int16(binary.LittleEndian.Uint16(block[i*2:]))
		}
	case Float32:
		for i := range out {
			out[i] = floatToInt16(math.Float32frombits(binary.LittleEndian.Uint32(block[i*4:])))
		}
	case Float24:
		for i := range out {
			out[i] = s24ToInt16(block[i*3:])
		}
	}

	return dst, nil
}

// growInt16 extends dst by n elements
func growInt16(dst []int16, n int) []int16 {
	if cap(dst)-len(dst) >= n {
		return dst[:len(dst)+n]
	}
	grown := make([]int16, len(dst)+n)
	copy(grown, dst)
	return grown
}

func floatToInt16(v float32) int16 {
	if v != v { // NaN
		return 0
	}
	scaled := math.Round(float64(v) * floatScale)
	switch {
	case scaled > maxInt16:
		return maxInt16
	case scaled < minInt16:
		return minInt16
	default:
		return int16(scaled)
	}
}

// s24ToInt16 sign-extends a packed little-endian 24-bit sample and keeps the top 16 bits
func s24ToInt16(b []byte) int16 {
	v := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
	if v&0x800000 != 0 {
		v |= ^0xFFFFFF
	}
	return int16(v >> 8)
}
