package recorder

import "fmt"

// Representation is the in-memory sample encoding delivered by the device
type Representation int

const (
	// Float32 is IEEE 754 single precision, normalized to [-1, 1]
	Float32 Representation = iota
	// Float24 is packed 3-byte little-endian fixed point, full scale 2^23
	Float24
	// Int16 is signed 16-bit little-endian linear PCM, the stored format
	Int16
)

// DefaultCandidates is the negotiation preference order
var DefaultCandidates = []Representation{Float32, Float24, Int16}

// String returns the representation name used in logs and flags
func (r Representation) String() string {
	switch r {
	case Float32:
		return "float32"
	case Float24:
		return "float24"
	case Int16:
		return "int16"
	default:
		return fmt.Sprintf("representation(%d)", int(r))
	}
}

// SampleWidth returns the size of one sample in bytes
func (r Representation) SampleWidth() int {
	switch r {
	case Float32:
		return 4
	case Float24:
		return 3
	case Int16:
		return 2
	default:
		return 0
	}
}

// Valid reports whether r is a known representation
func (r Representation) Valid() bool {
	return r.SampleWidth() > 0
}
