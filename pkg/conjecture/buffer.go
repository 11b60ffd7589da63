package conjecture

import (
	"bytes"
	"encoding/hex"
)

// Buffer is an immutable sequence of bytes that drives one trial.
//
// The zero value is an empty buffer.
type Buffer struct {
	data []byte
}

// NewBuffer copies b into a new Buffer.
func NewBuffer(b []byte) Buffer {
	return Buffer{data: append([]byte(nil), b...)}
}

// Len returns the number of bytes in the buffer.
func (b Buffer) Len() int { return len(b.data) }

// Bytes returns a copy of the buffer contents.
func (b Buffer) Bytes() []byte { return append([]byte(nil), b.data...) }

// Hex returns the buffer contents hex encoded.
func (b Buffer) Hex() string { return hex.EncodeToString(b.data) }

func (b Buffer) String() string { return b.Hex() }

// Equal reports whether both buffers hold the same bytes.
func (b Buffer) Equal(other Buffer) bool { return bytes.Equal(b.data, other.data) }

// Compare orders buffers for shrinking: shorter buffers first, then bytewise
// lexicographic order. It returns -1, 0 or +1.
//
// Compare is a well-founded total order over buffers of bounded length, which
// is what guarantees the shrinker terminates.
func Compare(a, b Buffer) int {
	return compareBytes(a.data, b.data)
}

// Less reports whether a sorts strictly before b in shrink order.
func Less(a, b Buffer) bool { return Compare(a, b) < 0 }

func compareBytes(a, b []byte) int {
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return bytes.Compare(a, b)
	}
}
