package conjecture

import (
	"fmt"
	"math"
	"math/bits"
	"math/rand"
)

// DefaultMaxSize is the default per-trial byte cap.
const DefaultMaxSize = 8 * 1024

// DrawKind classifies a recorded draw for the shrinker.
type DrawKind uint8

const (
	// DrawInteger is a bounded or unbounded integer draw.
	DrawInteger DrawKind = iota
	// DrawChoice is a discriminant selecting among alternatives; 0 is the
	// simplest alternative.
	DrawChoice
	// DrawRaw is an uninterpreted run of bytes.
	DrawRaw
)

// DrawRecord is one entry of the draw record.
type DrawRecord struct {
	Offset int
	Width  int
	Value  uint64
	Kind   DrawKind
}

// Span delimits the bytes consumed by one structural block, usually one
// strategy generation.
type Span struct {
	Label     string
	Start     int
	End       int
	Depth     int
	Parent    int // index into the span list, -1 for top level spans
	Discarded bool
}

// Len returns the number of bytes covered by the span.
func (s Span) Len() int { return s.End - s.Start }

// Constraint maps the raw bits of a draw into a bounded range.
//
// The mapping masks raw bits to the bit length of the bound and rejects values
// above it. Rejected probes consume their bytes and the draw is retried, so the
// mapping is deterministic. The source writes masked bytes back into the
// consumed buffer, which makes values monotone in consumed byte magnitude.
type Constraint struct {
	max  uint64
	kind DrawKind
}

// Unbounded accepts every value representable in the draw width.
func Unbounded() Constraint {
	return Constraint{max: math.MaxUint64, kind: DrawInteger}
}

// AtMost accepts values in [0, max].
func AtMost(max uint64) Constraint {
	return Constraint{max: max, kind: DrawInteger}
}

// Choice accepts discriminants in [0, n). n must be positive.
func Choice(n int) Constraint {
	if n <= 0 {
		panic(fmt.Sprintf("conjecture: Choice(%d): n must be positive", n))
	}

	return Constraint{max: uint64(n - 1), kind: DrawChoice}
}

func (c Constraint) apply(raw uint64) (uint64, bool) {
	if c.max == math.MaxUint64 {
		return raw, true
	}

	mask := uint64(1)<<bits.Len64(c.max) - 1
	v := raw & mask

	return v, v <= c.max
}

// widthFor returns the number of bytes needed to represent max.
func widthFor(max uint64) int {
	w := (bits.Len64(max) + 7) / 8
	if w == 0 {
		return 1
	}

	return w
}

// stopTest aborts a trial from inside generation or the property.
type stopTest struct {
	status Status
	reason string
}

// Source serves sequential bounded draws from a buffer.
//
// A Source either replays a fixed prefix (strict: running past its end is an
// Overrun) or, when created with a random generator, extends the prefix with
// fresh bytes that are recorded so the trial can be replayed exactly.
//
// Strategies only interact with a Source through its draw methods; they never
// see buffer bytes directly.
type Source struct {
	prefix  []byte
	rng     *rand.Rand
	maxSize int

	data  []byte
	draws []DrawRecord
	spans []Span
	open  []int

	stopped bool
	depths  map[any]int
}

// NewSource replays buf strictly with the default size cap.
func NewSource(buf []byte) *Source {
	return newSource(buf, nil, DefaultMaxSize)
}

func newSource(prefix []byte, rng *rand.Rand, maxSize int) *Source {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}

	return &Source{
		prefix:  prefix,
		rng:     rng,
		maxSize: maxSize,
		data:    make([]byte, 0, min(len(prefix), maxSize)),
	}
}

// Used returns the number of bytes consumed so far.
func (s *Source) Used() int { return len(s.data) }

// Allocated returns the length of the replayed prefix.
func (s *Source) Allocated() int { return len(s.prefix) }

// Stopped reports whether [Source.Stop] was called.
func (s *Source) Stopped() bool { return s.stopped }

// Stop ends drawing. Every later draw returns its minimal value without
// consuming bytes, so a strategy in progress finalizes with its simplest
// remaining choices.
func (s *Source) Stop() { s.stopped = true }

// Draw consumes width bytes (1..8), interpreted big-endian, and maps them
// through c. The result is appended to the draw record.
func (s *Source) Draw(width int, c Constraint) uint64 {
	if width < 1 || width > 8 {
		panic(fmt.Sprintf("conjecture: draw width %d out of range [1, 8]", width))
	}

	if c.max != math.MaxUint64 && widthFor(c.max) > width {
		panic(fmt.Sprintf("conjecture: draw width %d too small for bound %d", width, c.max))
	}

	if s.stopped {
		return 0
	}

	for {
		offset := len(s.data)
		chunk := s.read(width)

		var raw uint64
		for _, b := range chunk {
			raw = raw<<8 | uint64(b)
		}

		v, ok := c.apply(raw)

		// Record the masked bytes so consumed buffers are canonical: bits
		// ignored by the mapping are zero.
		putBE(chunk, v)

		if !ok {
			continue
		}

		s.draws = append(s.draws, DrawRecord{Offset: offset, Width: width, Value: v, Kind: c.kind})

		return v
	}
}

// DrawUintAtMost draws a value in [0, max] using the narrowest width.
func (s *Source) DrawUintAtMost(max uint64) uint64 {
	return s.Draw(widthFor(max), AtMost(max))
}

// DrawChoice draws a discriminant in [0, n).
func (s *Source) DrawChoice(n int) int {
	return int(s.Draw(widthFor(uint64(n-1)), Choice(n)))
}

// DrawBool draws a single bit; false is the simpler value.
func (s *Source) DrawBool() bool {
	return s.Draw(1, AtMost(1)) == 1
}

// DrawBytes consumes n raw bytes.
func (s *Source) DrawBytes(n int) []byte {
	out := make([]byte, n)
	if n == 0 || s.stopped {
		return out
	}

	offset := len(s.data)
	copy(out, s.read(n))
	s.draws = append(s.draws, DrawRecord{Offset: offset, Width: n, Kind: DrawRaw})

	return out
}

// Reject marks the trial Invalid.
func (s *Source) Reject(reason string) {
	panic(stopTest{status: StatusInvalid, reason: reason})
}

// StartSpan opens a structural block. Spans nest.
func (s *Source) StartSpan(label string) {
	parent := -1
	if n := len(s.open); n > 0 {
		parent = s.open[n-1]
	}

	s.spans = append(s.spans, Span{
		Label:  label,
		Start:  len(s.data),
		End:    -1,
		Depth:  len(s.open),
		Parent: parent,
	})
	s.open = append(s.open, len(s.spans)-1)
}

// StopSpan closes the innermost open span. Discarded spans hold bytes that did
// not contribute to the final value, such as filtered-out attempts.
func (s *Source) StopSpan(discard bool) {
	n := len(s.open)
	if n == 0 {
		panic("conjecture: StopSpan without StartSpan")
	}

	idx := s.open[n-1]
	s.open = s.open[:n-1]
	s.spans[idx].End = len(s.data)
	s.spans[idx].Discarded = discard
}

// Record returns a copy of the draw record.
func (s *Source) Record() []DrawRecord {
	return append([]DrawRecord(nil), s.draws...)
}

func (s *Source) read(n int) []byte {
	start := len(s.data)
	if start+n > s.maxSize {
		panic(stopTest{status: StatusOverrun, reason: fmt.Sprintf("trial exceeded %d bytes", s.maxSize)})
	}

	for len(s.data) < start+n {
		pos := len(s.data)
		switch {
		case pos < len(s.prefix):
			s.data = append(s.data, s.prefix[pos])
		case s.rng != nil:
			s.data = s.appendRandom(s.data, start+n-pos)
		default:
			panic(stopTest{status: StatusOverrun, reason: "buffer exhausted"})
		}
	}

	return s.data[start : start+n]
}

// appendRandom extends data with n fresh bytes. A quarter of multi-byte runs
// keep only their low byte so small values show up regularly.
func (s *Source) appendRandom(data []byte, n int) []byte {
	small := n > 1 && s.rng.Intn(4) == 0

	for i := range n {
		if small && i < n-1 {
			data = append(data, 0)
			continue
		}

		data = append(data, byte(s.rng.Intn(256)))
	}

	return data
}

// enter increments the recursion depth for key and returns the new depth.
func (s *Source) enter(key any) int {
	if s.depths == nil {
		s.depths = make(map[any]int)
	}

	s.depths[key]++

	return s.depths[key]
}

func (s *Source) leave(key any) {
	s.depths[key]--
}
