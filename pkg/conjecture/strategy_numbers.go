package conjecture

import (
	"fmt"
	"math"
)

type integers struct {
	min, max int64
}

// Integers produces int64 values in [min, max].
//
// Values shrink towards zero when the range contains it, otherwise towards the
// bound closest to zero.
func Integers(min, max int64) Strategy[int64] {
	if min > max {
		panic(fmt.Sprintf("conjecture: Integers(%d, %d): min > max", min, max))
	}

	return integers{min: min, max: max}
}

// Ints is [Integers] for int.
func Ints(min, max int) Strategy[int] {
	return Map(Integers(int64(min), int64(max)), func(v int64) int { return int(v) })
}

func (g integers) Generate(s *Source) int64 {
	switch {
	case g.min >= 0:
		return g.min + int64(s.DrawUintAtMost(uint64(g.max-g.min)))
	case g.max <= 0:
		return g.max - int64(s.DrawUintAtMost(uint64(g.max-g.min)))
	}

	// Range straddles zero: sign first (0 = non-negative), then magnitude.
	if !s.DrawBool() {
		return int64(s.DrawUintAtMost(uint64(g.max)))
	}

	mag := s.DrawUintAtMost(negate(g.min))
	if mag == 0 {
		return 0
	}

	return -int64(mag - 1) - 1
}

// negate returns -v as uint64 without overflowing on MinInt64.
func negate(v int64) uint64 {
	if v == math.MinInt64 {
		return 1 << 63
	}

	return uint64(-v)
}

func (g integers) String() string { return fmt.Sprintf("integers(%d, %d)", g.min, g.max) }

type uint64s struct{}

// Uint64s produces any uint64.
func Uint64s() Strategy[uint64] { return uint64s{} }

func (uint64s) Generate(s *Source) uint64 { return s.Draw(8, Unbounded()) }
func (uint64s) String() string            { return "uint64s" }

type booleans struct{}

// Booleans produces false or true; false is simpler.
func Booleans() Strategy[bool] { return booleans{} }

func (booleans) Generate(s *Source) bool { return s.DrawBool() }
func (booleans) String() string          { return "booleans" }

type floats struct{}

// Float64s produces values in [0, 1) with 53 bits of precision. Smaller
// buffers give smaller values.
func Float64s() Strategy[float64] { return floats{} }

func (floats) Generate(s *Source) float64 {
	return float64(s.Draw(7, AtMost(1<<53-1))) / (1 << 53)
}

func (floats) String() string { return "float64s" }

type sampled[T any] struct {
	values []T
}

// SampledFrom picks one of values; earlier values are simpler.
func SampledFrom[T any](values ...T) Strategy[T] {
	if len(values) == 0 {
		panic("conjecture: SampledFrom requires at least one value")
	}

	return sampled[T]{values: append([]T(nil), values...)}
}

func (g sampled[T]) Generate(s *Source) T {
	return g.values[s.DrawChoice(len(g.values))]
}

func (g sampled[T]) String() string { return fmt.Sprintf("sampled_from(%d)", len(g.values)) }
