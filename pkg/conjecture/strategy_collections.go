package conjecture

import (
	"fmt"
	"strings"
)

const (
	listElementLabel = "list-element"
	defaultAlphabet  = "abcdefghijklmnopqrstuvwxyz0123456789"
)

type lists[T any] struct {
	elem      Strategy[T]
	min, max  int
	threshold uint64
}

// Lists produces slices of elem with length in [minLen, maxLen].
//
// Each element beyond minLen is preceded by a one-byte "continue" draw; a zero
// byte ends the list, so shrinking that byte shortens the list.
func Lists[T any](elem Strategy[T], minLen, maxLen int) Strategy[[]T] {
	if minLen < 0 || maxLen < minLen {
		panic(fmt.Sprintf("conjecture: Lists(%d, %d): invalid bounds", minLen, maxLen))
	}

	// Expected number of optional elements.
	extra := uint64(max(min(maxLen-minLen, 5), 1))

	return lists[T]{
		elem:      elem,
		min:       minLen,
		max:       maxLen,
		threshold: (256 + extra) / (extra + 1),
	}
}

func (l lists[T]) Generate(s *Source) []T {
	out := make([]T, 0, l.min)

	for len(out) < l.max {
		s.StartSpan(listElementLabel)

		if len(out) >= l.min && s.Draw(1, Unbounded()) < l.threshold {
			s.StopSpan(false)
			break
		}

		out = append(out, Draw(s, l.elem))
		s.StopSpan(false)
	}

	return out
}

func (l lists[T]) String() string {
	return fmt.Sprintf("lists(%s, %d, %d)", l.elem.String(), l.min, l.max)
}

type byteSlices struct {
	min, max int
}

// Bytes produces byte slices with length in [minLen, maxLen]. The length is drawn
// first, so shrinking it truncates the slice.
func Bytes(minLen, maxLen int) Strategy[[]byte] {
	if minLen < 0 || maxLen < minLen {
		panic(fmt.Sprintf("conjecture: Bytes(%d, %d): invalid bounds", minLen, maxLen))
	}

	return byteSlices{min: minLen, max: maxLen}
}

func (b byteSlices) Generate(s *Source) []byte {
	n := b.min + int(s.DrawUintAtMost(uint64(b.max-b.min)))

	return s.DrawBytes(n)
}

func (b byteSlices) String() string { return fmt.Sprintf("bytes(%d, %d)", b.min, b.max) }

// Runes picks single runes from alphabet; earlier runes are simpler.
func Runes(alphabet string) Strategy[rune] {
	if alphabet == "" {
		alphabet = defaultAlphabet
	}

	return SampledFrom([]rune(alphabet)...)
}

// Strings produces strings over alphabet with rune length in [minLen, maxLen]. An
// empty alphabet means lowercase ASCII letters and digits.
func Strings(alphabet string, minLen, maxLen int) Strategy[string] {
	return Map(Lists(Runes(alphabet), minLen, maxLen), func(rs []rune) string {
		var b strings.Builder
		for _, r := range rs {
			b.WriteRune(r)
		}

		return b.String()
	})
}

type oneOf[T any] struct {
	alternatives []Strategy[T]
}

// OneOf picks one alternative with a drawn discriminant. The first
// alternative is the simplest and is what shrinking moves towards.
func OneOf[T any](alternatives ...Strategy[T]) Strategy[T] {
	if len(alternatives) == 0 {
		panic("conjecture: OneOf requires at least one alternative")
	}

	return oneOf[T]{alternatives: append([]Strategy[T](nil), alternatives...)}
}

func (o oneOf[T]) Generate(s *Source) T {
	i := s.DrawChoice(len(o.alternatives))

	return Draw(s, o.alternatives[i])
}

func (o oneOf[T]) String() string {
	names := make([]string, len(o.alternatives))
	for i, a := range o.alternatives {
		names[i] = a.String()
	}

	return "one_of(" + strings.Join(names, ", ") + ")"
}

type recursive[T any] struct {
	base     Strategy[T]
	extended Strategy[T]
	maxDepth int
}

// Recursive builds tree-shaped values. extend receives the recursive strategy
// itself and returns a strategy producing one level of structure.
//
// Nesting never exceeds maxDepth; at the limit, and after [Source.Stop], only
// base is used.
func Recursive[T any](base Strategy[T], extend func(self Strategy[T]) Strategy[T], maxDepth int) Strategy[T] {
	if maxDepth < 1 {
		panic(fmt.Sprintf("conjecture: Recursive maxDepth %d must be positive", maxDepth))
	}

	r := &recursive[T]{base: base, maxDepth: maxDepth}
	r.extended = extend(r)

	return r
}

func (r *recursive[T]) Generate(s *Source) T {
	depth := s.enter(r)
	defer s.leave(r)

	if depth > r.maxDepth || s.Stopped() {
		return Draw(s, r.base)
	}

	if s.DrawChoice(2) == 0 {
		return Draw(s, r.base)
	}

	return Draw(s, r.extended)
}

func (r *recursive[T]) String() string {
	return fmt.Sprintf("recursive(%s, %d)", r.base.String(), r.maxDepth)
}
