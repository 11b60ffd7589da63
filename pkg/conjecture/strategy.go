package conjecture

import (
	"errors"
	"fmt"
	"sync"
)

// filterAttempts is how often [Filter] redraws before the trial is Invalid.
const filterAttempts = 3

// Strategy produces values of type T from a [Source].
//
// Generate must be deterministic given identical draws. Strategies compose by
// calling [Draw] on child strategies with the same Source.
type Strategy[T any] interface {
	Generate(s *Source) T
	String() string
}

// Draw generates a value from strat inside its own span.
func Draw[T any](s *Source, strat Strategy[T]) T {
	s.StartSpan(strat.String())
	v := strat.Generate(s)
	s.StopSpan(false)

	return v
}

// Generate replays buf through strat. It returns [ErrOverrun] if buf is too
// short and [ErrInvalid] if generation rejected it.
//
// Generate is meant for adapters testing their own strategies.
func Generate[T any](strat Strategy[T], buf []byte) (value T, err error) {
	s := NewSource(buf)

	defer func() {
		rec := recover()
		if rec == nil {
			return
		}

		sig, ok := rec.(stopTest)
		if !ok {
			panic(rec)
		}

		if sig.status == StatusOverrun {
			err = fmt.Errorf("%w: %s", ErrOverrun, sig.reason)
		} else {
			err = fmt.Errorf("%w: %s", ErrInvalid, sig.reason)
		}
	}()

	return Draw(s, strat), nil
}

type funcStrategy[T any] struct {
	label string
	fn    func(s *Source) T
}

// Custom builds a strategy from a generation function.
func Custom[T any](label string, fn func(s *Source) T) Strategy[T] {
	return funcStrategy[T]{label: label, fn: fn}
}

func (f funcStrategy[T]) Generate(s *Source) T { return f.fn(s) }
func (f funcStrategy[T]) String() string      { return f.label }

type just[T any] struct{ v T }

// Just always produces v and draws nothing.
func Just[T any](v T) Strategy[T] { return just[T]{v: v} }

func (j just[T]) Generate(*Source) T { return j.v }
func (j just[T]) String() string     { return fmt.Sprintf("just(%v)", j.v) }

type mapped[T, U any] struct {
	inner Strategy[T]
	fn    func(T) U
}

// Map post-processes values of inner with fn.
func Map[T, U any](inner Strategy[T], fn func(T) U) Strategy[U] {
	return mapped[T, U]{inner: inner, fn: fn}
}

func (m mapped[T, U]) Generate(s *Source) U { return m.fn(m.inner.Generate(s)) }
func (m mapped[T, U]) String() string      { return "map(" + m.inner.String() + ")" }

type filtered[T any] struct {
	inner Strategy[T]
	pred  func(T) bool
}

// Filter keeps values of inner satisfying pred. After a few rejected attempts
// the whole trial becomes Invalid.
func Filter[T any](inner Strategy[T], pred func(T) bool) Strategy[T] {
	return filtered[T]{inner: inner, pred: pred}
}

func (f filtered[T]) Generate(s *Source) T {
	label := f.inner.String()

	for range filterAttempts {
		s.StartSpan(label)
		v := f.inner.Generate(s)
		ok := f.pred(v)
		s.StopSpan(!ok)

		if ok {
			return v
		}
	}

	s.Reject("filter exhausted on " + label)

	panic("unreachable")
}

func (f filtered[T]) String() string { return "filter(" + f.inner.String() + ")" }

type deferred[T any] struct {
	fn   func() Strategy[T]
	once sync.Once
	memo Strategy[T]
}

// Deferred resolves its strategy lazily, allowing mutually recursive
// definitions.
func Deferred[T any](fn func() Strategy[T]) Strategy[T] {
	return &deferred[T]{fn: fn}
}

func (d *deferred[T]) resolve() Strategy[T] {
	d.once.Do(func() { d.memo = d.fn() })

	if d.memo == nil {
		panic(errors.New("conjecture: Deferred function returned nil"))
	}

	return d.memo
}

func (d *deferred[T]) Generate(s *Source) T { return d.resolve().Generate(s) }
func (d *deferred[T]) String() string      { return "deferred" }
