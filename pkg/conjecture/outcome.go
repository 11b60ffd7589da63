package conjecture

import (
	"errors"
	"fmt"
	"reflect"
	"time"
)

// Status is the outcome class of one trial.
//
// Statuses are ordered: Overrun < Invalid < Pass < Fail.
type Status uint8

const (
	StatusOverrun Status = iota
	StatusInvalid
	StatusPass
	StatusFail
)

func (s Status) String() string {
	switch s {
	case StatusOverrun:
		return "overrun"
	case StatusInvalid:
		return "invalid"
	case StatusPass:
		return "pass"
	case StatusFail:
		return "fail"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// FailureKey identifies "the same bug" across different failing inputs.
type FailureKey string

// KeyFunc derives the failure key used for deduplication and for deciding
// whether a shrink candidate still fails the same way.
type KeyFunc func(f *Failure) FailureKey

// Keyer is implemented by errors (or panic values) that name their own
// failure key.
type Keyer interface {
	FailureKey() string
}

// Failure captures how a property failed.
type Failure struct {
	// Err is the returned error, or the panic value when it was an error.
	Err error
	// Panic is the recovered panic value, nil when the property returned Err.
	Panic any
	// Location is "file.go:line" of the panicking frame, empty for returned
	// errors.
	Location string
	// Stack is the goroutine stack at the time of the panic.
	Stack []byte
}

func (f *Failure) Error() string {
	if f.Panic != nil {
		if f.Location != "" {
			return fmt.Sprintf("panic at %s: %v", f.Location, f.Panic)
		}

		return fmt.Sprintf("panic: %v", f.Panic)
	}

	return f.Err.Error()
}

func (f *Failure) Unwrap() error { return f.Err }

// DefaultFailureKey keys a failure by the type of its root cause plus the
// panic location. Errors implementing [Keyer] use their own key.
//
// A wrapped root created by errors.New is a sentinel, so its message is part
// of the key: fmt.Errorf("%w: %d", ErrTooBig, v) and
// fmt.Errorf("%w: %d", ErrTooSmall, v) are different bugs. Unwrapped errors
// are keyed by type only, since their messages usually carry values.
func DefaultFailureKey(f *Failure) FailureKey {
	if k, ok := explicitKey(f); ok {
		return FailureKey("key:" + k)
	}

	typ := rootTypeName(f)
	if msg, ok := sentinelMessage(f.Err); ok {
		typ += ": " + msg
	}
	if f.Location != "" {
		return FailureKey(typ + "@" + f.Location)
	}

	return FailureKey(typ)
}

// KeyByMessage keys a failure by root type and root error message. Use it
// when sentinel errors distinguish bugs and messages carry no values.
func KeyByMessage(f *Failure) FailureKey {
	if k, ok := explicitKey(f); ok {
		return FailureKey("key:" + k)
	}

	msg := fmt.Sprint(f.Panic)
	if root := rootError(f.Err); root != nil {
		msg = root.Error()
	}

	return FailureKey(rootTypeName(f) + ": " + msg)
}

func explicitKey(f *Failure) (string, bool) {
	var k Keyer
	if f.Err != nil && errors.As(f.Err, &k) {
		return k.FailureKey(), true
	}

	if k, ok := f.Panic.(Keyer); ok {
		return k.FailureKey(), true
	}

	return "", false
}

func rootTypeName(f *Failure) string {
	if root := rootError(f.Err); root != nil {
		return reflect.TypeOf(root).String()
	}

	if f.Panic == nil {
		return "<nil>"
	}

	return reflect.TypeOf(f.Panic).String()
}

var errorStringType = reflect.TypeOf(errors.New(""))

func sentinelMessage(err error) (string, bool) {
	if err == nil {
		return "", false
	}

	root := errors.Unwrap(err)
	if root == nil {
		return "", false
	}

	root = rootError(root)
	if reflect.TypeOf(root) != errorStringType {
		return "", false
	}

	return root.Error(), true
}

func rootError(err error) error {
	for err != nil {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}

		err = next
	}

	return nil
}

// Outcome is the classified result of one trial.
type Outcome struct {
	Status  Status
	Reason  string
	Key     FailureKey
	Failure *Failure
}

// Example is one executed trial: the consumed buffer, its outcome and derived
// statistics. Examples are immutable once produced.
type Example struct {
	Buffer    Buffer
	Outcome   Outcome
	Allocated int
	Elapsed   time.Duration

	value any
	draws []DrawRecord
	spans []Span
	slow  bool
}

// Draws returns the number of recorded draws.
func (e *Example) Draws() int { return len(e.draws) }

// Value returns the generated value, nil if generation did not complete.
func (e *Example) Value() any { return e.value }
