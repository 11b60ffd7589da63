package conjecture

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors returned by conjecture operations.
//
// Callers should use [errors.Is] to check error types:
//
//	if errors.Is(err, conjecture.ErrHealthCheck) {
//	    // the strategy or filters need attention, not the code under test
//	}
var (
	// ErrReject marks a trial as Invalid when returned by a property.
	//
	// It is the error form of [Reject] and [Assume]. Rejected trials are never
	// reported as failures but count towards the rejection health check.
	ErrReject = errors.New("conjecture: rejected")

	// ErrInvalidArgument indicates invalid settings, strategies or blobs.
	//
	// This is a programming error.
	ErrInvalidArgument = errors.New("conjecture: invalid argument")

	// ErrDidNotReproduce indicates a replayed buffer no longer fails.
	//
	// Returned by [ReproduceFailure] when the buffer passes, is rejected, or no
	// longer fits the shape of the strategy.
	ErrDidNotReproduce = errors.New("conjecture: did not reproduce")

	// ErrInternal indicates a bug in strategy or engine plumbing.
	//
	// The session is aborted immediately and never retried.
	ErrInternal = errors.New("conjecture: internal engine error")

	// ErrHealthCheck indicates exploration was aborted by a health check.
	ErrHealthCheck = errors.New("conjecture: health check failed")

	// ErrFlaky indicates a failing buffer did not fail again when replayed.
	ErrFlaky = errors.New("conjecture: flaky")

	// ErrOverrun indicates a buffer ran out of bytes or hit the size cap.
	ErrOverrun = errors.New("conjecture: overrun")

	// ErrInvalid indicates generation rejected the buffer (filter exhaustion,
	// explicit rejection).
	ErrInvalid = errors.New("conjecture: invalid")

	// ErrDeadlineExceeded indicates a trial ran longer than the deadline.
	ErrDeadlineExceeded = errors.New("conjecture: deadline exceeded")
)

// InternalError describes an unexpected panic in generation or engine code.
type InternalError struct {
	Phase string
	Panic any
	Stack []byte
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("%v during %s: %v", ErrInternal, e.Phase, e.Panic)
}

func (e *InternalError) Unwrap() error { return ErrInternal }

// HealthCheck names a health check.
type HealthCheck string

// Health checks run during generation.
const (
	HealthCheckTooManyRejections HealthCheck = "too_many_rejections"
	HealthCheckTooSlow           HealthCheck = "too_slow"
	HealthCheckUnsatisfiable     HealthCheck = "unsatisfiable"
)

// HealthCheckError reports a pathological example distribution.
type HealthCheckError struct {
	Check   HealthCheck
	Message string
}

func (e *HealthCheckError) Error() string {
	return fmt.Sprintf("%v (%s): %s", ErrHealthCheck, e.Check, e.Message)
}

func (e *HealthCheckError) Unwrap() error { return ErrHealthCheck }

// FlakyError reports a failure that did not reproduce on replay.
type FlakyError struct {
	Key    FailureKey
	Reason string
}

func (e *FlakyError) Error() string {
	return fmt.Sprintf("%v: failure %q %s", ErrFlaky, e.Key, e.Reason)
}

func (e *FlakyError) Unwrap() error { return ErrFlaky }

// DeadlineExceededError is the failure recorded for a trial that exceeded
// [Settings.Deadline] under [DeadlineFail].
type DeadlineExceededError struct {
	Elapsed  time.Duration
	Deadline time.Duration
}

func (e *DeadlineExceededError) Error() string {
	return fmt.Sprintf("%v: trial took %s, deadline is %s", ErrDeadlineExceeded, e.Elapsed, e.Deadline)
}

func (e *DeadlineExceededError) Unwrap() error { return ErrDeadlineExceeded }

// FailureKey keeps slow trials apart from failures the property reports
// itself, whatever the elapsed time.
func (e *DeadlineExceededError) FailureKey() string { return "deadline_exceeded" }
