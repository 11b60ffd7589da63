package conjecture

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

// rejectSignal is raised by [Assume] and [Reject] inside a property.
type rejectSignal struct {
	reason string
}

// Assume rejects the current trial when cond is false.
//
// Rejected trials are Invalid: they are not bugs, but too many of them abort
// exploration with a health check.
func Assume(cond bool) {
	if !cond {
		panic(rejectSignal{reason: "assumption failed"})
	}
}

// Reject unconditionally rejects the current trial.
func Reject() {
	panic(rejectSignal{reason: "rejected"})
}

// testFunc is the untyped form of a property: generate then check.
type testFunc struct {
	generate func(s *Source) any
	check    func(v any) error
}

// trialRunner executes one trial and classifies its outcome.
type trialRunner struct {
	test           testFunc
	keyFn          KeyFunc
	deadline       time.Duration
	deadlinePolicy DeadlinePolicy
	now            func() time.Time
}

// run executes generation and the property against s. A non-nil error is an
// [InternalError] and must abort the session.
func (r *trialRunner) run(s *Source) (*Example, error) {
	start := r.now()

	value, stop, err := r.generatePhase(s)
	if err != nil {
		return nil, err
	}

	var out Outcome
	if stop != nil {
		out = Outcome{Status: stop.status, Reason: stop.reason}
	} else {
		out = r.checkPhase(value)
	}

	elapsed := r.now().Sub(start)

	if out.Status == StatusPass && r.deadline > 0 && elapsed > r.deadline && r.deadlinePolicy == DeadlineFail {
		f := &Failure{Err: &DeadlineExceededError{Elapsed: elapsed, Deadline: r.deadline}}
		out = Outcome{Status: StatusFail, Reason: f.Error(), Failure: f}
	}

	if out.Status == StatusFail {
		out.Key = r.keyFn(out.Failure)
	}

	ex := &Example{
		Buffer:    NewBuffer(s.data),
		Outcome:   out,
		Allocated: s.Allocated(),
		Elapsed:   elapsed,
		draws:     s.draws,
		spans:     s.spans,
	}
	if stop == nil {
		ex.value = value
	}

	return ex, nil
}

// generatePhase isolates panics raised while drawing: control signals become
// Invalid/Overrun, anything else is an engine-internal error.
func (r *trialRunner) generatePhase(s *Source) (value any, stop *stopTest, err error) {
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}

		switch sig := rec.(type) {
		case stopTest:
			stop = &sig
		case rejectSignal:
			stop = &stopTest{status: StatusInvalid, reason: sig.reason}
		default:
			err = &InternalError{Phase: "generation", Panic: rec, Stack: debug.Stack()}
		}
	}()

	return r.test.generate(s), nil, nil
}

// checkPhase runs the property body. Panics and errors are failures, except
// rejection signals.
func (r *trialRunner) checkPhase(value any) (out Outcome) {
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}

		switch sig := rec.(type) {
		case rejectSignal:
			out = Outcome{Status: StatusInvalid, Reason: sig.reason}
		case stopTest:
			out = Outcome{Status: sig.status, Reason: sig.reason}
		default:
			f := &Failure{Panic: rec, Location: panicLocation(), Stack: debug.Stack()}
			if e, ok := rec.(error); ok {
				f.Err = e
			}

			out = Outcome{Status: StatusFail, Reason: f.Error(), Failure: f}
		}
	}()

	err := r.test.check(value)

	switch {
	case err == nil:
		return Outcome{Status: StatusPass}
	case errors.Is(err, ErrReject):
		return Outcome{Status: StatusInvalid, Reason: err.Error()}
	default:
		f := &Failure{Err: err}
		return Outcome{Status: StatusFail, Reason: err.Error(), Failure: f}
	}
}

// panicLocation returns "file.go:line" of the frame that panicked. Must be
// called from the deferred recover.
func panicLocation() string {
	pcs := make([]uintptr, 64)
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	sawPanic := false

	for {
		frame, more := frames.Next()

		if sawPanic && !strings.HasPrefix(frame.Function, "runtime.") {
			return fmt.Sprintf("%s:%d", filepath.Base(frame.File), frame.Line)
		}

		if frame.Function == "runtime.gopanic" {
			sawPanic = true
		}

		if !more {
			return ""
		}
	}
}
