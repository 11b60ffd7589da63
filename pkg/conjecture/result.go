package conjecture

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
)

// ResultStatus is the overall outcome of an exploration session.
type ResultStatus uint8

const (
	// StatusNoFailure means the budget was exhausted without a failure.
	StatusNoFailure ResultStatus = iota
	// StatusFailure means at least one reproducible failure was found.
	StatusFailure
	// StatusHealthCheckAborted means generation stopped on a health check
	// before any failure was found.
	StatusHealthCheckAborted
	// StatusFlaky means failures were found but none replayed reliably.
	StatusFlaky
)

func (s ResultStatus) String() string {
	switch s {
	case StatusNoFailure:
		return "no_failure"
	case StatusFailure:
		return "failure"
	case StatusHealthCheckAborted:
		return "health_check_aborted"
	case StatusFlaky:
		return "flaky"
	default:
		return fmt.Sprintf("result_status(%d)", uint8(s))
	}
}

// Stats are the counters of one session.
type Stats struct {
	// Trials counts generation trials, database replays included, but not
	// shrink candidates or verification replays.
	Trials  int
	Passed  int
	Invalid int
	Overrun int
	Failed  int

	CacheReplays     int
	// Replays counts verification replays of found failures: one when a
	// failure is first seen and one for each minimized example reported.
	Replays          int
	ShrinkCandidates int
	ShrinksAccepted  int
	SlowTrials       int

	Elapsed      time.Duration
	GenerateTime time.Duration
	ShrinkTime   time.Duration
}

// FailureReport describes one distinct failure.
type FailureReport struct {
	Key FailureKey
	// Value is the minimized generated value.
	Value  any
	Buffer Buffer
	// Failure is the diagnostic of the minimized value.
	Failure *Failure
	// Original is the diagnostic of the failure as first found.
	Original       *Failure
	OriginalBuffer Buffer
	// Blob replays Buffer through [ReproduceFailure].
	Blob        string
	ShrinkSteps int
	// Flaky is set when the failure did not replay reliably.
	Flaky *FlakyError
}

// Error returns the failure as an error.
func (r *FailureReport) Error() string {
	if r.Flaky != nil {
		return r.Flaky.Error()
	}

	return fmt.Sprintf("falsifying example %v: %v", r.Value, r.Failure)
}

func (r *FailureReport) Unwrap() error {
	if r.Flaky != nil {
		return r.Flaky
	}

	return r.Failure
}

// Result is the outcome of an exploration session.
type Result struct {
	SessionID string
	Property  string
	Seed      int64
	Status    ResultStatus

	Failures    []*FailureReport
	HealthCheck *HealthCheckError
	Warnings    []string
	Stats       Stats

	// Interrupted is set when the context was cancelled before the session
	// completed. Failures hold the best examples found up to that point.
	Interrupted bool

	printBlob bool
}

// Failed reports whether the session found a failure, flaky or not.
func (r *Result) Failed() bool {
	return r.Status == StatusFailure || r.Status == StatusFlaky
}

// Err aggregates the failures and the health check into one error, nil when
// the property held.
func (r *Result) Err() error {
	var err error

	for _, f := range r.Failures {
		err = multierror.Append(err, fmt.Errorf("%s: %w", r.Property, f))
	}

	if r.HealthCheck != nil {
		err = multierror.Append(err, fmt.Errorf("%s: %w", r.Property, r.HealthCheck))
	}

	return err
}

// Format renders a human-readable report, including reproduction blobs when
// enabled by [Settings.PrintBlob].
func (r *Result) Format() string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s: %s after %d trials (%d invalid, %d overrun), %d shrink candidates in %s\n",
		r.Property, r.Status, r.Stats.Trials, r.Stats.Invalid, r.Stats.Overrun,
		r.Stats.ShrinkCandidates, r.Stats.Elapsed.Round(time.Millisecond))

	for i, f := range r.Failures {
		fmt.Fprintf(&b, "\nfailure %d/%d [%s]\n", i+1, len(r.Failures), f.Key)

		if f.Flaky != nil {
			fmt.Fprintf(&b, "  %v\n", f.Flaky)
		}

		fmt.Fprintf(&b, "  falsifying example: %#v\n", f.Value)

		if f.Failure != nil {
			fmt.Fprintf(&b, "  error: %v\n", f.Failure)
		}

		if f.ShrinkSteps > 0 && f.Original != nil {
			fmt.Fprintf(&b, "  shrunk in %d steps from: %v\n", f.ShrinkSteps, f.Original)
		}

		if r.printBlob && f.Blob != "" && len(f.Blob) <= maxPrintedBlob {
			fmt.Fprintf(&b, "  reproduce with: ReproduceFailure(ctx, engine, prop, %q, %q)\n", Version, f.Blob)
		}
	}

	if r.HealthCheck != nil {
		fmt.Fprintf(&b, "\n%v\n", r.HealthCheck)
	}

	for _, w := range r.Warnings {
		fmt.Fprintf(&b, "warning: %s\n", w)
	}

	return b.String()
}
