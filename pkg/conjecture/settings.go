package conjecture

import (
	"fmt"
	"strings"
	"time"
)

// Version is the engine version embedded in reproduction instructions.
// Blobs are only replayed by the same version.
const Version = "0.4.0"

// DeadlinePolicy selects what happens when a trial exceeds [Settings.Deadline].
type DeadlinePolicy uint8

const (
	// DeadlineIgnore disables the per-trial deadline.
	DeadlineIgnore DeadlinePolicy = iota
	// DeadlineWarn records a warning for slow trials.
	DeadlineWarn
	// DeadlineFail treats an otherwise passing slow trial as a failure.
	DeadlineFail
)

var deadlinePolicyNames = map[DeadlinePolicy]string{
	DeadlineIgnore: "ignore",
	DeadlineWarn:   "warn",
	DeadlineFail:   "fail",
}

func (p DeadlinePolicy) String() string {
	if name, ok := deadlinePolicyNames[p]; ok {
		return name
	}

	return fmt.Sprintf("deadline_policy(%d)", uint8(p))
}

// ParseDeadlinePolicy parses "ignore", "warn" or "fail".
func ParseDeadlinePolicy(s string) (DeadlinePolicy, error) {
	for p, name := range deadlinePolicyNames {
		if strings.EqualFold(s, name) {
			return p, nil
		}
	}

	return 0, fmt.Errorf("%w: unknown deadline policy %q", ErrInvalidArgument, s)
}

// Phases is a set of session phases.
type Phases uint8

const (
	// PhaseReuse replays the example stored in the database first.
	PhaseReuse Phases = 1 << iota
	// PhaseGenerate explores fresh random buffers.
	PhaseGenerate
	// PhaseShrink minimizes failing buffers.
	PhaseShrink

	AllPhases = PhaseReuse | PhaseGenerate | PhaseShrink
)

var phaseNames = []struct {
	phase Phases
	name  string
}{
	{PhaseReuse, "reuse"},
	{PhaseGenerate, "generate"},
	{PhaseShrink, "shrink"},
}

// Has reports whether p contains all phases in q.
func (p Phases) Has(q Phases) bool { return p&q == q }

func (p Phases) String() string {
	var names []string

	for _, pn := range phaseNames {
		if p.Has(pn.phase) {
			names = append(names, pn.name)
		}
	}

	return strings.Join(names, ",")
}

// ParsePhases parses phase names.
func ParsePhases(names []string) (Phases, error) {
	var p Phases

	for _, n := range names {
		found := false

		for _, pn := range phaseNames {
			if strings.EqualFold(strings.TrimSpace(n), pn.name) {
				p |= pn.phase
				found = true
			}
		}

		if !found {
			return 0, fmt.Errorf("%w: unknown phase %q", ErrInvalidArgument, n)
		}
	}

	return p, nil
}

// HealthCheckSettings tunes the health checks run during generation.
type HealthCheckSettings struct {
	// Window is the number of most recent trials the rejection ratio is
	// computed over.
	Window int
	// MaxInvalidRatio aborts generation once the Invalid/Overrun share of a
	// full window exceeds it.
	MaxInvalidRatio float64
	// SlowFactor flags a trial slower than SlowFactor times the median.
	SlowFactor float64
	// MinSlowDuration is the minimum wall time for a trial to count as slow.
	MinSlowDuration time.Duration
	// MinTimingSamples trials are timed before slowness is judged.
	MinTimingSamples int
	// MaxSlowTrials aborts generation once exceeded.
	MaxSlowTrials int
	// Suppress disables individual health checks.
	Suppress []HealthCheck
}

func (h HealthCheckSettings) suppressed(c HealthCheck) bool {
	for _, s := range h.Suppress {
		if s == c {
			return true
		}
	}

	return false
}

// Settings configures an exploration session.
type Settings struct {
	// MaxExamples bounds the number of generation trials, database replays
	// included.
	MaxExamples int
	// MaxShrinks bounds the number of shrink candidates evaluated per failure.
	MaxShrinks int
	// MaxShrinkTime bounds shrinking wall time per failure, zero for no limit.
	MaxShrinkTime time.Duration
	// MaxSize is the per-trial byte cap.
	MaxSize int

	Deadline       time.Duration
	DeadlinePolicy DeadlinePolicy

	// CollectAllFailures keeps generating after the first failure to find
	// failures with other keys, up to MaxDistinctFailures.
	CollectAllFailures  bool
	MaxDistinctFailures int

	// Seed fixes the random generator; zero picks a fresh seed unless
	// Derandomize is set, in which case the seed derives from the property
	// name.
	Seed        int64
	Derandomize bool

	Phases Phases

	// PrintBlob includes the reproduction blob in failure reports.
	PrintBlob bool

	HealthCheck HealthCheckSettings

	// FailureKey decides failure equivalence. Nil means [DefaultFailureKey].
	FailureKey KeyFunc
}

// DefaultSettings returns the default settings.
func DefaultSettings() Settings {
	return Settings{
		MaxExamples:         100,
		MaxShrinks:          5000,
		MaxSize:             DefaultMaxSize,
		Deadline:            200 * time.Millisecond,
		DeadlinePolicy:      DeadlineWarn,
		MaxDistinctFailures: 10,
		Phases:              AllPhases,
		HealthCheck: HealthCheckSettings{
			Window:           50,
			MaxInvalidRatio:  0.9,
			SlowFactor:       10,
			MinSlowDuration:  100 * time.Millisecond,
			MinTimingSamples: 10,
			MaxSlowTrials:    5,
		},
	}
}

// Validate reports settings that cannot drive a session.
func (s Settings) Validate() error {
	switch {
	case s.MaxExamples < 1:
		return fmt.Errorf("%w: max examples must be positive, got %d", ErrInvalidArgument, s.MaxExamples)
	case s.MaxShrinks < 0:
		return fmt.Errorf("%w: max shrinks must not be negative, got %d", ErrInvalidArgument, s.MaxShrinks)
	case s.MaxSize < 1:
		return fmt.Errorf("%w: max size must be positive, got %d", ErrInvalidArgument, s.MaxSize)
	case s.MaxShrinkTime < 0 || s.Deadline < 0:
		return fmt.Errorf("%w: durations must not be negative", ErrInvalidArgument)
	case s.CollectAllFailures && s.MaxDistinctFailures < 1:
		return fmt.Errorf("%w: max distinct failures must be positive, got %d", ErrInvalidArgument, s.MaxDistinctFailures)
	case s.HealthCheck.Window < 1:
		return fmt.Errorf("%w: health check window must be positive", ErrInvalidArgument)
	case s.HealthCheck.MaxInvalidRatio < 0 || s.HealthCheck.MaxInvalidRatio > 1:
		return fmt.Errorf("%w: max invalid ratio must be in [0, 1]", ErrInvalidArgument)
	}

	return nil
}

func (s Settings) keyFunc() KeyFunc {
	if s.FailureKey != nil {
		return s.FailureKey
	}

	return DefaultFailureKey
}

func (s Settings) distinctLimit() int {
	if s.CollectAllFailures {
		return s.MaxDistinctFailures
	}

	return 1
}
