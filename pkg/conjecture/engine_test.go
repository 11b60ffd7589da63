package conjecture_test

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/conjecture/internal/testutil"
	"github.com/calvinalkan/conjecture/pkg/conjecture"
	"github.com/calvinalkan/conjecture/pkg/conjecture/exampledb"
)

type errTooSmall struct{}

func (errTooSmall) Error() string { return "too small" }

type errTooBig struct{}

func (errTooBig) Error() string { return "too big" }

func testSettings() conjecture.Settings {
	s := conjecture.DefaultSettings()
	s.Seed = 42
	s.Deadline = 0
	s.DeadlinePolicy = conjecture.DeadlineIgnore

	return s
}

func below(limit int64) func(int64) error {
	return func(v int64) error {
		if v >= limit {
			return errTooBig{}
		}

		return nil
	}
}

func boundaryProperty(name string) conjecture.Property[int64] {
	return conjecture.Property[int64]{
		Name:     name,
		Strategy: conjecture.Integers(0, 1_000_000),
		Check:    below(101),
	}
}

func explore[T any](t *testing.T, e *conjecture.Engine, p conjecture.Property[T]) *conjecture.Result {
	t.Helper()

	res, err := conjecture.Explore(context.Background(), e, p)
	require.NoError(t, err)
	require.NotNil(t, res)

	return res
}

func Test_Explore_Finds_And_Shrinks_Boundary_When_Property_Fails(t *testing.T) {
	t.Parallel()

	settings := testSettings()
	settings.PrintBlob = true

	res := explore(t, conjecture.NewEngine(settings), boundaryProperty("boundary"))

	require.Equal(t, conjecture.StatusFailure, res.Status)
	require.Len(t, res.Failures, 1)

	f := res.Failures[0]
	assert.Equal(t, int64(101), f.Value)
	assert.Equal(t, "000065", f.Buffer.Hex())
	assert.Nil(t, f.Flaky)
	assert.ErrorIs(t, res.Err(), errTooBig{})
	assert.Positive(t, res.Stats.ShrinkCandidates)
	assert.Positive(t, res.Stats.ShrinksAccepted)
	assert.NotEmpty(t, res.SessionID)

	out := res.Format()
	assert.Contains(t, out, "falsifying example: 101")
	assert.Contains(t, out, "reproduce with: ReproduceFailure(ctx, engine, prop, \""+conjecture.Version+"\", \""+f.Blob+"\")")
}

func Test_Explore_Accounts_For_Every_Property_Run_When_Failure_Is_Found(t *testing.T) {
	t.Parallel()

	calls := 0
	check := below(101)

	res := explore(t, conjecture.NewEngine(testSettings()), conjecture.Property[int64]{
		Name:     "audited",
		Strategy: conjecture.Integers(0, 1_000_000),
		Check: func(v int64) error {
			calls++
			return check(v)
		},
	})

	require.Equal(t, conjecture.StatusFailure, res.Status)
	assert.Equal(t, 2, res.Stats.Replays, "one replay on discovery, one for the minimized example")
	assert.Equal(t, res.Stats.Trials+res.Stats.ShrinkCandidates+res.Stats.Replays, calls)
	assert.LessOrEqual(t, res.Stats.Trials, testSettings().MaxExamples)
}

func Test_Explore_Omits_Blob_When_PrintBlob_Is_Disabled(t *testing.T) {
	t.Parallel()

	res := explore(t, conjecture.NewEngine(testSettings()), boundaryProperty("no-blob"))

	require.True(t, res.Failed())
	assert.NotEmpty(t, res.Failures[0].Blob)
	assert.NotContains(t, res.Format(), "reproduce with")
}

func Test_Explore_Respects_Example_Budget_When_Property_Holds(t *testing.T) {
	t.Parallel()

	settings := testSettings()
	settings.MaxExamples = 37

	calls := 0
	res := explore(t, conjecture.NewEngine(settings), conjecture.Property[int64]{
		Name:     "holds",
		Strategy: conjecture.Integers(-50, 50),
		Check: func(int64) error {
			calls++
			return nil
		},
	})

	assert.Equal(t, conjecture.StatusNoFailure, res.Status)
	assert.Equal(t, 37, res.Stats.Trials)
	assert.Equal(t, 37, res.Stats.Passed)
	assert.Equal(t, 37, calls)
	assert.Zero(t, res.Stats.ShrinkCandidates)
	assert.NoError(t, res.Err())
}

func Test_Explore_Aborts_With_Health_Check_When_Every_Trial_Is_Rejected(t *testing.T) {
	t.Parallel()

	settings := testSettings()
	settings.MaxExamples = 500

	res := explore(t, conjecture.NewEngine(settings), conjecture.Property[int64]{
		Name:     "always-reject",
		Strategy: conjecture.Integers(0, 10),
		Check:    func(int64) error { return conjecture.ErrReject },
	})

	require.Equal(t, conjecture.StatusHealthCheckAborted, res.Status)
	require.NotNil(t, res.HealthCheck)
	assert.Equal(t, conjecture.HealthCheckTooManyRejections, res.HealthCheck.Check)
	assert.Equal(t, settings.HealthCheck.Window, res.Stats.Trials)
	assert.Zero(t, res.Stats.ShrinkCandidates)
	assert.Empty(t, res.Failures)
	assert.ErrorIs(t, res.Err(), conjecture.ErrHealthCheck)
}

func Test_Explore_Reports_Unsatisfiable_When_Budget_Ends_Before_Window(t *testing.T) {
	t.Parallel()

	settings := testSettings()
	settings.MaxExamples = 20

	res := explore(t, conjecture.NewEngine(settings), conjecture.Property[int64]{
		Name:     "unsatisfiable",
		Strategy: conjecture.Integers(0, 10),
		Check: func(int64) error {
			conjecture.Assume(false)
			return nil
		},
	})

	require.Equal(t, conjecture.StatusHealthCheckAborted, res.Status)
	assert.Equal(t, conjecture.HealthCheckUnsatisfiable, res.HealthCheck.Check)
	assert.Equal(t, 20, res.Stats.Invalid)
}

func Test_Explore_Returns_NoFailure_When_Health_Checks_Are_Suppressed(t *testing.T) {
	t.Parallel()

	settings := testSettings()
	settings.MaxExamples = 80
	settings.HealthCheck.Suppress = []conjecture.HealthCheck{
		conjecture.HealthCheckTooManyRejections,
		conjecture.HealthCheckUnsatisfiable,
	}

	res := explore(t, conjecture.NewEngine(settings), conjecture.Property[int64]{
		Name:     "suppressed",
		Strategy: conjecture.Integers(0, 10),
		Check:    func(int64) error { return conjecture.ErrReject },
	})

	assert.Equal(t, conjecture.StatusNoFailure, res.Status)
	assert.Nil(t, res.HealthCheck)
	assert.Equal(t, 80, res.Stats.Trials)
}

func Test_Explore_Collects_Distinct_Failures_When_CollectAll_Is_Set(t *testing.T) {
	t.Parallel()

	settings := testSettings()
	settings.CollectAllFailures = true
	settings.MaxExamples = 300

	res := explore(t, conjecture.NewEngine(settings), conjecture.Property[int64]{
		Name:     "two-bugs",
		Strategy: conjecture.Integers(-1000, 1000),
		Check: func(v int64) error {
			switch {
			case v < -10:
				return errTooSmall{}
			case v > 10:
				return errTooBig{}
			}

			return nil
		},
	})

	require.Equal(t, conjecture.StatusFailure, res.Status)
	require.Len(t, res.Failures, 2)

	values := make([]int64, 0, len(res.Failures))
	keys := make([]string, 0, len(res.Failures))

	for _, f := range res.Failures {
		values = append(values, f.Value.(int64))
		keys = append(keys, string(f.Key))
	}

	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	sort.Strings(keys)

	if diff := cmp.Diff([]int64{-11, 11}, values); diff != "" {
		t.Fatalf("shrunk values mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]string{"conjecture_test.errTooBig", "conjecture_test.errTooSmall"}, keys); diff != "" {
		t.Fatalf("failure keys mismatch (-want +got):\n%s", diff)
	}

	var merr interface{ WrappedErrors() []error }
	require.ErrorAs(t, res.Err(), &merr)
	assert.Len(t, merr.WrappedErrors(), 2)
}

func Test_Explore_Stops_At_First_Failure_When_CollectAll_Is_Unset(t *testing.T) {
	t.Parallel()

	res := explore(t, conjecture.NewEngine(testSettings()), conjecture.Property[int64]{
		Name:     "first-bug",
		Strategy: conjecture.Integers(-1000, 1000),
		Check: func(v int64) error {
			if v < -10 {
				return errTooSmall{}
			}

			if v > 10 {
				return errTooBig{}
			}

			return nil
		},
	})

	require.Len(t, res.Failures, 1)
	assert.Equal(t, 1, res.Stats.Failed)
}

func Test_Explore_Replays_Stored_Example_When_Database_Has_One(t *testing.T) {
	t.Parallel()

	db := exampledb.NewMemory()
	p := boundaryProperty("cached")

	first := explore(t, conjecture.NewEngine(testSettings(), conjecture.WithDatabase(db)), p)
	require.Equal(t, conjecture.StatusFailure, first.Status)
	require.Equal(t, 1, db.Len())

	stored, found, err := db.Lookup(conjecture.PropertyKey("cached"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, first.Failures[0].Buffer.Bytes(), stored)

	settings := testSettings()
	settings.Phases = conjecture.PhaseReuse | conjecture.PhaseShrink

	second := explore(t, conjecture.NewEngine(settings, conjecture.WithDatabase(db)), p)
	require.Equal(t, conjecture.StatusFailure, second.Status)
	assert.Equal(t, 1, second.Stats.Trials)
	assert.Equal(t, 1, second.Stats.CacheReplays)
	assert.Equal(t, int64(101), second.Failures[0].Value)
	assert.Equal(t, 1, db.Len())
}

func Test_Explore_Discards_Stored_Example_When_It_No_Longer_Fails(t *testing.T) {
	t.Parallel()

	db := exampledb.NewMemory()
	require.NoError(t, db.Store(conjecture.PropertyKey("stale"), []byte{0x00, 0x00, 0x05}))

	settings := testSettings()
	settings.MaxExamples = 10

	res := explore(t, conjecture.NewEngine(settings, conjecture.WithDatabase(db)), conjecture.Property[int64]{
		Name:     "stale",
		Strategy: conjecture.Integers(0, 1_000_000),
		Check:    func(int64) error { return nil },
	})

	assert.Equal(t, conjecture.StatusNoFailure, res.Status)
	assert.Equal(t, 1, res.Stats.CacheReplays)
	assert.Equal(t, 10, res.Stats.Trials)
	assert.Zero(t, db.Len())
}

func Test_Explore_Uses_DatabaseKey_When_Set(t *testing.T) {
	t.Parallel()

	db := exampledb.NewMemory()
	p := boundaryProperty("custom-key")
	p.DatabaseKey = []byte("my-key")

	explore(t, conjecture.NewEngine(testSettings(), conjecture.WithDatabase(db)), p)

	_, found, err := db.Lookup([]byte("my-key"))
	require.NoError(t, err)
	assert.True(t, found)
}

func Test_Explore_Reports_Flaky_When_Failure_Does_Not_Replay(t *testing.T) {
	t.Parallel()

	db := exampledb.NewMemory()
	var calls atomic.Int64

	res := explore(t, conjecture.NewEngine(testSettings(), conjecture.WithDatabase(db)), conjecture.Property[int64]{
		Name:     "flaky",
		Strategy: conjecture.Integers(0, 100),
		Check: func(int64) error {
			if calls.Add(1) == 1 {
				return errTooBig{}
			}

			return nil
		},
	})

	require.Equal(t, conjecture.StatusFlaky, res.Status)
	require.Len(t, res.Failures, 1)
	require.NotNil(t, res.Failures[0].Flaky)
	assert.ErrorIs(t, res.Err(), conjecture.ErrFlaky)
	assert.Zero(t, res.Stats.ShrinkCandidates)
	assert.Equal(t, 1, res.Stats.Replays)
	assert.Zero(t, db.Len(), "flaky failures must not be stored")
}

func Test_Explore_Aborts_With_TooSlow_When_Trials_Become_Slow(t *testing.T) {
	t.Parallel()

	clock := testutil.NewClock(time.Millisecond)
	calls := 0

	res := explore(t, conjecture.NewEngine(testSettings(), conjecture.WithClock(clock.Now)), conjecture.Property[int64]{
		Name:     "slow",
		Strategy: conjecture.Integers(0, 100),
		Check: func(int64) error {
			calls++
			if calls > 20 {
				clock.Advance(time.Second)
			}

			return nil
		},
	})

	require.Equal(t, conjecture.StatusHealthCheckAborted, res.Status)
	assert.Equal(t, conjecture.HealthCheckTooSlow, res.HealthCheck.Check)
	assert.Equal(t, 26, res.Stats.Trials)
	assert.Equal(t, 6, res.Stats.SlowTrials)
}

func Test_Explore_Warns_Once_When_Trials_Exceed_Deadline(t *testing.T) {
	t.Parallel()

	clock := testutil.NewClock(time.Millisecond)

	settings := testSettings()
	settings.MaxExamples = 30
	settings.Deadline = 200 * time.Millisecond
	settings.DeadlinePolicy = conjecture.DeadlineWarn
	settings.HealthCheck.Suppress = []conjecture.HealthCheck{conjecture.HealthCheckTooSlow}

	res := explore(t, conjecture.NewEngine(settings, conjecture.WithClock(clock.Now)), conjecture.Property[int64]{
		Name:     "deadline-warn",
		Strategy: conjecture.Integers(0, 100),
		Check: func(v int64) error {
			if v%2 == 0 {
				clock.Advance(300 * time.Millisecond)
			}

			return nil
		},
	})

	assert.Equal(t, conjecture.StatusNoFailure, res.Status)

	if diff := cmp.Diff([]string{"trials exceeded the 200ms deadline"}, res.Warnings); diff != "" {
		t.Fatalf("warnings mismatch (-want +got):\n%s", diff)
	}
}

func Test_Explore_Fails_Slow_Trials_When_Deadline_Policy_Is_Fail(t *testing.T) {
	t.Parallel()

	clock := testutil.NewClock(time.Millisecond)

	settings := testSettings()
	settings.Deadline = 500 * time.Millisecond
	settings.DeadlinePolicy = conjecture.DeadlineFail
	settings.HealthCheck.Suppress = []conjecture.HealthCheck{conjecture.HealthCheckTooSlow}

	res := explore(t, conjecture.NewEngine(settings, conjecture.WithClock(clock.Now)), conjecture.Property[int64]{
		Name:     "deadline-fail",
		Strategy: conjecture.Integers(0, 100),
		Check: func(v int64) error {
			if v >= 50 {
				clock.Advance(time.Second)
			}

			return nil
		},
	})

	require.Equal(t, conjecture.StatusFailure, res.Status)
	assert.Equal(t, int64(50), res.Failures[0].Value)
	assert.ErrorIs(t, res.Failures[0].Failure, conjecture.ErrDeadlineExceeded)
}

// slowOrTooBig fails values above 100 with a returned error and makes values
// up to 10 slow without failing.
func slowOrTooBig(clock *testutil.Clock) func(int64) error {
	return func(v int64) error {
		if v > 100 {
			return errors.New("too big")
		}

		if v <= 10 {
			clock.Advance(time.Second)
		}

		return nil
	}
}

func deadlineFailSettings() conjecture.Settings {
	settings := testSettings()
	settings.Deadline = 500 * time.Millisecond
	settings.DeadlinePolicy = conjecture.DeadlineFail
	settings.HealthCheck.Suppress = []conjecture.HealthCheck{conjecture.HealthCheckTooSlow}

	return settings
}

func Test_Explore_Keeps_Failure_Kind_When_Shrinking_Under_Deadline_Fail(t *testing.T) {
	t.Parallel()

	clock := testutil.NewClock(time.Millisecond)

	res := explore(t, conjecture.NewEngine(deadlineFailSettings(), conjecture.WithClock(clock.Now)), conjecture.Property[int64]{
		Name:     "slow-or-too-big",
		Strategy: conjecture.Integers(0, 1_000_000),
		Check:    slowOrTooBig(clock),
	})

	require.Equal(t, conjecture.StatusFailure, res.Status)
	require.Len(t, res.Failures, 1)

	f := res.Failures[0]
	assert.Equal(t,
		errors.Is(f.Original, conjecture.ErrDeadlineExceeded),
		errors.Is(f.Failure, conjecture.ErrDeadlineExceeded),
		"shrinking changed the kind of failure: original %v, shrunk %v", f.Original, f.Failure)

	if errors.Is(f.Failure, conjecture.ErrDeadlineExceeded) {
		assert.Equal(t, int64(0), f.Value)
	} else {
		assert.Equal(t, int64(101), f.Value)
		assert.EqualError(t, f.Failure, "too big")
	}
}

func Test_Explore_Collects_Deadline_And_Returned_Error_When_CollectAll_Is_Set(t *testing.T) {
	t.Parallel()

	clock := testutil.NewClock(time.Millisecond)

	settings := deadlineFailSettings()
	settings.CollectAllFailures = true

	res := explore(t, conjecture.NewEngine(settings, conjecture.WithClock(clock.Now)), conjecture.Property[int64]{
		Name:     "slow-and-too-big",
		Strategy: conjecture.Integers(0, 1_000_000),
		Check:    slowOrTooBig(clock),
	})

	require.Equal(t, conjecture.StatusFailure, res.Status)

	got := map[string]int64{}
	for _, f := range res.Failures {
		got[string(f.Key)] = f.Value.(int64)
	}

	want := map[string]int64{
		"key:deadline_exceeded": 0,
		"*errors.errorString":   101,
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("failures by key mismatch (-want +got):\n%s", diff)
	}
}

func Test_Explore_Returns_Interrupted_Result_When_Context_Is_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := conjecture.Explore(ctx, conjecture.NewEngine(testSettings()), boundaryProperty("cancelled"))
	require.NoError(t, err)

	assert.True(t, res.Interrupted)
	assert.Zero(t, res.Stats.Trials)
	assert.Equal(t, conjecture.StatusNoFailure, res.Status)
}

func Test_Explore_Returns_InternalError_When_Strategy_Panics(t *testing.T) {
	t.Parallel()

	res, err := conjecture.Explore(context.Background(), conjecture.NewEngine(testSettings()), conjecture.Property[int]{
		Name:     "broken-strategy",
		Strategy: conjecture.Custom("broken", func(*conjecture.Source) int { panic("bug in strategy") }),
		Check:    func(int) error { return nil },
	})

	require.ErrorIs(t, err, conjecture.ErrInternal)
	assert.NotNil(t, res)
}

func Test_Explore_Returns_ErrInvalidArgument_When_Inputs_Are_Invalid(t *testing.T) {
	t.Parallel()

	bad := testSettings()
	bad.MaxExamples = 0

	tests := []struct {
		name     string
		settings conjecture.Settings
		prop     conjecture.Property[int64]
	}{
		{name: "zero max examples", settings: bad, prop: boundaryProperty("x")},
		{name: "empty name", settings: testSettings(), prop: conjecture.Property[int64]{Strategy: conjecture.Integers(0, 1), Check: below(1)}},
		{name: "nil strategy", settings: testSettings(), prop: conjecture.Property[int64]{Name: "x", Check: below(1)}},
		{name: "nil check", settings: testSettings(), prop: conjecture.Property[int64]{Name: "x", Strategy: conjecture.Integers(0, 1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := conjecture.Explore(context.Background(), conjecture.NewEngine(tt.settings), tt.prop)
			if !errors.Is(err, conjecture.ErrInvalidArgument) {
				t.Fatalf("Explore() error = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func Test_Explore_Is_Deterministic_When_Seed_Is_Fixed(t *testing.T) {
	t.Parallel()

	var seen [2][]int64

	for i := range seen {
		settings := testSettings()
		settings.MaxExamples = 25

		explore(t, conjecture.NewEngine(settings), conjecture.Property[int64]{
			Name:     "deterministic",
			Strategy: conjecture.Integers(-1000, 1000),
			Check: func(v int64) error {
				seen[i] = append(seen[i], v)
				return nil
			},
		})
	}

	if diff := cmp.Diff(seen[0], seen[1]); diff != "" {
		t.Fatalf("runs with the same seed differ (-first +second):\n%s", diff)
	}
}

func Test_ExploreAll_Returns_Results_In_Argument_Order(t *testing.T) {
	t.Parallel()

	e := conjecture.NewEngine(testSettings())

	holds := conjecture.Property[[]int64]{
		Name:     "holds",
		Strategy: conjecture.Lists(conjecture.Integers(0, 10), 0, 5),
		Check:    func([]int64) error { return nil },
	}

	results, err := conjecture.ExploreAll(context.Background(), e, 2,
		boundaryProperty("fails"), holds, boundaryProperty("fails-too"))
	require.NoError(t, err)
	require.Len(t, results, 3)

	names := []string{results[0].Property, results[1].Property, results[2].Property}
	if diff := cmp.Diff([]string{"fails", "holds", "fails-too"}, names); diff != "" {
		t.Fatalf("result order mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, conjecture.StatusFailure, results[0].Status)
	assert.Equal(t, conjecture.StatusNoFailure, results[1].Status)
	assert.Equal(t, conjecture.StatusFailure, results[2].Status)
}

func Test_ExploreAll_Returns_First_Error_When_A_Property_Is_Invalid(t *testing.T) {
	t.Parallel()

	_, err := conjecture.ExploreAll(context.Background(), conjecture.NewEngine(testSettings()), 0,
		boundaryProperty("ok"), conjecture.Property[int64]{Name: "no-check", Strategy: conjecture.Integers(0, 1)})
	require.ErrorIs(t, err, conjecture.ErrInvalidArgument)
}

func Test_Metrics_Count_Trials_And_Sessions(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m, err := conjecture.NewMetrics(reg)
	require.NoError(t, err)

	settings := testSettings()
	settings.MaxExamples = 10

	e := conjecture.NewEngine(settings, conjecture.WithMetrics(m))
	explore(t, e, conjecture.Property[int64]{
		Name:     "metrics",
		Strategy: conjecture.Integers(0, 10),
		Check:    func(int64) error { return nil },
	})
	explore(t, e, boundaryProperty("metrics-fail"))

	families, err := reg.Gather()
	require.NoError(t, err)

	got := map[string]float64{}

	for _, fam := range families {
		for _, metric := range fam.GetMetric() {
			labels := make([]string, 0, len(metric.GetLabel()))
			for _, lp := range metric.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}

			id := fam.GetName() + "{" + strings.Join(labels, ",") + "}"

			switch {
			case metric.GetCounter() != nil:
				got[id] = metric.GetCounter().GetValue()
			case metric.GetHistogram() != nil:
				got[id] = float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}

	assert.Equal(t, 10.0, got["conjecture_trials_total{property=metrics,status=pass}"])
	assert.Equal(t, 1.0, got["conjecture_session_duration_seconds{status=no_failure}"])
	assert.Equal(t, 1.0, got["conjecture_session_duration_seconds{status=failure}"])
	assert.Positive(t, got["conjecture_shrink_candidates_total{property=metrics-fail}"])
	assert.Positive(t, got["conjecture_shrinks_accepted_total{property=metrics-fail}"])
	assert.Equal(t, 2.0, got["conjecture_replays_total{property=metrics-fail}"])

	_, err = conjecture.NewMetrics(reg)
	require.Error(t, err, "registering twice must fail")
}
