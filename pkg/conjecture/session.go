package conjecture

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type sessionState uint8

const (
	stateGenerating sessionState = iota
	stateShrinking
	stateReporting
	stateDone
)

func (s sessionState) String() string {
	switch s {
	case stateGenerating:
		return "generating"
	case stateShrinking:
		return "shrinking"
	case stateReporting:
		return "reporting"
	default:
		return "done"
	}
}

// tracked is one distinct failure key of a session.
type tracked struct {
	original *Example
	best     *Example
	flaky    *FlakyError
	shrunk   bool
	steps    int
}

// session is one sequential exploration of a property.
type session struct {
	settings Settings
	db       Database
	metrics  *Metrics
	now      func() time.Time
	log      logrus.FieldLogger

	name   string
	key    []byte
	runner *trialRunner
	rng    *rand.Rand
	health *healthMonitor

	state    sessionState
	failures map[FailureKey]*tracked
	order    []FailureKey
	warned   mapset.Set[string]
	result   *Result
	err      error
}

func newSession(e *Engine, name string, key []byte, test testFunc) *session {
	id := uuid.NewString()
	seed := e.seedFor(name)

	return &session{
		settings: e.settings,
		db:       e.db,
		metrics:  e.metrics,
		now:      e.now,
		log:      e.log.WithFields(logrus.Fields{"session": id, "property": name}),
		name:     name,
		key:      key,
		runner: &trialRunner{
			test:           test,
			keyFn:          e.settings.keyFunc(),
			deadline:       e.settings.Deadline,
			deadlinePolicy: e.settings.DeadlinePolicy,
			now:            e.now,
		},
		rng:      rand.New(rand.NewSource(seed)),
		health:   newHealthMonitor(e.settings.HealthCheck),
		failures: make(map[FailureKey]*tracked),
		warned:   mapset.NewThreadUnsafeSet[string](),
		result: &Result{
			SessionID: id,
			Property:  name,
			Seed:      seed,
			printBlob: e.settings.PrintBlob,
		},
	}
}

func (s *session) enter(state sessionState) {
	s.state = state
	s.log.WithField("phase", state.String()).Debug("entering phase")
}

func (s *session) run(ctx context.Context) (*Result, error) {
	start := s.now()

	defer func() {
		s.result.Stats.Elapsed = s.now().Sub(start)
		s.metrics.session(s.result.Status, s.result.Stats.Elapsed)
	}()

	s.enter(stateGenerating)

	genStart := s.now()

	if err := s.reuse(); err != nil {
		return s.result, err
	}

	if s.settings.Phases.Has(PhaseGenerate) {
		if err := s.generate(ctx); err != nil {
			return s.result, err
		}
	}

	s.result.Stats.GenerateTime = s.now().Sub(genStart)

	if s.result.HealthCheck != nil && len(s.order) == 0 {
		s.result.Status = StatusHealthCheckAborted
		s.log.WithField("check", s.result.HealthCheck.Check).Warn(s.result.HealthCheck.Message)
		s.enter(stateDone)

		return s.result, nil
	}

	if s.result.HealthCheck != nil {
		s.warn(s.result.HealthCheck.Error())
		s.result.HealthCheck = nil
	}

	if s.settings.Phases.Has(PhaseShrink) && len(s.order) > 0 {
		s.enter(stateShrinking)

		if err := s.shrinkAll(ctx); err != nil {
			return s.result, err
		}
	}

	s.enter(stateReporting)

	if err := s.report(); err != nil {
		return s.result, err
	}

	s.enter(stateDone)

	s.log.WithFields(logrus.Fields{
		"status":   s.result.Status.String(),
		"trials":   s.result.Stats.Trials,
		"failures": len(s.result.Failures),
	}).Info("exploration finished")

	return s.result, nil
}

// execute runs one trial over prefix, extending it with random bytes when
// fresh is set.
func (s *session) execute(prefix []byte, fresh bool) (*Example, error) {
	var rng *rand.Rand
	if fresh {
		rng = s.rng
	}

	return s.runner.run(newSource(prefix, rng, s.settings.MaxSize))
}

// replay re-runs a failing buffer to check that it fails the same way.
func (s *session) replay(buf []byte) (*Example, error) {
	s.result.Stats.Replays++
	s.metrics.replay(s.name)

	return s.execute(buf, false)
}

func (s *session) count(ex *Example) {
	st := &s.result.Stats
	st.Trials++

	switch ex.Outcome.Status {
	case StatusPass:
		st.Passed++
	case StatusFail:
		st.Failed++
	case StatusInvalid:
		st.Invalid++
	case StatusOverrun:
		st.Overrun++
	}

	s.metrics.trial(s.name, ex.Outcome.Status)
}

func (s *session) warn(msg string) {
	if !s.warned.Add(msg) {
		return
	}

	s.result.Warnings = append(s.result.Warnings, msg)
	s.log.Warn(msg)
}

// reuse replays the example stored for the property. Stored buffers that no
// longer fail are deleted.
func (s *session) reuse() error {
	if s.db == nil || !s.settings.Phases.Has(PhaseReuse) {
		return nil
	}

	buf, found, err := s.db.Lookup(s.key)
	if err != nil {
		s.warn(fmt.Sprintf("example database lookup failed: %v", err))
		return nil
	}

	if !found {
		return nil
	}

	ex, err := s.execute(buf, false)
	if err != nil {
		return err
	}

	s.result.Stats.CacheReplays++
	s.count(ex)

	if ex.Outcome.Status != StatusFail {
		s.log.WithField("outcome", ex.Outcome.Status.String()).Info("discarding stored example that no longer fails")

		if err := s.db.Delete(s.key, buf); err != nil {
			s.warn(fmt.Sprintf("example database delete failed: %v", err))
		}

		return nil
	}

	s.log.WithField("key", ex.Outcome.Key).Info("stored example still fails")

	return s.noteFailure(ex)
}

func (s *session) enoughFailures() bool {
	return len(s.order) >= s.settings.distinctLimit()
}

func (s *session) generate(ctx context.Context) error {
	for s.result.Stats.Trials < s.settings.MaxExamples && !s.enoughFailures() {
		if ctx.Err() != nil {
			s.result.Interrupted = true
			s.log.Info("exploration cancelled")

			return nil
		}

		ex, err := s.execute(nil, true)
		if err != nil {
			return err
		}

		s.count(ex)
		s.checkDeadline(ex)

		if hc := s.health.observe(ex); hc != nil {
			s.result.HealthCheck = hc
		}

		if ex.slow {
			s.result.Stats.SlowTrials++
		}

		if ex.Outcome.Status == StatusFail {
			if err := s.noteFailure(ex); err != nil {
				return err
			}
		}

		if s.result.HealthCheck != nil {
			return nil
		}
	}

	if hc := s.health.finish(); hc != nil && !s.result.Interrupted {
		s.result.HealthCheck = hc
	}

	return nil
}

func (s *session) checkDeadline(ex *Example) {
	if s.settings.DeadlinePolicy != DeadlineWarn || s.settings.Deadline <= 0 || ex.Elapsed <= s.settings.Deadline {
		return
	}

	s.warn(fmt.Sprintf("trials exceeded the %s deadline", s.settings.Deadline))
}

// noteFailure records a failing example. Known keys keep the smaller buffer;
// new keys are replayed once to detect flakiness.
func (s *session) noteFailure(ex *Example) error {
	key := ex.Outcome.Key

	if t, ok := s.failures[key]; ok {
		if Less(ex.Buffer, t.best.Buffer) {
			t.best = ex
		}

		return nil
	}

	if s.enoughFailures() {
		return nil
	}

	again, err := s.replay(ex.Buffer.data)
	if err != nil {
		return err
	}

	t := &tracked{original: ex, best: ex}

	if again.Outcome.Status != StatusFail || again.Outcome.Key != key {
		t.flaky = &FlakyError{Key: key, Reason: "failed once but replay gave " + describe(again.Outcome)}
		s.log.WithField("key", key).Warn(t.flaky.Error())
	} else {
		s.log.WithFields(logrus.Fields{"key": key, "size": ex.Buffer.Len()}).Info("found failure")
	}

	s.failures[key] = t
	s.order = append(s.order, key)

	return nil
}

func describe(o Outcome) string {
	if o.Status == StatusFail {
		return fmt.Sprintf("a failure with key %q", o.Key)
	}

	return o.Status.String()
}

func (s *session) shrinkAll(ctx context.Context) error {
	start := s.now()
	defer func() { s.result.Stats.ShrinkTime += s.now().Sub(start) }()

	// order grows when other keys are found while shrinking.
	for i := 0; i < len(s.order); i++ {
		t := s.failures[s.order[i]]
		if t.flaky != nil || t.shrunk {
			continue
		}

		if ctx.Err() != nil {
			s.result.Interrupted = true
			return nil
		}

		if err := s.shrink(ctx, s.order[i], t); err != nil {
			return err
		}
	}

	return nil
}

func (s *session) shrink(ctx context.Context, key FailureKey, t *tracked) error {
	log := s.log.WithField("key", key)

	sh := newShrinker(ctx, t.best, shrinkerConfig{
		eval: func(buf []byte) (*Example, error) {
			s.result.Stats.ShrinkCandidates++
			s.metrics.shrinkCandidate(s.name)

			return s.execute(buf, false)
		},
		key:      key,
		log:      log,
		maxCalls: s.settings.MaxShrinks,
		maxTime:  s.settings.MaxShrinkTime,
		now:      s.now,
		onOther: func(ex *Example) {
			if s.err == nil && s.settings.CollectAllFailures {
				s.err = s.noteFailure(ex)
			}
		},
	})

	best, err := sh.run()
	if err != nil {
		return err
	}

	if s.err != nil {
		return s.err
	}

	t.best = best
	t.shrunk = true
	t.steps = sh.accepted
	s.result.Stats.ShrinksAccepted += sh.accepted
	s.metrics.shrinks(s.name, sh.accepted)

	if ctx.Err() != nil {
		s.result.Interrupted = true
	}

	log.WithFields(logrus.Fields{
		"from":       t.original.Buffer.Len(),
		"to":         best.Buffer.Len(),
		"accepted":   sh.accepted,
		"candidates": sh.calls,
	}).Info("shrunk failure")

	return nil
}

// report replays every minimized failure, builds the reports and saves the
// smallest reproducible buffer to the database.
func (s *session) report() error {
	var smallest *Example

	for _, key := range s.order {
		t := s.failures[key]

		fr := &FailureReport{
			Key:            key,
			Value:          t.best.value,
			Buffer:         t.best.Buffer,
			Failure:        t.best.Outcome.Failure,
			Original:       t.original.Outcome.Failure,
			OriginalBuffer: t.original.Buffer,
			Blob:           EncodeFailure(t.best.Buffer.data),
			ShrinkSteps:    t.steps,
			Flaky:          t.flaky,
		}

		if fr.Flaky == nil {
			again, err := s.replay(t.best.Buffer.data)
			if err != nil {
				return err
			}

			if again.Outcome.Status != StatusFail || again.Outcome.Key != key {
				fr.Flaky = &FlakyError{Key: key, Reason: "minimized example replayed as " + describe(again.Outcome)}
				s.log.WithField("key", key).Warn(fr.Flaky.Error())
			}
		}

		if fr.Flaky == nil && (smallest == nil || Less(t.best.Buffer, smallest.Buffer)) {
			smallest = t.best
		}

		s.result.Failures = append(s.result.Failures, fr)
	}

	switch {
	case smallest != nil:
		s.result.Status = StatusFailure
	case len(s.result.Failures) > 0:
		s.result.Status = StatusFlaky
	default:
		s.result.Status = StatusNoFailure
	}

	if smallest != nil && s.db != nil {
		if err := s.db.Store(s.key, smallest.Buffer.data); err != nil {
			s.warn(fmt.Sprintf("example database store failed: %v", err))
		}
	}

	return nil
}
