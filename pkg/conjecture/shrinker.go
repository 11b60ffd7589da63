package conjecture

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// evaluateFunc replays a candidate buffer. The error is fatal.
type evaluateFunc func(buf []byte) (*Example, error)

// shrinker searches for a local minimum, in shrink order, among buffers that
// still fail with the target key.
//
// Invariant: best always fails with key, and every replacement is strictly
// smaller than the buffer it replaces.
type shrinker struct {
	ctx      context.Context
	eval     evaluateFunc
	key      FailureKey
	log      logrus.FieldLogger
	maxCalls int
	deadline time.Time
	now      func() time.Time
	onOther  func(*Example)

	best *Example
	seen map[string]struct{}

	calls    int
	accepted int
	stopped  bool
	err      error
}

type shrinkerConfig struct {
	eval     evaluateFunc
	key      FailureKey
	log      logrus.FieldLogger
	maxCalls int
	maxTime  time.Duration
	now      func() time.Time
	onOther  func(*Example)
}

func newShrinker(ctx context.Context, initial *Example, cfg shrinkerConfig) *shrinker {
	sh := &shrinker{
		ctx:      ctx,
		eval:     cfg.eval,
		key:      cfg.key,
		log:      cfg.log,
		maxCalls: cfg.maxCalls,
		now:      cfg.now,
		onOther:  cfg.onOther,
		best:     initial,
		seen:     map[string]struct{}{string(initial.Buffer.data): {}},
	}

	if cfg.maxTime > 0 {
		sh.deadline = cfg.now().Add(cfg.maxTime)
	}

	return sh
}

// done reports whether shrinking must stop: budget, time, cancellation or a
// fatal error.
func (sh *shrinker) done() bool {
	return sh.stopped || sh.err != nil
}

// consider evaluates buf and adopts it as the new best if it still fails with
// the target key and is strictly smaller. Candidates that are not smaller, or
// were already tried, cost nothing.
func (sh *shrinker) consider(buf []byte) bool {
	if sh.done() {
		return false
	}

	if compareBytes(buf, sh.best.Buffer.data) >= 0 {
		return false
	}

	if _, ok := sh.seen[string(buf)]; ok {
		return false
	}

	if sh.calls >= sh.maxCalls {
		sh.log.WithField("candidates", sh.calls).Debug("shrink candidate budget exhausted")
		sh.stopped = true

		return false
	}

	if sh.ctx.Err() != nil || (!sh.deadline.IsZero() && sh.now().After(sh.deadline)) {
		sh.stopped = true

		return false
	}

	sh.seen[string(buf)] = struct{}{}
	sh.calls++

	ex, err := sh.eval(buf)
	if err != nil {
		sh.err = err

		return false
	}

	if ex.Outcome.Status != StatusFail {
		return false
	}

	if ex.Outcome.Key != sh.key {
		if sh.onOther != nil {
			sh.onOther(ex)
		}

		return false
	}

	if Compare(ex.Buffer, sh.best.Buffer) >= 0 {
		return false
	}

	sh.best = ex
	sh.accepted++

	return true
}

// run iterates the passes to a fixed point: a full sweep without any accepted
// candidate. Each pass is restarted after every acceptance.
func (sh *shrinker) run() (*Example, error) {
	passes := shrinkPasses()

	for sweep := 1; !sh.done(); sweep++ {
		improved := false

		for _, p := range passes {
			for !sh.done() && p.run(sh) {
				improved = true
			}

			if sh.done() {
				break
			}
		}

		sh.log.WithFields(logrus.Fields{
			"sweep":    sweep,
			"size":     sh.best.Buffer.Len(),
			"accepted": sh.accepted,
			"calls":    sh.calls,
		}).Debug("shrink sweep finished")

		if !improved {
			break
		}
	}

	return sh.best, sh.err
}
