package conjecture

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// Engine explores properties with fixed settings and collaborators. An Engine
// is safe for concurrent use; each exploration runs its own session.
type Engine struct {
	settings Settings
	db       Database
	log      logrus.FieldLogger
	metrics  *Metrics
	now      func() time.Time
}

// Option configures an [Engine].
type Option func(*Engine)

// WithDatabase sets the example database. Without one no examples are
// replayed or saved.
func WithDatabase(db Database) Option {
	return func(e *Engine) { e.db = db }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(log logrus.FieldLogger) Option {
	return func(e *Engine) { e.log = log }
}

// WithMetrics exports counters through m.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock replaces time.Now, for tests of timing behavior.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine. Settings are validated when a property is
// explored.
func NewEngine(settings Settings, opts ...Option) *Engine {
	e := &Engine{settings: settings, now: time.Now}

	for _, opt := range opts {
		opt(e)
	}

	if e.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		e.log = l
	}

	return e
}

// Settings returns the engine settings.
func (e *Engine) Settings() Settings { return e.settings }

func (e *Engine) seedFor(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))

	switch {
	case e.settings.Seed != 0:
		return e.settings.Seed
	case e.settings.Derandomize:
		return int64(h.Sum64())
	default:
		return e.now().UnixNano() ^ int64(h.Sum64())
	}
}

// Property is a named claim about all values of a strategy.
type Property[T any] struct {
	// Name identifies the property in reports and derives its database key.
	Name     string
	Strategy Strategy[T]
	// Check returns nil when the property holds for v. Returning an error or
	// panicking is a failure; returning [ErrReject] or calling [Assume] with
	// false rejects v.
	Check func(v T) error
	// DatabaseKey overrides the key derived from Name.
	DatabaseKey []byte
}

// PropertyName returns p.Name.
func (p Property[T]) PropertyName() string { return p.Name }

// Explore runs p on e. See [Explore].
func (p Property[T]) Explore(ctx context.Context, e *Engine) (*Result, error) {
	return Explore(ctx, e, p)
}

func (p Property[T]) validate() error {
	switch {
	case p.Name == "":
		return fmt.Errorf("%w: property name is empty", ErrInvalidArgument)
	case p.Strategy == nil:
		return fmt.Errorf("%w: property %q has no strategy", ErrInvalidArgument, p.Name)
	case p.Check == nil:
		return fmt.Errorf("%w: property %q has no check function", ErrInvalidArgument, p.Name)
	}

	return nil
}

func (p Property[T]) databaseKey() []byte {
	if len(p.DatabaseKey) > 0 {
		return p.DatabaseKey
	}

	return PropertyKey(p.Name)
}

func (p Property[T]) testFunc() testFunc {
	return testFunc{
		generate: func(s *Source) any { return Draw(s, p.Strategy) },
		check:    func(v any) error { return p.Check(v.(T)) },
	}
}

// Explore searches for values of p.Strategy falsifying p.Check.
//
// Failures are reported in the returned [Result], not as errors. The error is
// non-nil only for invalid settings or properties (wrapping
// [ErrInvalidArgument]) and for [InternalError]; in the latter case the
// partial result is returned too.
func Explore[T any](ctx context.Context, e *Engine, p Property[T]) (*Result, error) {
	if err := e.settings.Validate(); err != nil {
		return nil, err
	}

	if err := p.validate(); err != nil {
		return nil, err
	}

	s := newSession(e, p.Name, p.databaseKey(), p.testFunc())

	res, err := s.run(ctx)

	var internal *InternalError
	if errors.As(err, &internal) {
		s.log.WithError(err).Error("session aborted")
	}

	return res, err
}
