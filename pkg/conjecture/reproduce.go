package conjecture

import (
	"context"
	"fmt"
)

// ReproduceFailure replays a blob printed by a failure report.
//
// It returns the reproduced failure. The error wraps [ErrInvalidArgument] when
// version does not match [Version] or the blob is malformed, and
// [ErrDidNotReproduce] when the replay passes, is rejected or overruns. The
// database is neither read nor written.
func ReproduceFailure[T any](ctx context.Context, e *Engine, p Property[T], version, blob string) (*FailureReport, error) {
	if version != Version {
		return nil, fmt.Errorf("%w: attempting to reproduce a failure from a different version of conjecture (%s, this is %s)",
			ErrInvalidArgument, version, Version)
	}

	if err := p.validate(); err != nil {
		return nil, err
	}

	buf, err := DecodeFailure(blob)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := newSession(e, p.Name, nil, p.testFunc())

	ex, err := s.execute(buf, false)
	if err != nil {
		return nil, err
	}

	switch ex.Outcome.Status {
	case StatusFail:
		return &FailureReport{
			Key:            ex.Outcome.Key,
			Value:          ex.value,
			Buffer:         ex.Buffer,
			Failure:        ex.Outcome.Failure,
			Original:       ex.Outcome.Failure,
			OriginalBuffer: ex.Buffer,
			Blob:           blob,
		}, nil
	case StatusPass:
		return nil, fmt.Errorf("%w: expected the property to fail but it passed", ErrDidNotReproduce)
	case StatusInvalid:
		return nil, fmt.Errorf("%w: the replayed example was rejected: %s", ErrDidNotReproduce, ex.Outcome.Reason)
	default:
		return nil, fmt.Errorf("%w: the blob no longer matches the shape of the strategy: %s", ErrDidNotReproduce, ex.Outcome.Reason)
	}
}
