// Package conjecture is a byte-buffer driven generation and shrinking engine
// for property-based tests.
//
// Every generated value is derived from a [Buffer] of bytes read through a
// [Source]. Because values are a pure function of the buffer, a failure can be
// replayed bit-for-bit and shrunk by searching for smaller buffers that still
// fail the same way.
//
// # Basic Usage
//
//	prop := conjecture.Property[int64]{
//	    Name:     "small numbers stay small",
//	    Strategy: conjecture.Integers(0, 1_000_000),
//	    Check: func(n int64) error {
//	        if n > 100 {
//	            return fmt.Errorf("%d is too big", n)
//	        }
//	        return nil
//	    },
//	}
//
//	engine := conjecture.NewEngine(conjecture.DefaultSettings(),
//	    conjecture.WithDatabase(exampledb.NewMemory()))
//
//	result, err := prop.Explore(ctx, engine)
//	if err != nil {
//	    // internal engine error or invalid settings
//	}
//	if result.Status == conjecture.StatusFailure {
//	    fmt.Println(result.Failures[0].Value) // 101
//	}
//
// # Outcomes
//
// Each trial ends as Pass, Fail, Invalid or Overrun. Invalid and Overrun are
// absorbed by the example loop and only count towards health checks. Fail is
// the only outcome that is shrunk and reported.
//
// # Concurrency
//
// A single exploration session is sequential. Independent properties may be
// explored in parallel with [ExploreAll]; the [Database] is the only shared
// resource and must be safe for concurrent use.
package conjecture
