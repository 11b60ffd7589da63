package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/calvinalkan/conjecture/internal/config"
	"github.com/calvinalkan/conjecture/pkg/conjecture"
	"github.com/calvinalkan/conjecture/pkg/conjecture/exampledb"

	flag "github.com/spf13/pflag"
)

var errSelftestFailed = errors.New("selftest failed")

// selfCheck is a property with the session outcome it must produce.
type selfCheck struct {
	prop   conjecture.Explorer
	verify func(r *conjecture.Result) error
}

type errNegative struct{}

func (errNegative) Error() string { return "negative" }

type errTooLong struct{ n int }

func (e *errTooLong) Error() string { return fmt.Sprintf("list of length %d", e.n) }

func selfChecks() []selfCheck {
	return []selfCheck{
		{
			prop: conjecture.Property[int64]{
				Name:     "selftest/boundary",
				Strategy: conjecture.Integers(0, 1_000_000),
				Check: func(n int64) error {
					if n > 100 {
						return fmt.Errorf("%d exceeds 100", n)
					}

					return nil
				},
			},
			verify: func(r *conjecture.Result) error {
				if r.Status != conjecture.StatusFailure || len(r.Failures) != 1 {
					return fmt.Errorf("want one failure, got %s with %d", r.Status, len(r.Failures))
				}

				if v := r.Failures[0].Value; v != int64(101) {
					return fmt.Errorf("want minimal example 101, got %v", v)
				}

				return nil
			},
		},
		{
			prop: conjecture.Property[int64]{
				Name:     "selftest/always-reject",
				Strategy: conjecture.Integers(0, 10),
				Check: func(int64) error {
					return conjecture.ErrReject
				},
			},
			verify: func(r *conjecture.Result) error {
				if r.Status != conjecture.StatusHealthCheckAborted {
					return fmt.Errorf("want health check abort, got %s", r.Status)
				}

				if r.Stats.ShrinkCandidates != 0 {
					return fmt.Errorf("want no shrinking, got %d candidates", r.Stats.ShrinkCandidates)
				}

				return nil
			},
		},
		{
			prop: conjecture.Property[[]int64]{
				Name:     "selftest/distinct",
				Strategy: conjecture.Lists(conjecture.Integers(-1000, 1000), 0, 20),
				Check: func(xs []int64) error {
					if len(xs) > 3 {
						return &errTooLong{n: len(xs)}
					}

					for _, x := range xs {
						if x < 0 {
							return errNegative{}
						}
					}

					return nil
				},
			},
			verify: func(r *conjecture.Result) error {
				if len(r.Failures) != 2 {
					return fmt.Errorf("want 2 distinct failures, got %d", len(r.Failures))
				}

				return nil
			},
		},
	}
}

// SelftestCmd returns the selftest command.
func SelftestCmd(cfg *config.Config, log logrus.FieldLogger) *Command {
	fs := flag.NewFlagSet("selftest", flag.ContinueOnError)
	fs.Int("parallel", 0, "Explore at most N properties at once (0 = all)")
	fs.Bool("use-db", false, "Use the configured example database instead of an in-memory one")

	return &Command{
		Flags: fs,
		Usage: "selftest [flags]",
		Short: "Check the engine against known properties",
		Long: "Explore built-in properties with the effective settings and verify that the engine\n" +
			"finds, shrinks and classifies their failures.",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			parallel, _ := fs.GetInt("parallel")
			useDB, _ := fs.GetBool("use-db")

			return execSelftest(ctx, o, cfg, log, parallel, useDB)
		},
	}
}

func execSelftest(ctx context.Context, o *IO, cfg *config.Config, log logrus.FieldLogger, parallel int, useDB bool) error {
	var db exampledb.DB = exampledb.NewMemory()

	if useDB {
		opened, err := cfg.OpenDatabase()
		if err != nil {
			return err
		}

		if opened != nil {
			db = opened
		}
	}

	defer func() { _ = db.Close() }()

	settings := cfg.Settings
	settings.CollectAllFailures = true
	settings.MaxDistinctFailures = max(settings.MaxDistinctFailures, 2)
	settings.MaxExamples = max(settings.MaxExamples, 100)

	engine := conjecture.NewEngine(settings, conjecture.WithDatabase(db), conjecture.WithLogger(log))

	checks := selfChecks()

	props := make([]conjecture.Explorer, len(checks))
	for i, c := range checks {
		props[i] = c.prop
	}

	results, err := conjecture.ExploreAll(ctx, engine, parallel, props...)
	if err != nil {
		return err
	}

	failed := 0

	for i, c := range checks {
		r := results[i]

		if verr := c.verify(r); verr != nil {
			failed++

			o.Printf("FAIL %s: %v\n", c.prop.PropertyName(), verr)
			o.Printf("%s", r.Format())

			continue
		}

		o.Printf("ok   %s (%s, %d trials, %d shrink candidates)\n",
			c.prop.PropertyName(), r.Status, r.Stats.Trials, r.Stats.ShrinkCandidates)
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d of %d checks", errSelftestFailed, failed, len(checks))
	}

	return nil
}
