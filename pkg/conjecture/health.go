package conjecture

import (
	"fmt"
	"time"

	"github.com/montanaflynn/stats"
)

var healthChecks = []HealthCheck{
	HealthCheckTooManyRejections,
	HealthCheckTooSlow,
	HealthCheckUnsatisfiable,
}

// ParseHealthCheck parses a health check name such as "too_slow".
func ParseHealthCheck(s string) (HealthCheck, error) {
	for _, c := range healthChecks {
		if string(c) == s {
			return c, nil
		}
	}

	return "", fmt.Errorf("%w: unknown health check %q", ErrInvalidArgument, s)
}

// healthMonitor watches generation trials for pathological distributions.
type healthMonitor struct {
	cfg HealthCheckSettings

	// ring of the last cfg.Window trials, true for Invalid or Overrun.
	ring    []bool
	pos     int
	filled  int
	invalid int

	timings []float64
	slow    int
	trials  int
	valid   int
}

func newHealthMonitor(cfg HealthCheckSettings) *healthMonitor {
	return &healthMonitor{
		cfg:  cfg,
		ring: make([]bool, cfg.Window),
	}
}

// observe records a generation trial. A non-nil result means generation must
// stop. observe marks ex as slow when it exceeds the timing threshold.
func (h *healthMonitor) observe(ex *Example) *HealthCheckError {
	h.trials++

	rejected := ex.Outcome.Status == StatusInvalid || ex.Outcome.Status == StatusOverrun
	if !rejected {
		h.valid++
	}

	if h.ring[h.pos] {
		h.invalid--
	}

	h.ring[h.pos] = rejected
	if rejected {
		h.invalid++
	}

	h.pos = (h.pos + 1) % len(h.ring)
	h.filled = min(h.filled+1, len(h.ring))

	if err := h.checkRejections(); err != nil {
		return err
	}

	return h.checkTiming(ex)
}

func (h *healthMonitor) checkRejections() *HealthCheckError {
	if h.cfg.suppressed(HealthCheckTooManyRejections) || h.filled < len(h.ring) {
		return nil
	}

	ratio := float64(h.invalid) / float64(len(h.ring))
	if ratio <= h.cfg.MaxInvalidRatio {
		return nil
	}

	return &HealthCheckError{
		Check: HealthCheckTooManyRejections,
		Message: fmt.Sprintf("%d of the last %d trials were rejected or overran (limit %.0f%%); "+
			"loosen filters and assumptions or draw values more directly", h.invalid, len(h.ring), h.cfg.MaxInvalidRatio*100),
	}
}

func (h *healthMonitor) checkTiming(ex *Example) *HealthCheckError {
	elapsed := ex.Elapsed.Seconds()

	defer func() { h.timings = append(h.timings, elapsed) }()

	if len(h.timings) < h.cfg.MinTimingSamples || h.cfg.SlowFactor <= 0 {
		return nil
	}

	median, err := stats.Median(h.timings)
	if err != nil {
		return nil
	}

	if ex.Elapsed < h.cfg.MinSlowDuration || elapsed <= median*h.cfg.SlowFactor {
		return nil
	}

	ex.slow = true
	h.slow++

	if h.cfg.suppressed(HealthCheckTooSlow) || h.slow <= h.cfg.MaxSlowTrials {
		return nil
	}

	return &HealthCheckError{
		Check: HealthCheckTooSlow,
		Message: fmt.Sprintf("%d trials took more than %.0fx the median trial time of %s",
			h.slow, h.cfg.SlowFactor, time.Duration(median*float64(time.Second))),
	}
}

// finish reports a generation phase that ran trials but never produced a
// valid one.
func (h *healthMonitor) finish() *HealthCheckError {
	if h.cfg.suppressed(HealthCheckUnsatisfiable) || h.trials == 0 || h.valid > 0 {
		return nil
	}

	return &HealthCheckError{
		Check:   HealthCheckUnsatisfiable,
		Message: fmt.Sprintf("none of %d trials satisfied the assumptions and filters", h.trials),
	}
}
