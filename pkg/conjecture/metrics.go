package conjecture

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports engine counters to Prometheus. A nil *Metrics records
// nothing.
type Metrics struct {
	trials           *prometheus.CounterVec
	shrinkCandidates *prometheus.CounterVec
	shrinksAccepted  *prometheus.CounterVec
	replays          *prometheus.CounterVec
	sessions         *prometheus.HistogramVec
}

// NewMetrics creates the engine collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		trials: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conjecture_trials_total",
				Help: "Executed trials by property and outcome",
			},
			[]string{"property", "status"},
		),
		shrinkCandidates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conjecture_shrink_candidates_total",
				Help: "Evaluated shrink candidates by property",
			},
			[]string{"property"},
		),
		shrinksAccepted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conjecture_shrinks_accepted_total",
				Help: "Accepted shrink candidates by property",
			},
			[]string{"property"},
		),
		replays: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conjecture_replays_total",
				Help: "Verification replays of failing examples by property",
			},
			[]string{"property"},
		),
		sessions: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "conjecture_session_duration_seconds",
				Help:    "Exploration session wall time by result status",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
			},
			[]string{"status"},
		),
	}

	for _, c := range []prometheus.Collector{m.trials, m.shrinkCandidates, m.shrinksAccepted, m.replays, m.sessions} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("registering metrics: %w", err)
		}
	}

	return m, nil
}

func (m *Metrics) trial(property string, st Status) {
	if m == nil {
		return
	}

	m.trials.WithLabelValues(property, st.String()).Inc()
}

func (m *Metrics) shrinkCandidate(property string) {
	if m == nil {
		return
	}

	m.shrinkCandidates.WithLabelValues(property).Inc()
}

func (m *Metrics) shrinks(property string, accepted int) {
	if m == nil || accepted == 0 {
		return
	}

	m.shrinksAccepted.WithLabelValues(property).Add(float64(accepted))
}

func (m *Metrics) replay(property string) {
	if m == nil {
		return
	}

	m.replays.WithLabelValues(property).Inc()
}

func (m *Metrics) session(st ResultStatus, d time.Duration) {
	if m == nil {
		return
	}

	m.sessions.WithLabelValues(st.String()).Observe(d.Seconds())
}
