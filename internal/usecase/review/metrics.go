package review

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"modqueue/internal/domain/reviewable"
)

const (
	outcomeSuccess  = "success"
	outcomeFailed   = "failed"
	outcomeConflict = "conflict"
	outcomeInvalid  = "invalid"
	outcomeError    = "error"
)

// Metrics holds the workflow's prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	Created     *prometheus.CounterVec
	Actions     *prometheus.CounterVec
	Conflicts   *prometheus.CounterVec
	Transitions *prometheus.CounterVec
	Pending     prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Created: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "modqueue",
			Subsystem: "review",
			Name:      "created_total",
			Help:      "Reviewables inserted, by kind.",
		}, []string{"kind"}),
		Actions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "modqueue",
			Subsystem: "review",
			Name:      "actions_total",
			Help:      "Perform calls, by kind, action and outcome.",
		}, []string{"kind", "action", "outcome"}),
		Conflicts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "modqueue",
			Subsystem: "review",
			Name:      "update_conflicts_total",
			Help:      "Version conflicts, by operation.",
		}, []string{"operation"}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "modqueue",
			Subsystem: "review",
			Name:      "transitions_total",
			Help:      "Status transitions, by kind and target status.",
		}, []string{"kind", "status"}),
		Pending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "modqueue",
			Subsystem: "review",
			Name:      "pending",
			Help:      "Pending reviewables at the last count notification.",
		}),
	}
}

func (m *Metrics) observeCreated(kind string) {
	if m == nil {
		return
	}
	m.Created.WithLabelValues(kind).Inc()
}

func (m *Metrics) observeAction(kind string, action string, outcome string) {
	if m == nil {
		return
	}
	m.Actions.WithLabelValues(kind, action, outcome).Inc()
}

func (m *Metrics) observeConflict(operation string) {
	if m == nil {
		return
	}
	m.Conflicts.WithLabelValues(operation).Inc()
}

func (m *Metrics) observeTransition(kind string, status reviewable.Status) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(kind, status.String()).Inc()
}

func (m *Metrics) setPending(count int64) {
	if m == nil {
		return
	}
	m.Pending.Set(float64(count))
}
