package engine

import (
	"github.com/formflow/formflow/workflow"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects engine metrics. A nil *Metrics collects nothing.
type Metrics struct {
	submissions   *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	notifyErrors  *prometheus.CounterVec
	autoAdvances  prometheus.Counter
	conflicts     prometheus.Counter
	stalled       prometheus.Gauge
	activeTracked prometheus.Gauge
}

// NewMetrics creates engine metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "formflow",
			Name:      "submissions_total",
			Help:      "Form submissions by validation result.",
		}, []string{"result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "formflow",
			Name:      "transitions_total",
			Help:      "Stored workflow transitions by action.",
		}, []string{"action"}),
		notifyErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "formflow",
			Name:      "notification_failures_total",
			Help:      "Failed notification deliveries by event.",
		}, []string{"event"}),
		autoAdvances: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "formflow",
			Name:      "auto_advances_total",
			Help:      "Steps approved by the system after their timeout.",
		}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "formflow",
			Name:      "conflicts_total",
			Help:      "Transitions rejected for a stale instance version.",
		}),
		stalled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "formflow",
			Name:      "stalled_instances",
			Help:      "Active instances without an eligible step as of the last worker run.",
		}),
		activeTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "formflow",
			Name:      "active_instances",
			Help:      "Active instances as of the last worker run.",
		}),
	}
	for _, c := range []prometheus.Collector{
		m.submissions,
		m.transitions,
		m.notifyErrors,
		m.autoAdvances,
		m.conflicts,
		m.stalled,
		m.activeTracked,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) submission(accepted bool) {
	if m == nil {
		return
	}
	result := "invalid"
	if accepted {
		result = "accepted"
	}
	m.submissions.WithLabelValues(result).Inc()
}

func (m *Metrics) transition(a workflow.ActionType) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(a)).Inc()
}

func (m *Metrics) notificationFailed(ev Event) {
	if m == nil {
		return
	}
	m.notifyErrors.WithLabelValues(string(ev)).Inc()
}

func (m *Metrics) autoAdvanced() {
	if m == nil {
		return
	}
	m.autoAdvances.Inc()
}

func (m *Metrics) conflict() {
	if m == nil {
		return
	}
	m.conflicts.Inc()
}

func (m *Metrics) instances(active, stalled int) {
	if m == nil {
		return
	}
	m.activeTracked.Set(float64(active))
	m.stalled.Set(float64(stalled))
}
