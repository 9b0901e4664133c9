package proxy

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are Prometheus collectors of the proxy.
// All methods are safe to call on a nil receiver.
type Metrics struct {
	requests  *prometheus.CounterVec
	finals    *prometheus.CounterVec
	branches  *prometheus.CounterVec
	cancels   prometheus.Counter
	active    prometheus.Gauge
	decisions prometheus.Histogram
}

// NewMetrics creates proxy metrics and registers them with reg.
// Nil reg leaves collectors unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sipproxy",
			Name:      "requests_total",
			Help:      "Requests accepted for proxying by method.",
		}, []string{"method"}),
		finals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sipproxy",
			Name:      "final_responses_total",
			Help:      "Final responses sent upstream by status class.",
		}, []string{"class"}),
		branches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sipproxy",
			Name:      "branches_total",
			Help:      "Branches by outcome.",
		}, []string{"outcome"}),
		cancels: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sipproxy",
			Name:      "branch_cancels_total",
			Help:      "CANCEL requests issued for pending branches.",
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sipproxy",
			Name:      "active_contexts",
			Help:      "Request contexts in progress.",
		}),
		decisions: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sipproxy",
			Name:      "decision_seconds",
			Help:      "Time from request arrival to the final response.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 4, 10),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.finals, m.branches, m.cancels, m.active, m.decisions)
	}
	return m
}

func (m *Metrics) requestAccepted(mtd RequestMethod) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(string(mtd.ToUpper())).Inc()
	m.active.Inc()
}

func (m *Metrics) contextDone() {
	if m == nil {
		return
	}
	m.active.Dec()
}

func (m *Metrics) finalSent(sts ResponseStatus, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.finals.WithLabelValues(strconv.FormatUint(uint64(sts.Class()), 10) + "xx").Inc()
	m.decisions.Observe(elapsed.Seconds())
}

func (m *Metrics) branchDone(state TargetState) {
	if m == nil {
		return
	}
	m.branches.WithLabelValues(string(state)).Inc()
}

func (m *Metrics) branchCanceled() {
	if m == nil {
		return
	}
	m.cancels.Inc()
}
