// Package metrics — счётчики Prometheus для проверок и поиска контрпримеров.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics: методы на nil ничего не делают, поэтому метрики можно не подключать.
type Metrics struct {
	Verifications        *prometheus.CounterVec
	SolverChecks         *prometheus.CounterVec
	SolverCheckDuration  prometheus.Histogram
	UnsupportedExprs     prometheus.Counter
	SuspiciousStatesSeen prometheus.Counter
}

// New регистрирует коллекторы в reg; в тестах — свой prometheus.NewRegistry().
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Verifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "specproof_verifications_total",
			Help: "Total number of verify() calls by outcome",
		}, []string{"outcome"}),
		SolverChecks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "specproof_solver_checks_total",
			Help: "Total number of satisfiability queries by phase and status",
		}, []string{"phase", "status"}),
		SolverCheckDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "specproof_solver_check_duration_seconds",
			Help:    "Duration of a single satisfiability query",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		UnsupportedExprs: f.NewCounter(prometheus.CounterOpts{
			Name: "specproof_unsupported_expressions_total",
			Help: "Expressions outside the supported grammar (not verified)",
		}),
		SuspiciousStatesSeen: f.NewCounter(prometheus.CounterOpts{
			Name: "specproof_suspicious_states_total",
			Help: "Suspicious states reported by the counterexample finder",
		}),
	}
}

func (m *Metrics) ObserveVerification(outcome string) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveCheck(phase, status string, took time.Duration) {
	if m == nil {
		return
	}
	m.SolverChecks.WithLabelValues(phase, status).Inc()
	m.SolverCheckDuration.Observe(took.Seconds())
}

func (m *Metrics) AddUnsupported(n int) {
	if m == nil || n == 0 {
		return
	}
	m.UnsupportedExprs.Add(float64(n))
}

func (m *Metrics) AddSuspicious(n int) {
	if m == nil || n == 0 {
		return
	}
	m.SuspiciousStatesSeen.Add(float64(n))
}
