// AngelaMos | 2026
// metrics.go

package auth

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
	outcomeLocked  = "locked"
	outcomeError   = "error"
)

// Metrics counts credential operations by outcome. A nil *Metrics is a
// valid no-op.
type Metrics struct {
	logins        *prometheus.CounterVec
	refreshes     *prometheus.CounterVec
	registrations *prometheus.CounterVec
	revocations   prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Login attempts by outcome",
		}, []string{"outcome"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_token_refreshes_total",
			Help: "Refresh token exchanges by outcome",
		}, []string{"outcome"}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_registrations_total",
			Help: "Registrations by outcome",
		}, []string{"outcome"}),
		revocations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_revocations_total",
			Help: "Security stamp rotations outside login and refresh",
		}),
	}

	reg.MustRegister(m.logins, m.refreshes, m.registrations, m.revocations)
	return m
}

func (m *Metrics) login(outcome string) {
	if m != nil {
		m.logins.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) refresh(outcome string) {
	if m != nil {
		m.refreshes.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) registration(outcome string) {
	if m != nil {
		m.registrations.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) revocation() {
	if m != nil {
		m.revocations.Inc()
	}
}
