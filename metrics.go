package authclient

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the client counters. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	refresh     *prometheus.CounterVec
	interceptor *prometheus.CounterVec
	rpc         *prometheus.CounterVec
	guards      *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them with reg. A nil reg
// leaves them unregistered, which is handy in tests.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		refresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authclient",
			Name:      "refresh_total",
			Help:      "Session refresh attempts by trigger and result.",
		}, []string{"trigger", "result"}),
		interceptor: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authclient",
			Name:      "interceptor_total",
			Help:      "Outgoing requests handled by the auth interceptor by outcome.",
		}, []string{"outcome"}),
		rpc: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authclient",
			Name:      "rpc_total",
			Help:      "Remote procedure calls by outcome.",
		}, []string{"outcome"}),
		guards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authclient",
			Name:      "guard_decisions_total",
			Help:      "Route guard decisions by guard and outcome.",
		}, []string{"guard", "outcome"}),
	}

	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.refresh, m.interceptor, m.rpc, m.guards} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Collectors returns every counter, for custom registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	if m == nil {
		return nil
	}
	return []prometheus.Collector{m.refresh, m.interceptor, m.rpc, m.guards}
}

func (m *Metrics) observeRefresh(trigger string, err error) {
	if m == nil {
		return
	}
	m.refresh.WithLabelValues(trigger, resultLabel(err)).Inc()
}

func (m *Metrics) observeInterceptor(outcome string) {
	if m == nil {
		return
	}
	m.interceptor.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeRPC(err error) {
	if m == nil {
		return
	}
	m.rpc.WithLabelValues(resultLabel(err)).Inc()
}

func (m *Metrics) observeGuard(guard string, d Decision) {
	if m == nil {
		return
	}
	outcome := "allow"
	if !d.Allow {
		outcome = "redirect"
	}
	m.guards.WithLabelValues(guard, outcome).Inc()
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
