package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors exported by the service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Generations     *prometheus.CounterVec
	GuardDecisions  *prometheus.CounterVec
	CodeExchanges   *prometheus.CounterVec
	CookieWaitLapse prometheus.Counter
	AuthEvents      *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. Passing nil uses
// the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		Generations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kanojo_generations_total",
			Help: "Image generation requests by terminal outcome",
		}, []string{"outcome"}),
		GuardDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kanojo_route_guard_decisions_total",
			Help: "Route guard decisions by kind",
		}, []string{"decision"}),
		CodeExchanges: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kanojo_code_exchanges_total",
			Help: "Authorization code exchanges by outcome",
		}, []string{"outcome"}),
		CookieWaitLapse: factory.NewCounter(prometheus.CounterOpts{
			Name: "kanojo_cookie_wait_timeouts_total",
			Help: "Code exchanges that finished waiting for cookies on the deadline",
		}),
		AuthEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kanojo_auth_events_total",
			Help: "Auth state changes by event",
		}, []string{"event"}),
	}
}

// ObserveGeneration counts one generation request ending in outcome.
func (m *Metrics) ObserveGeneration(outcome string) {
	if m == nil {
		return
	}
	m.Generations.WithLabelValues(outcome).Inc()
}

// ObserveGuardDecision counts one route guard decision.
func (m *Metrics) ObserveGuardDecision(decision string) {
	if m == nil {
		return
	}
	m.GuardDecisions.WithLabelValues(decision).Inc()
}

// ObserveCodeExchange counts one code exchange; timedOut marks exchanges
// that stopped waiting for cookies on the deadline.
func (m *Metrics) ObserveCodeExchange(outcome string, timedOut bool) {
	if m == nil {
		return
	}
	m.CodeExchanges.WithLabelValues(outcome).Inc()
	if timedOut {
		m.CookieWaitLapse.Inc()
	}
}

// ObserveAuthEvent counts one auth state change.
func (m *Metrics) ObserveAuthEvent(event string) {
	if m == nil {
		return
	}
	m.AuthEvents.WithLabelValues(event).Inc()
}
