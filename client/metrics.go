// ABOUTME: Prometheus instrumentation for the API client
// ABOUTME: Counts requests by method/status, refresh outcomes, and retries

package client

import "github.com/prometheus/client_golang/prometheus"

const (
	refreshSuccess = "success"
	refreshFailure = "failure"
	refreshSkipped = "skipped"
)

// Metrics holds the client's collectors. A nil *Metrics records nothing.
type Metrics struct {
	requests  *prometheus.CounterVec
	refreshes *prometheus.CounterVec
	retries   prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xam",
			Subsystem: "client",
			Name:      "requests_total",
			Help:      "HTTP exchanges with the API by method and status code.",
		}, []string{"method", "code"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xam",
			Subsystem: "client",
			Name:      "token_refreshes_total",
			Help:      "Token refresh exchanges by outcome.",
		}, []string{"result"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "xam",
			Subsystem: "client",
			Name:      "auth_retries_total",
			Help:      "Requests retried after a 401.",
		}),
	}
	reg.MustRegister(m.requests, m.refreshes, m.retries)
	return m
}

func (m *Metrics) observeRequest(method, code string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, code).Inc()
}

func (m *Metrics) observeRefresh(result string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(result).Inc()
}

func (m *Metrics) observeRetry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}
