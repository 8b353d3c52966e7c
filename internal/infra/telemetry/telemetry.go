package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the domain-level Prometheus instruments. HTTP request
// instrumentation lives in the transport middleware.
type Metrics struct {
	loginCounter *prometheus.CounterVec
	tokenReuse   prometheus.Counter
}

// NewMetrics registers the service instruments on the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		loginCounter: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "iam",
			Name:      "logins_total",
			Help:      "Login attempts by method and outcome",
		}, []string{"method", "outcome"}),
		tokenReuse: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "iam",
			Name:      "token_reuse_detected_total",
			Help:      "Refresh token reuse detections",
		}),
	}
}

// ObserveLogin records one login attempt.
func (m *Metrics) ObserveLogin(method, outcome string) {
	if m == nil {
		return
	}
	m.loginCounter.WithLabelValues(method, outcome).Inc()
}

// ObserveTokenReuse records one refresh token reuse detection.
func (m *Metrics) ObserveTokenReuse() {
	if m == nil {
		return
	}
	m.tokenReuse.Inc()
}
