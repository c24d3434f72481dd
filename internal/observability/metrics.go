package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveSessions prometheus.Gauge
	Turns          *prometheus.CounterVec
	Registrations  prometheus.Counter
	Enrolments     *prometheus.CounterVec
	SendFailures   prometheus.Counter
}

// NewMetrics registers the instruments under the given namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of in-flight registration dialogs.",
		}),
		Turns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Conversation turns by the step they arrived in.",
		}, []string{"step"}),
		Registrations: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Users created in the LMS.",
		}),
		Enrolments: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrolments_total",
			Help:      "Course enrolment attempts by outcome.",
		}, []string{"outcome"}),
		SendFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_failures_total",
			Help:      "Outbound messages that ultimately failed to deliver.",
		}),
	}
}

// Handler exposes the registry the instruments are registered in.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
