package activity

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type clientMetrics struct {
	submits  *prometheus.CounterVec
	polls    prometheus.Counter
	outcomes *prometheus.CounterVec
	latency  prometheus.Histogram
}

// newClientMetrics registers on the given registerer; with none supplied the
// metrics land on a private registry and stay inert.
func newClientMetrics(reg prometheus.Registerer) *clientMetrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &clientMetrics{
		submits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "custody_client",
			Name:      "activities_submitted_total",
			Help:      "Activities submitted, by activity type.",
		}, []string{"type"}),
		polls: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "custody_client",
			Name:      "activity_polls_total",
			Help:      "get_activity polls issued while waiting for a terminal status.",
		}),
		outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "custody_client",
			Name:      "activity_outcomes_total",
			Help:      "Terminal activity statuses observed.",
		}, []string{"status"}),
		latency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "custody_client",
			Name:      "request_duration_seconds",
			Help:      "Wall time of individual API round-trips.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}
