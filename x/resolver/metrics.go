package resolver

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/compose-network/bonsai-relay/metrics"
)

type resolverMetrics struct {
	duration *prometheus.HistogramVec
}

func newResolverMetrics() *resolverMetrics {
	reg := metrics.NewComponentRegistry("bonsai_relay", "resolver")
	return &resolverMetrics{
		duration: reg.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "resolve_duration_seconds",
			Help:    "Time spent resolving guest outputs",
			Buckets: metrics.DurationBuckets,
		}, []string{"mode", "result"}),
	}
}

func (m *resolverMetrics) observe(mode, result string, d time.Duration) {
	m.duration.WithLabelValues(mode, result).Observe(d.Seconds())
}
