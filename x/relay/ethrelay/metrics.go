package ethrelay

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/compose-network/bonsai-relay/metrics"
)

type relayMetrics struct {
	callbacks   *prometheus.CounterVec
	connected   prometheus.Gauge
	reconnects  prometheus.Counter
	lastBlock   prometheus.Gauge
	payloadSize prometheus.Histogram
}

func newRelayMetrics() *relayMetrics {
	reg := metrics.NewComponentRegistry("bonsai_relay", "relay")
	return &relayMetrics{
		callbacks: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "callbacks_total",
			Help: "Callback requests by outcome",
		}, []string{"result"}),
		connected: reg.NewGauge(prometheus.GaugeOpts{
			Name: "connected",
			Help: "1 while subscribed to relay contract logs",
		}),
		reconnects: reg.NewCounter(prometheus.CounterOpts{
			Name: "reconnects_total",
			Help: "Subscription drops followed by a re-dial",
		}),
		lastBlock: reg.NewGauge(prometheus.GaugeOpts{
			Name: "last_request_block",
			Help: "Block number of the last callback request seen",
		}),
		payloadSize: reg.NewHistogram(prometheus.HistogramOpts{
			Name:    "callback_payload_bytes",
			Help:    "Size of submitted callback payloads",
			Buckets: metrics.SizeBuckets,
		}),
	}
}
