// Package metrics holds the prometheus collectors of the carousing service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "carousing"

type Metrics struct {
	Mutations  *prometheus.CounterVec
	Rejections *prometheus.CounterVec
	Rolls      *prometheus.CounterVec
	Skipped    *prometheus.CounterVec
	Online     prometheus.Gauge
}

// New registers the collectors on reg. Every engine gets its own registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		Mutations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Committed session mutations by operation.",
		}, []string{"op"}),
		Rejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejections_total",
			Help:      "Rejected operations by operation and reason.",
		}, []string{"op", "reason"}),
		Rolls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rolls_total",
			Help:      "Resolved participant rolls by table mode.",
		}, []string{"mode"}),
		Skipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_participants_total",
			Help:      "Participants skipped during roll execution.",
		}, []string{"reason"}),
		Online: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_users",
			Help:      "Users with a live overlay connection.",
		}),
	}
}
