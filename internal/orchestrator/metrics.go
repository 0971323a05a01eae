package orchestrator

import (
	"NetVerdict/internal/model"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	flows         *prometheus.CounterVec
	verdicts      *prometheus.CounterVec
	batches       *prometheus.CounterVec
	batchDuration prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		flows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netverdict_flows_total",
			Help: "Flows processed, by outcome.",
		}, []string{"outcome"}),
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netverdict_verdicts_total",
			Help: "Verdicts produced, by risk level.",
		}, []string{"risk_level"}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netverdict_batches_total",
			Help: "Batches processed, by status.",
		}, []string{"status"}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "netverdict_batch_duration_seconds",
			Help:    "Wall time to score a batch, sink write included.",
			Buckets: prometheus.ExponentialBuckets(0.005, 4, 8),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.flows, m.verdicts, m.batches, m.batchDuration)
	}
	return m
}

func (m *metrics) observe(res *model.BatchResult) {
	m.flows.WithLabelValues("scored").Add(float64(res.Succeeded()))
	for _, f := range res.Failures {
		m.flows.WithLabelValues(string(f.Kind)).Inc()
	}
	for lvl, n := range res.Summary.ByRiskLevel {
		if n > 0 {
			m.verdicts.WithLabelValues(string(lvl)).Add(float64(n))
		}
	}
}
