package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the pipeline collectors. A nil *Metrics records nothing.
type Metrics struct {
	payloads prometheus.Counter
	tasks    *prometheus.CounterVec
	duration prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		payloads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "meetingrelay",
			Name:      "payloads_received_total",
			Help:      "Webhook payloads stored.",
		}),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meetingrelay",
			Name:      "tasks_forwarded_total",
			Help:      "Delivery attempts to the downstream webhook by result.",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "meetingrelay",
			Name:      "forward_duration_seconds",
			Help:      "Duration of downstream delivery attempts.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.payloads, m.tasks, m.duration)
	return m
}

func (m *Metrics) PayloadStored() {
	if m == nil {
		return
	}
	m.payloads.Inc()
}

func (m *Metrics) TaskForwarded(success bool, took time.Duration) {
	if m == nil {
		return
	}
	result := "failure"
	if success {
		result = "success"
	}
	m.tasks.WithLabelValues(result).Inc()
	m.duration.Observe(took.Seconds())
}
