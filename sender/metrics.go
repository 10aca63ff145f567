package sender

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/semrelay/metric"
)

const componentName = "sender"

// Metrics holds Prometheus metrics for the batch sender
type Metrics struct {
	batchesTotal  *prometheus.CounterVec
	eventsTotal   *prometheus.CounterVec
	retriesTotal  prometheus.Counter
	batchDuration prometheus.Histogram
}

// newMetrics creates sender metrics and registers them when a registrar is given
func newMetrics(registrar metric.MetricsRegistrar) (*Metrics, error) {
	m := &Metrics{
		batchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metric.Namespace,
				Subsystem: componentName,
				Name:      "batches_total",
				Help:      "Batches delivered to the gateway by final outcome",
			},
			[]string{"status"},
		),
		eventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metric.Namespace,
				Subsystem: componentName,
				Name:      "events_total",
				Help:      "Events delivered to the gateway by final outcome",
			},
			[]string{"status"},
		),
		retriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metric.Namespace,
				Subsystem: componentName,
				Name:      "retries_total",
				Help:      "Batch delivery attempts that failed and were retried",
			},
		),
		batchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metric.Namespace,
				Subsystem: componentName,
				Name:      "batch_duration_seconds",
				Help:      "Time spent delivering one batch, retries included",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
		),
	}

	if registrar == nil {
		return m, nil
	}

	if err := registrar.RegisterCounterVec(componentName, "batches_total", m.batchesTotal); err != nil {
		return nil, err
	}
	if err := registrar.RegisterCounterVec(componentName, "events_total", m.eventsTotal); err != nil {
		return nil, err
	}
	if err := registrar.RegisterCounter(componentName, "retries_total", m.retriesTotal); err != nil {
		return nil, err
	}
	if err := registrar.RegisterHistogram(componentName, "batch_duration_seconds", m.batchDuration); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) recordBatch(status string, size int, seconds float64) {
	m.batchesTotal.WithLabelValues(status).Inc()
	m.eventsTotal.WithLabelValues(status).Add(float64(size))
	m.batchDuration.Observe(seconds)
}
