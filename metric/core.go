package metric

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/semrelay/errors"
)

// Namespace prefixes every semrelay metric
const Namespace = "semrelay"

// Metrics contains process-wide metrics shared by all components
type Metrics struct {
	BuildInfo   *prometheus.GaugeVec
	ErrorsTotal *prometheus.CounterVec
}

// NewMetrics creates the process-wide metrics
func NewMetrics() *Metrics {
	return &Metrics{
		BuildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "build_info",
				Help:      "Build information, always 1",
			},
			[]string{"version"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "errors_total",
				Help:      "Total number of errors by component and error class",
			},
			[]string{"component", "class"},
		),
	}
}

// SetBuildInfo records the running version
func (m *Metrics) SetBuildInfo(version string) {
	m.BuildInfo.WithLabelValues(version).Set(1)
}

// RecordError counts an error under its classification
func (m *Metrics) RecordError(component string, err error) {
	if err == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(component, errors.Classify(err).String()).Inc()
}
