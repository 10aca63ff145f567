package stream

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/semrelay/metric"
)

const componentName = "stream"

// Metrics holds Prometheus metrics for the stream client
type Metrics struct {
	connectionsTotal prometheus.Counter
	reconnectsTotal  prometheus.Counter
	messagesReceived *prometheus.CounterVec
	errorsTotal      *prometheus.CounterVec
	connectionState  prometheus.Gauge
}

// newMetrics creates stream metrics and registers them when a registrar is given
func newMetrics(registrar metric.MetricsRegistrar) (*Metrics, error) {
	m := &Metrics{
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: componentName,
			Name:      "connections_total",
			Help:      "Successful WebSocket dials",
		}),
		reconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: componentName,
			Name:      "reconnects_total",
			Help:      "Reconnect cycles after a dropped or failed connection",
		}),
		messagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: componentName,
			Name:      "messages_received_total",
			Help:      "Inbound frames by kind",
		}, []string{"type"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: componentName,
			Name:      "errors_total",
			Help:      "Stream errors by kind",
		}, []string{"type"}),
		connectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: componentName,
			Name:      "connection_state",
			Help:      "Current connection state (0 disconnected, 1 connecting, 2 authenticating, 3 streaming, 4 closed, 5 errored)",
		}),
	}

	if registrar == nil {
		return m, nil
	}

	if err := registrar.RegisterCounter(componentName, "connections_total", m.connectionsTotal); err != nil {
		return nil, err
	}
	if err := registrar.RegisterCounter(componentName, "reconnects_total", m.reconnectsTotal); err != nil {
		return nil, err
	}
	if err := registrar.RegisterCounterVec(componentName, "messages_received_total", m.messagesReceived); err != nil {
		return nil, err
	}
	if err := registrar.RegisterCounterVec(componentName, "errors_total", m.errorsTotal); err != nil {
		return nil, err
	}
	if err := registrar.RegisterGauge(componentName, "connection_state", m.connectionState); err != nil {
		return nil, err
	}
	return m, nil
}
