// Package metric provides Prometheus metrics for semrelay.
//
// A MetricsRegistry wraps a private prometheus.Registry (no global state) holding the
// process-wide Metrics plus whatever components register through MetricsRegistrar.
// The sender and stream packages each register their own collectors under the
// "semrelay" namespace:
//
//	registry := metric.NewMetricsRegistry()
//	s, err := sender.New(poster, sender.WithMetrics(registry))
//
// Server exposes the registry for scraping, typically during long-running live
// sessions:
//
//	srv := metric.NewServer(":9090", "/metrics", registry)
//	if err := srv.Start(); err != nil {
//		return err
//	}
//	defer srv.Stop(5 * time.Second)
package metric
