// Package health provides the Status type reported by the gateway health endpoint and
// by local components such as the stream client.
//
// Statuses are plain values. Aggregate folds several checks into one:
//
//	overall := health.Aggregate("semrelay", []health.Status{
//		health.NewHealthy("config", "loaded"),
//		gatewayStatus,
//	})
//
// Messages derived from errors should go through Sanitize (or FromError) so that
// URLs, paths and credentials are not echoed to the console.
package health
