// Package semrelay is a client toolkit for a remote event-ingestion gateway.
// It moves newline-delimited JSON events from local files into the gateway over
// HTTP and holds live WebSocket sessions with it.
//
// # Architecture
//
// Data flows one way through small packages, each usable on its own:
//
//	io.Reader ──► event.Reader ──► validation.ValidateBatch ──► sender.Sender ──► client.Client ──► gateway
//	                                                                 │
//	                                                           pkg/retry.Do
//
//	gateway ──► stream.Client ──► EventSink
//
// The ingest package composes the first pipeline for the "semrelay stream"
// command. Everything the commands share is built once in cmd/semrelay and
// passed down explicitly: the resolved config.Config, a *slog.Logger, and an
// optional metric.MetricsRegistry.
//
// # Packages
//
//   - event: raw JSON events that keep their exact bytes, plus the line reader
//   - validation: structural checks for events, batches, and pipeline definitions
//   - pkg/retry: bounded exponential backoff with jitter
//   - sender: splits events into batches and delivers each with retries
//   - client: HTTP access to the gateway (ingest, pipelines, health)
//   - stream: WebSocket session with authentication, keepalive, and reconnects
//   - config: layered configuration and stored workspace profiles
//   - errors: transient, invalid, and fatal error classification
//   - health: component status values shared by status reporting
//   - metric: Prometheus registry and the optional metrics endpoint
//   - pkg/tlsutil: custom CAs and client certificates for self-hosted gateways
//
// # Error Handling
//
// Every package wraps failures with errors.Wrap and friends so callers can ask
// errors.IsTransient, errors.IsInvalid, or errors.IsFatal instead of matching
// strings. A failed batch never aborts a send; a bad configuration always does.
//
// # Concurrency
//
// Sends are sequential and preserve input order. The stream client runs one
// session at a time and stops when its context is cancelled.
package semrelay
