// Package sender delivers events to the ingestion gateway in bounded batches.
//
// Batches go out strictly one at a time in source order. Each batch is wrapped in
// the retry engine; a batch that exhausts its attempts is counted as failed and
// the sender moves on to the next one. Only context cancellation stops a run early.
package sender

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/c360/semrelay/config"
	"github.com/c360/semrelay/errors"
	"github.com/c360/semrelay/event"
	"github.com/c360/semrelay/metric"
	"github.com/c360/semrelay/pkg/retry"
)

// DefaultBatchSize is the number of events per request when none is configured
const DefaultBatchSize = config.DefaultBatchSize

// BatchPoster sends one batch to the gateway. *client.Client satisfies it.
type BatchPoster interface {
	IngestBatch(ctx context.Context, events []event.Event, pipelineID string) error
}

// BatchFailure describes one batch that could not be delivered
type BatchFailure struct {
	Index    int   // zero-based batch number
	Offset   int   // position of the batch's first event in the input
	Size     int   // number of events in the batch
	Attempts int   // attempts made before giving up
	Err      error // last error seen
}

// Result aggregates the outcome of a Send call
type Result struct {
	Batches   int // batches attempted
	Succeeded int // events in delivered batches
	Failed    int // events in batches that exhausted their retries
	Skipped   int // events never attempted because the run was cancelled

	Failures []BatchFailure
	Duration time.Duration
}

// FailedBatches returns the number of batches that were not delivered
func (r Result) FailedBatches() int {
	return len(r.Failures)
}

// OK reports whether every event was delivered
func (r Result) OK() bool {
	return r.Failed == 0 && r.Skipped == 0
}

// Progress is reported after every batch
type Progress struct {
	Batch     int
	Total     int
	Size      int
	Delivered bool
	Err       error
}

// Sender partitions events into batches and delivers them through a BatchPoster
type Sender struct {
	poster     BatchPoster
	batchSize  int
	retry      retry.Config
	limiter    *rate.Limiter
	logger     *slog.Logger
	registrar  metric.MetricsRegistrar
	metrics    *Metrics
	onProgress func(Progress)
}

// Option configures a Sender
type Option func(*Sender)

// WithBatchSize sets the number of events per request
func WithBatchSize(n int) Option {
	return func(s *Sender) {
		s.batchSize = n
	}
}

// WithRetryConfig replaces the per-batch retry policy
func WithRetryConfig(cfg retry.Config) Option {
	return func(s *Sender) {
		s.retry = cfg
	}
}

// WithRateLimit caps how many batches are started per second. Zero or less disables it.
func WithRateLimit(batchesPerSecond float64) Option {
	return func(s *Sender) {
		if batchesPerSecond <= 0 {
			s.limiter = nil
			return
		}
		s.limiter = rate.NewLimiter(rate.Limit(batchesPerSecond), 1)
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sender) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics registers sender metrics with the given registrar
func WithMetrics(registrar metric.MetricsRegistrar) Option {
	return func(s *Sender) {
		s.registrar = registrar
	}
}

// WithProgress installs a callback invoked after each batch completes
func WithProgress(fn func(Progress)) Option {
	return func(s *Sender) {
		s.onProgress = fn
	}
}

// FromConfig translates the tuning fields of cfg into sender options
func FromConfig(cfg *config.Config) []Option {
	if cfg == nil {
		return nil
	}
	return []Option{
		WithBatchSize(cfg.BatchSize),
		WithRateLimit(cfg.MaxBatchesPerSecond),
	}
}

// New creates a Sender that delivers through poster
func New(poster BatchPoster, opts ...Option) (*Sender, error) {
	if poster == nil {
		return nil, errors.WrapFatal(fmt.Errorf("nil poster"), "Sender", "New", "batch poster not provided")
	}

	s := &Sender{
		poster:    poster,
		batchSize: DefaultBatchSize,
		retry:     retry.DefaultConfig(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.batchSize < 1 || s.batchSize > config.MaxBatchSize {
		return nil, errors.WrapFatal(
			fmt.Errorf("%w: batch size %d outside 1..%d", errors.ErrInvalidConfig, s.batchSize, config.MaxBatchSize),
			"Sender", "New", "validate batch size")
	}
	if err := s.retry.Validate(); err != nil {
		return nil, errors.WrapFatal(err, "Sender", "New", "validate retry config")
	}

	metrics, err := newMetrics(s.registrar)
	if err != nil {
		return nil, errors.Wrap(err, "Sender", "New", "register metrics")
	}
	s.metrics = metrics

	return s, nil
}

// BatchSize returns the configured batch size
func (s *Sender) BatchSize() int {
	return s.batchSize
}

// Send delivers events in batches of BatchSize. Batch failures are recorded in the
// Result and never abort the run. The returned error is non-nil only for an empty
// input or when ctx is cancelled; in the latter case Result still describes every
// batch attempted so far.
func (s *Sender) Send(ctx context.Context, events []event.Event, pipelineID string) (result Result, err error) {
	if len(events) == 0 {
		return result, errors.WrapInvalid(errors.ErrEmptyBatch, "Sender", "Send", "check input")
	}

	started := time.Now()
	batches := Chunk(events, s.batchSize)
	defer func() {
		result.Duration = time.Since(started)
	}()

	s.logger.Debug("Sending events", "events", len(events), "batches", len(batches), "batch_size", s.batchSize)

	offset := 0
	for i, batch := range batches {
		if err = s.wait(ctx); err != nil {
			result.Skipped = len(events) - offset
			s.logger.Warn("Send cancelled", "batch", i+1, "remaining_events", result.Skipped)
			return result, errors.Wrap(err, "Sender", "Send", "wait for batch slot")
		}

		result.Batches++
		attempts, batchErr := s.sendBatch(ctx, i, batch, pipelineID)
		if batchErr == nil {
			result.Succeeded += len(batch)
		} else {
			result.Failed += len(batch)
			result.Failures = append(result.Failures, BatchFailure{
				Index:    i,
				Offset:   offset,
				Size:     len(batch),
				Attempts: attempts,
				Err:      batchErr,
			})
			s.logger.Error("Batch delivery failed",
				"batch", i+1, "size", len(batch), "attempts", attempts, "error", batchErr)
		}

		if s.onProgress != nil {
			s.onProgress(Progress{
				Batch:     i + 1,
				Total:     len(batches),
				Size:      len(batch),
				Delivered: batchErr == nil,
				Err:       batchErr,
			})
		}
		offset += len(batch)
	}

	s.logger.Info("Send complete",
		"batches", result.Batches,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"failed_batches", result.FailedBatches())
	return result, nil
}

func (s *Sender) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.limiter == nil {
		return nil
	}
	return s.limiter.Wait(ctx)
}

// sendBatch runs one batch through the retry engine and returns the attempts made
func (s *Sender) sendBatch(ctx context.Context, index int, batch []event.Event, pipelineID string) (int, error) {
	attempts := 0
	cfg := s.retry
	observer := cfg.OnRetry
	cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		s.metrics.retriesTotal.Inc()
		s.logger.Warn("Batch attempt failed, retrying",
			"batch", index+1, "attempt", attempt, "delay", delay, "error", err)
		if observer != nil {
			observer(attempt, delay, err)
		}
	}

	start := time.Now()
	err := retry.Do(ctx, cfg, func() error {
		attempts++
		return s.poster.IngestBatch(ctx, batch, pipelineID)
	})

	status := "success"
	if err != nil {
		status = "failure"
	}
	s.metrics.recordBatch(status, len(batch), time.Since(start).Seconds())
	return attempts, err
}

// Chunk splits events into consecutive slices of at most size elements. The
// slices share the backing array of events.
func Chunk(events []event.Event, size int) [][]event.Event {
	if size < 1 || len(events) == 0 {
		return nil
	}
	chunks := make([][]event.Event, 0, (len(events)+size-1)/size)
	for start := 0; start < len(events); start += size {
		end := start + size
		if end > len(events) {
			end = len(events)
		}
		chunks = append(chunks, events[start:end:end])
	}
	return chunks
}
