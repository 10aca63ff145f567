// Package retry provides exponential backoff retry logic for transient failures.
//
// # Overview
//
// Do runs an operation up to MaxAttempts times. After a failed attempt n it waits
// min(InitialDelay * Multiplier^(n-1), MaxDelay) and tries again. When every attempt
// fails it returns an *ExhaustedError holding the attempt count and the last error;
// earlier errors are dropped.
//
//   - Do: Execute function with retry and exponential backoff
//   - DoWithResult: Execute function with retry, returns both result and error
//
// # Configuration Presets
//
//   - DefaultConfig(): 3 attempts, 100ms-5s delay (batch delivery)
//   - Patient(): 3 attempts, 100ms-30s delay (single calls against a recovering gateway)
//
// # Usage Examples
//
//	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
//	    return client.IngestBatch(ctx, batch, pipelineID)
//	})
//
//	pipeline, err := retry.DoWithResult(ctx, retry.Patient(), func() (*client.Pipeline, error) {
//	    return c.GetPipeline(ctx, id)
//	})
//
// # What Gets Retried
//
// Everything. The engine has no notion of HTTP or error classes; callers that want
// to skip hopeless operations check errors.IsRetryable before calling Do.
//
// # Context Cancellation
//
// The backoff wait selects on ctx.Done(), so cancelling the run stops retrying
// immediately with an error wrapping ctx.Err().
//
// # Thread Safety
//
// All functions are safe for concurrent use. The jitter mechanism uses a mutex-guarded
// random source.
package retry
