// Package errors provides standardized error handling patterns for semrelay.
//
// # Overview
//
// Errors fall into three classes: Transient (temporary, retryable), Invalid
// (bad input, do not retry) and Fatal (stop the run). The ingestion pipeline uses
// the classes to pick between skipping, retrying and aborting:
//
//   - Transient: timeouts, dropped connections, gateway 429/502/503/504 responses
//   - Invalid: malformed lines, events that fail validation, empty batches
//   - Fatal: missing or malformed configuration, rejected credentials
//
// # Error Wrapping Pattern
//
// All error wrapping follows the format:
//
//	"component.method: action failed: %w"
//
// Three wrapper functions attach a class while wrapping:
//
//	errors.WrapTransient(err, "Client", "IngestBatch", "send request")
//	errors.WrapInvalid(err, "Reader", "Next", "parse line")
//	errors.WrapFatal(err, "Config", "Validate", "api_key is required")
//
// The plain Wrap() adds context and keeps whatever class the wrapped error has.
//
// # Retry Decisions
//
// IsRetryable is a textual classifier over the error message. It is advisory and
// used by callers before they hand an operation to pkg/retry:
//
//	if err := c.Ingest(ctx, ev, ""); errors.IsRetryable(err) {
//	    err = retry.Do(ctx, retry.DefaultConfig(), func() error {
//	        return c.Ingest(ctx, ev, "")
//	    })
//	}
//
// The retry engine itself never consults the classifier.
//
// # Integration with errors.As/Is
//
// ClassifiedError implements Unwrap, so sentinel checks work through the chain:
//
//	wrapped := errors.WrapFatal(errors.ErrMissingConfig, "Config", "Validate", "api_key")
//	errors.IsFatal(wrapped)                         // true
//	stderrors.Is(wrapped, errors.ErrMissingConfig)  // true
package errors
