// Package validation performs structural checks on events, batches, and pipeline
// definitions. Checks never modify their input; they only classify it into blocking
// errors and advisory warnings.
package validation

import (
	"fmt"
	"strings"

	"github.com/c360/semrelay/errors"
	"github.com/c360/semrelay/event"
)

// RecommendedMaxBatch is the batch size above which a warning is raised
const RecommendedMaxBatch = 1000

// Result collects the outcome of a validation pass. Errors block the operation;
// warnings are advisory.
type Result struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// NewResult returns an empty, valid result
func NewResult() Result {
	return Result{Valid: true}
}

// AddError records a blocking problem and marks the result invalid
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Valid = false
}

// AddWarning records an advisory problem
func (r *Result) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// Merge folds other into r, prefixing each message
func (r *Result) Merge(other Result, prefix string) {
	for _, e := range other.Errors {
		r.AddError(prefix + e)
	}
	for _, w := range other.Warnings {
		r.AddWarning(prefix + w)
	}
	if !other.Valid {
		r.Valid = false
	}
}

// Err converts an invalid result into a classified invalid error
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	return errors.WrapInvalid(
		fmt.Errorf("%w: %s", errors.ErrValidationFailed, strings.Join(r.Errors, "; ")),
		"Validator", "Validate", "structural validation")
}

// ValidateEvent checks that a single event carries the fields the gateway requires:
// an integer timestamp, a string source or event_type, and a data payload.
func ValidateEvent(ev event.Event) Result {
	result := NewResult()

	if !ev.IsObject() {
		result.AddError("Event must be a JSON object")
		return result
	}

	if !ev.Has(event.FieldTimestamp) {
		result.AddError("Missing required field: timestamp")
	} else if _, ok := ev.Timestamp(); !ok {
		result.AddError("Field 'timestamp' must be an integer")
	}

	hasSource := ev.Has(event.FieldSource)
	hasType := ev.Has(event.FieldEventType)
	switch {
	case !hasSource && !hasType:
		result.AddError("Missing required field: source or event_type")
	case hasSource && !isJSONString(ev.Field(event.FieldSource)):
		result.AddError("Field 'source' must be a string")
	case hasType && !isJSONString(ev.Field(event.FieldEventType)):
		result.AddError("Field 'event_type' must be a string")
	}

	if !ev.Has(event.FieldData) {
		result.AddError("Missing required field: data")
	}

	if ev.Has(event.FieldMetadata) {
		if _, ok := ev.Metadata(); !ok {
			result.AddWarning("Field 'metadata' should be an object")
		}
	}

	return result
}

// ValidateBatch validates every event and the batch as a whole. An empty batch is an
// error; one above RecommendedMaxBatch only warns. Per-event messages are prefixed
// with the event's index.
func ValidateBatch(events []event.Event) Result {
	result := NewResult()

	if len(events) == 0 {
		result.AddError("Batch cannot be empty")
		return result
	}

	if len(events) > RecommendedMaxBatch {
		result.AddWarning(fmt.Sprintf("Batch size %d exceeds recommended maximum of %d",
			len(events), RecommendedMaxBatch))
	}

	for i, ev := range events {
		result.Merge(ValidateEvent(ev), fmt.Sprintf("Event %d: ", i))
	}

	return result
}

func isJSONString(raw []byte) bool {
	return len(raw) > 0 && raw[0] == '"'
}
