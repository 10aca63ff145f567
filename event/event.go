// Package event provides the ingestion event type and a line-oriented reader that
// turns newline-delimited JSON into events.
package event

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/c360/semrelay/errors"
)

// Well-known event field names
const (
	FieldTimestamp = "timestamp"
	FieldSource    = "source"
	FieldEventType = "event_type"
	FieldData      = "data"
	FieldMetadata  = "metadata"
)

// ErrEmptyData is returned when parsing an empty or whitespace-only input
var ErrEmptyData = stderrors.New("empty data")

// Event is one structured record read from an input source or received from the
// gateway. The compact JSON form of the original input is kept verbatim so the event
// can be relayed without re-encoding; the top-level fields are indexed for validation.
//
// Events are immutable once parsed.
type Event struct {
	raw    json.RawMessage
	fields map[string]json.RawMessage
}

// Parse decodes one JSON document into an Event. Any valid JSON value is accepted;
// whether it is a well-formed event is decided by the validation package.
func Parse(data []byte) (Event, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Event{}, ErrEmptyData
	}

	var syntax json.RawMessage
	if err := json.Unmarshal(trimmed, &syntax); err != nil {
		return Event{}, errors.WrapInvalid(err, "Event", "Parse", "json parsing")
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return Event{}, errors.WrapInvalid(err, "Event", "Parse", "json compaction")
	}

	ev := Event{raw: buf.Bytes()}
	if ev.raw[0] == '{' {
		if err := json.Unmarshal(ev.raw, &ev.fields); err != nil {
			return Event{}, errors.WrapInvalid(err, "Event", "Parse", "index fields")
		}
	}
	return ev, nil
}

// record is the canonical field order used when constructing events in code
type record struct {
	Timestamp int64          `json:"timestamp"`
	EventType string         `json:"event_type"`
	Data      any            `json:"data"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// New builds an event stamped with the current time in seconds.
func New(eventType string, data any, metadata map[string]any) (Event, error) {
	if data == nil {
		data = map[string]any{}
	}
	encoded, err := json.Marshal(record{
		Timestamp: time.Now().Unix(),
		EventType: eventType,
		Data:      data,
		Metadata:  metadata,
	})
	if err != nil {
		return Event{}, errors.WrapInvalid(err, "Event", "New", "encode event")
	}
	return Parse(encoded)
}

// IsZero reports whether the event was never populated
func (e Event) IsZero() bool {
	return len(e.raw) == 0
}

// IsObject reports whether the event is a JSON object
func (e Event) IsObject() bool {
	return e.fields != nil
}

// Has reports whether the top-level field is present
func (e Event) Has(name string) bool {
	_, ok := e.fields[name]
	return ok
}

// Field returns the raw JSON of a top-level field, or nil
func (e Event) Field(name string) json.RawMessage {
	return e.fields[name]
}

// Timestamp returns the timestamp field when it is an integer
func (e Event) Timestamp() (int64, bool) {
	raw, ok := e.fields[FieldTimestamp]
	// json.Number also accepts quoted numerals
	if !ok || len(raw) == 0 || raw[0] == '"' {
		return 0, false
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, false
	}
	ts, err := n.Int64()
	if err != nil {
		return 0, false
	}
	return ts, true
}

// Source returns the source field when it is a string
func (e Event) Source() string {
	return e.stringField(FieldSource)
}

// Type returns the event_type field when it is a string
func (e Event) Type() string {
	return e.stringField(FieldEventType)
}

// Data returns the raw data payload
func (e Event) Data() json.RawMessage {
	return e.fields[FieldData]
}

// Metadata returns the metadata map when present and an object
func (e Event) Metadata() (map[string]any, bool) {
	raw, ok := e.fields[FieldMetadata]
	if !ok {
		return nil, false
	}
	var md map[string]any
	if err := json.Unmarshal(raw, &md); err != nil || md == nil {
		return nil, false
	}
	return md, true
}

func (e Event) stringField(name string) string {
	raw, ok := e.fields[name]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// Bytes returns the compact JSON encoding. Callers must not modify it.
func (e Event) Bytes() []byte {
	return e.raw
}

// String returns the compact JSON encoding
func (e Event) String() string {
	return string(e.raw)
}

// MarshalJSON returns the stored encoding. Note that encoding/json escapes HTML
// characters in marshaler output; use EncodeBatch for the exact wire form.
func (e Event) MarshalJSON() ([]byte, error) {
	if e.IsZero() {
		return []byte("null"), nil
	}
	return e.raw, nil
}

// UnmarshalJSON parses data into the event
func (e *Event) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

// EncodeBatch encodes events as a JSON array, reproducing each event's bytes exactly
// and preserving order.
func EncodeBatch(events []Event) ([]byte, error) {
	size := 2
	for _, ev := range events {
		size += len(ev.raw) + 1
	}

	buf := bytes.NewBuffer(make([]byte, 0, size))
	buf.WriteByte('[')
	for i, ev := range events {
		if ev.IsZero() {
			return nil, errors.WrapInvalid(errors.ErrInvalidData, "Event", "EncodeBatch",
				"encode empty event")
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(ev.raw)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}
