package event

import (
	"encoding/hex"
	"encoding/json"

	"github.com/zeebo/blake3"

	"github.com/c360/semrelay/errors"
)

// Signature is the compact fingerprint of an event used for integrity checks
type Signature struct {
	EventType string `json:"event_type"`
	Timestamp int64  `json:"timestamp"`
	DataHash  string `json:"data_hash"`
}

// Digest returns the hex-encoded BLAKE3 hash of b
func Digest(b []byte) string {
	sum := blake3.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Sign fingerprints an event by hashing its compact data payload.
// Events without a data field hash the JSON literal null.
func Sign(e Event) (Signature, error) {
	if !e.IsObject() {
		return Signature{}, errors.WrapInvalid(errors.ErrInvalidData, "Event", "Sign",
			"sign non-object event")
	}

	data := e.Data()
	if data == nil {
		data = json.RawMessage("null")
	}

	ts, _ := e.Timestamp()
	eventType := e.Type()
	if eventType == "" {
		eventType = e.Source()
	}

	return Signature{
		EventType: eventType,
		Timestamp: ts,
		DataHash:  Digest(data),
	}, nil
}
