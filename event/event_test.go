package event

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semrelay/errors"
)

func TestParse_Object(t *testing.T) {
	ev, err := Parse([]byte(`  {"timestamp": 1700000000, "source": "sensor-1", "data": {"v": 1}}  `))
	require.NoError(t, err)

	assert.True(t, ev.IsObject())
	assert.False(t, ev.IsZero())
	assert.Equal(t, `{"timestamp":1700000000,"source":"sensor-1","data":{"v":1}}`, ev.String())

	ts, ok := ev.Timestamp()
	assert.True(t, ok)
	assert.Equal(t, int64(1700000000), ts)
	assert.Equal(t, "sensor-1", ev.Source())
	assert.Equal(t, "", ev.Type())
	assert.JSONEq(t, `{"v":1}`, string(ev.Data()))
	assert.True(t, ev.Has(FieldData))
	assert.False(t, ev.Has(FieldMetadata))
}

func TestParse_NonObject(t *testing.T) {
	for _, input := range []string{`[1,2]`, `"text"`, `42`, `null`} {
		t.Run(input, func(t *testing.T) {
			ev, err := Parse([]byte(input))
			require.NoError(t, err)
			assert.False(t, ev.IsObject())
			assert.Equal(t, input, ev.String())
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte(`{"timestamp": `))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	_, err = Parse([]byte("   "))
	assert.ErrorIs(t, err, ErrEmptyData)
}

func TestTimestamp_NotInteger(t *testing.T) {
	tests := []string{
		`{"timestamp": "2024-01-01"}`,
		`{"timestamp": 1.5}`,
		`{"timestamp": null}`,
		`{}`,
	}
	for _, input := range tests {
		ev, err := Parse([]byte(input))
		require.NoError(t, err)
		_, ok := ev.Timestamp()
		assert.False(t, ok, input)
	}
}

func TestMetadata(t *testing.T) {
	ev, err := Parse([]byte(`{"metadata": {"region": "eu"}}`))
	require.NoError(t, err)
	md, ok := ev.Metadata()
	require.True(t, ok)
	assert.Equal(t, "eu", md["region"])

	ev, err = Parse([]byte(`{"metadata": "flat"}`))
	require.NoError(t, err)
	_, ok = ev.Metadata()
	assert.False(t, ok)
}

func TestNew(t *testing.T) {
	before := time.Now().Unix()
	ev, err := New("page_view", map[string]any{"path": "/"}, map[string]any{"tag": "a"})
	require.NoError(t, err)

	ts, ok := ev.Timestamp()
	require.True(t, ok)
	assert.GreaterOrEqual(t, ts, before)
	assert.Equal(t, "page_view", ev.Type())
	assert.JSONEq(t, `{"path":"/"}`, string(ev.Data()))

	md, ok := ev.Metadata()
	require.True(t, ok)
	assert.Equal(t, "a", md["tag"])
}

func TestNew_NilData(t *testing.T) {
	ev, err := New("ping", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(ev.Data()))
	assert.False(t, ev.Has(FieldMetadata))
}

func TestEncodeBatch_PreservesBytesAndOrder(t *testing.T) {
	lines := []string{
		`{"timestamp":1,"source":"a","data":{"html":"<b>&</b>"}}`,
		`{"timestamp":2,"source":"b","data":{"z":1,"a":2}}`,
		`{"timestamp":3,"source":"c","data":[]}`,
	}
	var events []Event
	for _, l := range lines {
		ev, err := Parse([]byte(l))
		require.NoError(t, err)
		events = append(events, ev)
	}

	payload, err := EncodeBatch(events)
	require.NoError(t, err)
	assert.Equal(t, "["+lines[0]+","+lines[1]+","+lines[2]+"]", string(payload))

	var decoded []json.RawMessage
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Len(t, decoded, 3)
}

func TestEncodeBatch_Empty(t *testing.T) {
	payload, err := EncodeBatch(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(payload))

	_, err = EncodeBatch([]Event{{}})
	assert.True(t, errors.IsInvalid(err))
}

func TestUnmarshalJSON(t *testing.T) {
	var events []Event
	require.NoError(t, json.Unmarshal([]byte(`[{"source":"x","data":1}, 7]`), &events))
	require.Len(t, events, 2)
	assert.Equal(t, "x", events[0].Source())
	assert.False(t, events[1].IsObject())
}

func TestSign(t *testing.T) {
	ev, err := Parse([]byte(`{"timestamp": 10, "event_type": "click", "data": {"x": 1}}`))
	require.NoError(t, err)

	sig, err := Sign(ev)
	require.NoError(t, err)
	assert.Equal(t, "click", sig.EventType)
	assert.Equal(t, int64(10), sig.Timestamp)
	assert.Equal(t, Digest([]byte(`{"x":1}`)), sig.DataHash)
	assert.Len(t, sig.DataHash, 64)

	other, err := Parse([]byte(`{"timestamp": 10, "event_type": "click", "data": {"x": 2}}`))
	require.NoError(t, err)
	otherSig, err := Sign(other)
	require.NoError(t, err)
	assert.NotEqual(t, sig.DataHash, otherSig.DataHash)

	scalar, err := Parse([]byte(`5`))
	require.NoError(t, err)
	_, err = Sign(scalar)
	assert.Error(t, err)
}
