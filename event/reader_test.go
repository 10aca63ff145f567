package event

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReader_SkipsBlankLines(t *testing.T) {
	input := "{\"source\":\"a\"}\n\n   \n{\"source\":\"b\"}\n"

	events, parseErrors, err := ReadAll(strings.NewReader(input), WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Equal(t, 0, parseErrors)
	require.Len(t, events, 2)
	assert.Equal(t, "a", events[0].Source())
	assert.Equal(t, "b", events[1].Source())
}

func TestReader_CountsMalformedLines(t *testing.T) {
	var logBuf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logBuf, nil))

	input := strings.Join([]string{
		`{"source":"a"}`,
		`{not json`,
		`{"source":"b"}`,
		`[1,2`,
		`{"source":"c"}`,
	}, "\n")

	rd := NewReader(strings.NewReader(input), WithLogger(logger))
	var sources []string
	for rd.Next() {
		sources = append(sources, rd.Event().Source())
	}

	require.NoError(t, rd.Err())
	assert.Equal(t, []string{"a", "b", "c"}, sources)
	assert.Equal(t, 2, rd.ParseErrors())
	assert.Equal(t, 5, rd.Lines())
	assert.Contains(t, logBuf.String(), "Skipping malformed line")
	assert.Contains(t, logBuf.String(), "line=2")
}

func TestReader_LastLineWithoutNewline(t *testing.T) {
	events, _, err := ReadAll(strings.NewReader(`{"source":"only"}`), WithLogger(quietLogger()))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "only", events[0].Source())
}

func TestReader_CRLF(t *testing.T) {
	events, parseErrors, err := ReadAll(strings.NewReader("{\"source\":\"a\"}\r\n{\"source\":\"b\"}\r\n"),
		WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Equal(t, 0, parseErrors)
	assert.Len(t, events, 2)
}

func TestReader_EmptyInput(t *testing.T) {
	events, parseErrors, err := ReadAll(strings.NewReader(""), WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, 0, parseErrors)
}

func TestReader_LongLine(t *testing.T) {
	big := strings.Repeat("x", 256*1024)
	input := `{"source":"big","data":"` + big + `"}` + "\n"

	events, _, err := ReadAll(strings.NewReader(input), WithLogger(quietLogger()))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "big", events[0].Source())
}

type failingReader struct{ sent bool }

func (f *failingReader) Read(p []byte) (int, error) {
	if !f.sent {
		f.sent = true
		return copy(p, "{\"source\":\"a\"}\n"), nil
	}
	return 0, io.ErrUnexpectedEOF
}

func TestReader_ReadError(t *testing.T) {
	events, _, err := ReadAll(&failingReader{}, WithLogger(quietLogger()))
	require.Error(t, err)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Len(t, events, 1)
}

func TestReader_RoundTrip(t *testing.T) {
	lines := []string{
		`{"timestamp":1,"source":"s","data":{"k":"v"}}`,
		`{"timestamp":2,"event_type":"e","data":null,"metadata":{"m":true}}`,
	}
	events, _, err := ReadAll(strings.NewReader(strings.Join(lines, "\n")), WithLogger(quietLogger()))
	require.NoError(t, err)

	payload, err := EncodeBatch(events)
	require.NoError(t, err)
	assert.Equal(t, "["+strings.Join(lines, ",")+"]", string(payload))
}
