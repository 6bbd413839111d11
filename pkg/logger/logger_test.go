package logger

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(buf *bytes.Buffer, debug bool) Logger {
	l := NewWriterLogger(buf, debug).(writerLogger)
	l.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return l
}

func TestWriterLoggerFormatsObject(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf, false)

	l.Info("entry created", map[string]any{"id": "m1"})

	assert.Equal(t, "2024-05-01T12:00:00Z INFO  entry created obj={\"id\":\"m1\"}\n", buf.String())
}

func TestWriterLoggerDropsDebugUnlessEnabled(t *testing.T) {
	var buf bytes.Buffer
	newTestLogger(&buf, false).Debug("sent", nil)
	assert.Empty(t, buf.String())

	newTestLogger(&buf, true).Debug("sent", nil)
	assert.Contains(t, buf.String(), "DEBUG sent")
}

func TestWithMergesFields(t *testing.T) {
	var buf bytes.Buffer
	l := With(With(newTestLogger(&buf, false), map[string]any{"run_id": "r1"}), map[string]any{"item": "m1"})

	l.Warn("item failed", map[string]any{"error": "boom"})

	line := buf.String()
	require.True(t, strings.HasPrefix(line, "2024-05-01T12:00:00Z WARN "), line)
	assert.Contains(t, line, `"run_id":"r1"`)
	assert.Contains(t, line, `"item":"m1"`)
	assert.Contains(t, line, `"error":"boom"`)
}

func TestWithNestsNonMapPayload(t *testing.T) {
	var buf bytes.Buffer
	l := With(newTestLogger(&buf, false), map[string]any{"run_id": "r1"})

	l.Info("terms", []string{"a", "b"})

	assert.Contains(t, buf.String(), `"obj":["a","b"]`)
}

func TestDebugToleratesNilLogger(t *testing.T) {
	Debug(true, nil, "x", nil)
}
