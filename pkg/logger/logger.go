package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

// Logger is the logging interface used across the enrichment pipeline.
type Logger interface {
	Info(msg string, obj any)
	Warn(msg string, obj any)
	Debug(msg string, obj any)
	Error(msg string, obj any)
}

// NopLogger discards all log messages.
type NopLogger struct{}

func (NopLogger) Info(string, any)  {}
func (NopLogger) Warn(string, any)  {}
func (NopLogger) Debug(string, any) {}
func (NopLogger) Error(string, any) {}

type writerLogger struct {
	mu    *sync.Mutex
	w     io.Writer
	debug bool
	now   func() time.Time
}

// NewWriterLogger builds a logger that writes one line per message to w.
// Debug messages are dropped unless debug is true.
func NewWriterLogger(w io.Writer, debug bool) Logger {
	return writerLogger{mu: &sync.Mutex{}, w: w, debug: debug, now: time.Now}
}

func (l writerLogger) write(level, msg string, obj any) {
	if l.w == nil {
		return
	}
	ts := l.now().Format(time.RFC3339)

	l.mu.Lock()
	defer l.mu.Unlock()
	if obj == nil {
		_, _ = fmt.Fprintf(l.w, "%s %-5s %s\n", ts, level, msg)
		return
	}

	b, err := json.Marshal(obj)
	if err != nil {
		_, _ = fmt.Fprintf(l.w, "%s %-5s %s obj=%q\n", ts, level, msg, fmt.Sprintf("%+v", obj))
		return
	}
	_, _ = fmt.Fprintf(l.w, "%s %-5s %s obj=%s\n", ts, level, msg, string(b))
}

func (l writerLogger) Info(msg string, obj any)  { l.write("INFO", msg, obj) }
func (l writerLogger) Warn(msg string, obj any)  { l.write("WARN", msg, obj) }
func (l writerLogger) Error(msg string, obj any) { l.write("ERROR", msg, obj) }

func (l writerLogger) Debug(msg string, obj any) {
	if !l.debug {
		return
	}
	l.write("DEBUG", msg, obj)
}

type fieldLogger struct {
	next   Logger
	fields map[string]any
}

// With returns a logger that merges fields into every map payload it logs.
// Non-map payloads are nested under "obj".
func With(l Logger, fields map[string]any) Logger {
	if l == nil {
		l = NopLogger{}
	}
	merged := make(map[string]any, len(fields))
	if fl, ok := l.(fieldLogger); ok {
		for k, v := range fl.fields {
			merged[k] = v
		}
		l = fl.next
	}
	for k, v := range fields {
		merged[k] = v
	}
	return fieldLogger{next: l, fields: merged}
}

func (l fieldLogger) merge(obj any) any {
	out := make(map[string]any, len(l.fields)+1)
	for k, v := range l.fields {
		out[k] = v
	}
	switch v := obj.(type) {
	case nil:
	case map[string]any:
		for k, val := range v {
			out[k] = val
		}
	default:
		out["obj"] = v
	}
	return out
}

func (l fieldLogger) Info(msg string, obj any)  { l.next.Info(msg, l.merge(obj)) }
func (l fieldLogger) Warn(msg string, obj any)  { l.next.Warn(msg, l.merge(obj)) }
func (l fieldLogger) Debug(msg string, obj any) { l.next.Debug(msg, l.merge(obj)) }
func (l fieldLogger) Error(msg string, obj any) { l.next.Error(msg, l.merge(obj)) }

// Debug writes a debug log when enabled and logger is non-nil.
func Debug(enabled bool, logger Logger, msg string, obj any) {
	if !enabled || logger == nil {
		return
	}
	logger.Debug(msg, obj)
}
