package log

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
)

// Record is one captured log call with its accumulated fields.
type Record struct {
	Level   Level
	Message string
	Fields  map[string]any
}

type recordSink struct {
	mu      sync.Mutex
	records []Record
}

// TestLogger keeps records in memory. Loggers derived through With share
// the same sink, so fold workers can log into one instance concurrently.
type TestLogger struct {
	sink   *recordSink
	level  *Level
	fields map[string]any
}

// NewTestLogger returns an empty recorder capturing level and above.
func NewTestLogger(level Level) *TestLogger {
	return &TestLogger{sink: &recordSink{}, level: &level, fields: map[string]any{}}
}

func (t *TestLogger) Debug(msg string, fields ...any) { t.record(LevelDebug, msg, fields) }
func (t *TestLogger) Info(msg string, fields ...any)  { t.record(LevelInfo, msg, fields) }
func (t *TestLogger) Warn(msg string, fields ...any)  { t.record(LevelWarn, msg, fields) }
func (t *TestLogger) Error(msg string, fields ...any) { t.record(LevelError, msg, fields) }

// With implements Logger.With.
func (t *TestLogger) With(fields ...any) Logger {
	return &TestLogger{sink: t.sink, level: t.level, fields: merge(t.fields, fields)}
}

// Enabled implements Logger.Enabled.
func (t *TestLogger) Enabled(_ context.Context, level Level) bool {
	return *t.level <= level
}

func (t *TestLogger) record(level Level, msg string, fields []any) {
	if *t.level > level {
		return
	}
	r := Record{Level: level, Message: msg, Fields: merge(t.fields, fields)}
	t.sink.mu.Lock()
	t.sink.records = append(t.sink.records, r)
	t.sink.mu.Unlock()
}

// merge copies base and adds key/value pairs. Errors are stored as their
// message so assertions can compare strings.
func merge(base map[string]any, kv []any) map[string]any {
	out := make(map[string]any, len(base)+len(kv)/2)
	for k, v := range base {
		out[k] = v
	}
	for i := 0; i+1 < len(kv); i += 2 {
		v := kv[i+1]
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		out[fmt.Sprint(kv[i])] = v
	}
	return out
}

// Records returns a snapshot of everything captured so far.
func (t *TestLogger) Records() []Record {
	t.sink.mu.Lock()
	defer t.sink.mu.Unlock()
	return append([]Record(nil), t.sink.records...)
}

// Matching returns the records whose message contains msg.
func (t *TestLogger) Matching(msg string) []Record {
	var out []Record
	for _, r := range t.Records() {
		if strings.Contains(r.Message, msg) {
			out = append(out, r)
		}
	}
	return out
}

// ContainsMessage reports whether any record message contains msg.
func (t *TestLogger) ContainsMessage(msg string) bool {
	return len(t.Matching(msg)) > 0
}

// ContainsField reports whether any record carries key with exactly value.
func (t *TestLogger) ContainsField(key string, value any) bool {
	for _, r := range t.Records() {
		if v, ok := r.Fields[key]; ok && v == value {
			return true
		}
	}
	return false
}

// Clear drops the captured records.
func (t *TestLogger) Clear() {
	t.sink.mu.Lock()
	t.sink.records = nil
	t.sink.mu.Unlock()
}

// TestLoggerProvider hands out recorders that share one sink.
type TestLoggerProvider struct {
	*TestLogger
}

// NewTestLoggerProvider returns a provider capturing level and above.
func NewTestLoggerProvider(level Level) *TestLoggerProvider {
	return &TestLoggerProvider{TestLogger: NewTestLogger(level)}
}

// GetLogger implements LoggerProvider.GetLogger.
func (p *TestLoggerProvider) GetLogger() Logger {
	return p.TestLogger
}

// GetLoggerWithName implements LoggerProvider.GetLoggerWithName.
func (p *TestLoggerProvider) GetLoggerWithName(name string) Logger {
	return p.With(ComponentKey, name)
}

// SetLevel implements LoggerProvider.SetLevel.
func (p *TestLoggerProvider) SetLevel(level Level) {
	*p.level = level
}

// Capture installs a recording provider as the process-wide provider for
// the duration of tb. Tests using it must not run in parallel.
func Capture(tb testing.TB, level Level) *TestLoggerProvider {
	tb.Helper()
	prev := Provider()
	p := NewTestLoggerProvider(level)
	SetProvider(p)
	tb.Cleanup(func() { SetProvider(prev) })
	return p
}
