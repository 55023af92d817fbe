package httpmw

import (
	"context"
	"net/http"
	"sync"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/tfmkt/transfermarkt-api/internal/log"
)

type capturedLog struct {
	level  string
	msg    string
	err    error
	fields []any
}

// flatLogger records every call and returns itself from With so all
// records land in one place.
type flatLogger struct {
	mu    sync.Mutex
	logs  []capturedLog
	withs [][]any
}

func newFlatLogger() *flatLogger { return &flatLogger{} }

func (l *flatLogger) With(kv ...any) log.Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.withs = append(l.withs, kv)
	return l
}

func (l *flatLogger) add(c capturedLog) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logs = append(l.logs, c)
}

func (l *flatLogger) Debug(_ context.Context, msg string, kv ...any) {
	l.add(capturedLog{level: "debug", msg: msg, fields: kv})
}
func (l *flatLogger) Info(_ context.Context, msg string, kv ...any) {
	l.add(capturedLog{level: "info", msg: msg, fields: kv})
}
func (l *flatLogger) Warn(_ context.Context, msg string, kv ...any) {
	l.add(capturedLog{level: "warn", msg: msg, fields: kv})
}
func (l *flatLogger) Error(_ context.Context, err error, msg string, kv ...any) {
	l.add(capturedLog{level: "error", msg: msg, err: err, fields: kv})
}
func (l *flatLogger) Sync() error { return nil }

func (l *flatLogger) last() (capturedLog, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.logs) == 0 {
		return capturedLog{}, false
	}
	return l.logs[len(l.logs)-1], true
}

func (l *flatLogger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.logs)
}

func (l *flatLogger) withValue(key string) (any, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, kv := range l.withs {
		if v, ok := fieldValue(kv, key); ok {
			return v, true
		}
	}
	return nil, false
}

func fieldValue(fields []any, key string) (any, bool) {
	for i := 0; i+1 < len(fields); i += 2 {
		if k, ok := fields[i].(string); ok && k == key {
			return fields[i+1], true
		}
	}
	return nil, false
}

// newRecordingSpan returns a context carrying a real recording span.
func newRecordingSpan(t *testing.T, name string) (context.Context, *tracetest.SpanRecorder) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, _ := tp.Tracer("test").Start(context.Background(), name)
	return ctx, sr
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}
