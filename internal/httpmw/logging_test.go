package httpmw

import (
	"bufio"
	"crypto/tls"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/trace"

	"github.com/tfmkt/transfermarkt-api/internal/log"
)

type hijackRecorder struct {
	*httptest.ResponseRecorder
	hijacked bool
}

func (h *hijackRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h.hijacked = true
	return nil, nil, nil
}

func TestStatusRecorder_FirstStatusWins(t *testing.T) {
	rw := &statusRecorder{ResponseWriter: httptest.NewRecorder()}
	rw.WriteHeader(http.StatusTeapot)
	rw.WriteHeader(http.StatusOK)
	if rw.statusCode() != http.StatusTeapot {
		t.Fatalf("status = %d", rw.statusCode())
	}
}

func TestStatusRecorder_WriteDefaultsTo200AndCounts(t *testing.T) {
	rw := &statusRecorder{ResponseWriter: httptest.NewRecorder()}
	_, _ = rw.Write([]byte("hello"))
	_, _ = rw.Write([]byte(" world"))
	if rw.statusCode() != http.StatusOK || rw.bytes != 11 {
		t.Fatalf("status = %d bytes = %d", rw.statusCode(), rw.bytes)
	}
}

func TestStatusRecorder_Hijack(t *testing.T) {
	inner := &hijackRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw := &statusRecorder{ResponseWriter: inner}
	if _, _, err := rw.Hijack(); err != nil || !inner.hijacked {
		t.Fatalf("hijack err = %v hijacked = %v", err, inner.hijacked)
	}

	plain := &statusRecorder{ResponseWriter: httptest.NewRecorder()}
	if _, _, err := plain.Hijack(); err == nil {
		t.Fatal("expected error when the writer cannot hijack")
	}
}

func TestStatusRecorder_WriteSpan(t *testing.T) {
	ctx, sr := newRecordingSpan(t, "server")
	rw := &statusRecorder{ResponseWriter: httptest.NewRecorder(), ctx: ctx}
	rw.WriteHeader(http.StatusAccepted)
	_, _ = rw.Write([]byte("x"))
	rw.endWrite()
	trace.SpanFromContext(ctx).End()

	names := map[string]bool{}
	for _, s := range sr.Ended() {
		names[s.Name()] = true
	}
	if !names["response.write"] {
		t.Fatalf("spans = %v, want a response.write child", names)
	}
}

func TestSchemeFromRequest(t *testing.T) {
	tests := []struct {
		name  string
		proto string
		tls   bool
		want  string
	}{
		{"default", "", false, "http"},
		{"tls", "", true, "https"},
		{"forwarded https", "https", false, "https"},
		{"forwarded case", "HTTPS", false, "https"},
		{"forwarded list", "https, http", false, "https"},
		{"forwarded junk ignored", "javascript", false, "http"},
		{"forwarded junk with tls", "gopher", true, "https"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
			if tt.proto != "" {
				r.Header.Set("X-Forwarded-Proto", tt.proto)
			}
			if tt.tls {
				r.TLS = &tls.ConnectionState{}
			}
			if got := schemeFromRequest(r); got != tt.want {
				t.Errorf("scheme = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWithLogger_EnrichesContext(t *testing.T) {
	base := newFlatLogger()
	var inCtx log.Logger
	h := WithLogger(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inCtx = log.FromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/competitions/GB1/clubs?season_id=2023", http.NoBody)
	req.RemoteAddr = "10.0.0.9:5555"
	req = req.WithContext(WithRequestID(WithClientIP(req.Context(), "198.51.100.4"), "rid-1"))
	h.ServeHTTP(httptest.NewRecorder(), req)

	if inCtx != base {
		t.Fatal("request logger should be stored in context")
	}
	checks := map[string]any{
		"request_id":           "rid-1",
		"client.address":       "198.51.100.4",
		"network.peer.address": "10.0.0.9",
		"url.path":             "/competitions/GB1/clubs",
		"http.request.method":  http.MethodGet,
	}
	for k, want := range checks {
		if got, _ := base.withValue(k); got != want {
			t.Errorf("%s = %v, want %v", k, got, want)
		}
	}
}

func TestWithLogger_NeverLogsHeadersOrQuery(t *testing.T) {
	base := newFlatLogger()
	h := WithLogger(base)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/competitions/search/x?page_number=2", http.NoBody)
	req.Header.Set("x-api-key", "super-secret")
	h.ServeHTTP(httptest.NewRecorder(), req)

	for _, kv := range base.withs {
		for _, v := range kv {
			if s, ok := v.(string); ok && (strings.Contains(s, "super-secret") || strings.Contains(s, "page_number")) {
				t.Fatalf("logged user supplied data: %q", s)
			}
		}
	}
}

func TestWithLogger_FallsBackToPeer(t *testing.T) {
	base := newFlatLogger()
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.RemoteAddr = "203.0.113.8:80"
	WithLogger(base)(okHandler()).ServeHTTP(httptest.NewRecorder(), req)

	if got, _ := base.withValue("client.address"); got != "203.0.113.8" {
		t.Fatalf("client.address = %v", got)
	}
}

func TestAccessLog_LogsRouteAndStatus(t *testing.T) {
	spy := newFlatLogger()
	r := chi.NewRouter()
	r.Use(AccessLog())
	r.Get("/competitions/search/{competition_name}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"results":[]}`))
	})

	req := httptest.NewRequest(http.MethodGet, "/competitions/search/premier", http.NoBody)
	req = req.WithContext(log.WithContext(req.Context(), spy))
	r.ServeHTTP(httptest.NewRecorder(), req)

	e, ok := spy.last()
	if !ok || e.msg != "http request" || e.level != "info" {
		t.Fatalf("log = %+v", e)
	}
	if v, _ := fieldValue(e.fields, "http.route"); v != "/competitions/search/{competition_name}" {
		t.Errorf("http.route = %v", v)
	}
	if v, _ := fieldValue(e.fields, "http.response.status_code"); v != http.StatusOK {
		t.Errorf("status = %v", v)
	}
	if v, _ := fieldValue(e.fields, "http.response.body.size"); v != int64(14) {
		t.Errorf("body size = %v", v)
	}
}

func TestAccessLog_ServerErrorsAtWarn(t *testing.T) {
	spy := newFlatLogger()
	h := AccessLog()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	req := httptest.NewRequest(http.MethodGet, "/x", http.NoBody)
	h.ServeHTTP(httptest.NewRecorder(), req.WithContext(log.WithContext(req.Context(), spy)))

	e, _ := spy.last()
	if e.level != "warn" {
		t.Fatalf("level = %q, want warn", e.level)
	}
	if v, _ := fieldValue(e.fields, "http.route"); v != "/x" {
		t.Errorf("http.route = %v, want raw path fallback", v)
	}
}

func TestAccessLog_NoLoggerInContext(t *testing.T) {
	rec := httptest.NewRecorder()
	AccessLog()(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestScope_TagsLogger(t *testing.T) {
	spy := newFlatLogger()
	h := Scope("competitions.search")(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	h.ServeHTTP(httptest.NewRecorder(), req.WithContext(log.WithContext(req.Context(), spy)))

	if got, _ := spy.withValue("handler"); got != "competitions.search" {
		t.Fatalf("handler = %v", got)
	}
}
