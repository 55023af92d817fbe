package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func serve(h http.Handler) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/-/ready", http.NoBody))
	return rec
}

func TestHandlers(t *testing.T) {
	tests := []struct {
		name   string
		h      http.Handler
		status int
		body   string
	}{
		{"healthy", HealthzHandler(Fixed(true, "")), 200, `{"status":"ok"}`},
		{"healthy nil probe", HealthzHandler(nil), 200, `{"status":"ok"}`},
		{"unhealthy", HealthzHandler(Fixed(false, "wedged")), 503, `{"status":"unhealthy","detail":"wedged"}`},
		{"ready", ReadyzHandler(Fixed(true, "")), 200, `{"status":"ready"}`},
		{"not ready", ReadyzHandler(Fixed(false, "upstream: circuit open")), 503, `{"status":"not ready","detail":"upstream: circuit open"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(tt.h)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if rec.Body.String() != tt.body {
				t.Fatalf("body = %s, want %s", rec.Body.String(), tt.body)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Fatalf("Content-Type = %q", ct)
			}
		})
	}
}

func TestReadyzHandler_FollowsGate(t *testing.T) {
	var g ShutdownGate
	h := ReadyzHandler(All(g.Probe(), Fixed(true, "")))

	if rec := serve(h); rec.Code != http.StatusOK {
		t.Fatalf("before drain: status = %d", rec.Code)
	}
	g.Set("draining")
	if rec := serve(h); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("while draining: status = %d", rec.Code)
	}
}

func TestHandler_PassesRequestContext(t *testing.T) {
	type ctxKey struct{}
	var got any
	h := HealthzHandler(CheckFunc(func(ctx context.Context) error {
		got = ctx.Value(ctxKey{})
		return nil
	}))

	req := httptest.NewRequest(http.MethodGet, "/-/healthy", http.NoBody)
	req = req.WithContext(context.WithValue(req.Context(), ctxKey{}, "v"))
	h.ServeHTTP(httptest.NewRecorder(), req)

	if got != "v" {
		t.Fatal("request context not passed to probe")
	}
}
