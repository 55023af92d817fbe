package health

import (
	"net/http"

	json "github.com/goccy/go-json"
)

type status struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// HealthzHandler: 200 {"status":"ok"} when the probe passes, 503 with the
// reason otherwise. A nil probe always passes.
func HealthzHandler(p Probe) http.HandlerFunc {
	return handler(p, "ok", "unhealthy")
}

// ReadyzHandler: 200 {"status":"ready"} when the probe passes, 503 with the
// reason otherwise.
func ReadyzHandler(p Probe) http.HandlerFunc {
	return handler(p, "ready", "not ready")
}

func handler(p Probe, pass, fail string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code, body := http.StatusOK, status{Status: pass}
		if p != nil {
			if err := p.Check(r.Context()); err != nil {
				code, body = http.StatusServiceUnavailable, status{Status: fail, Detail: err.Error()}
			}
		}
		b, _ := json.Marshal(body)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(code)
		_, _ = w.Write(b)
	}
}
