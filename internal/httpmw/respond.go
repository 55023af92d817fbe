package httpmw

import (
	"net/http"
	"strconv"

	json "github.com/goccy/go-json"
)

// WriteDetail writes the error envelope every non-2xx API response shares:
// {"detail": ...}. detail is usually a string but validation errors carry a list.
func WriteDetail(w http.ResponseWriter, status int, detail any) {
	body, err := json.Marshal(map[string]any{"detail": detail})
	if err != nil {
		body = []byte(`{"detail":"Internal Server Error"}`)
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
