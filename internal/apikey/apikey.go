// Package apikey gates the API behind a shared secret presented in a request
// header.
package apikey

import (
	"net/http"

	"github.com/tfmkt/transfermarkt-api/internal/httpmw"
	"github.com/tfmkt/transfermarkt-api/internal/log"
)

// DefaultHeaderName is the header the key is read from when none is configured.
const DefaultHeaderName = "x-api-key"

// Rejection reasons passed to Options.OnReject.
const (
	ReasonMissing = "missing"
	ReasonInvalid = "invalid"
)

// DefaultExemptPaths are reachable without a key: the interactive docs, the
// schema they load and the root redirect to them.
var DefaultExemptPaths = []string{"/docs", "/redoc", "/openapi.json", "/"}

type Options struct {
	// HeaderName is matched case-insensitively.
	HeaderName string
	Key        string

	// ExemptPaths are compared to the request path exactly. Nil means
	// DefaultExemptPaths.
	ExemptPaths []string

	// OnReject is called with ReasonMissing or ReasonInvalid for every
	// rejected request.
	OnReject func(reason string)
}

// Middleware returns the gate. OPTIONS requests and exempt paths pass
// untouched. Otherwise an absent or empty header is answered with 401 and a
// header that does not equal Key with 403.
func Middleware(opts Options) func(http.Handler) http.Handler {
	header := http.CanonicalHeaderKey(opts.HeaderName)
	if header == "" {
		header = http.CanonicalHeaderKey(DefaultHeaderName)
	}
	paths := opts.ExemptPaths
	if paths == nil {
		paths = DefaultExemptPaths
	}
	exempt := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		exempt[p] = struct{}{}
	}
	key := opts.Key

	reject := func(w http.ResponseWriter, r *http.Request, status int, reason, detail string) {
		if opts.OnReject != nil {
			opts.OnReject(reason)
		}
		log.FromContext(r.Context()).Debug(r.Context(), "api key rejected",
			"reason", reason,
			"header", header,
		)
		httpmw.WriteDetail(w, status, detail)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := exempt[r.URL.Path]; ok || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			presented := r.Header.Get(header)
			switch {
			case presented == "":
				reject(w, r, http.StatusUnauthorized, ReasonMissing, "API key missing")
			case presented != key:
				reject(w, r, http.StatusForbidden, ReasonInvalid, "Invalid API key")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}
