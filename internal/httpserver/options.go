package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tfmkt/transfermarkt-api/internal/apikey"
	"github.com/tfmkt/transfermarkt-api/internal/httpmw"
	"github.com/tfmkt/transfermarkt-api/internal/log"
	"github.com/tfmkt/transfermarkt-api/internal/openapi"
)

type Options struct {
	Logger       log.Logger
	Port         int
	UseRecoverMW bool
	OnPanic      func() // e.g. increment the panic counter
	MetricsMW    func(http.Handler) http.Handler
	RateLimitMW  func(http.Handler) http.Handler
	ClientIPOpts httpmw.ClientIPOptions

	// CORSOrigins enables CORS for the listed origins; empty disables it.
	CORSOrigins []string

	// APIKey configures the gate in front of every route except the docs.
	APIKey apikey.Options

	// OpenAPI serves /openapi.json and backs /docs and /redoc when set.
	OpenAPI *openapi.Publisher
	Title   string

	APIRoutes func(r chi.Router)
}
