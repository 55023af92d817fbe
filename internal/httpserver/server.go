package httpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tfmkt/transfermarkt-api/internal/apikey"
	"github.com/tfmkt/transfermarkt-api/internal/httpmw"
	"github.com/tfmkt/transfermarkt-api/internal/log"
	"github.com/tfmkt/transfermarkt-api/internal/openapi"
	"github.com/tfmkt/transfermarkt-api/internal/xerrors"
)

// Paths of the documentation endpoints, reachable without an API key.
const (
	DocsPath    = "/docs"
	ReDocPath   = "/redoc"
	OpenAPIPath = "/openapi.json"
)

// DefaultTitle names the docs pages when Options.Title is empty.
const DefaultTitle = "API"

// nobody should be sending bodies to a read-only API
const maxRequestBody = 1024

// NewHandler builds an HTTP handler with routes + middleware
// main() owns *http.Server so it can do graceful shutdown
func NewHandler(opts *Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}

	r := chi.NewRouter()

	r.Use(middleware.Compress(5, "application/json", "text/html"))

	// Route-aware middleware has to run inside chi to see the matched pattern
	r.Use(httpmw.AnnotateHTTPRoute)
	r.Use(httpmw.AccessLog())
	r.Use(httpmw.MaxBody(maxRequestBody))

	// Everything below, unknown paths included, needs a key unless exempt
	keyOpts := opts.APIKey
	if keyOpts.HeaderName == "" {
		keyOpts.HeaderName = apikey.DefaultHeaderName
	}
	if keyOpts.ExemptPaths == nil {
		keyOpts.ExemptPaths = []string{DocsPath, ReDocPath, OpenAPIPath, "/"}
	}
	r.Use(apikey.Middleware(keyOpts))

	if opts.OpenAPI != nil {
		// the document itself is built on first request, not here
		title := opts.Title
		if title == "" {
			title = DefaultTitle
		}
		r.Method(http.MethodGet, OpenAPIPath, opts.OpenAPI)
		r.Method(http.MethodGet, DocsPath, openapi.SwaggerUI(title, OpenAPIPath))
		r.Method(http.MethodGet, ReDocPath, openapi.ReDoc(title, OpenAPIPath))
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, DocsPath, http.StatusTemporaryRedirect)
		})
	}

	if opts.APIRoutes != nil {
		opts.APIRoutes(r)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpmw.WriteDetail(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpmw.WriteDetail(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	var recoverMW httpmw.Middleware
	if opts.UseRecoverMW {
		recoverMW = httpmw.Recover(logger, opts.OnPanic)
	}

	// Outermost first. Security headers wrap everything so they are present on
	// every response, including recovered panics and rate limit rejections.
	return httpmw.Chain(r,
		httpmw.SecurityHeaders,
		recoverMW,
		httpmw.RequestID("X-Request-Id"),
		httpmw.ClientIPWithOptions(opts.ClientIPOpts),
		httpmw.CORS(opts.CORSOrigins, keyOpts.HeaderName),
		opts.RateLimitMW,
		tracing,
		httpmw.TraceResponseHeaders("X-Trace-Id", "X-Span-Id"),
		opts.MetricsMW,
		httpmw.WithLogger(logger),
	)
}

// tracing starts the server span. Docs and the schema are not traced.
func tracing(next http.Handler) http.Handler {
	return otelhttp.NewHandler(
		next,
		"http.server",
		otelhttp.WithFilter(func(r *http.Request) bool {
			switch r.URL.Path {
			case DocsPath, ReDocPath, OpenAPIPath:
				return false
			}
			return true
		}),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			// AnnotateHTTPRoute renames the span to the route pattern once matched
			return r.Method + " " + r.URL.Path
		}),
		otelhttp.WithPublicEndpointFn(func(r *http.Request) bool { return true }),
	)
}

// Server timeout defaults, shared with opshttp.
const (
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultReadTimeout       = 10 * time.Second
	DefaultWriteTimeout      = 30 * time.Second
	DefaultIdleTimeout       = 60 * time.Second
	DefaultMaxHeaderBytes    = 1 << 20 // 1 MB
)

// DefaultPort matches the port the API has always been published on.
const DefaultPort = 8000

func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		ReadTimeout:       DefaultReadTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		MaxHeaderBytes:    DefaultMaxHeaderBytes,
	}
}

// Start public HTTP server
// Returns stop(ctx) for graceful shutdown
func Start(ctx context.Context, opts *Options) (func(context.Context) error, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}
	port := opts.Port
	if port == 0 {
		port = DefaultPort
	}
	addr := fmt.Sprintf(":%d", port)

	srv := NewServer(addr, NewHandler(opts))

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, xerrors.Wrapf(err, "listen on %s", addr)
	}

	go func() {
		logger.Info(ctx, "http server listening", "addr", addr)
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, err, "http server error")
		}
	}()

	var once sync.Once
	stop := func(sctx context.Context) (retErr error) {
		once.Do(func() {
			logger.Info(sctx, "http server shutting down")
			c, cancel := context.WithTimeout(sctx, 10*time.Second)
			defer cancel()
			retErr = srv.Shutdown(c)
		})
		return retErr
	}
	return stop, nil
}
