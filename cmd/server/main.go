package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tfmkt/transfermarkt-api/internal/apikey"
	"github.com/tfmkt/transfermarkt-api/internal/cfg"
	"github.com/tfmkt/transfermarkt-api/internal/competitionshttp"
	"github.com/tfmkt/transfermarkt-api/internal/health"
	"github.com/tfmkt/transfermarkt-api/internal/httpmw"
	"github.com/tfmkt/transfermarkt-api/internal/httpserver"
	"github.com/tfmkt/transfermarkt-api/internal/log"
	"github.com/tfmkt/transfermarkt-api/internal/metrics"
	"github.com/tfmkt/transfermarkt-api/internal/openapi"
	"github.com/tfmkt/transfermarkt-api/internal/opshttp"
	"github.com/tfmkt/transfermarkt-api/internal/otelx"
	"github.com/tfmkt/transfermarkt-api/internal/prof"
	"github.com/tfmkt/transfermarkt-api/internal/ratelimit"
	"github.com/tfmkt/transfermarkt-api/internal/schemas"
	"github.com/tfmkt/transfermarkt-api/internal/secrets"
	"github.com/tfmkt/transfermarkt-api/internal/services"
	"github.com/tfmkt/transfermarkt-api/internal/services/remote"
	v "github.com/tfmkt/transfermarkt-api/internal/version"
)

const apiTitle = "Transfermarkt API"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vi := v.Get()

	var conf cfg.App
	var showVersion bool

	// dotenv first so FillFromEnv sees its variables, the real environment wins
	if err := cfg.LoadDotEnv(cfg.EnvFileFromArgs(os.Args[1:])); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf(
			"%s %s (commit=%s, commit_date=%s, build_id=%s, build_date=%s, go=%s, dirty=%v)\n",
			vi.AppName, vi.Version, vi.Commit, vi.CommitDate, vi.BuildId, vi.BuildDate, vi.GoVersion,
			vi.VCSDirty != nil && *vi.VCSDirty,
		)
		os.Exit(0)
	}

	// unprefixed so API_KEY, RATE_LIMITING_ENABLE etc. work as documented
	cfg.FillFromEnv(flag.CommandLine, "", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	// Setup logging
	lvl, _ := log.ParseLevel(conf.LogLevel)
	stackLvl, _ := log.ParseLevel(conf.StacktraceLevel)
	lg, err := log.New(log.Options{
		App:               v.AppName,
		Version:           vi.Version,
		Commit:            vi.Commit,
		Level:             lvl,
		StacktraceLevel:   stackLvl,
		JSON:              conf.LogJSON,
		MaxErrorLinks:     conf.MaxErrorLinks,
		IncludeErrorLinks: conf.IncludeErrorLinks,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	defer lg.Sync()
	L := lg.With("component", "server")
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"build_date", vi.BuildDate,
		"go_version", vi.GoVersion,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"trusted_hops", conf.TrustedHops,
		"rate_limiting_enable", conf.RateLimitingEnable,
		"rate_limiting_frequency", conf.RateLimitingFrequency,
		"rate_limiting_strategy", conf.RateLimitingStrategy,
		"api_key_name", conf.APIKeyName,
		"api_key_ssm_param", conf.APIKeySSMParam,
		"upstream_url", conf.UpstreamURL,
		"enable_pprof", conf.EnablePprof,
		"enable_tracing", conf.EnableTracing,
		"enable_pyroscope", conf.EnablePyroscope,
		"trace_sample", conf.TraceSample,
	)

	// Setup otel for tracing
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  true,
		Sample:    conf.TraceSample,
		Service:   v.AppName,
		Component: "server",
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed, tracing disabled")
		shutdownOTEL, _ = otelx.Init(ctx, otelx.Options{})
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	m := metrics.New()
	m.SetBuildInfoFromVersion(v.AppName, "server", &vi)

	// Setup pyroscope profiling
	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags:          map[string]string{"component": "server"},
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	m.SetProfilingActive(conf.EnablePyroscope && err == nil)
	defer stopProf()

	apiKey := conf.APIKey
	if conf.APIKeySSMParam != "" {
		loader, err := secrets.NewLoader(ctx, nil)
		if err == nil {
			apiKey, err = loader.Get(ctx, conf.APIKeySSMParam)
		}
		if err != nil {
			L.Error(ctx, err, "failed to load API key", "api_key_ssm_param", conf.APIKeySSMParam)
			os.Exit(1)
		}
	}
	if apiKey == cfg.DefaultAPIKey {
		L.Warn(ctx, "API key is the shipped default, set API_KEY or API_KEY_SSM_PARAM")
	}

	// Setup rate limiter
	rates, _ := ratelimit.ParseRates(conf.RateLimitingFrequency)
	var limiterStore ratelimit.Store
	if conf.RateLimitingEnable {
		limiterStore, err = ratelimit.OpenStore(ctx, conf.RateLimitingStrategy, conf.RateLimitingStorageURI)
		if err != nil {
			L.Error(ctx, err, "failed to open rate limit storage")
			os.Exit(1)
		}
	}
	limiter := ratelimit.New(ctx,
		ratelimit.WithEnabled(conf.RateLimitingEnable),
		ratelimit.WithRates(rates...),
		ratelimit.WithStore(limiterStore),
		ratelimit.WithOnDenied(func(string) { m.IncRateLimitDenied() }),
		// logged once per offender until it goes idle
		ratelimit.WithOnFirstDenied(func(ip string, r ratelimit.Rate) {
			L.Warn(ctx, "rate limit triggered", "ip", ip, "limit", r.String())
		}),
		ratelimit.WithOnStoreError(func(err error) {
			m.IncRateLimitStoreError()
			L.Error(ctx, err, "rate limit storage failed, request allowed")
		}),
	)

	// Setup data source
	var (
		svc      services.Competitions = services.Unavailable{}
		upstream health.Probe          = services.Unavailable{}
	)
	if conf.UpstreamURL != "" {
		client, err := remote.New(remote.Options{
			BaseURL: conf.UpstreamURL,
			Timeout: conf.UpstreamTimeout,
			OnCall: func(op, outcome string, d time.Duration) {
				m.ObserveUpstream(op, outcome, d.Seconds())
			},
			OnStateChange: func(from, to string) {
				m.SetBreakerState(to)
				L.Warn(ctx, "upstream circuit state changed", "from", from, "to", to)
			},
		})
		if err != nil {
			L.Error(ctx, err, "invalid upstream configuration")
			os.Exit(1)
		}
		svc, upstream = client, client
	} else {
		L.Warn(ctx, "no UPSTREAM_URL configured, data routes will answer 503")
	}

	competitionsAPI := competitionshttp.NewAPI(svc, L)

	publisher := openapi.NewPublisher(conf.APIKeyName, func() *openapi.Document {
		return openapi.Generate(openapi.Spec{
			Info: openapi.Info{Title: apiTitle, Version: vi.Version},
			Tags: []openapi.Tag{
				{Name: "competitions", Description: "Operations with competitions data"},
				{Name: "clubs", Description: "Operations with clubs data"},
				{Name: "players", Description: "Operations with players data"},
			},
			Routes:  competitionsAPI.Routes(),
			Schemas: schemas.Components(),
		})
	})

	var gate health.ShutdownGate
	readiness := health.All(
		gate.Probe(),
		health.Named("upstream", health.Timeout(2*time.Second, upstream)),
		health.Named("rate limit storage", health.Timeout(2*time.Second, limiter)),
	)

	// start public API server
	apiHTTPStop, err := httpserver.Start(ctx, &httpserver.Options{
		Logger:       L,
		Port:         conf.HTTPPort,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
		MetricsMW:    m.Middleware,
		RateLimitMW:  limiter.Middleware,
		ClientIPOpts: httpmw.ClientIPOptions{TrustedHops: conf.TrustedHops},
		CORSOrigins:  conf.CORSOrigins(),
		APIKey: apikey.Options{
			HeaderName: conf.APIKeyName,
			Key:        apiKey,
			OnReject:   m.IncAPIKeyRejected,
		},
		OpenAPI: publisher,
		Title:   apiTitle,
		APIRoutes: func(r chi.Router) {
			competitionsAPI.RegisterRoutes(r)
		},
	})
	if err != nil {
		L.Error(ctx, err, "failed to start api http listener")
		os.Exit(1)
	}

	// ops listener serves health, metrics and pprof to private networks only
	opsHTTPStop, err := opshttp.Start(ctx, L, &opshttp.Options{
		Port:         conf.AdminPort,
		Metrics:      m.Handler(),
		EnablePprof:  conf.EnablePprof,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		_ = apiHTTPStop(context.Background())
		os.Exit(1)
	}

	if err := notifySystemd(); err != nil {
		L.Debug(ctx, "systemd notify skipped", "reason", err.Error())
	}

	<-ctx.Done()
	stop()
	L.Info(context.Background(), "shutdown signal received")

	// fail readiness so load balancers stop routing, keep serving in-flight traffic
	gate.Set("draining")
	if conf.ShutdownDrain > 0 {
		L.Info(context.Background(), "draining", "duration", conf.ShutdownDrain.String())
		forceCh := make(chan os.Signal, 1)
		signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
		select {
		case <-time.After(conf.ShutdownDrain):
			L.Info(context.Background(), "drain period complete")
		case <-forceCh:
			L.Warn(context.Background(), "second signal received, skipping drain")
		}
		signal.Stop(forceCh)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := apiHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "api http server shutdown")
	}
	if err := opsHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "ops http server shutdown")
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "otel shutdown")
	}
	stopProf()

	L.Info(context.Background(), "shutdown complete")
}

func notifySystemd() error {
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify: %w", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		return fmt.Errorf("systemd notify: %w", err)
	}
	return nil
}
