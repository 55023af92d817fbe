package cfg

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/tfmkt/transfermarkt-api/internal/log"
	"github.com/tfmkt/transfermarkt-api/internal/ratelimit"
)

type App struct {
	EnvFile string

	LogJSON           bool
	LogLevel          string
	StacktraceLevel   string
	IncludeErrorLinks bool
	MaxErrorLinks     int

	HTTPPort      int
	AdminPort     int
	TrustedHops   int
	ShutdownDrain time.Duration

	RateLimitingEnable     bool
	RateLimitingFrequency  string
	RateLimitingStrategy   string
	RateLimitingStorageURI string

	APIKey         string
	APIKeyName     string
	APIKeySSMParam string

	CORSAllowedOrigins string

	UpstreamURL     string
	UpstreamTimeout time.Duration

	EnablePprof     bool
	EnableTracing   bool
	EnablePyroscope bool
	OTLPEndpoint    string
	TraceSample     float64
	PyroServer      string
	PyroTenantID    string
}

// DefaultAPIKey is the placeholder secret shipped as default. It must be
// overridden in any real deployment.
const DefaultAPIKey = "your-api-key-here"

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	fs.StringVar(&c.EnvFile, "env-file", ".env", "dotenv file loaded before reading the environment (missing file is ignored)")

	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.BoolVar(&c.IncludeErrorLinks, "include-error-links", true, "Include error links in log messages")
	fs.IntVar(&c.MaxErrorLinks, "max-error-links", 5, "max error chain depth (1..64)")

	fs.IntVar(&c.HTTPPort, "http-port", 8000, "API listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "admin listen TCP port (1..65535)")
	fs.IntVar(&c.TrustedHops, "trusted-hops", 0, "number of trusted proxies in front of the API (X-Forwarded-For depth)")
	fs.DurationVar(&c.ShutdownDrain, "shutdown-drain", 15*time.Second, "time to keep serving after readiness fails on shutdown")

	fs.BoolVar(&c.RateLimitingEnable, "rate-limiting-enable", false, "Enable per-address rate limiting")
	fs.StringVar(&c.RateLimitingFrequency, "rate-limiting-frequency", "2/3seconds", "rate limit expression, e.g. 2/3seconds or 10 per minute;100/hour")
	fs.StringVar(&c.RateLimitingStrategy, "rate-limiting-strategy", ratelimit.StrategyFixedWindow, "fixed-window|token-bucket")
	fs.StringVar(&c.RateLimitingStorageURI, "rate-limiting-storage-uri", "memory://", "memory:// or redis://host:port/db (fixed-window only)")

	fs.StringVar(&c.APIKey, "api-key", DefaultAPIKey, "shared secret expected in the API key header")
	fs.StringVar(&c.APIKeyName, "api-key-name", "x-api-key", "name of the API key request header")
	fs.StringVar(&c.APIKeySSMParam, "api-key-ssm-param", "", "SSM parameter holding the API key (overrides api-key when set)")

	fs.StringVar(&c.CORSAllowedOrigins, "cors-allowed-origins", "", "comma separated list of allowed CORS origins (empty disables CORS)")

	fs.StringVar(&c.UpstreamURL, "upstream-url", "", "base URL of the competition data backend")
	fs.DurationVar(&c.UpstreamTimeout, "upstream-timeout", 10*time.Second, "timeout for a single backend call")

	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on admin port only)")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
}

// LoadDotEnv copies variables from a dotenv file into the process
// environment. Variables already present in the environment are kept, so the
// real environment always wins over the file. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// EnvFileFromArgs finds -env-file in args before the full flag parse so the
// dotenv file can be loaded ahead of FillFromEnv. Falls back to ENV_FILE and
// then the flag default.
func EnvFileFromArgs(args []string) string {
	for i, a := range args {
		name, val, hasVal := strings.Cut(strings.TrimLeft(a, "-"), "=")
		if name != "env-file" || !strings.HasPrefix(a, "-") {
			continue
		}
		if hasVal {
			return val
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	if v, ok := os.LookupEnv("ENV_FILE"); ok {
		return v
	}
	return ".env"
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := prefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil && !secretFlag(f.Name) {
				logf("flag -%s: cli value %q overrides env %s=%q", f.Name, f.Value.String(), key, envVal)
			}
			return
		}
		if isBoolFlag(f) {
			envVal = normalizeBool(envVal)
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			_ = fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s: %v", f.Name, key, err)
			}
		}
	})
}

func secretFlag(name string) bool { return name == "api-key" }

func isBoolFlag(f *flag.Flag) bool {
	b, ok := f.Value.(interface{ IsBoolFlag() bool })
	return ok && b.IsBoolFlag()
}

// normalizeBool maps the yes/no and on/off spellings accepted in env files
// onto values strconv.ParseBool understands. Anything else is left as is.
func normalizeBool(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "t", "true", "y", "yes", "on":
		return "true"
	case "0", "f", "false", "n", "no", "off":
		return "false"
	}
	return s
}

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil if all valid.
func Validate(c App) error {
	var errs []error

	// Ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort))
	}
	if c.AdminPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}
	if c.TrustedHops < 0 || c.TrustedHops > 8 {
		errs = append(errs, fmt.Errorf("invalid TRUSTED_HOPS %d (must be 0..8)", c.TrustedHops))
	}
	if c.ShutdownDrain < 0 || c.ShutdownDrain > 5*time.Minute {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_DRAIN %s (must be 0..5m)", c.ShutdownDrain))
	}

	// Log levels
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL %q: %w", c.StacktraceLevel, err))
		}
	}
	if c.IncludeErrorLinks && (c.MaxErrorLinks < 1 || c.MaxErrorLinks > 64) {
		errs = append(errs, fmt.Errorf("MAX_ERROR_LINKS must be 1..64 (got %d)", c.MaxErrorLinks))
	}

	// Rate limiting, only checked when it will actually be used
	if c.RateLimitingEnable {
		if _, err := ratelimit.ParseRates(c.RateLimitingFrequency); err != nil {
			errs = append(errs, fmt.Errorf("invalid RATE_LIMITING_FREQUENCY: %w", err))
		}
		switch c.RateLimitingStrategy {
		case ratelimit.StrategyFixedWindow:
			if _, err := ratelimit.ParseStorageURI(c.RateLimitingStorageURI); err != nil {
				errs = append(errs, fmt.Errorf("invalid RATE_LIMITING_STORAGE_URI: %w", err))
			}
		case ratelimit.StrategyTokenBucket:
			if s, err := ratelimit.ParseStorageURI(c.RateLimitingStorageURI); err != nil || s.Scheme != "memory" {
				errs = append(errs, fmt.Errorf("RATE_LIMITING_STRATEGY=token-bucket requires memory:// storage (got %q)", c.RateLimitingStorageURI))
			}
		default:
			errs = append(errs, fmt.Errorf("invalid RATE_LIMITING_STRATEGY %q (fixed-window|token-bucket)", c.RateLimitingStrategy))
		}
	}

	// API key
	if strings.TrimSpace(c.APIKeyName) == "" {
		errs = append(errs, fmt.Errorf("API_KEY_NAME must not be empty"))
	}
	if c.APIKey == "" && c.APIKeySSMParam == "" {
		errs = append(errs, fmt.Errorf("API_KEY or API_KEY_SSM_PARAM is required"))
	}

	// Backend
	if c.UpstreamURL != "" {
		if u, err := url.Parse(c.UpstreamURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("UPSTREAM_URL must be an http(s) URL (got %q)", c.UpstreamURL))
		}
	}
	if c.UpstreamTimeout <= 0 {
		errs = append(errs, fmt.Errorf("UPSTREAM_TIMEOUT must be positive (got %s)", c.UpstreamTimeout))
	}

	// Tracing sample
	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}

	// Pyroscope (URL and scheme)
	if c.EnablePyroscope {
		if c.PyroServer == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL (got %q)", c.PyroServer))
		}
		if c.PyroTenantID == "" {
			errs = append(errs, fmt.Errorf("PYRO_TENANT required when ENABLE_PYROSCOPE=true"))
		}
	}

	// OTLP tracing (grpc exporter wants host:port, no scheme)
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}

	return errors.Join(errs...)
}

// CORSOrigins splits the comma separated origin list, dropping blanks.
func (c App) CORSOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
