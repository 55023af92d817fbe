package ratelimit

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/tfmkt/transfermarkt-api/internal/httpmw"
)

// IPLimiter applies a set of rates to every client address
type IPLimiter struct {
	enabled bool
	rates   []Rate
	store   Store

	// offenders remembers who has already triggered OnFirstDenied, entries
	// are dropped once idle for ttl so a returning offender is logged again
	mu        sync.Mutex
	offenders map[string]time.Time
	ttl       time.Duration

	// OnFirstDenied is called once per offender when they first get rate limited
	OnFirstDenied func(ip string, r Rate)

	// OnDenied is called on every denied request, used for incrementing prometheus counter
	OnDenied func(ip string)

	// OnStoreError is called when the store fails; the request is let through
	OnStoreError func(err error)
}

type Option func(*IPLimiter)

// WithEnabled toggles enforcement. A disabled limiter's middleware is a passthrough.
func WithEnabled(enabled bool) Option {
	return func(l *IPLimiter) { l.enabled = enabled }
}

// WithRates replaces the default 2/3seconds ceiling.
func WithRates(rates ...Rate) Option {
	return func(l *IPLimiter) {
		if len(rates) > 0 {
			l.rates = rates
		}
	}
}

// WithStore sets the hit store, defaults to an in-memory fixed window.
func WithStore(s Store) Option {
	return func(l *IPLimiter) { l.store = s }
}

// WithTTL controls how long an idle offender is remembered. Non-positive
// values keep the default.
func WithTTL(d time.Duration) Option {
	return func(l *IPLimiter) {
		if d > 0 {
			l.ttl = d
		}
	}
}

func WithOnFirstDenied(fn func(ip string, r Rate)) Option {
	return func(l *IPLimiter) { l.OnFirstDenied = fn }
}

func WithOnDenied(fn func(ip string)) Option {
	return func(l *IPLimiter) { l.OnDenied = fn }
}

func WithOnStoreError(fn func(err error)) Option {
	return func(l *IPLimiter) { l.OnStoreError = fn }
}

// New creates an IPLimiter, enabled by default, and starts the background
// cleanup goroutine which stops with ctx.
func New(ctx context.Context, opts ...Option) *IPLimiter {
	def, _ := ParseRates(DefaultFrequency)
	l := &IPLimiter{
		enabled:   true,
		rates:     def,
		offenders: make(map[string]time.Time),
		ttl:       5 * time.Minute,
	}
	for _, o := range opts {
		o(l)
	}
	if l.store == nil {
		l.store = NewMemoryStore(ctx, time.Minute)
	}
	go l.cleanup(ctx)
	return l
}

func (l *IPLimiter) Enabled() bool { return l.enabled }
func (l *IPLimiter) Rates() []Rate { return l.rates }
func (l *IPLimiter) Store() Store  { return l.store }

// Decision is the outcome for one request
type Decision struct {
	Allowed    bool
	Limit      Rate
	RetryAfter time.Duration
}

// allow records the request against every rate and stops at the first one
// exceeded.
func (l *IPLimiter) allow(ctx context.Context, ip string) Decision {
	for _, r := range l.rates {
		res, err := l.store.Take(ctx, ip, r)
		if err != nil {
			if l.OnStoreError != nil {
				l.OnStoreError(err)
			}
			continue
		}
		if res.Allowed {
			continue
		}

		d := Decision{Allowed: false, Limit: r, RetryAfter: res.RetryAfter}
		if l.markOffender(ip) && l.OnFirstDenied != nil {
			l.OnFirstDenied(ip, r)
		}
		if l.OnDenied != nil {
			l.OnDenied(ip)
		}
		return d
	}
	return Decision{Allowed: true}
}

// markOffender reports whether ip was not already known as an offender
func (l *IPLimiter) markOffender(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, seen := l.offenders[ip]
	l.offenders[ip] = time.Now()
	return !seen
}

func (l *IPLimiter) cleanup(ctx context.Context) {
	ticker := time.NewTicker(l.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.mu.Lock()
			for ip, last := range l.offenders {
				if now.Sub(last) > l.ttl {
					delete(l.offenders, ip)
				}
			}
			l.mu.Unlock()
		}
	}
}

// Check pings the store when it is backed by an external service, so the
// limiter can take part in readiness.
func (l *IPLimiter) Check(ctx context.Context) error {
	if !l.enabled {
		return nil
	}
	if p, ok := l.store.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Middleware rejects requests over any configured rate with 429
func (l *IPLimiter) Middleware(next http.Handler) http.Handler {
	if !l.enabled {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := httpmw.ClientIPFromContext(r.Context())
		if ip == "" {
			ip = remoteHost(r.RemoteAddr)
		}

		d := l.allow(r.Context(), ip)
		if !d.Allowed {
			writeExceeded(w, d)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeExceeded(w http.ResponseWriter, d Decision) {
	secs := int(math.Ceil(d.RetryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	httpmw.WriteDetail(w, http.StatusTooManyRequests, "Rate limit exceeded: "+d.Limit.String())
}

func remoteHost(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
