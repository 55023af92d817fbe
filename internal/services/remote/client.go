// Package remote implements services.Competitions against a data backend
// that serves the API's response shapes as JSON over HTTP.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tfmkt/transfermarkt-api/internal/schemas"
	"github.com/tfmkt/transfermarkt-api/internal/services"
	"github.com/tfmkt/transfermarkt-api/internal/version"
	"github.com/tfmkt/transfermarkt-api/internal/xerrors"
)

// Operation names used for metrics and breaker bookkeeping.
const (
	OpSearchCompetitions  = "search_competitions"
	OpGetCompetitionClubs = "get_competition_clubs"
)

// Call outcomes reported through Options.OnCall.
const (
	OutcomeOK          = "ok"
	OutcomeClientError = "client_error"
	OutcomeError       = "error"
	OutcomeRejected    = "rejected"
)

const maxResponseBytes = 8 << 20

type Options struct {
	// BaseURL of the backend, e.g. http://tfmkt-data:8080
	BaseURL string
	// Timeout bounds each call, default 10s.
	Timeout time.Duration
	// Transport defaults to http.DefaultTransport; it is always wrapped for tracing.
	Transport http.RoundTripper

	// Breaker tuning, zero values take the defaults below.
	BreakerInterval    time.Duration // counting window, default 1m
	BreakerTimeout     time.Duration // open -> half-open, default 30s
	BreakerMinRequests uint32        // default 10
	BreakerFailRatio   float64       // default 0.6

	// OnCall observes every call after it completes.
	OnCall func(op, outcome string, d time.Duration)
	// OnStateChange observes breaker transitions.
	OnStateChange func(from, to string)
}

// Client talks to the backend through a circuit breaker. Backend 4xx answers
// are passed through as *services.Error and do not count against the breaker;
// transport failures, 5xx and undecodable bodies do.
type Client struct {
	base   *url.URL
	hc     *http.Client
	cb     *gobreaker.CircuitBreaker[[]byte]
	onCall func(op, outcome string, d time.Duration)
	agent  string
}

var _ services.Competitions = (*Client)(nil)

func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, xerrors.Wrap(err, "parse upstream url")
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, xerrors.Newf("upstream url %q: scheme must be http or https", opts.BaseURL)
	}

	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Transport == nil {
		opts.Transport = http.DefaultTransport
	}
	if opts.BreakerInterval <= 0 {
		opts.BreakerInterval = time.Minute
	}
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = 30 * time.Second
	}
	if opts.BreakerMinRequests == 0 {
		opts.BreakerMinRequests = 10
	}
	if opts.BreakerFailRatio <= 0 {
		opts.BreakerFailRatio = 0.6
	}

	c := &Client{
		base: base,
		hc: &http.Client{
			Transport: otelhttp.NewTransport(opts.Transport),
			Timeout:   opts.Timeout,
		},
		onCall: opts.OnCall,
		agent:  version.AppName + "/" + version.Version,
	}

	minReq, ratio := opts.BreakerMinRequests, opts.BreakerFailRatio
	c.cb = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "upstream",
		MaxRequests: 1,
		Interval:    opts.BreakerInterval,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= minReq &&
				float64(counts.TotalFailures)/float64(counts.Requests) >= ratio
		},
		IsSuccessful: func(err error) bool {
			var se *services.Error
			return err == nil || errors.As(err, &se) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			if opts.OnStateChange != nil {
				opts.OnStateChange(from.String(), to.String())
			}
		},
	})
	return c, nil
}

func (c *Client) SearchCompetitions(ctx context.Context, query string, pageNumber int) (*schemas.CompetitionSearch, error) {
	q := url.Values{"page_number": {strconv.Itoa(pageNumber)}}
	var out schemas.CompetitionSearch
	if err := c.get(ctx, OpSearchCompetitions, "/competitions/search/"+url.PathEscape(query), q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetCompetitionClubs(ctx context.Context, competitionID, seasonID string) (*schemas.CompetitionClubs, error) {
	q := url.Values{}
	if seasonID != "" {
		q.Set("season_id", seasonID)
	}
	var out schemas.CompetitionClubs
	if err := c.get(ctx, OpGetCompetitionClubs, "/competitions/"+url.PathEscape(competitionID)+"/clubs", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// State is the breaker state: "closed", "half-open" or "open".
func (c *Client) State() string { return c.cb.State().String() }

// Check fails while the breaker is open so readiness reflects a dead backend.
func (c *Client) Check(context.Context) error {
	if c.cb.State() == gobreaker.StateOpen {
		return xerrors.Wrap(services.ErrUnavailable, "upstream circuit open")
	}
	return nil
}

func (c *Client) get(ctx context.Context, op, path string, q url.Values, out any) error {
	start := time.Now()
	body, err := c.cb.Execute(func() ([]byte, error) {
		return c.fetch(ctx, path, q)
	})

	outcome := OutcomeOK
	var se *services.Error
	switch {
	case err == nil:
		if derr := json.Unmarshal(body, out); derr != nil {
			outcome = OutcomeError
			err = xerrors.Wrapf(derr, "decode %s response", op)
		}
	case errors.As(err, &se):
		outcome = OutcomeClientError
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		outcome = OutcomeRejected
		err = fmt.Errorf("%w: %w", services.ErrUnavailable, err)
	default:
		outcome = OutcomeError
		err = fmt.Errorf("%w: %w", services.ErrUnavailable, err)
	}

	if c.onCall != nil {
		c.onCall(op, outcome, time.Since(start))
	}
	return err
}

func (c *Client) fetch(ctx context.Context, path string, q url.Values) ([]byte, error) {
	target := c.base.String() + path
	if enc := q.Encode(); enc != "" {
		target += "?" + enc
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, xerrors.Wrap(err, "build upstream request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.agent)

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, xerrors.Wrap(err, "upstream request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, xerrors.Wrap(err, "read upstream response")
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, xerrors.Newf("upstream status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, &services.Error{Status: resp.StatusCode, Detail: detailOf(body, resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return nil, xerrors.Newf("unexpected upstream status %d", resp.StatusCode)
	}
	return body, nil
}

// detailOf pulls {"detail": "..."} out of an error body, falling back to the
// status text.
func detailOf(body []byte, status int) string {
	var e struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &e) == nil && e.Detail != "" {
		return e.Detail
	}
	return http.StatusText(status)
}
