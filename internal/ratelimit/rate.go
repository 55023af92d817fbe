package ratelimit

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultFrequency is used when no expression is configured.
const DefaultFrequency = "2/3seconds"

// Rate is a ceiling of Count requests per Multiple Units.
type Rate struct {
	Count    int
	Multiple int
	Unit     string
	Period   time.Duration
}

var units = map[string]time.Duration{
	"second": time.Second,
	"minute": time.Minute,
	"hour":   time.Hour,
	"day":    24 * time.Hour,
	"month":  30 * 24 * time.Hour,
	"year":   12 * 30 * 24 * time.Hour,
}

var (
	rateExpr = regexp.MustCompile(`(?i)^\s*([0-9]+)\s*(?:/|\s+per\s+|per)\s*([0-9]+)?\s*(second|minute|hour|day|month|year)s?\s*$`)
	rateSep  = regexp.MustCompile(`[,;|]`)
)

// ParseRate parses a single expression such as "2/3seconds", "10 per minute"
// or "100/hour".
func ParseRate(s string) (Rate, error) {
	m := rateExpr.FindStringSubmatch(s)
	if m == nil {
		return Rate{}, fmt.Errorf("couldn't parse rate limit string %q", strings.TrimSpace(s))
	}
	count, err := strconv.Atoi(m[1])
	if err != nil || count < 1 {
		return Rate{}, fmt.Errorf("rate limit %q: count must be a positive integer", s)
	}
	multiple := 1
	if m[2] != "" {
		multiple, err = strconv.Atoi(m[2])
		if err != nil || multiple < 1 {
			return Rate{}, fmt.Errorf("rate limit %q: window multiple must be a positive integer", s)
		}
	}
	unit := strings.ToLower(m[3])
	return Rate{
		Count:    count,
		Multiple: multiple,
		Unit:     unit,
		Period:   time.Duration(multiple) * units[unit],
	}, nil
}

// ParseRates parses one or more expressions separated by ';', ',' or '|'.
// Every parsed rate applies to each request.
func ParseRates(s string) ([]Rate, error) {
	var out []Rate
	for _, part := range rateSep.Split(s, -1) {
		if strings.TrimSpace(part) == "" {
			continue
		}
		r, err := ParseRate(part)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no rate limits in %q", s)
	}
	return out, nil
}

// String renders the rate the way it is reported to clients: "2 per 3 second".
func (r Rate) String() string {
	return fmt.Sprintf("%d per %d %s", r.Count, r.Multiple, r.Unit)
}

// key identifies the rate inside storage keys
func (r Rate) key() string {
	return fmt.Sprintf("%d/%d/%s", r.Count, r.Multiple, r.Unit)
}
