package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	StrategyFixedWindow = "fixed-window"
	StrategyTokenBucket = "token-bucket"
)

// Result is the outcome of recording one hit against a rate.
type Result struct {
	Allowed   bool
	Remaining int
	// RetryAfter is how long until the next hit would be accepted, only set
	// when Allowed is false.
	RetryAfter time.Duration
}

// Store records hits per key and rate.
type Store interface {
	Take(ctx context.Context, key string, r Rate) (Result, error)
}

// Pinger is implemented by stores backed by an external service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StorageURI is a parsed RATE_LIMITING_STORAGE_URI.
type StorageURI struct {
	Scheme string // memory | redis
	Raw    string
}

// ParseStorageURI accepts memory://, redis://, rediss:// and unix:// URIs.
func ParseStorageURI(s string) (StorageURI, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return StorageURI{Scheme: "memory", Raw: "memory://"}, nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return StorageURI{}, fmt.Errorf("storage uri %q: %w", s, err)
	}
	switch u.Scheme {
	case "memory":
		return StorageURI{Scheme: "memory", Raw: s}, nil
	case "redis", "rediss", "unix":
		return StorageURI{Scheme: "redis", Raw: s}, nil
	}
	return StorageURI{}, fmt.Errorf("storage uri %q: unsupported scheme %q (memory|redis|rediss|unix)", s, u.Scheme)
}

// OpenStore builds the store for a strategy and storage URI. Token buckets
// live in process memory only.
func OpenStore(ctx context.Context, strategy, uri string) (Store, error) {
	su, err := ParseStorageURI(uri)
	if err != nil {
		return nil, err
	}
	switch strategy {
	case "", StrategyFixedWindow:
		if su.Scheme == "redis" {
			return NewRedisStoreFromURI(su.Raw)
		}
		return NewMemoryStore(ctx, time.Minute), nil
	case StrategyTokenBucket:
		if su.Scheme != "memory" {
			return nil, fmt.Errorf("strategy %s supports memory:// storage only", strategy)
		}
		return NewBucketStore(ctx, 10*time.Minute), nil
	}
	return nil, fmt.Errorf("unknown rate limiting strategy %q", strategy)
}
