package ratelimit

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tfmkt/transfermarkt-api/internal/xerrors"
)

// RedisStore is a fixed-window counter shared by every instance pointing at
// the same Redis. Keys expire with their window.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
}

type RedisOption func(*RedisStore)

func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.prefix = strings.TrimRight(prefix, "/") }
}

func NewRedisStore(rdb redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{rdb: rdb, prefix: "LIMITER"}
	for _, o := range opts {
		o(s)
	}
	return s
}

// NewRedisStoreFromURI dials nothing; go-redis connects lazily on first use.
func NewRedisStoreFromURI(uri string, opts ...RedisOption) (*RedisStore, error) {
	o, err := redis.ParseURL(uri)
	if err != nil {
		return nil, xerrors.Wrap(err, "parse redis storage uri")
	}
	return NewRedisStore(redis.NewClient(o), opts...), nil
}

func (s *RedisStore) Take(ctx context.Context, key string, r Rate) (Result, error) {
	k := s.prefix + "/" + key + "/" + r.key()

	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	if _, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		ttl = p.PTTL(ctx, k)
		return nil
	}); err != nil {
		return Result{}, xerrors.Wrapf(err, "rate limit hit %s", k)
	}

	hits := int(incr.Val())
	remaining := ttl.Val()
	// first hit of a window (or a key that lost its expiry): start the window now
	if hits == 1 || remaining < 0 {
		if err := s.rdb.PExpire(ctx, k, r.Period).Err(); err != nil {
			return Result{}, xerrors.Wrapf(err, "rate limit expire %s", k)
		}
		remaining = r.Period
	}

	if hits > r.Count {
		return Result{Allowed: false, RetryAfter: remaining}, nil
	}
	return Result{Allowed: true, Remaining: r.Count - hits}, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	return xerrors.Wrap(s.rdb.Ping(ctx).Err(), "rate limit storage ping")
}

func (s *RedisStore) Close() error { return s.rdb.Close() }
