package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// visitor tracks a single key's bucket and last activity
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// BucketStore smooths traffic with one token bucket per key and rate: the
// bucket holds Count tokens and refills at Count/Period. Unlike the fixed
// window it never lets a client burst twice across a window boundary.
type BucketStore struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	ttl      time.Duration
	now      func() time.Time
}

// NewBucketStore evicts buckets idle for longer than ttl; the sweeper runs
// every ttl/2 until ctx is cancelled.
func NewBucketStore(ctx context.Context, ttl time.Duration) *BucketStore {
	s := &BucketStore{
		visitors: make(map[string]*visitor),
		ttl:      ttl,
		now:      time.Now,
	}
	if ttl > 0 {
		go s.cleanup(ctx)
	}
	return s
}

func (s *BucketStore) Take(_ context.Context, key string, r Rate) (Result, error) {
	now := s.now()
	k := key + "/" + r.key()

	s.mu.Lock()
	v, ok := s.visitors[k]
	if !ok {
		perSecond := rate.Limit(float64(r.Count) / r.Period.Seconds())
		v = &visitor{limiter: rate.NewLimiter(perSecond, r.Count)}
		s.visitors[k] = v
	}
	v.lastSeen = now
	lim := v.limiter
	s.mu.Unlock()

	res := lim.ReserveN(now, 1)
	if !res.OK() {
		return Result{Allowed: false, RetryAfter: r.Period}, nil
	}
	if d := res.DelayFrom(now); d > 0 {
		res.CancelAt(now)
		return Result{Allowed: false, RetryAfter: d}, nil
	}
	return Result{Allowed: true, Remaining: int(lim.TokensAt(now))}, nil
}

// cleanup periodically evicts visitors that haven't been seen within the TTL.
func (s *BucketStore) cleanup(ctx context.Context) {
	ticker := time.NewTicker(s.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := s.now()
			s.mu.Lock()
			for k, v := range s.visitors {
				if now.Sub(v.lastSeen) > s.ttl {
					delete(s.visitors, k)
				}
			}
			s.mu.Unlock()
		}
	}
}
