package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// fakeClock is a settable time source for the in-memory stores
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func mustRate(t *testing.T, s string) Rate {
	t.Helper()
	r, err := ParseRate(s)
	if err != nil {
		t.Fatalf("ParseRate(%q): %v", s, err)
	}
	return r
}

func newTestMemoryStore(t *testing.T) (*MemoryStore, *fakeClock) {
	t.Helper()
	clk := newFakeClock()
	s := NewMemoryStore(context.Background(), 0)
	s.now = clk.Now
	return s, clk
}

func TestMemoryStore_FixedWindow(t *testing.T) {
	s, clk := newTestMemoryStore(t)
	r := mustRate(t, "2/3seconds")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := s.Take(ctx, "10.0.0.1", r)
		if err != nil || !res.Allowed {
			t.Fatalf("hit %d: allowed=%v err=%v, want allowed", i+1, res.Allowed, err)
		}
	}

	clk.Advance(time.Second)
	res, _ := s.Take(ctx, "10.0.0.1", r)
	if res.Allowed {
		t.Fatal("third hit inside the window should be rejected")
	}
	if res.RetryAfter != 2*time.Second {
		t.Errorf("RetryAfter = %v, want 2s", res.RetryAfter)
	}

	// window opened at the first hit, so it resets 3s after it
	clk.Advance(2 * time.Second)
	res, _ = s.Take(ctx, "10.0.0.1", r)
	if !res.Allowed {
		t.Fatal("hit after the window reset should be allowed")
	}
	if res.Remaining != 1 {
		t.Errorf("Remaining = %d, want 1", res.Remaining)
	}
}

func TestMemoryStore_RejectedHitsDoNotExtendWindow(t *testing.T) {
	s, clk := newTestMemoryStore(t)
	r := mustRate(t, "1/second")
	ctx := context.Background()

	s.Take(ctx, "k", r)
	for i := 0; i < 5; i++ {
		clk.Advance(100 * time.Millisecond)
		if res, _ := s.Take(ctx, "k", r); res.Allowed {
			t.Fatalf("hit %d should be rejected", i+2)
		}
	}
	clk.Advance(500 * time.Millisecond)
	if res, _ := s.Take(ctx, "k", r); !res.Allowed {
		t.Fatal("window should have reset one second after the first hit")
	}
}

func TestMemoryStore_KeysAndRatesIndependent(t *testing.T) {
	s, _ := newTestMemoryStore(t)
	short := mustRate(t, "1/second")
	long := mustRate(t, "1/minute")
	ctx := context.Background()

	s.Take(ctx, "a", short)
	if res, _ := s.Take(ctx, "b", short); !res.Allowed {
		t.Error("key b should have its own window")
	}
	if res, _ := s.Take(ctx, "a", long); !res.Allowed {
		t.Error("a different rate should have its own window")
	}
}

func TestMemoryStore_Sweep(t *testing.T) {
	s, clk := newTestMemoryStore(t)
	r := mustRate(t, "1/second")
	ctx := context.Background()

	s.Take(ctx, "a", r)
	s.Take(ctx, "b", r)
	if s.Len() != 2 {
		t.Fatalf("Len = %d, want 2", s.Len())
	}
	clk.Advance(2 * time.Second)
	s.sweep()
	if s.Len() != 0 {
		t.Fatalf("Len after sweep = %d, want 0", s.Len())
	}
}

func TestMemoryStore_Concurrent(t *testing.T) {
	s, _ := newTestMemoryStore(t)
	r := mustRate(t, "50/minute")
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, _ := s.Take(ctx, "k", r)
			if res.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if allowed != 50 {
		t.Fatalf("allowed = %d, want exactly 50", allowed)
	}
}

func TestBucketStore_BurstThenRefill(t *testing.T) {
	clk := newFakeClock()
	s := NewBucketStore(context.Background(), 0)
	s.now = clk.Now
	r := mustRate(t, "2/3seconds")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if res, _ := s.Take(ctx, "k", r); !res.Allowed {
			t.Fatalf("hit %d should be allowed (burst)", i+1)
		}
	}
	res, _ := s.Take(ctx, "k", r)
	if res.Allowed {
		t.Fatal("third hit should be rejected")
	}
	if res.RetryAfter <= 0 || res.RetryAfter > 3*time.Second {
		t.Errorf("RetryAfter = %v, want within (0, 3s]", res.RetryAfter)
	}

	// one token refills every 1.5s
	clk.Advance(1500 * time.Millisecond)
	if res, _ := s.Take(ctx, "k", r); !res.Allowed {
		t.Fatal("hit after refill should be allowed")
	}
	if res, _ := s.Take(ctx, "k", r); res.Allowed {
		t.Fatal("only one token should have refilled")
	}
}

func TestBucketStore_Cleanup(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewBucketStore(ctx, 50*time.Millisecond)
	s.Take(ctx, "k", mustRate(t, "1/second"))

	time.Sleep(200 * time.Millisecond)

	s.mu.Lock()
	n := len(s.visitors)
	s.mu.Unlock()
	if n != 0 {
		t.Fatalf("visitors = %d, want 0 after ttl", n)
	}
}

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb), mr
}

func TestRedisStore_FixedWindow(t *testing.T) {
	s, mr := newTestRedisStore(t)
	r := mustRate(t, "2/3seconds")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := s.Take(ctx, "10.0.0.1", r)
		if err != nil {
			t.Fatalf("hit %d: %v", i+1, err)
		}
		if !res.Allowed {
			t.Fatalf("hit %d should be allowed", i+1)
		}
	}

	res, err := s.Take(ctx, "10.0.0.1", r)
	if err != nil {
		t.Fatalf("hit 3: %v", err)
	}
	if res.Allowed {
		t.Fatal("third hit should be rejected")
	}
	if res.RetryAfter <= 0 || res.RetryAfter > 3*time.Second {
		t.Errorf("RetryAfter = %v, want within (0, 3s]", res.RetryAfter)
	}

	mr.FastForward(3 * time.Second)
	res, err = s.Take(ctx, "10.0.0.1", r)
	if err != nil || !res.Allowed {
		t.Fatalf("hit after expiry: allowed=%v err=%v", res.Allowed, err)
	}
}

func TestRedisStore_KeyLayout(t *testing.T) {
	s, mr := newTestRedisStore(t)
	s.Take(context.Background(), "10.0.0.1", mustRate(t, "2/3seconds"))

	key := "LIMITER/10.0.0.1/2/3/second"
	if !mr.Exists(key) {
		t.Fatalf("expected key %q, have %v", key, mr.Keys())
	}
	if ttl := mr.TTL(key); ttl != 3*time.Second {
		t.Errorf("TTL = %v, want 3s", ttl)
	}
}

func TestRedisStore_KeyPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	s := NewRedisStore(rdb, WithKeyPrefix("tfmkt/"))
	s.Take(context.Background(), "ip", mustRate(t, "1/minute"))
	if !mr.Exists("tfmkt/ip/1/1/minute") {
		t.Fatalf("prefixed key missing, have %v", mr.Keys())
	}
}

func TestRedisStore_PingAndFailure(t *testing.T) {
	s, mr := newTestRedisStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	mr.Close()
	if err := s.Ping(context.Background()); err == nil {
		t.Fatal("Ping should fail once redis is gone")
	}
	if _, err := s.Take(context.Background(), "k", mustRate(t, "1/second")); err == nil {
		t.Fatal("Take should fail once redis is gone")
	}
}

func TestNewRedisStoreFromURI(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := NewRedisStoreFromURI("redis://" + mr.Addr() + "/0")
	if err != nil {
		t.Fatalf("NewRedisStoreFromURI: %v", err)
	}
	defer s.Close()
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	if _, err := NewRedisStoreFromURI("memcached://nope"); err == nil {
		t.Fatal("expected error for non-redis uri")
	}
}

func TestOpenStore(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	mr := miniredis.RunT(t)

	tests := []struct {
		strategy, uri string
		want          string
		wantErr       bool
	}{
		{StrategyFixedWindow, "memory://", "*ratelimit.MemoryStore", false},
		{"", "", "*ratelimit.MemoryStore", false},
		{StrategyFixedWindow, "redis://" + mr.Addr() + "/0", "*ratelimit.RedisStore", false},
		{StrategyTokenBucket, "memory://", "*ratelimit.BucketStore", false},
		{StrategyTokenBucket, "redis://" + mr.Addr(), "", true},
		{"sliding-window", "memory://", "", true},
		{StrategyFixedWindow, "mongodb://x", "", true},
	}
	for _, tt := range tests {
		s, err := OpenStore(ctx, tt.strategy, tt.uri)
		if tt.wantErr {
			if err == nil {
				t.Errorf("OpenStore(%q, %q) = %T, want error", tt.strategy, tt.uri, s)
			}
			continue
		}
		if err != nil {
			t.Errorf("OpenStore(%q, %q): %v", tt.strategy, tt.uri, err)
			continue
		}
		if got := fmt.Sprintf("%T", s); got != tt.want {
			t.Errorf("OpenStore(%q, %q) = %s, want %s", tt.strategy, tt.uri, got, tt.want)
		}
	}
}
