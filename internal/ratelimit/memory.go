package ratelimit

import (
	"context"
	"sync"
	"time"
)

// window is one fixed window for a key+rate. It opens on the first hit and
// closes Period later.
type window struct {
	hits  int
	reset time.Time
}

// MemoryStore is an in-process fixed-window counter. Nothing survives a
// restart and nothing is shared between instances.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

// NewMemoryStore starts a sweeper that drops expired windows every sweep
// interval until ctx is cancelled.
func NewMemoryStore(ctx context.Context, sweep time.Duration) *MemoryStore {
	s := &MemoryStore{
		windows: make(map[string]*window),
		now:     time.Now,
	}
	if sweep > 0 {
		go s.sweepLoop(ctx, sweep)
	}
	return s
}

func (s *MemoryStore) Take(_ context.Context, key string, r Rate) (Result, error) {
	now := s.now()
	k := key + "/" + r.key()

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[k]
	if !ok || !now.Before(w.reset) {
		w = &window{reset: now.Add(r.Period)}
		s.windows[k] = w
	}
	if w.hits >= r.Count {
		return Result{Allowed: false, RetryAfter: w.reset.Sub(now)}, nil
	}
	w.hits++
	return Result{Allowed: true, Remaining: r.Count - w.hits}, nil
}

// Len reports the number of live windows.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

func (s *MemoryStore) sweep() {
	now := s.now()
	s.mu.Lock()
	for k, w := range s.windows {
		if !now.Before(w.reset) {
			delete(s.windows, k)
		}
	}
	s.mu.Unlock()
}

func (s *MemoryStore) sweepLoop(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.sweep()
		}
	}
}
