package bucket

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"mediconnect/internal/ratelimit/models"
)

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// InMemoryBucketStore keeps one token bucket per key. It is process-local.
type InMemoryBucketStore struct {
	mu      sync.Mutex
	buckets map[string]*entry
	limit   rate.Limit
	burst   int
	now     func() time.Time
}

// Option configures an InMemoryBucketStore.
type Option func(*InMemoryBucketStore)

// WithClock overrides the time source; buckets refill against it.
func WithClock(now func() time.Time) Option {
	return func(s *InMemoryBucketStore) {
		s.now = now
	}
}

// NewInMemoryBucketStore allows perSecond sustained requests per key with
// bursts of up to burst.
func NewInMemoryBucketStore(perSecond float64, burst int, opts ...Option) *InMemoryBucketStore {
	s := &InMemoryBucketStore{
		buckets: make(map[string]*entry),
		limit:   rate.Limit(perSecond),
		burst:   burst,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Allow takes one token from key's bucket.
func (s *InMemoryBucketStore) Allow(_ context.Context, key string) (*models.RateLimitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e := s.buckets[key]
	if e == nil {
		e = &entry{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.buckets[key] = e
	}
	e.lastSeen = now

	res := e.limiter.ReserveN(now, 1)
	delay := res.DelayFrom(now)
	if !res.OK() || delay > 0 {
		res.CancelAt(now)
		retry := int(math.Ceil(delay.Seconds()))
		if retry < 1 {
			retry = 1
		}
		return &models.RateLimitResult{
			Allowed:    false,
			Limit:      s.burst,
			RetryAfter: retry,
			ResetAt:    now.Add(delay),
		}, nil
	}

	remaining := int(e.limiter.TokensAt(now))
	return &models.RateLimitResult{
		Allowed:   true,
		Limit:     s.burst,
		Remaining: max(remaining, 0),
		ResetAt:   now,
	}, nil
}

// Sweep drops buckets idle for longer than idle and returns how many were
// removed.
func (s *InMemoryBucketStore) Sweep(idle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-idle)
	removed := 0
	for k, e := range s.buckets {
		if e.lastSeen.Before(cutoff) {
			delete(s.buckets, k)
			removed++
		}
	}
	return removed
}

// RunSweeper sweeps every interval until ctx is done.
func (s *InMemoryBucketStore) RunSweeper(ctx context.Context, every, idle time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep(idle)
		}
	}
}
