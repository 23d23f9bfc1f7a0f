package ratelimit

import (
	"context"
	"sync"
	"time"
)

const defaultPollInterval = 100 * time.Millisecond

// Limiter is a token bucket that additionally enforces a minimum spacing
// between consecutive requests. One shared instance paces every concurrent
// turn that talks to the inference service.
type Limiter struct {
	mu sync.Mutex

	rateLimit int
	window    time.Duration

	tokens      int
	lastRefill  time.Time
	lastRequest time.Time

	pollInterval time.Duration
	now          func() time.Time
}

type LimiterOption func(*Limiter)

// WithPollInterval overrides how often WaitForToken re-attempts acquisition.
func WithPollInterval(interval time.Duration) LimiterOption {
	return func(l *Limiter) {
		if interval > 0 {
			l.pollInterval = interval
		}
	}
}

// NewLimiter creates a limiter allowing rateLimit requests per window. The
// bucket starts full.
func NewLimiter(rateLimit int, window time.Duration, opts ...LimiterOption) *Limiter {
	if rateLimit < 1 {
		rateLimit = 1
	}
	if window <= 0 {
		window = time.Second
	}

	l := &Limiter{
		rateLimit:    rateLimit,
		window:       window,
		tokens:       rateLimit,
		lastRefill:   time.Now(),
		pollInterval: defaultPollInterval,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire attempts to take one token. It first enforces the minimum
// inter-request spacing, delaying the caller while holding the bucket lock,
// then refills the bucket proportionally to the elapsed time and consumes one
// token if any remain. A cancelled context aborts the spacing delay without
// consuming anything.
func (l *Limiter) Acquire(ctx context.Context) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	minInterval := l.window / time.Duration(l.rateLimit)
	if sinceLast := now.Sub(l.lastRequest); !l.lastRequest.IsZero() && sinceLast < minInterval {
		if !sleepContext(ctx, minInterval-sinceLast) {
			return false
		}
		now = l.now()
	}

	elapsed := now.Sub(l.lastRefill)
	if refill := int(elapsed.Seconds() / l.window.Seconds() * float64(l.rateLimit)); refill > 0 {
		l.tokens = min(l.rateLimit, l.tokens+refill)
		l.lastRefill = now
	}

	if l.tokens <= 0 {
		return false
	}
	l.tokens--
	l.lastRequest = l.now()
	return true
}

// WaitForToken polls Acquire until a token is granted, the timeout elapses,
// or ctx is cancelled. It never blocks indefinitely.
func (l *Limiter) WaitForToken(ctx context.Context, timeout time.Duration) bool {
	deadline := l.now().Add(timeout)
	for {
		if l.Acquire(ctx) {
			return true
		}
		if ctx.Err() != nil || !l.now().Before(deadline) {
			return false
		}
		if !sleepContext(ctx, l.pollInterval) {
			return false
		}
	}
}

// Tokens reports the remaining token count, for status reporting.
func (l *Limiter) Tokens() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tokens
}

// sleepContext sleeps for d unless ctx is cancelled first, reporting whether
// the full duration elapsed.
func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
