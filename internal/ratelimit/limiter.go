package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const initialBackoff = 100 * time.Millisecond

// Limiter wraps rate.Limiter with backoff after upstream throttling
type Limiter struct {
	limiter   *rate.Limiter
	name      string
	mu        sync.Mutex
	backoff   time.Duration
	maxWait   time.Duration
	throttled bool
}

// NewLimiter creates a new rate limiter
// perMinute specifies the number of requests allowed per minute
func NewLimiter(name string, perMinute int) *Limiter {
	if perMinute < 1 {
		perMinute = 1
	}
	rps := float64(perMinute) / 60.0
	// Allow burst of up to 5 requests or 1/10th of per-minute limit
	burst := perMinute / 10
	if burst < 1 {
		burst = 1
	}
	if burst > 5 {
		burst = 5
	}

	return newLimiter(name, rate.Limit(rps), burst)
}

// NewPacer creates a limiter that lets one request through per interval.
// A zero interval never blocks.
func NewPacer(name string, interval time.Duration) *Limiter {
	if interval <= 0 {
		return newLimiter(name, rate.Inf, 1)
	}
	return newLimiter(name, rate.Every(interval), 1)
}

func newLimiter(name string, limit rate.Limit, burst int) *Limiter {
	return &Limiter{
		limiter: rate.NewLimiter(limit, burst),
		name:    name,
		backoff: initialBackoff,
		maxWait: 2 * time.Minute,
	}
}

// Wait blocks until a token is available or context is cancelled.
// After SignalRateLimited it also sleeps the current backoff.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}

	l.mu.Lock()
	throttled, backoff := l.throttled, l.backoff
	l.mu.Unlock()
	if !throttled {
		return nil
	}

	t := time.NewTimer(backoff)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Allow reports whether an event may happen now
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// SignalRateLimited should be called when a 429 response is received
// It applies exponential backoff
func (l *Limiter) SignalRateLimited() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.throttled {
		l.backoff *= 2
	}
	l.throttled = true
	if l.backoff > l.maxWait {
		l.backoff = l.maxWait
	}
}

// ResetBackoff resets the backoff duration after successful request
func (l *Limiter) ResetBackoff() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.backoff = initialBackoff
	l.throttled = false
}

// GetBackoff returns the current backoff duration, 0 when not throttled
func (l *Limiter) GetBackoff() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.throttled {
		return 0
	}
	return l.backoff
}

// Name returns the limiter name
func (l *Limiter) Name() string {
	return l.name
}
