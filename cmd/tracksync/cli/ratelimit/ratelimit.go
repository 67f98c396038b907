// Package ratelimit implements a token bucket for outbound API calls.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Limiter is a token bucket sized in calls per minute: capacity tokens,
// refilled continuously at capacity/60 tokens per second. Safe for
// concurrent use.
type Limiter struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

// NewPerMinute returns a limiter allowing callsPerMinute calls per minute.
// The bucket starts full. Values below 1 are clamped to 1.
func NewPerMinute(callsPerMinute int) *Limiter {
	if callsPerMinute < 1 {
		callsPerMinute = 1
	}
	capacity := float64(callsPerMinute)
	return &Limiter{
		tokens:     capacity,
		maxTokens:  capacity,
		refillRate: capacity / 60.0,
		lastRefill: time.Now(),
	}
}

// refill credits tokens for the time elapsed since the last refill.
// Caller must hold mu.
func (l *Limiter) refill(now time.Time) {
	elapsed := now.Sub(l.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	l.tokens += elapsed * l.refillRate
	if l.tokens > l.maxTokens {
		l.tokens = l.maxTokens
	}
	l.lastRefill = now
}

// TryAcquire takes n tokens if available without waiting.
func (l *Limiter) TryAcquire(n int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill(time.Now())
	if l.tokens < float64(n) {
		return false
	}
	l.tokens -= float64(n)
	return true
}

// Acquire takes n tokens, sleeping until enough have refilled. Returns early
// with the context error if ctx is cancelled while waiting.
func (l *Limiter) Acquire(ctx context.Context, n int) error {
	if float64(n) > l.maxTokens {
		return fmt.Errorf("requested %d tokens exceeds bucket capacity %.0f", n, l.maxTokens)
	}
	for {
		l.mu.Lock()
		now := time.Now()
		l.refill(now)
		if l.tokens >= float64(n) {
			l.tokens -= float64(n)
			l.mu.Unlock()
			return nil
		}
		deficit := float64(n) - l.tokens
		wait := time.Duration(deficit / l.refillRate * float64(time.Second))
		l.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Available reports the current token count.
func (l *Limiter) Available() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill(time.Now())
	return l.tokens
}
