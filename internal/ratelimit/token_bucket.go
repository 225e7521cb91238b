// Package ratelimit throttles outgoing ads platform requests per ad account.
//
// The token bucket algorithm allows short bursts up to the bucket capacity
// while holding a sustained request rate. The platform enforces its own
// short-window limits per account; spreading calls out client-side keeps a
// sync from tripping them in the first place.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// TokenBucket implements a thread-safe token bucket rate limiter.
//
// The bucket has a fixed capacity and refills at a constant rate.
// Each request consumes one token. When the bucket is empty, Allow
// rejects and Wait blocks until a token refills.
//
// Example usage:
//
//	bucket := NewTokenBucket(20, 5) // 20 burst capacity, 5 tokens/second
//	if err := bucket.Wait(ctx); err != nil {
//	    return err // ctx cancelled while waiting
//	}
type TokenBucket struct {
	capacity   int        // Maximum number of tokens the bucket can hold
	tokens     int        // Current number of tokens in the bucket
	refillRate int        // Number of tokens added per second
	lastRefill time.Time  // Last time tokens were added to the bucket
	mu         sync.Mutex // Protects all bucket state
	hitCount   int64      // Number of requests that found the bucket empty
	totalCount int64      // Total number of requests processed
	now        func() time.Time
}

// NewTokenBucket creates a new token bucket with the specified capacity and refill rate.
// The bucket starts full.
func NewTokenBucket(capacity, refillRate int) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillRate,
		lastRefill: time.Now(),
		now:        time.Now,
	}
}

// Allow attempts to consume one token from the bucket.
//
// Returns true if a token was available and consumed, false otherwise.
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.totalCount++
	if tb.take() {
		return true
	}
	tb.hitCount++
	return false
}

// Wait blocks until a token is available or ctx is done. It reports whether
// the caller had to wait at all through the returned bool.
func (tb *TokenBucket) Wait(ctx context.Context) (bool, error) {
	tb.mu.Lock()
	tb.totalCount++
	if tb.take() {
		tb.mu.Unlock()
		return false, nil
	}
	tb.hitCount++
	tb.mu.Unlock()

	for {
		delay := tb.nextTokenIn()
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return true, ctx.Err()
		case <-timer.C:
		}

		tb.mu.Lock()
		ok := tb.take()
		tb.mu.Unlock()
		if ok {
			return true, nil
		}
	}
}

// take refills and consumes one token. Callers must hold tb.mu.
func (tb *TokenBucket) take() bool {
	now := tb.now()
	elapsed := now.Sub(tb.lastRefill)

	tokensToAdd := int(elapsed.Seconds() * float64(tb.refillRate))
	if tokensToAdd > 0 {
		tb.tokens = min(tb.capacity, tb.tokens+tokensToAdd)
		tb.lastRefill = now
	}

	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

// nextTokenIn estimates how long until one token has refilled.
func (tb *TokenBucket) nextTokenIn() time.Duration {
	if tb.refillRate <= 0 {
		return time.Second
	}
	return time.Second / time.Duration(tb.refillRate)
}

// Stats returns the number of requests that found the bucket empty and the
// total number of requests processed.
func (tb *TokenBucket) Stats() (hits, total int64) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.hitCount, tb.totalCount
}
