package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"github.com/patrickwarner/adsync/internal/observability"
)

// AccountLimiter throttles requests per ad account.
//
// Each account gets its own token bucket, created lazily on first access.
// Waits are reported to the injected metrics registry.
type AccountLimiter struct {
	buckets map[string]*TokenBucket       // Map of ad account ID to token bucket
	mu      sync.RWMutex                  // Protects the buckets map
	config  Config                        // Throttle configuration
	metrics observability.MetricsRegistry // Metrics registry for throttle activity
}

// Config holds the configuration for the per-account throttle.
type Config struct {
	Capacity   int  // Token bucket capacity (burst allowance)
	RefillRate int  // Tokens added per second (sustained rate)
	Enabled    bool // Whether throttling is active
}

// NewAccountLimiter creates a limiter with the given configuration.
func NewAccountLimiter(config Config, metrics observability.MetricsRegistry) *AccountLimiter {
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &AccountLimiter{
		buckets: make(map[string]*TokenBucket),
		config:  config,
		metrics: metrics,
	}
}

// Wait blocks until the account may issue another request or ctx is done.
// A nil or disabled limiter never blocks.
func (al *AccountLimiter) Wait(ctx context.Context, account string) error {
	if al == nil || !al.config.Enabled {
		return nil
	}

	waited, err := al.bucket(account).Wait(ctx)
	if waited {
		al.metrics.IncrementThrottleWaits(account)
	}
	return err
}

func (al *AccountLimiter) bucket(account string) *TokenBucket {
	al.mu.RLock()
	bucket, exists := al.buckets[account]
	al.mu.RUnlock()
	if exists {
		return bucket
	}

	al.mu.Lock()
	defer al.mu.Unlock()
	bucket, exists = al.buckets[account]
	if !exists {
		bucket = NewTokenBucket(al.config.Capacity, al.config.RefillRate)
		al.buckets[account] = bucket
	}
	return bucket
}

// GetStats returns throttle statistics for every account seen so far.
func (al *AccountLimiter) GetStats() map[string]Stats {
	al.mu.RLock()
	defer al.mu.RUnlock()

	stats := make(map[string]Stats, len(al.buckets))
	for account, bucket := range al.buckets {
		hits, total := bucket.Stats()
		hitRate := 0.0
		if total > 0 {
			hitRate = float64(hits) / float64(total)
		}
		stats[account] = Stats{Account: account, Hits: hits, Total: total, HitRate: hitRate}
	}
	return stats
}

// Stats describes throttle activity for a single ad account.
type Stats struct {
	Account string  `json:"account"`
	Hits    int64   `json:"hits"`     // Requests that had to wait
	Total   int64   `json:"total"`    // Requests processed
	HitRate float64 `json:"hit_rate"` // Share of requests that waited (0.0-1.0)
}

// String returns a human-readable representation of the statistics.
func (s Stats) String() string {
	return fmt.Sprintf("Account %s: %d/%d waited (%.2f%%)", s.Account, s.Hits, s.Total, s.HitRate*100)
}
