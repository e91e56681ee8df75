package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/zhanzhaozzz/newsradar/pkg/ratelimit"
)

// hostLimiter throttles outbound fetches per target host, independent of
// the overall Parallelism cap: Parallelism bounds how many fetches run at
// once, this bounds how often any single host is hit. It reuses the
// sliding-window algorithm and in-memory store built for inbound
// rate limiting, pointed outbound instead.
type hostLimiter struct {
	store  ratelimit.RateLimitStore
	algo   *ratelimit.SlidingWindowAlgorithm
	limit  int
	window time.Duration
}

// newHostLimiter builds a limiter allowing at most limit requests to any
// one host per window. A limit of 0 disables throttling.
func newHostLimiter(limit int, window time.Duration) *hostLimiter {
	if limit <= 0 {
		return nil
	}
	return &hostLimiter{
		store:  ratelimit.NewInMemoryRateLimitStore(ratelimit.InMemoryStoreConfig{}),
		algo:   ratelimit.NewSlidingWindowAlgorithm(&ratelimit.SystemClock{}),
		limit:  limit,
		window: window,
	}
}

// wait blocks until host is allowed another request, or ctx is canceled.
// A nil receiver means throttling is disabled.
func (h *hostLimiter) wait(ctx context.Context, host string) error {
	if h == nil {
		return nil
	}
	for {
		decision, err := h.algo.IsAllowed(ctx, host, h.store, h.limit, h.window)
		if err != nil {
			return fmt.Errorf("fetch: host limiter: %w", err)
		}
		if decision.Allowed {
			return nil
		}
		timer := time.NewTimer(decision.RetryAfter)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
