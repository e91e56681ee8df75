package fetch

import (
	"fmt"
	"time"
)

// Config holds the security and performance settings shared by all three
// fetching strategies.
type Config struct {
	// Timeout is the maximum duration for a single fetch attempt.
	Timeout time.Duration

	// Parallelism is the maximum number of concurrent fetch operations the
	// Router will run.
	Parallelism int

	// MaxBodySize is the maximum HTTP response body size in bytes, enforced
	// while reading, not from Content-Length.
	MaxBodySize int64

	// MaxRedirects is the maximum number of HTTP redirects to follow.
	MaxRedirects int

	// DenyPrivateIPs blocks URLs that resolve to loopback, private, or
	// link-local addresses. Should always be true in production.
	DenyPrivateIPs bool

	// ManagedReaderBaseURL is the base URL of the managed reader service
	// (e.g. a Jina Reader-compatible endpoint).
	ManagedReaderBaseURL string

	// ManagedReaderAPIKey authenticates against ManagedReaderBaseURL, if set.
	ManagedReaderAPIKey string

	// HeadlessSettleDelay is how long the headless browser waits after
	// WaitReady before extracting content, approximating a network-idle
	// wait that Chrome DevTools Protocol does not expose natively.
	HeadlessSettleDelay time.Duration

	// RetentionTTL is how long a cached body remains fresh before it is
	// eligible for Sweep.
	RetentionTTL time.Duration

	// HostRateLimit caps how many fetches the Router will send to any one
	// host per HostRateWindow. Zero disables outbound throttling.
	HostRateLimit int

	// HostRateWindow is the sliding window HostRateLimit is measured over.
	HostRateWindow time.Duration

	// TopN caps how many URLs a single FetchMany batch will process;
	// any beyond the first TopN are left untouched for the next run.
	TopN int

	// MaxRetries bounds how many fetcher strategies FetchOne will try
	// for a single URL before giving up: the primary strategy plus up
	// to MaxRetries fallbacks.
	MaxRetries int
}

// DefaultConfig returns production-ready defaults for all three fetchers.
func DefaultConfig() Config {
	return Config{
		Timeout:             15 * time.Second,
		Parallelism:         5,
		MaxBodySize:         10 * 1024 * 1024,
		MaxRedirects:        5,
		DenyPrivateIPs:      true,
		HeadlessSettleDelay: 1500 * time.Millisecond,
		RetentionTTL:        24 * time.Hour,
		HostRateLimit:       10,
		HostRateWindow:      time.Minute,
		TopN:                20,
		MaxRetries:          2,
	}
}

// Validate checks the configuration for values that would be unsafe or
// nonsensical to run with.
func (c Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("fetch: timeout must be positive, got %v", c.Timeout)
	}
	if c.Parallelism < 1 || c.Parallelism > 50 {
		return fmt.Errorf("fetch: parallelism must be between 1 and 50, got %d", c.Parallelism)
	}
	if c.MaxBodySize < 1024 || c.MaxBodySize > 100*1024*1024 {
		return fmt.Errorf("fetch: max body size must be between 1KB and 100MB, got %d", c.MaxBodySize)
	}
	if c.MaxRedirects < 0 || c.MaxRedirects > 10 {
		return fmt.Errorf("fetch: max redirects must be between 0 and 10, got %d", c.MaxRedirects)
	}
	if c.TopN < 0 {
		return fmt.Errorf("fetch: top_n must not be negative, got %d", c.TopN)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("fetch: max_retries must not be negative, got %d", c.MaxRetries)
	}
	return nil
}
