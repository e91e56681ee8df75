package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/zhanzhaozzz/newsradar/internal/domain/entity"
	"github.com/zhanzhaozzz/newsradar/internal/resilience/circuitbreaker"
)

// readerRateLimit caps how many requests per second this process sends to
// the managed reader service, independent of the Router's per-host
// throttle: free-tier reader APIs meter by account, not by target host, so
// this budget is shared across every fetch regardless of which site it
// targets.
const readerRateLimit = 5

// ReaderFetcher delegates extraction to a managed reader service (a
// Jina Reader-compatible endpoint) that renders the page itself and
// returns a clean markdown document, sparing this process from running a
// browser for every URL. It is tried before the headless browser because
// it is cheaper and usually faster.
type ReaderFetcher struct {
	client         *http.Client
	circuitBreaker *circuitbreaker.CircuitBreaker
	limiter        *rate.Limiter
	cfg            Config
}

// NewReaderFetcher builds a ReaderFetcher against cfg.ManagedReaderBaseURL.
func NewReaderFetcher(cfg Config) *ReaderFetcher {
	return &ReaderFetcher{
		client:         &http.Client{Timeout: cfg.Timeout},
		circuitBreaker: circuitbreaker.New(circuitbreaker.WebScraperConfig()),
		limiter:        rate.NewLimiter(readerRateLimit, readerRateLimit),
		cfg:            cfg,
	}
}

func (f *ReaderFetcher) Kind() entity.FetcherKind { return entity.FetcherManagedReader }

func (f *ReaderFetcher) Fetch(ctx context.Context, urlStr string, opts ...FetchOption) (entity.FetchedBody, error) {
	if err := validateURL(urlStr, f.cfg.DenyPrivateIPs); err != nil {
		return entity.FetchedBody{}, err
	}
	if f.cfg.ManagedReaderBaseURL == "" {
		return entity.FetchedBody{}, fmt.Errorf("fetch: managed reader not configured")
	}
	if err := f.limiter.Wait(ctx); err != nil {
		return entity.FetchedBody{}, fmt.Errorf("fetch: managed reader rate limit: %w", err)
	}

	o := applyFetchOptions(opts)
	result, err := f.circuitBreaker.Execute(func() (interface{}, error) {
		return f.doFetch(ctx, urlStr, o)
	})
	if err != nil {
		return entity.FetchedBody{}, err
	}
	return result.(entity.FetchedBody), nil
}

func (f *ReaderFetcher) doFetch(ctx context.Context, urlStr string, o fetchOptions) (entity.FetchedBody, error) {
	reqCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	// The target URL travels as a percent-encoded query parameter rather
	// than an unencoded path segment: a raw "#" or "?" in urlStr would
	// otherwise truncate the path or get reinterpreted as this request's
	// own query string.
	endpoint := strings.TrimSuffix(f.cfg.ManagedReaderBaseURL, "/") + "/?url=" + url.QueryEscape(urlStr)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return entity.FetchedBody{}, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	req.Header.Set("Accept", "text/plain")
	if f.cfg.ManagedReaderAPIKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.cfg.ManagedReaderAPIKey)
	}
	req.Header.Set("X-Return-Format", "markdown")
	if o.noCache {
		req.Header.Set("X-No-Cache", "true")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if reqCtx.Err() != nil {
			return entity.FetchedBody{}, fmt.Errorf("%w: %v", ErrTimeout, f.cfg.Timeout)
		}
		return entity.FetchedBody{}, fmt.Errorf("managed reader: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return entity.FetchedBody{}, fmt.Errorf("managed reader: http %d: %s", resp.StatusCode, resp.Status)
	}

	limited := io.LimitReader(resp.Body, f.cfg.MaxBodySize+1)
	raw, err := io.ReadAll(limited)
	if err != nil {
		return entity.FetchedBody{}, fmt.Errorf("managed reader: read body: %w", err)
	}
	if int64(len(raw)) > f.cfg.MaxBodySize {
		return entity.FetchedBody{}, fmt.Errorf("%w: %d bytes exceeds limit %d", ErrBodyTooLarge, len(raw), f.cfg.MaxBodySize)
	}

	title, content := parseReaderResponse(string(raw))
	if content == "" {
		return entity.FetchedBody{}, fmt.Errorf("%w: managed reader returned no content", ErrExtractionFailed)
	}

	return entity.NewFetchedBody(urlStr, title, content, time.Now(), f.cfg.RetentionTTL), nil
}

// parseReaderResponse splits the managed reader's markdown response, which
// starts with "Title: ...", "URL Source: ...", and "Markdown Content:"
// header lines followed by the article body.
func parseReaderResponse(raw string) (title, content string) {
	const marker = "Markdown Content:"
	idx := strings.Index(raw, marker)
	if idx == -1 {
		return "", strings.TrimSpace(raw)
	}

	header := raw[:idx]
	content = strings.TrimSpace(raw[idx+len(marker):])

	for _, line := range strings.Split(header, "\n") {
		if t, ok := strings.CutPrefix(line, "Title:"); ok {
			title = strings.TrimSpace(t)
			break
		}
	}
	return title, content
}
