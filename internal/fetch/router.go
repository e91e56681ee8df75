package fetch

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zhanzhaozzz/newsradar/internal/domain/entity"
	"github.com/zhanzhaozzz/newsradar/internal/observability/tracing"
)

// DomainRule pins a domain (matched by case-folded suffix) to a preferred
// fetch strategy, before the Router's default ordered fallback applies.
type DomainRule struct {
	// Suffix is matched against the URL host with strings.HasSuffix after
	// case-folding, so "weibo.com" also matches "s.weibo.com".
	Suffix string
	Kind   entity.FetcherKind
}

// Router dispatches each URL to its preferred fetcher, falling back through
// the remaining strategies in order on failure, and bounds how many fetches
// run concurrently.
type Router struct {
	fetchers map[entity.FetcherKind]Fetcher
	// order is the default fallback order when no DomainRule matches.
	order   []entity.FetcherKind
	rules   []DomainRule
	cfg     Config
	limiter *hostLimiter
}

// NewRouter builds a Router over the given fetchers. order is the default
// strategy sequence tried for a URL with no matching DomainRule; rules let
// specific domains skip straight to (or simply prefer) a strategy. Outbound
// requests to any one host are throttled per cfg.HostRateLimit/HostRateWindow.
func NewRouter(cfg Config, fetchers map[entity.FetcherKind]Fetcher, order []entity.FetcherKind, rules []DomainRule) *Router {
	return &Router{
		fetchers: fetchers,
		order:    order,
		rules:    rules,
		cfg:      cfg,
		limiter:  newHostLimiter(cfg.HostRateLimit, cfg.HostRateWindow),
	}
}

// JSRenderDomainRules is the built-in "JS-render set": social and
// short-video platforms whose pages render client-side, so only the
// headless browser strategy sees real content. This is selection tier 2,
// consulted after any config-supplied DomainRule and before the
// reader-preferred set.
func JSRenderDomainRules() []DomainRule {
	return []DomainRule{
		{Suffix: "weibo.com", Kind: entity.FetcherHeadlessBrowser},
		{Suffix: "zhihu.com", Kind: entity.FetcherHeadlessBrowser},
		{Suffix: "x.com", Kind: entity.FetcherHeadlessBrowser},
		{Suffix: "twitter.com", Kind: entity.FetcherHeadlessBrowser},
		{Suffix: "douyin.com", Kind: entity.FetcherHeadlessBrowser},
		{Suffix: "tiktok.com", Kind: entity.FetcherHeadlessBrowser},
	}
}

// ReaderPreferredDomainRules is the built-in "reader-preferred set": major
// long-form/news portals the managed reader API handles well (paywall and
// boilerplate stripping) without needing a full browser. This is selection
// tier 3, consulted after the JS-render set and before the default order.
func ReaderPreferredDomainRules() []DomainRule {
	return []DomainRule{
		{Suffix: "nytimes.com", Kind: entity.FetcherManagedReader},
		{Suffix: "bbc.com", Kind: entity.FetcherManagedReader},
		{Suffix: "theguardian.com", Kind: entity.FetcherManagedReader},
		{Suffix: "reuters.com", Kind: entity.FetcherManagedReader},
		{Suffix: "bloomberg.com", Kind: entity.FetcherManagedReader},
		{Suffix: "wsj.com", Kind: entity.FetcherManagedReader},
		{Suffix: "caixin.com", Kind: entity.FetcherManagedReader},
	}
}

// DefaultDomainRules returns the built-in rule tiers (JS-render, then
// reader-preferred) with no config-supplied rules ahead of them, for
// callers that don't have their own domain_rules configuration. Most
// deployments should instead build their rule list as
// append(configRules, append(JSRenderDomainRules(), ReaderPreferredDomainRules()...)...)
// so config-supplied rules take precedence, per the selection algorithm's
// tier order.
func DefaultDomainRules() []DomainRule {
	return append(JSRenderDomainRules(), ReaderPreferredDomainRules()...)
}

// strategyFor returns the fetch order for urlStr: its matching DomainRule's
// Kind first (if any and not already first), then the router's default
// order, deduplicated.
func (r *Router) strategyFor(urlStr string) []entity.FetcherKind {
	host := strings.ToLower(hostOf(urlStr))

	var preferred entity.FetcherKind
	for _, rule := range r.rules {
		if strings.HasSuffix(host, strings.ToLower(rule.Suffix)) {
			preferred = rule.Kind
			break
		}
	}

	if preferred == "" {
		return r.order
	}

	sequence := make([]entity.FetcherKind, 0, len(r.order)+1)
	sequence = append(sequence, preferred)
	for _, k := range r.order {
		if k != preferred {
			sequence = append(sequence, k)
		}
	}
	return sequence
}

func hostOf(urlStr string) string {
	// Avoid importing net/url twice across fetch.go for a one-line need;
	// inlined minimal parse so this stays a pure string op.
	s := urlStr
	if i := strings.Index(s, "://"); i != -1 {
		s = s[i+3:]
	}
	if i := strings.IndexAny(s, "/?#"); i != -1 {
		s = s[:i]
	}
	if i := strings.LastIndex(s, "@"); i != -1 {
		s = s[i+1:]
	}
	if i := strings.LastIndex(s, ":"); i != -1 {
		s = s[:i]
	}
	return s
}

// FetchOne tries urlStr through its strategy sequence, returning the first
// success. Every attempt, including failures, is recorded in the returned
// FetchOutcome's elapsed time and error kind when all strategies fail.
func (r *Router) FetchOne(ctx context.Context, urlStr string) entity.FetchOutcome {
	ctx, span := tracing.GetTracer().Start(ctx, "fetch.FetchOne")
	defer span.End()

	start := time.Now()
	var lastErr error
	var lastKind entity.FetcherKind

	host := strings.ToLower(hostOf(urlStr))
	if err := r.limiter.wait(ctx, host); err != nil {
		return entity.NewFetchFailure("", classifyError(err), err.Error())
	}

	sequence := r.strategyFor(urlStr)
	if budget := r.cfg.MaxRetries + 1; budget > 0 && budget < len(sequence) {
		sequence = sequence[:budget]
	}

	for _, kind := range sequence {
		fetcher, ok := r.fetchers[kind]
		if !ok {
			continue
		}

		body, err := fetcher.Fetch(ctx, urlStr)
		if err == nil {
			return entity.NewFetchSuccess(body, kind, time.Since(start))
		}

		lastErr = err
		lastKind = kind
		slog.WarnContext(ctx, "fetch strategy failed, trying next",
			slog.String("url", urlStr),
			slog.String("strategy", string(kind)),
			slog.String("error", err.Error()))
	}

	if lastErr == nil {
		return entity.NewFetchFailure("", entity.ErrorKindFetcherExhausted, "no fetch strategies configured")
	}
	return entity.NewFetchFailure(lastKind, classifyError(lastErr), lastErr.Error())
}

// FetchMany fetches every url concurrently, bounded by cfg.Parallelism, and
// returns outcomes in input order. Only the first cfg.TopN urls are
// fetched; the rest are left for a future batch.
func (r *Router) FetchMany(ctx context.Context, urls []string) ([]entity.FetchOutcome, error) {
	if r.cfg.TopN > 0 && len(urls) > r.cfg.TopN {
		urls = urls[:r.cfg.TopN]
	}
	outcomes := make([]entity.FetchOutcome, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, r.cfg.Parallelism)

	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
			defer func() { <-sem }()

			outcomes[i] = r.FetchOne(gctx, u)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return outcomes, err
	}
	return outcomes, nil
}

func classifyError(err error) entity.ErrorKind {
	switch {
	case err == nil:
		return ""
	case isTimeout(err):
		return entity.ErrorKindTimeout
	case isPrivateOrInvalidURL(err):
		return entity.ErrorKindNetwork
	default:
		return entity.ErrorKindNetwork
	}
}

func isTimeout(err error) bool {
	return strings.Contains(err.Error(), "timed out") || strings.Contains(err.Error(), "deadline exceeded")
}

func isPrivateOrInvalidURL(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, ErrInvalidURL.Error()) || strings.Contains(msg, ErrPrivateIP.Error())
}
