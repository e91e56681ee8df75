package fetch

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/zhanzhaozzz/newsradar/internal/domain/entity"
	"github.com/zhanzhaozzz/newsradar/internal/resilience/circuitbreaker"
)

// PlainFetcher fetches a URL with a plain HTTP client and extracts readable
// content via Mozilla's Readability algorithm, falling back to a goquery
// paragraph scrape when Readability yields nothing usable. This is the
// fallback strategy the Router reaches for once the managed reader and
// headless browser strategies have both failed or are unavailable.
type PlainFetcher struct {
	client         *http.Client
	circuitBreaker *circuitbreaker.CircuitBreaker
	cfg            Config
}

// NewPlainFetcher builds a PlainFetcher with redirect validation wired into
// the HTTP client itself, so every hop (not just the initial URL) is
// checked for SSRF.
func NewPlainFetcher(cfg Config) *PlainFetcher {
	f := &PlainFetcher{
		circuitBreaker: circuitbreaker.New(circuitbreaker.WebScraperConfig()),
		cfg:            cfg,
	}

	f.client = &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= f.cfg.MaxRedirects {
				return fmt.Errorf("%w: %d redirects", ErrTooManyRedirects, len(via))
			}
			if err := validateURL(req.URL.String(), f.cfg.DenyPrivateIPs); err != nil {
				return fmt.Errorf("redirect target validation failed: %w", err)
			}
			return nil
		},
	}

	return f
}

func (f *PlainFetcher) Kind() entity.FetcherKind { return entity.FetcherPlainHTTP }

// Fetch implements Fetcher. It has no per-call behavior to override, so it
// accepts and ignores opts to satisfy the interface.
func (f *PlainFetcher) Fetch(ctx context.Context, urlStr string, opts ...FetchOption) (entity.FetchedBody, error) {
	if err := validateURL(urlStr, f.cfg.DenyPrivateIPs); err != nil {
		return entity.FetchedBody{}, err
	}

	result, err := f.circuitBreaker.Execute(func() (interface{}, error) {
		return f.doFetch(ctx, urlStr)
	})
	if err != nil {
		return entity.FetchedBody{}, err
	}
	return result.(entity.FetchedBody), nil
}

func (f *PlainFetcher) doFetch(ctx context.Context, urlStr string) (entity.FetchedBody, error) {
	reqCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, urlStr, nil)
	if err != nil {
		return entity.FetchedBody{}, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	req.Header.Set("User-Agent", "NewsradarBot/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		if reqCtx.Err() != nil {
			return entity.FetchedBody{}, fmt.Errorf("%w: %v", ErrTimeout, f.cfg.Timeout)
		}
		if urlErr, ok := err.(*url.Error); ok && urlErr.Err != nil {
			return entity.FetchedBody{}, urlErr.Err
		}
		return entity.FetchedBody{}, fmt.Errorf("plain fetch: http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return entity.FetchedBody{}, fmt.Errorf("plain fetch: http %d: %s", resp.StatusCode, resp.Status)
	}

	limited := io.LimitReader(resp.Body, f.cfg.MaxBodySize+1)
	htmlBytes, err := io.ReadAll(limited)
	if err != nil {
		return entity.FetchedBody{}, fmt.Errorf("plain fetch: read body: %w", err)
	}
	if int64(len(htmlBytes)) > f.cfg.MaxBodySize {
		return entity.FetchedBody{}, fmt.Errorf("%w: %d bytes exceeds limit %d", ErrBodyTooLarge, len(htmlBytes), f.cfg.MaxBodySize)
	}

	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		parsedURL = nil
	}
	if resp.Request != nil && resp.Request.URL != nil {
		parsedURL = resp.Request.URL
	}

	title, text := extractReadable(htmlBytes, parsedURL)
	if text == "" {
		return entity.FetchedBody{}, fmt.Errorf("%w: no readable content found", ErrExtractionFailed)
	}

	excerpt := htmlBytes
	if len(excerpt) > 10*1024 {
		excerpt = excerpt[:10*1024]
	}

	body := entity.NewFetchedBody(urlStr, title, text, time.Now(), f.cfg.RetentionTTL)
	body.HTMLExcerpt = string(excerpt)
	body.Author, body.ImageURLs = extractMetadata(htmlBytes, parsedURL)
	return body, nil
}

// extractMetadata pulls author and up to 10 image URLs out of the raw HTML
// via goquery, independent of which extraction path (Readability or the
// paragraph-scrape fallback) produced the body text.
func extractMetadata(htmlBytes []byte, base *url.URL) (author string, images []string) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(htmlBytes))
	if err != nil {
		return "", nil
	}

	if sel := doc.Find(`meta[name="author"], meta[property="article:author"]`).First(); sel.Length() > 0 {
		author, _ = sel.Attr("content")
	}
	if author == "" {
		author = strings.TrimSpace(doc.Find(".author, .byline, [rel=author]").First().Text())
	}

	doc.Find("img").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		src, ok := s.Attr("src")
		if !ok || src == "" {
			return true
		}
		if !strings.HasPrefix(src, "http") {
			// Relative paths are joined against the page URL; anything
			// else (data: URIs, scheme-relative oddities that still
			// don't resolve to http(s)) is skipped rather than kept.
			if base == nil {
				return true
			}
			resolved, err := base.Parse(src)
			if err != nil || (resolved.Scheme != "http" && resolved.Scheme != "https") {
				return true
			}
			src = resolved.String()
		}
		images = append(images, src)
		return len(images) < 10
	})

	return author, images
}

// extractReadable runs Readability first, falling back to a goquery
// paragraph scrape when Readability can't produce usable text (e.g. pages
// that rely entirely on client-side rendering Readability can't see).
func extractReadable(htmlBytes []byte, parsedURL *url.URL) (title, text string) {
	article, err := readability.FromReader(io.NopCloser(bytes.NewReader(htmlBytes)), parsedURL)
	if err == nil {
		if article.TextContent != "" {
			return article.Title, article.TextContent
		}
		if article.Content != "" {
			slog.Debug("readability: falling back to raw content field")
			return article.Title, article.Content
		}
	}

	doc, qerr := goquery.NewDocumentFromReader(bytes.NewReader(htmlBytes))
	if qerr != nil {
		return "", ""
	}

	pageTitle := strings.TrimSpace(doc.Find("title").First().Text())
	var b strings.Builder
	doc.Find("p").Each(func(_ int, s *goquery.Selection) {
		t := strings.TrimSpace(s.Text())
		if t != "" {
			b.WriteString(t)
			b.WriteString("\n\n")
		}
	})
	return pageTitle, strings.TrimSpace(b.String())
}
