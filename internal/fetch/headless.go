package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/zhanzhaozzz/newsradar/internal/domain/entity"
	"github.com/zhanzhaozzz/newsradar/internal/resilience/circuitbreaker"
)

// HeadlessFetcher renders a page in a headless Chrome instance before
// extracting its text, for sites whose content only appears after
// client-side JavaScript runs. It blocks image/stylesheet/media/font
// requests to keep each render cheap, and approximates a network-idle wait
// with a fixed settle delay since CDP has no native wait-for-idle signal.
//
// A single allocator context is shared across fetches; each Fetch call gets
// its own tab via a child browser context so pages don't interfere with
// each other's navigation state.
type HeadlessFetcher struct {
	allocatorCtx   context.Context
	allocatorStop  context.CancelFunc
	circuitBreaker *circuitbreaker.CircuitBreaker
	cfg            Config
}

// NewHeadlessFetcher starts the shared headless Chrome allocator. Callers
// must call Close when done to terminate the browser process.
func NewHeadlessFetcher(cfg Config) *HeadlessFetcher {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), chromedp.DefaultExecAllocatorOptions[:]...)
	return &HeadlessFetcher{
		allocatorCtx:   allocCtx,
		allocatorStop:  allocCancel,
		circuitBreaker: circuitbreaker.New(circuitbreaker.WebScraperConfig()),
		cfg:            cfg,
	}
}

// Close shuts down the shared browser process.
func (f *HeadlessFetcher) Close() {
	f.allocatorStop()
}

func (f *HeadlessFetcher) Kind() entity.FetcherKind { return entity.FetcherHeadlessBrowser }

func (f *HeadlessFetcher) Fetch(ctx context.Context, urlStr string, opts ...FetchOption) (entity.FetchedBody, error) {
	if err := validateURL(urlStr, f.cfg.DenyPrivateIPs); err != nil {
		return entity.FetchedBody{}, err
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

func (f *HeadlessFetcher) doFetch(ctx context.Context, urlStr string, o fetchOptions) (entity.FetchedBody, error) {
	tabCtx, tabCancel := chromedp.NewContext(f.allocatorCtx)
	defer tabCancel()

	pageCtx, pageCancel := context.WithTimeout(tabCtx, f.cfg.Timeout)
	defer pageCancel()

	if err := chromedp.Run(pageCtx,
		network.Enable(),
		fetch.Enable().WithPatterns([]*fetch.RequestPattern{{URLPattern: "*"}}),
	); err != nil {
		return entity.FetchedBody{}, fmt.Errorf("headless fetch: enable network interception: %w", err)
	}

	listenCtx, listenCancel := context.WithCancel(pageCtx)
	defer listenCancel()
	chromedp.ListenTarget(listenCtx, func(ev interface{}) {
		e, ok := ev.(*fetch.EventRequestPaused)
		if !ok {
			return
		}
		switch e.ResourceType {
		case network.ResourceTypeImage, network.ResourceTypeStylesheet,
			network.ResourceTypeMedia, network.ResourceTypeFont:
			_ = fetch.FailRequest(e.RequestID, network.ErrorReasonBlockedByClient).Do(listenCtx)
		default:
			_ = fetch.ContinueRequest(e.RequestID).Do(listenCtx)
		}
	})

	var raw string
	err := chromedp.Run(pageCtx,
		chromedp.Navigate(urlStr),
		chromedp.WaitReady(o.waitSelector, chromedp.ByQuery),
		chromedp.Sleep(f.cfg.HeadlessSettleDelay),
		chromedp.Evaluate(extractArticleScript, &raw),
	)
	if err != nil {
		if pageCtx.Err() != nil {
			return entity.FetchedBody{}, fmt.Errorf("%w: %v", ErrTimeout, f.cfg.Timeout)
		}
		return entity.FetchedBody{}, fmt.Errorf("headless fetch: navigation failed: %w", err)
	}

	var extracted headlessExtraction
	if err := json.Unmarshal([]byte(raw), &extracted); err != nil {
		return entity.FetchedBody{}, fmt.Errorf("headless fetch: decode extraction result: %w", err)
	}

	text := cleanHeadlessContent(extracted.Body)
	if text == "" {
		return entity.FetchedBody{}, fmt.Errorf("%w: no readable content found", ErrExtractionFailed)
	}

	images := extracted.Images
	if len(images) > 10 {
		images = images[:10]
	}

	body := entity.NewFetchedBody(urlStr, extracted.Title, text, time.Now(), f.cfg.RetentionTTL)
	body.Author = extracted.Author
	body.ImageURLs = images
	if pub, ok := parsePublishTime(extracted.PublishTime); ok {
		body.PublishTime = &pub
	}
	return body, nil
}

type headlessExtraction struct {
	Title       string   `json:"title"`
	Body        string   `json:"body"`
	Author      string   `json:"author"`
	PublishTime string   `json:"publishTime"`
	Images      []string `json:"images"`
}

// extractArticleScript implements the ordered extraction strategy: prefer
// og:title over document.title, try a fixed list of article selectors
// before falling back to a cleaned body.innerText, and collect up to 10
// image URLs plus author/publish-time metadata alongside the body.
const extractArticleScript = `
(() => {
  function text(el) { return ((el && (el.innerText || el.textContent)) || '').trim(); }

  const ogTitle = document.querySelector('meta[property="og:title"]');
  const title = (ogTitle && ogTitle.getAttribute('content')) || document.title || '';

  const selectors = ['article', '[role=article]', '.article-content', '.post-content',
    '.entry-content', '.content-article', '#article-content', '.news-content',
    '.detail-content', 'main article', '.main-content'];
  let body = '';
  for (const sel of selectors) {
    const t = text(document.querySelector(sel));
    if (t.length >= 100) { body = t; break; }
  }
  if (!body) {
    const clone = document.body.cloneNode(true);
    clone.querySelectorAll('script, style, nav, header, footer, aside, .sidebar, .ads, .advertisement, .comment, .comments')
      .forEach(el => el.remove());
    body = text(clone);
  }

  const images = [];
  document.querySelectorAll('article img, img').forEach(img => {
    if (images.length >= 10) return;
    const src = img.getAttribute('src') || '';
    if (src.indexOf('http') === 0 && images.indexOf(src) === -1) images.push(src);
  });

  const authorEl = document.querySelector(
    'meta[name="author"], meta[property="article:author"], .author, .byline, [rel="author"]');
  const author = (authorEl && (authorEl.getAttribute('content') || text(authorEl))) || '';

  const pubEl = document.querySelector('meta[property="article:published_time"], time[datetime]');
  const publishTime = (pubEl && (pubEl.getAttribute('content') || pubEl.getAttribute('datetime'))) || '';

  return JSON.stringify({title, body, author, publishTime, images});
})()
`

// headlessPromoLineRe matches common promotional lines (share/follow/QR
// prompts) that clutter extracted article bodies and carry no content.
var headlessPromoLineRe = regexp.MustCompile(`(?i)(扫码关注|长按识别|点击关注|分享到|关注我们|follow us|scan the qr code|share to)`)

// cleanHeadlessContent collapses runs of blank lines and drops lines
// matching the promotional denylist.
func cleanHeadlessContent(raw string) string {
	lines := strings.Split(raw, "\n")
	var kept []string
	blank := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if blank {
				continue
			}
			blank = true
			kept = append(kept, "")
			continue
		}
		blank = false
		if headlessPromoLineRe.MatchString(trimmed) {
			continue
		}
		kept = append(kept, trimmed)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// publishTimeLayouts are the encodings article publish-time metadata is
// observed in, tried in order.
var publishTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parsePublishTime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range publishTimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
