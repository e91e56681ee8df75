// Package hotspot implements the single-shot, provider-polymorphic hotspot
// analysis report: one prompt, one call, a seven-field structured
// breakdown of today's corpus. Unlike the Analyzer in internal/analysis,
// this never fans out into multiple sub-task calls.
package hotspot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/zhanzhaozzz/newsradar/internal/domain/entity"
	"github.com/zhanzhaozzz/newsradar/internal/llm"
	"github.com/zhanzhaozzz/newsradar/internal/resilience/retry"
)

// Dialect identifies which provider wire format the HotspotAnalyzer should
// speak.
type Dialect string

const (
	DialectOpenAICompatible Dialect = "openai_compatible"
	DialectGemini           Dialect = "gemini"
)

// Config selects the provider dialect and model for the HotspotAnalyzer.
type Config struct {
	Dialect      Dialect
	APIKey       string
	BaseURL      string // only used by DialectOpenAICompatible
	Model        string
	MaxNewsLimit int
}

// Analyzer produces one HotspotReport per run.
type Analyzer struct {
	client llm.Client
	cfg    Config
}

// New builds an Analyzer for cfg.Dialect.
func New(cfg Config) (*Analyzer, error) {
	var client llm.Client
	switch cfg.Dialect {
	case DialectGemini:
		client = newGeminiClient(cfg.APIKey, cfg.Model)
	case DialectOpenAICompatible, "":
		client = llm.NewOpenAI(cfg.APIKey, cfg.Model, cfg.BaseURL)
	default:
		return nil, fmt.Errorf("hotspot: unknown dialect %q", cfg.Dialect)
	}

	if cfg.MaxNewsLimit <= 0 {
		cfg.MaxNewsLimit = 100
	}

	return &Analyzer{client: client, cfg: cfg}, nil
}

const systemPrompt = "你是一位专业的舆情分析师，负责从热点新闻和RSS资讯中提炼结构化的舆情报告。"

// userPromptTemplate uses {{placeholder}} substitution via strings.Replacer
// rather than text/template, matching the light-weight templating the rest
// of this prompt layer uses.
const userPromptTemplate = `
以下是今日收集到的热点新闻（共 {{hotlist_count}} 条）与 RSS 资讯（共 {{rss_count}} 条），
合计 {{total_news}} 条，本次分析覆盖其中 {{analyzed_news}} 条：

{{news_list}}

请输出 JSON，字段如下，全部为字符串：
- summary：整体摘要
- keyword_analysis：高频关键词与其含义
- sentiment：整体情绪倾向判断
- cross_platform：跨平台/跨来源的关联分析
- impact：潜在影响评估
- signals：值得关注的早期信号
- conclusion：一句话结论

只输出 JSON 对象，不要额外文字。
`

// Analyze assembles the input from hotlist and rss items (truncating to
// cfg.MaxNewsLimit, hotlist first), renders the single prompt, and parses
// the structured response. A parse failure degrades to a report with
// RawResponse populated and Error set, rather than failing outright: the
// caller still gets whatever the model returned.
func (a *Analyzer) Analyze(ctx context.Context, hotlist, rss []entity.RankedItem) entity.HotspotReport {
	all := make([]entity.RankedItem, 0, len(hotlist)+len(rss))
	all = append(all, hotlist...)
	all = append(all, rss...)

	analyzed := all
	if len(analyzed) > a.cfg.MaxNewsLimit {
		analyzed = analyzed[:a.cfg.MaxNewsLimit]
	}

	prompt := renderPrompt(hotlist, rss, a.cfg.MaxNewsLimit)
	messages := []entity.ChatMessage{
		{Role: entity.RoleSystem, Content: systemPrompt},
		{Role: entity.RoleUser, Content: prompt},
	}

	report := entity.HotspotReport{
		TotalNews:    len(all),
		AnalyzedNews: len(analyzed),
		MaxNewsLimit: a.cfg.MaxNewsLimit,
		HotlistCount: len(hotlist),
		RSSCount:     len(rss),
	}

	resp, err := a.client.Chat(ctx, messages, 0.3, 2048)
	if err != nil {
		report.Success = false
		report.Error = classifyError(err, a.cfg.BaseURL)
		return report
	}

	report.RawResponse = resp.Content
	report.Success = true

	if err := parseReport(resp.Content, &report); err != nil {
		// Degrade gracefully: the call succeeded, but the structured
		// fields could not be recovered from its content. Better
		// partial content than total failure, so the raw response
		// (truncated) becomes the summary and the parse error is
		// recorded separately; Success stays true.
		report.Summary = truncate(resp.Content, 1000)
		report.Error = err.Error()
	}

	return report
}

// classifyError turns a transport-level error into a friendly,
// user-facing message: distinct canonical wording for timeouts,
// connection failures, and the HTTP statuses most likely to be
// operator-actionable (401/429/500), and a truncated generic message
// otherwise.
func classifyError(err error, baseURL string) string {
	msg := err.Error()
	lower := strings.ToLower(msg)

	var httpErr *retry.HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case 401:
			return "hotspot analysis failed: authentication rejected (401) — check the configured API key"
		case 429:
			return "hotspot analysis failed: rate limited (429) — reduce request frequency or raise your quota"
		case 500:
			return "hotspot analysis failed: the provider returned a server error (500) — try again shortly"
		}
	}

	switch {
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded"):
		return "hotspot analysis failed: request timed out — check network connectivity or raise the timeout"
	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host") || strings.Contains(lower, "dial tcp"):
		return fmt.Sprintf("hotspot analysis failed: could not connect to %s", baseURL)
	}

	if len(msg) > 150 {
		msg = msg[:150]
	}
	return fmt.Sprintf("hotspot analysis failed (%T): %s", err, msg)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// keywordGroup is one hot-list keyword's items, in first-appearance order.
type keywordGroup struct {
	keyword string
	items   []entity.RankedItem
}

// groupByKeyword buckets items by RankedItem.Keyword, preserving the order
// keywords first appear in. Items with no keyword (RSS-sourced, or a
// hotlist item missing one) fall into a single "未分类" bucket.
func groupByKeyword(items []entity.RankedItem) []keywordGroup {
	order := make([]string, 0)
	byKeyword := make(map[string]*keywordGroup)

	for _, item := range items {
		kw := item.Keyword
		if kw == "" {
			kw = "未分类"
		}
		g, ok := byKeyword[kw]
		if !ok {
			g = &keywordGroup{keyword: kw}
			byKeyword[kw] = g
			order = append(order, kw)
		}
		g.items = append(g.items, item)
	}

	groups := make([]keywordGroup, 0, len(order))
	for _, kw := range order {
		groups = append(groups, *byKeyword[kw])
	}
	return groups
}

// renderPrompt assembles the news_list section: hot-list items grouped by
// keyword, followed by an RSS section, truncated once the cumulative item
// count reaches maxNews (<=0 means unlimited).
func renderPrompt(hotlist, rss []entity.RankedItem, maxNews int) string {
	remaining := maxNews
	if remaining <= 0 {
		remaining = len(hotlist) + len(rss)
	}

	var list strings.Builder
	for _, group := range groupByKeyword(hotlist) {
		if remaining <= 0 {
			break
		}
		items := group.items
		if len(items) > remaining {
			items = items[:remaining]
		}
		fmt.Fprintf(&list, "**%s** (%d items)\n", group.keyword, len(items))
		for _, item := range items {
			list.WriteString(formatHotlistLine(item))
			list.WriteByte('\n')
		}
		remaining -= len(items)
	}

	if remaining > 0 && len(rss) > 0 {
		items := rss
		if len(items) > remaining {
			items = items[:remaining]
		}
		list.WriteString("RSS:\n")
		for _, item := range items {
			list.WriteString(formatRSSLine(item))
			list.WriteByte('\n')
		}
		remaining -= len(items)
	}

	analyzedCount := len(hotlist) + len(rss)
	if maxNews > 0 && analyzedCount > maxNews {
		analyzedCount = maxNews
	}

	replacer := strings.NewReplacer(
		"{{hotlist_count}}", fmt.Sprintf("%d", len(hotlist)),
		"{{rss_count}}", fmt.Sprintf("%d", len(rss)),
		"{{total_news}}", fmt.Sprintf("%d", len(hotlist)+len(rss)),
		"{{analyzed_news}}", fmt.Sprintf("%d", analyzedCount),
		"{{news_list}}", list.String(),
	)
	return replacer.Replace(userPromptTemplate)
}

// formatHotlistLine renders one hot-list item as
// "- [source] title | rank:min[-max] | time:hh:mm[~hh:mm] | seen:n×".
func formatHotlistLine(item entity.RankedItem) string {
	return fmt.Sprintf("- [%s] %s | rank:%s | time:%s | seen:%d×",
		item.Source, item.Title, formatRankRange(item.Ranks),
		formatTimeRange(item.FirstSeen, item.LastSeen), item.AppearanceCount)
}

// formatRSSLine renders one RSS item as "- [source] title | time_display".
func formatRSSLine(item entity.RankedItem) string {
	display := "-"
	switch {
	case item.FeedTime != nil:
		display = formatHHMM(*item.FeedTime)
	case !item.FirstSeen.IsZero():
		display = formatHHMM(item.FirstSeen)
	}
	return fmt.Sprintf("- [%s] %s | %s", item.Source, item.Title, display)
}

// formatRankRange collapses a hot-list item's recorded rank history to
// "min" when it never moved, or "min-max" otherwise.
func formatRankRange(ranks []int) string {
	if len(ranks) == 0 {
		return "-"
	}
	min, max := ranks[0], ranks[0]
	for _, r := range ranks[1:] {
		if r < min {
			min = r
		}
		if r > max {
			max = r
		}
	}
	if min == max {
		return fmt.Sprintf("%d", min)
	}
	return fmt.Sprintf("%d-%d", min, max)
}

// formatTimeRange renders first as "hh:mm", or "hh:mm~hh:mm" when last
// differs from first.
func formatTimeRange(first, last time.Time) string {
	f := formatHHMM(first)
	if last.IsZero() || last.Equal(first) {
		return f
	}
	return fmt.Sprintf("%s~%s", f, formatHHMM(last))
}

// formatHHMM extracts the hour:minute portion of t. RankedItem's timestamps
// are already parsed time.Time values (the various encodings the upstream
// hot-list/RSS sources use — "YYYY-MM-DD HH:MM:SS", bare "HH:MM:SS", or
// "HH:MM" — are normalized before reaching this module), so this is a
// plain format rather than a parse.
func formatHHMM(t time.Time) string {
	return t.Format("15:04")
}

var jsonFenceRe = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

func parseReport(raw string, report *entity.HotspotReport) error {
	trimmed := strings.TrimSpace(raw)
	if m := jsonFenceRe.FindStringSubmatch(trimmed); m != nil {
		trimmed = strings.TrimSpace(m[1])
	}

	var parsed struct {
		Summary         string `json:"summary"`
		KeywordAnalysis string `json:"keyword_analysis"`
		Sentiment       string `json:"sentiment"`
		CrossPlatform   string `json:"cross_platform"`
		Impact          string `json:"impact"`
		Signals         string `json:"signals"`
		Conclusion      string `json:"conclusion"`
	}
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return fmt.Errorf("hotspot: parse report json: %w", err)
	}

	report.Summary = parsed.Summary
	report.KeywordAnalysis = parsed.KeywordAnalysis
	report.Sentiment = parsed.Sentiment
	report.CrossPlatform = parsed.CrossPlatform
	report.Impact = parsed.Impact
	report.Signals = parsed.Signals
	report.Conclusion = parsed.Conclusion
	return nil
}
