// Package analysis implements the daily multi-task news analyzer: briefing,
// categorization, insight extraction, per-item summaries, and deep research,
// all driven off one LLM client and run together via analyze_full.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zhanzhaozzz/newsradar/internal/domain/entity"
	"github.com/zhanzhaozzz/newsradar/internal/llm"
	"github.com/zhanzhaozzz/newsradar/internal/observability/tracing"
)

// categorizeConcurrency bounds how many categorization calls run at once,
// independent of the fetch-stage concurrency limit.
const categorizeConcurrency = 3

// defaultSummaryChars is the target length for a single-item summary.
const defaultSummaryChars = 200

// Analyzer runs every analysis sub-task against one LLM client.
type Analyzer struct {
	client     llm.Client
	prompts    *llm.PromptRegistry
	categories []entity.Category
}

// New builds an Analyzer. categories is the config-supplied classification
// scheme categorize_one and categorize_many classify against.
func New(client llm.Client, categories []entity.Category) *Analyzer {
	return &Analyzer{
		client:     client,
		prompts:    llm.NewPromptRegistry(),
		categories: categories,
	}
}

// LoadPromptFile applies a [system]/[user] daily-briefing override from
// path to this Analyzer's prompt templates.
func (a *Analyzer) LoadPromptFile(path string) error {
	return a.prompts.LoadFromFile(path)
}

// CategorizeBatch classifies every item in one LLM round trip instead of
// CategorizeMany's per-item fan-out, for callers that would rather pay one
// larger prompt than N small ones. An unparseable or short response falls
// back to categorizing nothing rather than guessing at alignment.
func (a *Analyzer) CategorizeBatch(ctx context.Context, items []entity.RankedItem) ([]entity.CategoryResult, error) {
	if len(items) == 0 {
		return nil, nil
	}

	resp, err := a.client.Chat(ctx, a.prompts.CategorizeBatch(items, a.categories), 0, 0)
	if err != nil {
		return nil, fmt.Errorf("analysis: categorize batch: %w", err)
	}

	results, err := parseCategoryBatch(resp.Content, items)
	if err != nil {
		return nil, fmt.Errorf("analysis: categorize batch: %w", err)
	}
	return results, nil
}

// AnalyzerStats summarizes an Analyzer's configuration and underlying
// client availability for introspection endpoints.
type AnalyzerStats struct {
	Model         string
	CircuitOpen   bool
	CategoryCount int
}

// Stats reports the Analyzer's configuration and, when the underlying
// client exposes it, its circuit breaker state, without making a call.
func (a *Analyzer) Stats() AnalyzerStats {
	stats := AnalyzerStats{
		Model:         a.client.Model(),
		CategoryCount: len(a.categories),
	}
	if reporter, ok := a.client.(llm.StatsReporter); ok {
		stats.CircuitOpen = reporter.Stats().CircuitOpen
	}
	return stats
}

// DailyBriefing produces a short narrative summary of today's corpus.
// bodies supplies per-item content previews; pass nil to render titles
// only.
func (a *Analyzer) DailyBriefing(ctx context.Context, items []entity.RankedItem, bodies map[string]entity.FetchedBody) (string, error) {
	resp, err := a.client.Chat(ctx, a.prompts.DailyBriefing(items, bodies), 0, 0)
	if err != nil {
		return "", fmt.Errorf("analysis: daily briefing: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}

// CategorizeOne classifies a single item, using body's text (truncated by
// the prompt layer) for context alongside the title, against the
// Analyzer's category scheme. body may be the zero value when no fetched
// content is available yet; the prompt still works from the title alone.
func (a *Analyzer) CategorizeOne(ctx context.Context, item entity.RankedItem, body entity.FetchedBody) (entity.CategoryResult, error) {
	resp, err := a.client.Chat(ctx, a.prompts.CategorizeOne(item.Title, body.BodyText, a.categories), 0, 0)
	if err != nil {
		return entity.CategoryResult{}, fmt.Errorf("analysis: categorize %q: %w", item.ID(), err)
	}

	result, err := parseCategoryResult(resp.Content)
	if err != nil {
		return entity.CategoryResult{}, fmt.Errorf("analysis: categorize %q: %w", item.ID(), err)
	}
	result.ItemID = item.ID()
	return result, nil
}

// CategorizeMany classifies every item, bounded by categorizeConcurrency,
// looking up each item's fetched body (if any) by bodies[item.ID()]. An
// item whose classification fails is logged and omitted from the result
// rather than failing the whole batch.
func (a *Analyzer) CategorizeMany(ctx context.Context, items []entity.RankedItem, bodies map[string]entity.FetchedBody) []entity.CategoryResult {
	results := make([]entity.CategoryResult, len(items))
	ok := make([]bool, len(items))

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, categorizeConcurrency)

	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				return nil
			}
			defer func() { <-sem }()

			result, err := a.CategorizeOne(gctx, item, bodies[item.ID()])
			if err != nil {
				slog.WarnContext(gctx, "categorization failed, skipping item",
					slog.String("item_id", item.ID()), slog.String("error", err.Error()))
				return nil
			}
			results[i] = result
			ok[i] = true
			return nil
		})
	}
	_ = g.Wait()

	out := make([]entity.CategoryResult, 0, len(items))
	for i, present := range ok {
		if present {
			out = append(out, results[i])
		}
	}
	return out
}

// ExtractInsights produces up to maxInsights cross-item insights from the
// corpus.
func (a *Analyzer) ExtractInsights(ctx context.Context, items []entity.RankedItem) ([]entity.Insight, error) {
	resp, err := a.client.Chat(ctx, a.prompts.ExtractInsights(items), 0, 0)
	if err != nil {
		return nil, fmt.Errorf("analysis: extract insights: %w", err)
	}

	return parseInsights(resp.Content), nil
}

const maxInsights = 5

// Summarize produces a short summary of a single item's fetched body.
func (a *Analyzer) Summarize(ctx context.Context, item entity.RankedItem, body entity.FetchedBody) (entity.NewsSummary, error) {
	resp, err := a.client.Chat(ctx, a.prompts.Summarize(item.Title, body.BodyText, defaultSummaryChars), 0, 0)
	if err != nil {
		return entity.NewsSummary{}, fmt.Errorf("analysis: summarize %q: %w", item.ID(), err)
	}
	return entity.NewsSummary{
		ItemID:  item.ID(),
		Title:   item.Title,
		Summary: strings.TrimSpace(resp.Content),
	}, nil
}

// DeepResearch produces a longer structured write-up over the corpus and
// its already-extracted insights.
func (a *Analyzer) DeepResearch(ctx context.Context, items []entity.RankedItem, insights []entity.Insight, bodies map[string]entity.FetchedBody) (string, error) {
	resp, err := a.client.Chat(ctx, a.prompts.DeepResearch(items, insights, bodies), 0, 0)
	if err != nil {
		return "", fmt.Errorf("analysis: deep research: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}

// categorizeBatchCap bounds how many items analyze_full feeds to
// CategorizeMany, independent of how many items the corpus as a whole
// holds.
const categorizeBatchCap = 10

// AnalyzeFull runs every sub-task concurrently and aggregates the results.
// Per-item summaries are generated only for items with a cached body; items
// without one are skipped from Summaries rather than failing the pass.
//
// Tasks are independent: a failure in one (daily_briefing, extract_insights,
// categorize_many, summarize) is logged and leaves that task's output at its
// zero value rather than aborting the others. The overall result is
// successful as long as at least one task produced output; deep_research
// runs last since it depends on the insights task's result.
func (a *Analyzer) AnalyzeFull(ctx context.Context, items []entity.RankedItem, bodies map[string]entity.FetchedBody) entity.AnalysisResult {
	ctx, span := tracing.GetTracer().Start(ctx, "analysis.AnalyzeFull")
	defer span.End()

	var briefing, deepResearch string
	var categories []entity.CategoryResult
	var insights []entity.Insight
	var summaries []entity.NewsSummary
	var briefingErr, insightsErr error

	// Every goroutine below returns nil even on its own sub-task's error,
	// so errgroup never cancels gctx out from under a sibling still in
	// flight; ctx's own cancellation (shutdown, caller timeout) still
	// propagates normally.
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		briefing, err = a.DailyBriefing(gctx, items, bodies)
		if err != nil {
			briefingErr = err
			slog.WarnContext(gctx, "daily briefing failed", slog.String("error", err.Error()))
		}
		return nil
	})

	g.Go(func() error {
		categorizeItems := items
		if len(categorizeItems) > categorizeBatchCap {
			categorizeItems = categorizeItems[:categorizeBatchCap]
		}
		categories = a.CategorizeMany(gctx, categorizeItems, bodies)
		return nil
	})

	g.Go(func() error {
		var err error
		insights, err = a.ExtractInsights(gctx, items)
		if err != nil {
			insightsErr = err
			slog.WarnContext(gctx, "insight extraction failed", slog.String("error", err.Error()))
		}
		return nil
	})

	g.Go(func() error {
		for _, item := range items {
			body, found := bodies[item.ID()]
			if !found {
				continue
			}
			summary, err := a.Summarize(gctx, item, body)
			if err != nil {
				slog.WarnContext(gctx, "summarize failed, skipping item",
					slog.String("item_id", item.ID()), slog.String("error", err.Error()))
				continue
			}
			summaries = append(summaries, summary)
		}
		return nil
	})

	_ = g.Wait()

	// Deep research depends on the insights extracted above, so it runs
	// after the group rather than inside it. Its own failure, like every
	// other task's, does not affect the others' already-collected output.
	var deepResearchErr error
	if len(insights) > 0 {
		deepResearch, deepResearchErr = a.DeepResearch(ctx, items, insights, bodies)
		if deepResearchErr != nil {
			slog.WarnContext(ctx, "deep research failed", slog.String("error", deepResearchErr.Error()))
		}
	}

	anySucceeded := briefingErr == nil || len(categories) > 0 || insightsErr == nil || len(summaries) > 0 || deepResearch != ""
	if !anySucceeded {
		return entity.FailedAnalysis(fmt.Sprintf("all analysis sub-tasks failed: briefing=%v insights=%v deep_research=%v", briefingErr, insightsErr, deepResearchErr))
	}

	return entity.AnalysisResult{
		Success:       true,
		DailyBriefing: briefing,
		Categories:    categories,
		Insights:      insights,
		Summaries:     summaries,
		DeepResearch:  deepResearch,
		GeneratedAt:   time.Now(),
		ModelUsed:     a.client.Model(),
	}
}

// jsonFenceRe strips a leading/trailing markdown code fence from an LLM
// response, since models commonly wrap JSON in ```json ... ``` even when
// told not to.
var jsonFenceRe = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

func stripJSONFence(s string) string {
	s = strings.TrimSpace(s)
	if m := jsonFenceRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return s
}

// unmarshalWithRecovery tries json.Unmarshal on the fence-stripped response
// whole; on failure it searches for the innermost balanced open/close span
// and retries once against that, per the JSON extraction policy ("first
// try parse(response) whole; on failure, search for the innermost balanced
// {...} and retry"). Covers responses like "Here's the result: {...}" with
// no code fence, which stripJSONFence alone can't recover. Returns the
// original whole-response error if recovery also fails.
func unmarshalWithRecovery(raw string, open, close byte, v interface{}) error {
	body := stripJSONFence(raw)
	firstErr := json.Unmarshal([]byte(body), v)
	if firstErr == nil {
		return nil
	}
	if extracted, ok := extractInnermostBalanced(body, open, close); ok {
		if err := json.Unmarshal([]byte(extracted), v); err == nil {
			return nil
		}
	}
	return firstErr
}

// extractInnermostBalanced returns the span from the first unmatched open
// byte to the close byte that completes it — the innermost bracket pair
// when brackets nest, or simply the sole pair otherwise. A stack-based scan
// rather than a greedy regex so nested braces inside string values don't
// throw off the match.
func extractInnermostBalanced(s string, open, close byte) (string, bool) {
	var stack []int
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case open:
			stack = append(stack, i)
		case close:
			if len(stack) == 0 {
				continue
			}
			start := stack[len(stack)-1]
			return s[start : i+1], true
		}
	}
	return "", false
}

func parseCategoryResult(raw string) (entity.CategoryResult, error) {
	var parsed struct {
		Primary    string      `json:"primary"`
		Secondary  string      `json:"secondary"`
		Confidence interface{} `json:"confidence"`
		Reason     string      `json:"reason"`
	}
	if err := unmarshalWithRecovery(raw, '{', '}', &parsed); err != nil {
		return entity.CategoryResult{}, fmt.Errorf("parse category json: %w", err)
	}

	return entity.CategoryResult{
		Primary:    parsed.Primary,
		Secondary:  parsed.Secondary,
		Confidence: toInt(parsed.Confidence),
		Reason:     parsed.Reason,
	}, nil
}

// parseCategoryBatch parses a JSON array of category objects positionally
// matched against items, the response shape CategorizeBatch's prompt asks
// for. A length mismatch is an error rather than a best-effort zip, since
// silently misaligning categories to the wrong items is worse than failing.
func parseCategoryBatch(raw string, items []entity.RankedItem) ([]entity.CategoryResult, error) {
	var parsed []struct {
		Primary    string      `json:"primary"`
		Secondary  string      `json:"secondary"`
		Confidence interface{} `json:"confidence"`
		Reason     string      `json:"reason"`
	}
	if err := unmarshalWithRecovery(raw, '[', ']', &parsed); err != nil {
		return nil, fmt.Errorf("parse category batch json: %w", err)
	}
	if len(parsed) != len(items) {
		return nil, fmt.Errorf("category batch length mismatch: got %d results for %d items", len(parsed), len(items))
	}

	results := make([]entity.CategoryResult, len(items))
	for i, p := range parsed {
		results[i] = entity.CategoryResult{
			ItemID:     items[i].ID(),
			Primary:    p.Primary,
			Secondary:  p.Secondary,
			Confidence: toInt(p.Confidence),
			Reason:     p.Reason,
		}
	}
	return results, nil
}

// insightMarkerRe matches a "1. [domain]" or "- [domain]" marker anywhere
// in the response, not just at line starts, since models routinely run a
// short list onto one line. Content for each marker runs until the next
// marker or end-of-text.
var insightMarkerRe = regexp.MustCompile(`(?:\d+[.、)]|-)\s*\[([^\]]+)\]\s*`)

// parseInsights extracts up to maxInsights (domain, content) pairs from a
// loosely-formatted model response. The primary strategy is the bracketed
// domain marker above; if the model drops the bracket convention entirely,
// fallbackParseInsights degrades to one insight per non-empty line under a
// generic domain.
func parseInsights(raw string) []entity.Insight {
	locs := insightMarkerRe.FindAllStringSubmatchIndex(raw, -1)
	if len(locs) == 0 {
		return fallbackParseInsights(raw)
	}

	var insights []entity.Insight
	for i, loc := range locs {
		domain := strings.TrimSpace(raw[loc[2]:loc[3]])
		end := len(raw)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		content := strings.TrimSpace(raw[loc[1]:end])
		if content == "" {
			continue
		}
		insights = append(insights, entity.Insight{Domain: domain, Content: content})
		if len(insights) >= maxInsights {
			break
		}
	}
	return insights
}

// fallbackParseInsights degrades gracefully when the model ignores the
// bracketed-domain convention and returns a plain numbered or bulleted
// list instead: one insight per non-empty line, tagged with a generic
// domain since none was supplied.
var numberedLineRe = regexp.MustCompile(`^\s*(?:\d+[.、)]|[-•])\s*`)

func fallbackParseInsights(raw string) []entity.Insight {
	var insights []entity.Insight
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(numberedLineRe.ReplaceAllString(line, ""))
		if line == "" {
			continue
		}
		insights = append(insights, entity.Insight{Domain: "综合", Content: line})
		if len(insights) >= maxInsights {
			break
		}
	}
	return insights
}

func toInt(v interface{}) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case string:
		i, _ := strconv.Atoi(strings.TrimSpace(n))
		return i
	default:
		return 0
	}
}
