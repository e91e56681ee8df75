// Command worker runs one batch pass of the content-acquisition and
// AI-analysis pipeline: fetch every item's body into the content cache,
// then run the daily multi-task analyzer and, if enabled, the single-shot
// hotspot analyzer, over the results.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zhanzhaozzz/newsradar/internal/analysis"
	"github.com/zhanzhaozzz/newsradar/internal/archive"
	appconfig "github.com/zhanzhaozzz/newsradar/internal/config"
	"github.com/zhanzhaozzz/newsradar/internal/contentstore"
	"github.com/zhanzhaozzz/newsradar/internal/domain/entity"
	"github.com/zhanzhaozzz/newsradar/internal/fetch"
	hhttp "github.com/zhanzhaozzz/newsradar/internal/handler/http"
	"github.com/zhanzhaozzz/newsradar/internal/hotspot"
	"github.com/zhanzhaozzz/newsradar/internal/llm"
	"github.com/zhanzhaozzz/newsradar/internal/observability/logging"
	"github.com/zhanzhaozzz/newsradar/internal/observability/slo"
	pkgconfig "github.com/zhanzhaozzz/newsradar/pkg/config"
)

func main() {
	logger := initLogger()
	cfg := appconfig.Load()

	db, err := contentstore.Open(cfg.ContentDBPath)
	if err != nil {
		logger.Error("failed to open content store", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()
	store := contentstore.New(db)

	router, closeRouter := setupFetchRouter(cfg)
	defer closeRouter()

	chatClient := setupLLMClient(cfg)
	analyzer := analysis.New(chatClient, cfg.Categories)
	if cfg.LLM.PromptFile != "" {
		if err := analyzer.LoadPromptFile(cfg.LLM.PromptFile); err != nil {
			logger.Warn("prompt file override failed, using built-in templates", slog.Any("error", err))
		}
	}

	var hotspotAnalyzer *hotspot.Analyzer
	if cfg.Features.HotspotEnabled {
		hotspotAnalyzer, err = setupHotspotAnalyzer(cfg)
		if err != nil {
			logger.Warn("hotspot analyzer disabled: setup failed", slog.Any("error", err))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var analysisArchive *archive.Store
	if cfg.DatabaseURL != "" {
		analysisArchive, err = archive.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Warn("analysis archive disabled: open failed", slog.Any("error", err))
			analysisArchive = nil
		} else {
			defer analysisArchive.Close()
		}
	}

	metricsServer := startMetricsServer(ctx, logger, db, chatClient)
	defer shutdownMetricsServer(metricsServer, logger)

	if err := runBatch(ctx, logger, cfg, store, router, analyzer, hotspotAnalyzer, analysisArchive); err != nil {
		logger.Error("batch run failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func initLogger() *slog.Logger {
	logger := logging.NewLogger()
	slog.SetDefault(logger)
	return logger
}

// setupFetchRouter builds the three fetch strategies and wires them behind
// a Router, returning a cleanup function that releases the shared headless
// browser allocator.
func setupFetchRouter(cfg appconfig.AppConfig) (*fetch.Router, func()) {
	fetchCfg := fetch.Config{
		Timeout:              cfg.Scraper.Timeout,
		Parallelism:          cfg.Scraper.Parallelism,
		MaxBodySize:          cfg.Scraper.MaxBodySize,
		MaxRedirects:         cfg.Scraper.MaxRedirects,
		DenyPrivateIPs:       cfg.Scraper.DenyPrivateIPs,
		ManagedReaderBaseURL: cfg.Scraper.ManagedReaderBaseURL,
		ManagedReaderAPIKey:  cfg.Scraper.ManagedReaderAPIKey,
		HeadlessSettleDelay:  cfg.Scraper.HeadlessSettleDelay,
		RetentionTTL:         cfg.Scraper.RetentionTTL,
		TopN:                 cfg.Scraper.TopN,
		MaxRetries:           cfg.Scraper.MaxRetries,
		HostRateLimit:        pkgconfig.GetEnvInt("SCRAPER_HOST_RATE_LIMIT", 10),
		HostRateWindow:       pkgconfig.GetEnvDuration("SCRAPER_HOST_RATE_WINDOW", time.Minute),
	}
	if err := fetchCfg.Validate(); err != nil {
		slog.Warn("fetch config invalid, falling back to defaults", slog.Any("error", err))
		fetchCfg = fetch.DefaultConfig()
	}

	headless := fetch.NewHeadlessFetcher(fetchCfg)
	fetchers := map[entity.FetcherKind]fetch.Fetcher{
		entity.FetcherPlainHTTP:       fetch.NewPlainFetcher(fetchCfg),
		entity.FetcherHeadlessBrowser: headless,
	}
	order := []entity.FetcherKind{entity.FetcherPlainHTTP, entity.FetcherHeadlessBrowser}
	if fetchCfg.ManagedReaderBaseURL != "" {
		fetchers[entity.FetcherManagedReader] = fetch.NewReaderFetcher(fetchCfg)
		order = []entity.FetcherKind{entity.FetcherManagedReader, entity.FetcherPlainHTTP, entity.FetcherHeadlessBrowser}
	}

	// Selection tiers, in precedence order: operator-supplied domain_rules,
	// then the built-in JS-render set, then the built-in reader-preferred
	// set. strategyFor scans this list and takes the first suffix match.
	rules := make([]fetch.DomainRule, 0, len(cfg.Scraper.DomainRules)+8)
	rules = append(rules, cfg.Scraper.DomainRules...)
	rules = append(rules, fetch.JSRenderDomainRules()...)
	rules = append(rules, fetch.ReaderPreferredDomainRules()...)

	router := fetch.NewRouter(fetchCfg, fetchers, order, rules)
	return router, headless.Close
}

// setupLLMClient builds the chat client the daily Analyzer uses, based on
// cfg.LLM.Provider.
func setupLLMClient(cfg appconfig.AppConfig) llm.Client {
	switch cfg.LLM.Provider {
	case "claude":
		return llm.NewClaude(cfg.LLM.APIKey, cfg.LLM.Model)
	case "raw":
		return llm.NewRaw(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model)
	default:
		return llm.NewOpenAI(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL)
	}
}

// setupHotspotAnalyzer builds the single-shot HotspotAnalyzer, based on
// cfg.AIAnalysis.Dialect.
func setupHotspotAnalyzer(cfg appconfig.AppConfig) (*hotspot.Analyzer, error) {
	return hotspot.New(hotspot.Config{
		Dialect:      hotspot.Dialect(cfg.AIAnalysis.Dialect),
		APIKey:       cfg.AIAnalysis.APIKey,
		BaseURL:      cfg.AIAnalysis.BaseURL,
		Model:        cfg.AIAnalysis.Model,
		MaxNewsLimit: cfg.AIAnalysis.MaxNewsLimit,
	})
}

// runBatch executes one full pass: fetch unseen bodies into the cache, then
// run the daily analysis (and, if configured, the hotspot report) over the
// ranked items ingested for this run.
//
// The hot list itself is supplied upstream of this module; here it is read
// via loadRankedItems, the ingestion boundary this binary owns.
func runBatch(ctx context.Context, logger *slog.Logger, cfg appconfig.AppConfig, store *contentstore.Store, router *fetch.Router, analyzer *analysis.Analyzer, hotspotAnalyzer *hotspot.Analyzer, analysisArchive *archive.Store) error {
	start := time.Now()

	hotlist, rss, err := loadRankedItems()
	if err != nil {
		return err
	}
	items := append(append([]entity.RankedItem{}, hotlist...), rss...)

	now := time.Now()
	urls := make([]string, 0, len(items))
	for _, item := range items {
		urls = append(urls, item.ID())
	}

	unseen, err := store.FilterUnseen(ctx, urls, now)
	if err != nil {
		return err
	}

	logger.Info("fetching unseen items", slog.Int("total", len(urls)), slog.Int("unseen", len(unseen)))
	outcomes, err := router.FetchMany(ctx, unseen)
	if err != nil {
		logger.Warn("fetch batch ended early", slog.Any("error", err))
	}

	for _, outcome := range outcomes {
		if !outcome.Success {
			logger.Warn("fetch failed",
				slog.String("error_kind", string(outcome.ErrorKind)),
				slog.String("message", outcome.Message))
			continue
		}
		body := outcome.Body
		if body.Metadata == nil {
			body.Metadata = map[string]string{}
		}
		body.Metadata["fetcher_kind"] = string(outcome.Kind)
		if outcome.Kind == entity.FetcherManagedReader {
			body.Metadata["format"] = "markdown"
		} else {
			body.Metadata["format"] = "text"
		}
		if err := store.Put(ctx, body); err != nil {
			logger.Warn("failed to cache fetched body", slog.String("url", body.URL), slog.Any("error", err))
			continue
		}
		hhttp.RecordFetchDuration(string(outcome.Kind), time.Duration(outcome.ElapsedMS)*time.Millisecond)
	}

	bodies, err := store.GetMany(ctx, urls, now)
	if err != nil {
		return err
	}

	result := analyzer.AnalyzeFull(ctx, items, bodies)
	hhttp.RecordAnalysisRun(result.Success)
	hhttp.RecordAnalysisDuration(time.Since(start))
	if !result.Success {
		logger.Error("daily analysis failed", slog.String("error", result.Error))
	} else {
		logger.Info("daily analysis complete",
			slog.Int("categories", len(result.Categories)),
			slog.Int("insights", len(result.Insights)),
			slog.Int("summaries", len(result.Summaries)))
	}
	failedSubtasks := 0
	if !result.Success {
		failedSubtasks = 1
	}
	slo.RecordSubtaskErrorRate(failedSubtasks, 1)

	if analysisArchive != nil && result.Success {
		if err := analysisArchive.PutAnalysis(ctx, result, nil); err != nil {
			logger.Warn("failed to archive analysis result", slog.Any("error", err))
		}
	}

	if hotspotAnalyzer != nil {
		report := hotspotAnalyzer.Analyze(ctx, hotlist, rss)
		if !report.Success {
			logger.Warn("hotspot analysis failed", slog.String("error", report.Error))
		} else {
			logger.Info("hotspot analysis complete",
				slog.Int("total_news", report.TotalNews),
				slog.Int("analyzed_news", report.AnalyzedNews))
		}
		if analysisArchive != nil && report.Success {
			if err := analysisArchive.PutHotspot(ctx, report, nil); err != nil {
				logger.Warn("failed to archive hotspot report", slog.Any("error", err))
			}
		}
	}

	if stats, err := store.GetStats(ctx, now); err == nil {
		hhttp.UpdateCacheEntriesTotal(stats.TotalEntries)
	}

	slo.RecordBatchOutcome(result.Success, time.Since(start).Seconds())
	if time.Since(start).Seconds() > slo.BatchDurationP99Target {
		logger.Warn("batch run exceeded p99 duration target",
			slog.Duration("elapsed", time.Since(start)),
			slog.Float64("target_seconds", slo.BatchDurationP99Target))
	}

	return nil
}

// loadRankedItems is the ingestion boundary: it reads the upstream hot list
// and RSS feeds this run should process. Acquiring that raw list (platform
// polling, RSS parsing) lives outside this module's scope; this stub
// returns no items until wired to a concrete source.
func loadRankedItems() (hotlist, rss []entity.RankedItem, err error) {
	return nil, nil, nil
}
