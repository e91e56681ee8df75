// Package config aggregates the application-level configuration for the
// worker: scraper, llm, ai_analysis, and feature-toggle settings, all
// loaded through the never-fails ConfigLoadResult loader.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/zhanzhaozzz/newsradar/internal/domain/entity"
	"github.com/zhanzhaozzz/newsradar/internal/fetch"
	pkgconfig "github.com/zhanzhaozzz/newsradar/internal/pkg/config"
)

// ScraperConfig controls the content-fetching pipeline.
type ScraperConfig struct {
	Timeout              time.Duration
	Parallelism          int
	MaxBodySize          int64
	MaxRedirects         int
	DenyPrivateIPs       bool
	ManagedReaderBaseURL string
	ManagedReaderAPIKey  string
	HeadlessSettleDelay  time.Duration
	RetentionTTL         time.Duration
	TopN                 int
	MaxRetries           int
	// DomainRules are operator-supplied overrides, tier 1 of the router's
	// selection algorithm: consulted before the built-in JS-render and
	// reader-preferred sets.
	DomainRules []fetch.DomainRule
}

// LLMConfig controls the daily Analyzer's chat client.
type LLMConfig struct {
	Provider   string // "openai", "claude", or "raw"
	APIKey     string
	Model      string
	BaseURL    string // only meaningful for "raw"
	PromptFile string // optional path to a [system]/[user] daily-briefing override
}

// AIAnalysisConfig controls the single-shot HotspotAnalyzer.
type AIAnalysisConfig struct {
	Dialect      string // "openai_compatible" or "gemini"
	APIKey       string
	BaseURL      string
	Model        string
	MaxNewsLimit int
}

// FeaturesConfig toggles optional pipeline stages.
type FeaturesConfig struct {
	DeepResearchEnabled bool
	HotspotEnabled      bool
}

// ObservabilityConfig controls logging and the ambient ops HTTP surface.
type ObservabilityConfig struct {
	LogLevel    string
	LogFormat   string // "json" or "text"
	MetricsAddr string
	HealthAddr  string
}

// AppConfig is the fully loaded, validated configuration for one worker
// run.
type AppConfig struct {
	Scraper        ScraperConfig
	LLM            LLMConfig
	AIAnalysis     AIAnalysisConfig
	Features       FeaturesConfig
	Observability  ObservabilityConfig
	Categories     []entity.Category
	ContentDBPath  string
	// DatabaseURL, when set, enables the optional Postgres analysis
	// archive (internal/archive). Empty disables it.
	DatabaseURL string
}

// Load reads every configuration key from the environment, falling back to
// defaults with a warning log on any validation failure — nothing here
// ever returns an error, matching the fail-open posture of the loader it's
// built on.
func Load() AppConfig {
	var warnings []string
	record := func(r pkgconfig.ConfigLoadResult) {
		warnings = append(warnings, r.Warnings...)
	}

	timeoutResult := pkgconfig.LoadEnvDuration("SCRAPER_TIMEOUT", 15*time.Second, positiveDuration)
	record(timeoutResult)
	parallelismResult := pkgconfig.LoadEnvInt("SCRAPER_PARALLELISM", 5, rangeInt(1, 50))
	record(parallelismResult)
	maxBodyResult := pkgconfig.LoadEnvInt("SCRAPER_MAX_BODY_SIZE", 10*1024*1024, rangeInt(1024, 100*1024*1024))
	record(maxBodyResult)
	maxRedirectsResult := pkgconfig.LoadEnvInt("SCRAPER_MAX_REDIRECTS", 5, rangeInt(0, 10))
	record(maxRedirectsResult)
	denyPrivateResult := pkgconfig.LoadEnvBool("SCRAPER_DENY_PRIVATE_IPS", true)
	record(denyPrivateResult)
	settleResult := pkgconfig.LoadEnvDuration("SCRAPER_HEADLESS_SETTLE_DELAY", 1500*time.Millisecond, positiveDuration)
	record(settleResult)
	retentionResult := pkgconfig.LoadEnvDuration("SCRAPER_RETENTION_TTL", 24*time.Hour, positiveDuration)
	record(retentionResult)
	topNResult := pkgconfig.LoadEnvInt("SCRAPER_TOP_N", 20, rangeInt(1, 1000))
	record(topNResult)
	maxRetriesResult := pkgconfig.LoadEnvInt("SCRAPER_MAX_RETRIES", 2, rangeInt(0, 10))
	record(maxRetriesResult)
	domainRules, domainRuleWarnings := parseDomainRules(pkgconfig.LoadEnvString("SCRAPER_DOMAIN_RULES", ""))
	warnings = append(warnings, domainRuleWarnings...)

	maxNewsResult := pkgconfig.LoadEnvInt("AI_ANALYSIS_MAX_NEWS_LIMIT", 100, rangeInt(1, 1000))
	record(maxNewsResult)

	deepResearchResult := pkgconfig.LoadEnvBool("FEATURES_DEEP_RESEARCH_ENABLED", true)
	record(deepResearchResult)
	hotspotResult := pkgconfig.LoadEnvBool("FEATURES_HOTSPOT_ENABLED", true)
	record(hotspotResult)

	cfg := AppConfig{
		Scraper: ScraperConfig{
			Timeout:              timeoutResult.Value.(time.Duration),
			Parallelism:          parallelismResult.Value.(int),
			MaxBodySize:          int64(maxBodyResult.Value.(int)),
			MaxRedirects:         maxRedirectsResult.Value.(int),
			DenyPrivateIPs:       denyPrivateResult.Value.(bool),
			ManagedReaderBaseURL: pkgconfig.LoadEnvString("SCRAPER_MANAGED_READER_BASE_URL", ""),
			ManagedReaderAPIKey:  pkgconfig.LoadEnvString("SCRAPER_MANAGED_READER_API_KEY", ""),
			HeadlessSettleDelay:  settleResult.Value.(time.Duration),
			RetentionTTL:         retentionResult.Value.(time.Duration),
			TopN:                 topNResult.Value.(int),
			MaxRetries:           maxRetriesResult.Value.(int),
			DomainRules:          domainRules,
		},
		LLM: LLMConfig{
			Provider:   strings.ToLower(pkgconfig.LoadEnvString("LLM_PROVIDER", "openai")),
			APIKey:     pkgconfig.LoadEnvString("LLM_API_KEY", ""),
			Model:      pkgconfig.LoadEnvString("LLM_MODEL", "gpt-4o-mini"),
			BaseURL:    pkgconfig.LoadEnvString("LLM_BASE_URL", ""),
			PromptFile: pkgconfig.LoadEnvString("LLM_PROMPT_FILE", ""),
		},
		AIAnalysis: AIAnalysisConfig{
			Dialect:      strings.ToLower(pkgconfig.LoadEnvString("AI_ANALYSIS_DIALECT", "openai_compatible")),
			APIKey:       pkgconfig.LoadEnvString("AI_ANALYSIS_API_KEY", ""),
			BaseURL:      pkgconfig.LoadEnvString("AI_ANALYSIS_BASE_URL", ""),
			Model:        pkgconfig.LoadEnvString("AI_ANALYSIS_MODEL", "gpt-4o-mini"),
			MaxNewsLimit: maxNewsResult.Value.(int),
		},
		Features: FeaturesConfig{
			DeepResearchEnabled: deepResearchResult.Value.(bool),
			HotspotEnabled:      hotspotResult.Value.(bool),
		},
		Observability: ObservabilityConfig{
			LogLevel:    strings.ToUpper(pkgconfig.LoadEnvString("LOG_LEVEL", "INFO")),
			LogFormat:   strings.ToLower(pkgconfig.LoadEnvString("LOG_FORMAT", "json")),
			MetricsAddr: pkgconfig.LoadEnvString("METRICS_ADDR", ":9090"),
			HealthAddr:  pkgconfig.LoadEnvString("HEALTH_ADDR", ":8081"),
		},
		Categories:    defaultCategories(),
		ContentDBPath: pkgconfig.LoadEnvString("CONTENT_DB_PATH", "./data/content.db"),
		DatabaseURL:   pkgconfig.LoadEnvString("DATABASE_URL", ""),
	}

	for _, w := range warnings {
		slog.Warn("configuration fallback applied", slog.String("warning", w))
	}

	return cfg
}

func positiveDuration(d time.Duration) error {
	if d <= 0 {
		return errPositive
	}
	return nil
}

// domainRuleKinds maps the short names used in SCRAPER_DOMAIN_RULES to the
// FetcherKind values the router understands.
var domainRuleKinds = map[string]entity.FetcherKind{
	"reader":  entity.FetcherManagedReader,
	"browser": entity.FetcherHeadlessBrowser,
	"plain":   entity.FetcherPlainHTTP,
}

// parseDomainRules parses SCRAPER_DOMAIN_RULES, a comma-separated list of
// "host:kind" pairs (e.g. "weibo.com:browser,nytimes.com:reader"), into the
// router's tier-1 domain rules. Malformed pairs and unknown kinds are
// skipped with a warning rather than failing the whole load.
func parseDomainRules(raw string) ([]fetch.DomainRule, []string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var rules []fetch.DomainRule
	var warnings []string
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		host, kindName, ok := strings.Cut(pair, ":")
		host = strings.TrimSpace(host)
		kindName = strings.ToLower(strings.TrimSpace(kindName))
		if !ok || host == "" || kindName == "" {
			warnings = append(warnings, fmt.Sprintf("invalid SCRAPER_DOMAIN_RULES entry %q: expected \"host:kind\", skipping", pair))
			continue
		}
		kind, ok := domainRuleKinds[kindName]
		if !ok {
			warnings = append(warnings, fmt.Sprintf("invalid SCRAPER_DOMAIN_RULES entry %q: unknown kind %q, skipping", pair, kindName))
			continue
		}
		rules = append(rules, fetch.DomainRule{Suffix: host, Kind: kind})
	}
	return rules, warnings
}

func rangeInt(min, max int) func(int) error {
	return func(v int) error {
		if v < min || v > max {
			return errRange
		}
		return nil
	}
}

// defaultCategories is the fallback classification scheme used when no
// external category definition is supplied.
func defaultCategories() []entity.Category {
	return []entity.Category{
		{ID: "politics", Name: "政治", Keywords: []string{"政策", "政府", "外交"}},
		{ID: "economy", Name: "经济", Keywords: []string{"股市", "金融", "贸易"}},
		{ID: "technology", Name: "科技", Keywords: []string{"人工智能", "芯片", "互联网"}},
		{ID: "society", Name: "社会", Keywords: []string{"民生", "事故", "法律"}},
		{ID: "entertainment", Name: "娱乐", Keywords: []string{"影视", "明星", "综艺"}},
		{ID: "sports", Name: "体育", Keywords: []string{"比赛", "运动员", "联赛"}},
	}
}
