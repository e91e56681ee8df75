// Package archive provides an optional Postgres-backed archive for
// AnalysisResult and HotspotReport artifacts, for deployments that want to
// retain every run's output at scale rather than rely on the worker's own
// logs. The primary content cache stays SQLite (internal/contentstore);
// this is a separate, optional sink enabled by setting DATABASE_URL.
package archive

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/zhanzhaozzz/newsradar/internal/domain/entity"
)

//go:embed schema.sql
var schemaSQL string

// Store persists analysis artifacts to Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to databaseURL, registers the pgvector type on every pooled
// connection, and applies the embedded schema. Callers own the returned
// Store and must call Close.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("archive: parse database url: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("archive: connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("archive: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("archive: apply schema: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// PutAnalysis persists one AnalysisResult. embedding is optional: pass nil
// when no embedding model is configured. Similarity search over archived
// results (read-side use of the embedding column) is left as a documented
// extension point; this path only covers the write side.
func (s *Store) PutAnalysis(ctx context.Context, result entity.AnalysisResult, embedding []float32) error {
	categoriesJSON, err := json.Marshal(result.Categories)
	if err != nil {
		return fmt.Errorf("archive: marshal categories: %w", err)
	}
	insightsJSON, err := json.Marshal(result.Insights)
	if err != nil {
		return fmt.Errorf("archive: marshal insights: %w", err)
	}
	summariesJSON, err := json.Marshal(result.Summaries)
	if err != nil {
		return fmt.Errorf("archive: marshal summaries: %w", err)
	}

	var vec *pgvector.Vector
	if embedding != nil {
		v := pgvector.NewVector(embedding)
		vec = &v
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO analysis_results
			(generated_at, model_used, daily_briefing, categories, insights, summaries, deep_research, embedding)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		valueOrNow(result.GeneratedAt), result.ModelUsed, result.DailyBriefing,
		categoriesJSON, insightsJSON, summariesJSON, result.DeepResearch, vec,
	)
	if err != nil {
		return fmt.Errorf("archive: insert analysis result: %w", err)
	}
	return nil
}

// PutHotspot persists one HotspotReport.
func (s *Store) PutHotspot(ctx context.Context, report entity.HotspotReport, embedding []float32) error {
	var vec *pgvector.Vector
	if embedding != nil {
		v := pgvector.NewVector(embedding)
		vec = &v
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO hotspot_reports
			(summary, keyword_analysis, sentiment, cross_platform, impact, signals, conclusion,
			 total_news, analyzed_news, embedding)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		report.Summary, report.KeywordAnalysis, report.Sentiment, report.CrossPlatform,
		report.Impact, report.Signals, report.Conclusion,
		report.TotalNews, report.AnalyzedNews, vec,
	)
	if err != nil {
		return fmt.Errorf("archive: insert hotspot report: %w", err)
	}
	return nil
}

func valueOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
