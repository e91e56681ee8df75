package contentstore

import (
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zhanzhaozzz/newsradar/internal/domain/entity"
)

// urlHash returns the hex-encoded MD5 digest of url, the cache's
// content-address per SPEC_FULL.md's ContentStore schema. The url column
// itself stays the lookup key for every query here; url_hash is carried
// alongside it (and indexed) for callers that join or partition on the
// digest rather than the raw URL text.
func urlHash(url string) string {
	sum := md5.Sum([]byte(url))
	return hex.EncodeToString(sum[:])
}

// Store is the content-addressed cache of fetched article bodies. Every
// operation is keyed by URL.
type Store struct {
	db *sql.DB
}

// New wraps an opened *sql.DB as a Store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Stats summarizes the current cache contents.
type Stats struct {
	TotalEntries   int
	ExpiredEntries int
	TotalWordCount int64
}

// Put inserts or replaces the cached body for body.URL.
func (s *Store) Put(ctx context.Context, body entity.FetchedBody) error {
	images, err := json.Marshal(body.ImageURLs)
	if err != nil {
		return fmt.Errorf("contentstore: put: encode images: %w", err)
	}
	metadata, err := json.Marshal(body.Metadata)
	if err != nil {
		return fmt.Errorf("contentstore: put: encode metadata: %w", err)
	}

	scraperType := body.Metadata["fetcher_kind"]

	const query = `
INSERT INTO bodies (url, url_hash, title, content, html_excerpt, author, publish_time, word_count, images, metadata, scraper_type, scraped_at, expires_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(url) DO UPDATE SET
    url_hash = excluded.url_hash,
    title = excluded.title,
    content = excluded.content,
    html_excerpt = excluded.html_excerpt,
    author = excluded.author,
    publish_time = excluded.publish_time,
    word_count = excluded.word_count,
    images = excluded.images,
    metadata = excluded.metadata,
    scraper_type = excluded.scraper_type,
    scraped_at = excluded.scraped_at,
    expires_at = excluded.expires_at
`
	_, err = s.db.ExecContext(ctx, query,
		body.URL, urlHash(body.URL), body.Title, body.BodyText, body.HTMLExcerpt, body.Author,
		body.PublishTime, body.WordCount, string(images), string(metadata), scraperType,
		body.FetchedAt, body.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("contentstore: put: %w", err)
	}
	return nil
}

// Get returns the cached body for url. It returns entity.ErrNotFound if the
// entry is absent, but does NOT check expiry — callers that care about TTL
// should check the returned ExpiresAt themselves (Exists enforces TTL for
// the common "do I need to re-fetch" question).
func (s *Store) Get(ctx context.Context, url string) (entity.FetchedBody, error) {
	const query = `
SELECT url, title, content, html_excerpt, author, publish_time, word_count, images, metadata, scraped_at, expires_at
FROM bodies WHERE url = ?
`
	row := s.db.QueryRowContext(ctx, query, url)
	body, err := scanBody(row)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.FetchedBody{}, entity.ErrNotFound
	}
	if err != nil {
		return entity.FetchedBody{}, fmt.Errorf("contentstore: get: %w", err)
	}
	return body, nil
}

// Exists reports whether url has a cached, unexpired body.
func (s *Store) Exists(ctx context.Context, url string, now time.Time) (bool, error) {
	const query = `SELECT 1 FROM bodies WHERE url = ? AND (expires_at IS NULL OR expires_at > ?)`
	var dummy int
	err := s.db.QueryRowContext(ctx, query, url, now).Scan(&dummy)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("contentstore: exists: %w", err)
	}
	return true, nil
}

// GetMany returns cached, unexpired bodies for the given URLs as of now, in
// no particular order. URLs with no cached entry, or whose entry has
// expired, are simply absent from the result map.
func (s *Store) GetMany(ctx context.Context, urls []string, now time.Time) (map[string]entity.FetchedBody, error) {
	result := make(map[string]entity.FetchedBody, len(urls))
	if len(urls) == 0 {
		return result, nil
	}

	placeholders := make([]string, len(urls))
	args := make([]interface{}, 0, len(urls)+1)
	for i, u := range urls {
		placeholders[i] = "?"
		args = append(args, u)
	}
	args = append(args, now)

	query := fmt.Sprintf(`
SELECT url, title, content, html_excerpt, author, publish_time, word_count, images, metadata, scraped_at, expires_at
FROM bodies WHERE url IN (%s) AND (expires_at IS NULL OR expires_at > ?)`, strings.Join(placeholders, ","))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("contentstore: get_many: query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		body, err := scanBody(rows)
		if err != nil {
			return nil, fmt.Errorf("contentstore: get_many: scan: %w", err)
		}
		result[body.URL] = body
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("contentstore: get_many: rows: %w", err)
	}
	return result, nil
}

// FilterUnseen returns the subset of urls that have no unexpired cached
// entry, preserving input order. This is the set callers must fetch.
func (s *Store) FilterUnseen(ctx context.Context, urls []string, now time.Time) ([]string, error) {
	if len(urls) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(urls))
	args := make([]interface{}, 0, len(urls)+1)
	args = append(args, now)
	for i, u := range urls {
		placeholders[i] = "?"
		args = append(args, u)
	}

	query := fmt.Sprintf(`
SELECT url FROM bodies WHERE (expires_at IS NULL OR expires_at > ?) AND url IN (%s)`, strings.Join(placeholders, ","))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("contentstore: filter_unseen: query: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]bool, len(urls))
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("contentstore: filter_unseen: scan: %w", err)
		}
		seen[url] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("contentstore: filter_unseen: rows: %w", err)
	}

	unseen := make([]string, 0, len(urls))
	for _, u := range urls {
		if !seen[u] {
			unseen = append(unseen, u)
		}
	}
	return unseen, nil
}

// Sweep deletes every entry whose expires_at has passed as of now, and
// returns the number of rows removed.
func (s *Store) Sweep(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM bodies WHERE expires_at IS NOT NULL AND expires_at <= ?`, now)
	if err != nil {
		return 0, fmt.Errorf("contentstore: sweep: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("contentstore: sweep: rows affected: %w", err)
	}
	return n, nil
}

// GetStats reports aggregate counts over the current cache contents.
func (s *Store) GetStats(ctx context.Context, now time.Time) (Stats, error) {
	var stats Stats
	err := s.db.QueryRowContext(ctx, `
SELECT
    COUNT(*),
    COUNT(CASE WHEN expires_at IS NOT NULL AND expires_at <= ? THEN 1 END),
    COALESCE(SUM(word_count), 0)
FROM bodies`, now).Scan(&stats.TotalEntries, &stats.ExpiredEntries, &stats.TotalWordCount)
	if err != nil {
		return Stats{}, fmt.Errorf("contentstore: get_stats: %w", err)
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBody(row rowScanner) (entity.FetchedBody, error) {
	var body entity.FetchedBody
	var htmlExcerpt, author sql.NullString
	var publishTime sql.NullTime
	var expiresAt sql.NullTime
	var imagesJSON, metadataJSON string

	err := row.Scan(
		&body.URL, &body.Title, &body.BodyText, &htmlExcerpt, &author,
		&publishTime, &body.WordCount, &imagesJSON, &metadataJSON,
		&body.FetchedAt, &expiresAt,
	)
	if err != nil {
		return entity.FetchedBody{}, err
	}

	body.HTMLExcerpt = htmlExcerpt.String
	body.Author = author.String
	if publishTime.Valid {
		t := publishTime.Time
		body.PublishTime = &t
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		body.ExpiresAt = &t
	}
	if imagesJSON != "" {
		_ = json.Unmarshal([]byte(imagesJSON), &body.ImageURLs)
	}
	if metadataJSON != "" {
		_ = json.Unmarshal([]byte(metadataJSON), &body.Metadata)
	}
	return body, nil
}
