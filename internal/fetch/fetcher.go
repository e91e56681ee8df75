// Package fetch provides the three content-fetching strategies (managed
// reader, headless browser, plain HTTP) and the domain-based Router that
// dispatches between them.
package fetch

import (
	"context"
	"errors"

	"github.com/zhanzhaozzz/newsradar/internal/domain/entity"
)

// Sentinel errors shared by every fetcher implementation.
var (
	ErrInvalidURL        = errors.New("fetch: invalid url")
	ErrPrivateIP         = errors.New("fetch: url resolves to a private ip")
	ErrTooManyRedirects  = errors.New("fetch: too many redirects")
	ErrBodyTooLarge      = errors.New("fetch: response body too large")
	ErrTimeout           = errors.New("fetch: request timed out")
	ErrExtractionFailed  = errors.New("fetch: could not extract readable content")
)

// Fetcher retrieves and extracts the readable body of a single URL. Each
// strategy (managed reader, headless browser, plain HTTP) implements this
// the same way, so the Router can treat them interchangeably.
type Fetcher interface {
	Kind() entity.FetcherKind
	Fetch(ctx context.Context, url string, opts ...FetchOption) (entity.FetchedBody, error)
}
