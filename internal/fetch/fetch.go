// Package fetch obtains the raw response for a spec's source. Fetching is
// outside the deterministic core: it is bounded by timeouts, never retried,
// and never cached.
package fetch

import (
	"context"
	"fmt"

	"github.com/gitadpal/voran/internal/domain"
)

// Fetcher dispatches a source to the matching client.
type Fetcher struct {
	http    *HTTPClient
	browser *Browser
}

// New creates a Fetcher. browser may be nil, in which case browser sources
// fail with ErrFetch.
func New(httpClient *HTTPClient, browser *Browser) *Fetcher {
	return &Fetcher{http: httpClient, browser: browser}
}

// Fetch returns the raw response body for src.
func (f *Fetcher) Fetch(ctx context.Context, src domain.Source) (string, error) {
	switch s := src.(type) {
	case *domain.HTTPSource:
		return f.http.Fetch(ctx, s)
	case *domain.BrowserSource:
		if f.browser == nil {
			return "", fmt.Errorf("fetch: %w: browser sources are disabled", domain.ErrFetch)
		}
		return f.browser.Fetch(ctx, s)
	default:
		return "", fmt.Errorf("fetch: %w: source %T", domain.ErrUnknownVariant, src)
	}
}
