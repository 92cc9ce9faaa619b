package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	defaultFetchTimeout = 30 * time.Second
	defaultUserAgent    = "mission-pnt/1.0"
)

// Source names one remote TLE group endpoint.
type Source struct {
	Group string
	URL   string
}

// GroupSource builds the Celestrak GP endpoint for one element group.
func GroupSource(group string) Source {
	return Source{
		Group: group,
		URL:   fmt.Sprintf("https://celestrak.org/NORAD/elements/gp.php?GROUP=%s&FORMAT=tle", url.QueryEscape(group)),
	}
}

// DefaultSources returns the Celestrak element groups tracked by default.
func DefaultSources() []Source {
	return []Source{
		GroupSource("weather"),
		GroupSource("iridium"),
		GroupSource("oneweb"),
	}
}

// Fetcher retrieves raw TLE text over HTTP.
type Fetcher struct {
	client    *http.Client
	userAgent string
}

// FetcherOption customises Fetcher construction.
type FetcherOption func(*Fetcher)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) {
		if c != nil {
			f.client = c
		}
	}
}

// WithTimeout sets the request timeout on the fetcher's current client.
func WithTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		if d > 0 {
			f.client.Timeout = d
		}
	}
}

// WithUserAgent overrides the User-Agent header sent upstream.
func WithUserAgent(ua string) FetcherOption {
	return func(f *Fetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// NewFetcher constructs a Fetcher with a 30-second timeout by default.
func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		client:    &http.Client{Timeout: defaultFetchTimeout},
		userAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// Fetch retrieves one source's TLE text. Any non-200 response is an error.
func (f *Fetcher) Fetch(ctx context.Context, src Source) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: build request for %s: %w", src.Group, err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog: fetch %s: %w", src.Group, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog: fetch %s: unexpected status %d", src.Group, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s response: %w", src.Group, err)
	}
	return body, nil
}
