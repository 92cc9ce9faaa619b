package catalog

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/signalsfoundry/mission-pnt/internal/logging"
	"github.com/signalsfoundry/mission-pnt/model"
)

const (
	// DefaultCachePath is where fetched catalog text is kept between runs.
	DefaultCachePath = "tle_cache.txt"
	// DefaultCacheMaxAge matches the upstream refresh guidance for TLEs.
	DefaultCacheMaxAge = 12 * time.Hour
)

// Catalog provenance strings published with every snapshot.
const (
	SourceLive   = "LIVE NETWORK"
	SourceCached = "CACHED"
)

// FetchMetricsRecorder receives catalog fetch outcomes.
type FetchMetricsRecorder interface {
	ObserveFetch(outcome string, d time.Duration)
	AddRejected(n int)
}

// Loader combines fetch, parse, and the cache file into one catalog load.
type Loader struct {
	fetcher   *Fetcher
	sources   []Source
	cachePath string
	maxAge    time.Duration
	log       logging.Logger
	metrics   FetchMetricsRecorder
}

// LoaderOption customises Loader construction.
type LoaderOption func(*Loader)

// WithFetcher replaces the default Fetcher.
func WithFetcher(f *Fetcher) LoaderOption {
	return func(l *Loader) {
		if f != nil {
			l.fetcher = f
		}
	}
}

// WithSources replaces the default Celestrak group list.
func WithSources(srcs []Source) LoaderOption {
	return func(l *Loader) {
		if len(srcs) > 0 {
			l.sources = srcs
		}
	}
}

// WithCachePath moves the cache file. Empty disables caching.
func WithCachePath(path string) LoaderOption {
	return func(l *Loader) {
		l.cachePath = path
	}
}

// WithCacheMaxAge sets how old the cache may be and still count as fresh.
func WithCacheMaxAge(d time.Duration) LoaderOption {
	return func(l *Loader) {
		if d > 0 {
			l.maxAge = d
		}
	}
}

// WithFetchMetrics attaches an optional recorder for fetch outcomes.
func WithFetchMetrics(m FetchMetricsRecorder) LoaderOption {
	return func(l *Loader) {
		l.metrics = m
	}
}

// NewLoader constructs a Loader with the default sources and cache policy.
func NewLoader(log logging.Logger, opts ...LoaderOption) *Loader {
	if log == nil {
		log = logging.Noop()
	}
	l := &Loader{
		fetcher:   NewFetcher(),
		sources:   DefaultSources(),
		cachePath: DefaultCachePath,
		maxAge:    DefaultCacheMaxAge,
		log:       log,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Load returns catalog entries plus their provenance. A fresh cache is
// preferred; otherwise every source is fetched, per-group failures
// tolerated. When all fetches fail, a stale cache still beats nothing.
func (l *Loader) Load(ctx context.Context) ([]model.TLE, string, error) {
	start := time.Now()

	if l.cacheFresh() {
		entries, err := l.readCache()
		if err == nil {
			l.log.Info(ctx, "catalog loaded from cache",
				logging.Int("entries", len(entries)),
				logging.String("path", l.cachePath))
			l.observe("cache", start)
			return entries, SourceCached, nil
		}
		l.log.Warn(ctx, "catalog cache unreadable", logging.String("error", err.Error()))
	}

	entries := l.download(ctx)
	if len(entries) > 0 {
		l.writeCache(ctx, entries)
		l.observe("success", start)
		return entries, SourceLive, nil
	}

	if stale, err := l.readCache(); err == nil {
		l.log.Warn(ctx, "all catalog fetches failed; degrading to stale cache",
			logging.Int("entries", len(stale)))
		l.observe("stale_cache", start)
		return stale, SourceCached, nil
	}

	l.observe("error", start)
	return nil, "", fmt.Errorf("catalog: no sources reachable and no cache: %w", ErrNoEntries)
}

// download fetches and parses every source, tolerating per-group failures.
func (l *Loader) download(ctx context.Context) []model.TLE {
	var entries []model.TLE
	for _, src := range l.sources {
		text, err := l.fetcher.Fetch(ctx, src)
		if err != nil {
			l.log.Warn(ctx, "catalog group fetch failed",
				logging.String("group", src.Group),
				logging.String("error", err.Error()))
			continue
		}
		parsed, rejected, err := ParseTLEs(bytes.NewReader(text))
		if err != nil {
			l.log.Warn(ctx, "catalog group unparseable",
				logging.String("group", src.Group),
				logging.String("error", err.Error()))
			continue
		}
		if l.metrics != nil && rejected > 0 {
			l.metrics.AddRejected(rejected)
		}
		l.log.Info(ctx, "catalog group fetched",
			logging.String("group", src.Group),
			logging.Int("entries", len(parsed)),
			logging.Int("rejected", rejected))
		entries = append(entries, parsed...)
	}
	return entries
}

func (l *Loader) cacheFresh() bool {
	if l.cachePath == "" {
		return false
	}
	info, err := os.Stat(l.cachePath)
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) < l.maxAge
}

func (l *Loader) readCache() ([]model.TLE, error) {
	if l.cachePath == "" {
		return nil, os.ErrNotExist
	}
	f, err := os.Open(l.cachePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	entries, _, err := ParseTLEs(f)
	return entries, err
}

// writeCache is best effort; a read-only working directory is not fatal.
func (l *Loader) writeCache(ctx context.Context, entries []model.TLE) {
	if l.cachePath == "" {
		return
	}
	if err := os.WriteFile(l.cachePath, RenderTLEs(entries), 0o644); err != nil {
		l.log.Warn(ctx, "catalog cache write failed", logging.String("error", err.Error()))
	}
}

func (l *Loader) observe(outcome string, start time.Time) {
	if l.metrics == nil {
		return
	}
	l.metrics.ObserveFetch(outcome, time.Since(start))
}
