// Command tlefetch downloads TLE element groups once and writes the merged
// catalog file, for seeding offline deployments or priming the server cache.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/signalsfoundry/mission-pnt/internal/catalog"
	"github.com/signalsfoundry/mission-pnt/internal/logging"
	"github.com/signalsfoundry/mission-pnt/model"
)

func main() {
	output := flag.String("output", catalog.DefaultCachePath, "Path for the merged TLE file")
	timeout := flag.Duration("timeout", 30*time.Second, "Per-request timeout")
	groups := flag.String("groups", "", "Comma-separated Celestrak group names; empty fetches the default set")
	userAgent := flag.String("user-agent", "", "Override the upstream User-Agent header")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx := context.Background()

	sources := catalog.DefaultSources()
	if *groups != "" {
		sources = nil
		for _, g := range strings.Split(*groups, ",") {
			if g = strings.TrimSpace(g); g != "" {
				sources = append(sources, catalog.GroupSource(g))
			}
		}
	}

	opts := []catalog.FetcherOption{catalog.WithTimeout(*timeout)}
	if *userAgent != "" {
		opts = append(opts, catalog.WithUserAgent(*userAgent))
	}
	fetcher := catalog.NewFetcher(opts...)

	entries, rejected, err := fetchMerged(ctx, fetcher, sources, log)
	if err != nil {
		log.Error(ctx, "catalog fetch failed", logging.String("error", err.Error()))
		os.Exit(1)
	}

	if err := os.WriteFile(*output, catalog.RenderTLEs(entries), 0o644); err != nil {
		log.Error(ctx, "failed to write catalog",
			logging.String("path", *output),
			logging.String("error", err.Error()))
		os.Exit(1)
	}

	log.Info(ctx, "catalog written",
		logging.String("path", *output),
		logging.Int("entries", len(entries)),
		logging.Int("rejected", rejected))
}

// fetchMerged downloads and parses every source, tolerating per-group
// failures. It errors only when nothing at all was retrieved.
func fetchMerged(ctx context.Context, fetcher *catalog.Fetcher, sources []catalog.Source, log logging.Logger) ([]model.TLE, int, error) {
	var entries []model.TLE
	rejected := 0
	failed := 0

	for _, src := range sources {
		body, err := fetcher.Fetch(ctx, src)
		if err != nil {
			failed++
			log.Warn(ctx, "group fetch failed",
				logging.String("group", src.Group),
				logging.String("error", err.Error()))
			continue
		}
		parsed, bad, err := catalog.ParseTLEs(bytes.NewReader(body))
		if err != nil {
			failed++
			log.Warn(ctx, "group parse failed",
				logging.String("group", src.Group),
				logging.String("error", err.Error()))
			continue
		}
		rejected += bad
		entries = append(entries, parsed...)
		log.Info(ctx, "group fetched",
			logging.String("group", src.Group),
			logging.Int("entries", len(parsed)),
			logging.Int("rejected", bad))
	}

	if len(entries) == 0 {
		return nil, rejected, fmt.Errorf("no TLE entries from %d sources (%d failed)", len(sources), failed)
	}
	return entries, rejected, nil
}
