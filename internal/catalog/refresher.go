package catalog

import (
	"context"
	"time"

	"github.com/signalsfoundry/mission-pnt/internal/logging"
)

// Refresher keeps a Store populated by reloading the catalog on an
// interval. A failed reload keeps the previous snapshot in place.
type Refresher struct {
	loader   *Loader
	store    *Store
	interval time.Duration
	log      logging.Logger
}

// NewRefresher wires a loader to a store. A non-positive interval falls
// back to the cache max age.
func NewRefresher(loader *Loader, store *Store, interval time.Duration, log logging.Logger) *Refresher {
	if log == nil {
		log = logging.Noop()
	}
	if interval <= 0 {
		interval = DefaultCacheMaxAge
	}
	return &Refresher{
		loader:   loader,
		store:    store,
		interval: interval,
		log:      log,
	}
}

// Run loads the catalog immediately, then reloads on every interval tick
// until ctx is cancelled. Reload failures are logged and skipped; the loop
// itself never stops early.
func (r *Refresher) Run(ctx context.Context) {
	r.reload(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info(ctx, "catalog refresher stopped")
			return
		case <-ticker.C:
			r.reload(ctx)
		}
	}
}

func (r *Refresher) reload(ctx context.Context) {
	entries, source, err := r.loader.Load(ctx)
	if err != nil {
		r.log.Warn(ctx, "catalog reload failed; keeping previous snapshot",
			logging.String("error", err.Error()))
		return
	}
	r.store.Replace(entries, source)
	r.log.Info(ctx, "catalog refreshed",
		logging.Int("entries", len(entries)),
		logging.String("source", source))
}
