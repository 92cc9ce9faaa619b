package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CatalogCollector bundles Prometheus metrics for the TLE catalog pipeline.
type CatalogCollector struct {
	Size            prometheus.Gauge
	Fetches         *prometheus.CounterVec
	FetchDuration   prometheus.Histogram
	RejectedEntries prometheus.Counter
}

// NewCatalogCollector registers catalog metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewCatalogCollector(reg prometheus.Registerer) (*CatalogCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	size, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pnt_catalog_size",
		Help: "TLE entries currently held in the catalog store.",
	}), "pnt_catalog_size")
	if err != nil {
		return nil, err
	}

	fetches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pnt_catalog_fetches_total",
		Help: "Catalog fetch attempts, labeled by outcome.",
	}, []string{"outcome"})
	fetches, err = registerCounterVec(reg, fetches, "pnt_catalog_fetches_total")
	if err != nil {
		return nil, err
	}

	fetchDuration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pnt_catalog_fetch_duration_seconds",
		Help:    "Duration of catalog fetches, including cache reads.",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30},
	}), "pnt_catalog_fetch_duration_seconds")
	if err != nil {
		return nil, err
	}

	rejected, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pnt_catalog_rejected_entries_total",
		Help: "Catalog entries discarded for malformed TLE lines.",
	}), "pnt_catalog_rejected_entries_total")
	if err != nil {
		return nil, err
	}

	return &CatalogCollector{
		Size:            size,
		Fetches:         fetches,
		FetchDuration:   fetchDuration,
		RejectedEntries: rejected,
	}, nil
}

// ObserveFetch records one catalog fetch attempt.
func (c *CatalogCollector) ObserveFetch(outcome string, d time.Duration) {
	if c == nil {
		return
	}
	if c.Fetches != nil {
		c.Fetches.WithLabelValues(outcome).Inc()
	}
	if c.FetchDuration != nil {
		c.FetchDuration.Observe(d.Seconds())
	}
}

// SetSize updates the catalog-size gauge.
func (c *CatalogCollector) SetSize(n int) {
	if c == nil || c.Size == nil {
		return
	}
	c.Size.Set(float64(n))
}

// AddRejected counts entries dropped during TLE parsing.
func (c *CatalogCollector) AddRejected(n int) {
	if c == nil || c.RejectedEntries == nil || n <= 0 {
		return
	}
	c.RejectedEntries.Add(float64(n))
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
