package observability

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PNTCollector bundles Prometheus metrics for the navigation engine and the
// HTTP read surface.
type PNTCollector struct {
	gatherer prometheus.Gatherer

	Cycles          *prometheus.CounterVec
	CycleDuration   prometheus.Histogram
	SolveIterations prometheus.Histogram
	SolveFailures   *prometheus.CounterVec

	VisibleSatellites   prometheus.Gauge
	FixErrorMeters      prometheus.Gauge
	PropagationFailures prometheus.Counter
	SnapshotPublishes   prometheus.Counter
	SinkFailures        prometheus.Counter

	HTTPRequests  *prometheus.CounterVec
	HTTPDurations *prometheus.HistogramVec
}

// NewPNTCollector registers engine Prometheus metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewPNTCollector(reg prometheus.Registerer) (*PNTCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	cycles := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pnt_cycles_total",
		Help: "Total navigation cycles executed, labeled by outcome status.",
	}, []string{"status"})
	cycles, err := registerCounterVec(reg, cycles, "pnt_cycles_total")
	if err != nil {
		return nil, err
	}

	cycleDuration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pnt_cycle_duration_seconds",
		Help:    "Wall-clock duration of one full navigation cycle.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}), "pnt_cycle_duration_seconds")
	if err != nil {
		return nil, err
	}

	solveIterations, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pnt_solve_iterations",
		Help:    "Gauss-Newton iterations used per successful solve.",
		Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10, 15, 20},
	}), "pnt_solve_iterations")
	if err != nil {
		return nil, err
	}

	solveFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pnt_solve_failures_total",
		Help: "Solve failures, labeled by reason.",
	}, []string{"reason"})
	solveFailures, err = registerCounterVec(reg, solveFailures, "pnt_solve_failures_total")
	if err != nil {
		return nil, err
	}

	visible, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pnt_visible_satellites",
		Help: "Satellites above the elevation mask in the latest cycle.",
	}), "pnt_visible_satellites")
	if err != nil {
		return nil, err
	}

	fixError, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pnt_fix_error_meters",
		Help: "Planar error of the latest fix against the configured truth position.",
	}), "pnt_fix_error_meters")
	if err != nil {
		return nil, err
	}

	propagationFailures, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pnt_propagation_failures_total",
		Help: "Satellites skipped because orbit propagation failed.",
	}), "pnt_propagation_failures_total")
	if err != nil {
		return nil, err
	}

	publishes, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pnt_snapshot_publishes_total",
		Help: "Snapshots published to the state container.",
	}), "pnt_snapshot_publishes_total")
	if err != nil {
		return nil, err
	}

	sinkFailures, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pnt_sink_publish_failures_total",
		Help: "Failed deliveries to external publication sinks.",
	}), "pnt_sink_publish_failures_total")
	if err != nil {
		return nil, err
	}

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pnt_http_requests_total",
		Help: "HTTP requests handled by the read surface, labeled by path and status code.",
	}, []string{"path", "code"})
	httpRequests, err = registerCounterVec(reg, httpRequests, "pnt_http_requests_total")
	if err != nil {
		return nil, err
	}

	httpDurations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pnt_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
	}, []string{"path"})
	httpDurations, err = registerHistogramVec(reg, httpDurations, "pnt_http_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &PNTCollector{
		gatherer:            gatherer,
		Cycles:              cycles,
		CycleDuration:       cycleDuration,
		SolveIterations:     solveIterations,
		SolveFailures:       solveFailures,
		VisibleSatellites:   visible,
		FixErrorMeters:      fixError,
		PropagationFailures: propagationFailures,
		SnapshotPublishes:   publishes,
		SinkFailures:        sinkFailures,
		HTTPRequests:        httpRequests,
		HTTPDurations:       httpDurations,
	}, nil
}

// ObserveCycle records one completed cycle.
func (c *PNTCollector) ObserveCycle(status string, visible int, d time.Duration) {
	if c == nil {
		return
	}
	if c.Cycles != nil {
		c.Cycles.WithLabelValues(status).Inc()
	}
	if c.CycleDuration != nil {
		c.CycleDuration.Observe(d.Seconds())
	}
	if c.VisibleSatellites != nil {
		c.VisibleSatellites.Set(float64(visible))
	}
}

// ObserveSolve records the iteration count of a successful solve.
func (c *PNTCollector) ObserveSolve(iterations int) {
	if c == nil || c.SolveIterations == nil {
		return
	}
	c.SolveIterations.Observe(float64(iterations))
}

// IncSolveFailure counts a failed solve by reason.
func (c *PNTCollector) IncSolveFailure(reason string) {
	if c == nil || c.SolveFailures == nil {
		return
	}
	c.SolveFailures.WithLabelValues(reason).Inc()
}

// SetFixError updates the latest fix-error gauge.
func (c *PNTCollector) SetFixError(meters float64) {
	if c == nil || c.FixErrorMeters == nil {
		return
	}
	c.FixErrorMeters.Set(meters)
}

// IncPropagationFailure counts a satellite skipped for a propagation error.
func (c *PNTCollector) IncPropagationFailure() {
	if c == nil || c.PropagationFailures == nil {
		return
	}
	c.PropagationFailures.Inc()
}

// IncPublish satisfies the state container's PublicationRecorder interface.
func (c *PNTCollector) IncPublish() {
	if c == nil || c.SnapshotPublishes == nil {
		return
	}
	c.SnapshotPublishes.Inc()
}

// IncSinkFailure counts a failed delivery to an external sink.
func (c *PNTCollector) IncSinkFailure() {
	if c == nil || c.SinkFailures == nil {
		return
	}
	c.SinkFailures.Inc()
}

// Middleware instruments an HTTP handler with request counts and latencies.
func (c *PNTCollector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		if c == nil {
			return
		}
		path := r.URL.Path
		if c.HTTPRequests != nil {
			c.HTTPRequests.WithLabelValues(path, fmt.Sprintf("%d", sw.code)).Inc()
		}
		if c.HTTPDurations != nil {
			c.HTTPDurations.WithLabelValues(path).Observe(time.Since(start).Seconds())
		}
	})
}

// Handler exposes a ready-to-use /metrics handler.
func (c *PNTCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack passes connection upgrades through to the underlying writer so
// websocket endpoints can sit behind the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return h.Hijack()
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
