package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestMiddlewareRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewPNTCollector(reg)
	if err != nil {
		t.Fatalf("NewPNTCollector: %v", err)
	}

	handler := collector.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/data", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if got := testutil.ToFloat64(collector.HTTPRequests.WithLabelValues("/data", "200")); got != 1 {
		t.Fatalf("pnt_http_requests_total = %v, want 1", got)
	}

	if count := histogramSampleCount(t, reg, "pnt_http_request_duration_seconds", map[string]string{
		"path": "/data",
	}); count != 1 {
		t.Fatalf("pnt_http_request_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestMiddlewareRecordsErrorCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewPNTCollector(reg)
	if err != nil {
		t.Fatalf("NewPNTCollector: %v", err)
	}

	handler := collector.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no data yet", http.StatusServiceUnavailable)
	}))

	req := httptest.NewRequest(http.MethodGet, "/data", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if got := testutil.ToFloat64(collector.HTTPRequests.WithLabelValues("/data", "503")); got != 1 {
		t.Fatalf("pnt_http_requests_total error label = %v, want 1", got)
	}
}

func TestCycleAndSolveObservations(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewPNTCollector(reg)
	if err != nil {
		t.Fatalf("NewPNTCollector: %v", err)
	}

	collector.ObserveCycle("tracking", 7, 12*time.Millisecond)
	collector.ObserveCycle("acquiring", 2, 8*time.Millisecond)
	collector.ObserveSolve(5)
	collector.IncSolveFailure("singular_geometry")
	collector.SetFixError(0.42)
	collector.IncPropagationFailure()
	collector.IncPublish()
	collector.IncSinkFailure()

	if got := testutil.ToFloat64(collector.Cycles.WithLabelValues("tracking")); got != 1 {
		t.Fatalf("pnt_cycles_total{status=tracking} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.Cycles.WithLabelValues("acquiring")); got != 1 {
		t.Fatalf("pnt_cycles_total{status=acquiring} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.VisibleSatellites); got != 2 {
		t.Fatalf("pnt_visible_satellites = %v, want 2 (latest cycle)", got)
	}
	if got := testutil.ToFloat64(collector.SolveFailures.WithLabelValues("singular_geometry")); got != 1 {
		t.Fatalf("pnt_solve_failures_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.FixErrorMeters); got != 0.42 {
		t.Fatalf("pnt_fix_error_meters = %v, want 0.42", got)
	}
	if got := testutil.ToFloat64(collector.PropagationFailures); got != 1 {
		t.Fatalf("pnt_propagation_failures_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.SnapshotPublishes); got != 1 {
		t.Fatalf("pnt_snapshot_publishes_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.SinkFailures); got != 1 {
		t.Fatalf("pnt_sink_publish_failures_total = %v, want 1", got)
	}

	if count := histogramSampleCount(t, reg, "pnt_cycle_duration_seconds", nil); count != 2 {
		t.Fatalf("pnt_cycle_duration_seconds sample_count = %d, want 2", count)
	}
	if count := histogramSampleCount(t, reg, "pnt_solve_iterations", nil); count != 1 {
		t.Fatalf("pnt_solve_iterations sample_count = %d, want 1", count)
	}
}

func TestMetricsHandlerExposesEngineSeries(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewPNTCollector(reg)
	if err != nil {
		t.Fatalf("NewPNTCollector: %v", err)
	}
	collector.ObserveCycle("tracking", 9, 10*time.Millisecond)
	collector.SetFixError(1.25)
	collector.HTTPRequests.WithLabelValues("/data", "200").Inc()
	collector.HTTPDurations.WithLabelValues("/data").Observe(0.01)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"pnt_cycles_total",
		"pnt_cycle_duration_seconds",
		"pnt_visible_satellites",
		"pnt_fix_error_meters",
		"pnt_http_requests_total",
		"pnt_http_request_duration_seconds",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}
}

func TestNewPNTCollectorToleratesDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewPNTCollector(reg)
	if err != nil {
		t.Fatalf("first NewPNTCollector: %v", err)
	}
	second, err := NewPNTCollector(reg)
	if err != nil {
		t.Fatalf("second NewPNTCollector: %v", err)
	}

	first.IncPublish()
	second.IncPublish()
	if got := testutil.ToFloat64(second.SnapshotPublishes); got != 2 {
		t.Fatalf("shared pnt_snapshot_publishes_total = %v, want 2", got)
	}
}

func TestCatalogCollectorRecordsFetches(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewCatalogCollector(reg)
	if err != nil {
		t.Fatalf("NewCatalogCollector: %v", err)
	}

	collector.ObserveFetch("success", 120*time.Millisecond)
	collector.ObserveFetch("cache", time.Millisecond)
	collector.SetSize(412)
	collector.AddRejected(3)
	collector.AddRejected(0)

	if got := testutil.ToFloat64(collector.Fetches.WithLabelValues("success")); got != 1 {
		t.Fatalf("pnt_catalog_fetches_total{outcome=success} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.Fetches.WithLabelValues("cache")); got != 1 {
		t.Fatalf("pnt_catalog_fetches_total{outcome=cache} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.Size); got != 412 {
		t.Fatalf("pnt_catalog_size = %v, want 412", got)
	}
	if got := testutil.ToFloat64(collector.RejectedEntries); got != 3 {
		t.Fatalf("pnt_catalog_rejected_entries_total = %v, want 3", got)
	}
	if count := histogramSampleCount(t, reg, "pnt_catalog_fetch_duration_seconds", nil); count != 2 {
		t.Fatalf("pnt_catalog_fetch_duration_seconds sample_count = %d, want 2", count)
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
