package nav

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/mission-pnt/core"
	"github.com/signalsfoundry/mission-pnt/internal/catalog"
	"github.com/signalsfoundry/mission-pnt/internal/logging"
	"github.com/signalsfoundry/mission-pnt/internal/orbit"
	"github.com/signalsfoundry/mission-pnt/internal/spectrum"
	"github.com/signalsfoundry/mission-pnt/internal/state"
	"github.com/signalsfoundry/mission-pnt/model"
	"github.com/signalsfoundry/mission-pnt/timectrl"
)

const speedOfLightKmPerSec = 299792.458

// statusNoCatalog is published while the catalog store is empty. Tracking
// and acquisition statuses carry the visible satellite count and are
// formatted per cycle.
const statusNoCatalog = "NO CATALOG"

// sourceInit is the provenance shown before the first catalog load.
const sourceInit = "INIT"

// MetricsRecorder receives engine instrumentation. *observability.PNTCollector
// satisfies it.
type MetricsRecorder interface {
	ObserveCycle(status string, visible int, d time.Duration)
	ObserveSolve(iterations int)
	IncSolveFailure(reason string)
	SetFixError(meters float64)
	IncPropagationFailure()
}

type noopMetrics struct{}

func (noopMetrics) ObserveCycle(string, int, time.Duration) {}
func (noopMetrics) ObserveSolve(int)                        {}
func (noopMetrics) IncSolveFailure(string)                  {}
func (noopMetrics) SetFixError(float64)                     {}
func (noopMetrics) IncPropagationFailure()                  {}

// PropagatorFactory builds a propagator from one catalog entry.
type PropagatorFactory func(model.TLE) (orbit.Propagator, error)

// Deps are the engine's collaborators. Catalog and State are required; the
// rest default to working implementations.
type Deps struct {
	Catalog  *catalog.Store
	State    *state.TrackingState
	Factory  PropagatorFactory
	Synth    *core.Synthesizer
	Spectrum spectrum.Source
	Log      logging.Logger
	Metrics  MetricsRecorder
	Tracer   trace.Tracer
}

// Engine turns catalog entries into position fixes. It is driven by a single
// clock listener; RunCycle is not safe for concurrent callers.
type Engine struct {
	cfg Config

	catalog       *catalog.Store
	trackingState *state.TrackingState
	factory       PropagatorFactory
	synth         *core.Synthesizer
	spectrum      spectrum.Source
	log           logging.Logger
	metrics       MetricsRecorder
	tracer        trace.Tracer

	truthECEF core.Vec3
	solver    *core.Solver
	smoother  *core.Smoother

	// catalogDirty is set by the store subscription and consumed at the top
	// of each cycle; props and source are owned by the cycle goroutine.
	catalogDirty atomic.Bool
	unsubscribe  func()
	props        []orbit.Propagator
	source       string

	prevEstimate *core.StateEstimate
	prevFix      model.Fix
	haveFix      bool
	lastStatus   string
}

// New builds an engine. It subscribes to the catalog store; call Close to
// release the subscription.
func New(cfg Config, deps Deps) (*Engine, error) {
	cfg = cfg.ApplyDefaults()
	if deps.Catalog == nil {
		return nil, errors.New("nav: catalog store is required")
	}
	if deps.State == nil {
		return nil, errors.New("nav: tracking state is required")
	}
	if deps.Factory == nil {
		deps.Factory = func(t model.TLE) (orbit.Propagator, error) {
			return orbit.NewSGP4Satellite(t)
		}
	}
	if deps.Synth == nil {
		deps.Synth = core.NewSynthesizer(cfg.ClockBiasKm, cfg.NoiseBoundKm, nil)
	}
	if deps.Spectrum == nil {
		deps.Spectrum = spectrum.NewSynthetic(spectrum.DefaultBins, 0)
	}
	if deps.Log == nil {
		deps.Log = logging.Noop()
	}
	if deps.Metrics == nil {
		deps.Metrics = noopMetrics{}
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer("mission-pnt/nav")
	}

	e := &Engine{
		cfg:           cfg,
		catalog:       deps.Catalog,
		trackingState: deps.State,
		factory:       deps.Factory,
		synth:         deps.Synth,
		spectrum:      deps.Spectrum,
		log:           deps.Log,
		metrics:       deps.Metrics,
		tracer:        deps.Tracer,
		truthECEF:     core.GeodeticToECEF(cfg.Truth),
		solver:        core.NewSolver(cfg.Solver),
		smoother:      core.NewSmoother(cfg.SmoothingWeight),
		source:        sourceInit,
	}
	e.catalogDirty.Store(true)
	e.unsubscribe = deps.Catalog.Subscribe(func(int) {
		e.catalogDirty.Store(true)
	})
	return e, nil
}

// Close releases the engine's catalog subscription.
func (e *Engine) Close() {
	if e.unsubscribe != nil {
		e.unsubscribe()
		e.unsubscribe = nil
	}
}

// Run attaches the engine to the clock and blocks until the clock stops:
// on ctx cancellation, or once the simulated duration elapses (zero means
// run until cancelled).
func (e *Engine) Run(ctx context.Context, clock timectrl.Clock, duration time.Duration) {
	e.trackingState.AppendLog("NAV: Engine started")
	e.log.Info(ctx, "navigation engine started",
		logging.Duration("tick", e.cfg.TickInterval),
		logging.String("spectrum", e.spectrum.Variant()),
		logging.Float64("mask_deg", e.cfg.Mask.MinElevationDeg))
	clock.AddListener(func(ts time.Time) {
		e.RunCycle(ctx, ts)
	})
	<-clock.Start(ctx, duration)
	e.log.Info(ctx, "navigation engine stopped")
}

// visibleSat is one satellite that cleared the elevation mask this cycle.
type visibleSat struct {
	prop  orbit.Propagator
	pos   core.Vec3
	azDeg float64
	elDeg float64
	meas  core.Measurement
}

// RunCycle executes one navigation cycle at simulated time now.
func (e *Engine) RunCycle(ctx context.Context, now time.Time) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "nav.cycle")
	defer span.End()

	e.refreshCatalog(ctx)
	if len(e.props) == 0 {
		e.publish(statusNoCatalog, "no_catalog", nil, e.degradedFix(), now, start)
		return
	}

	visible := e.observe(ctx, now)
	span.SetAttributes(attribute.Int("visible_satellites", len(visible)))

	meas := make([]core.Measurement, len(visible))
	for i, vs := range visible {
		meas[i] = vs.meas
	}
	result, err := e.solveSeeded(meas)
	if err != nil {
		reason := "singular_geometry"
		if errors.Is(err, core.ErrInsufficientMeasurements) {
			reason = "insufficient_measurements"
		}
		e.metrics.IncSolveFailure(reason)
		e.log.Warn(ctx, "position solve failed, keeping previous fix",
			logging.String("reason", reason),
			logging.Int("visible", len(visible)))
		status := fmt.Sprintf("ACQUIRING (%d SATS)", len(visible))
		e.publish(status, "acquiring", visible, e.degradedFix(), now, start)
		return
	}

	e.prevEstimate = &result.Estimate
	e.metrics.ObserveSolve(result.Iterations)
	if !result.Converged {
		e.log.Warn(ctx, "solve hit iteration cap before converging",
			logging.Int("iterations", result.Iterations))
	}

	geo := core.PostProcess(result.Estimate)
	smoothed := e.smoother.Apply(geo)
	errM := core.PlanarErrorM(smoothed, e.cfg.Truth)
	fix := model.Fix{
		LatDeg: smoothed.LatDeg,
		LonDeg: smoothed.LonDeg,
		AltM:   smoothed.AltM,
		ErrorM: math.Round(errM*100) / 100,
		Mode:   model.FixMode3DLock,
	}
	e.prevFix, e.haveFix = fix, true
	e.metrics.SetFixError(errM)
	span.SetAttributes(attribute.Float64("fix_error_m", errM))

	status := fmt.Sprintf("TRACKING (%d SATS)", len(visible))
	e.publish(status, "tracking", visible, fix, now, start)
}

// refreshCatalog rebuilds the propagator set when the store has changed.
func (e *Engine) refreshCatalog(ctx context.Context) {
	if !e.catalogDirty.Swap(false) {
		return
	}
	entries, source := e.catalog.Snapshot()
	if len(entries) > e.cfg.MaxSatellites {
		entries = entries[:e.cfg.MaxSatellites]
	}
	props := make([]orbit.Propagator, 0, len(entries))
	rejected := 0
	for _, tle := range entries {
		p, err := e.factory(tle)
		if err != nil {
			rejected++
			continue
		}
		props = append(props, p)
	}
	e.props = props
	if source != "" {
		e.source = source
	}
	if rejected > 0 {
		e.log.Warn(ctx, "catalog entries rejected during propagator construction",
			logging.Int("rejected", rejected))
	}
	if len(props) > 0 {
		e.log.Info(ctx, "propagator set rebuilt",
			logging.Int("satellites", len(props)),
			logging.String("source", e.source))
		e.trackingState.AppendLog(fmt.Sprintf("TLE: Catalog %d entries (%s)", len(props), e.source))
	}
}

// observe propagates every cached satellite and returns those above the mask,
// each with a synthesized pseudorange.
func (e *Engine) observe(ctx context.Context, now time.Time) []visibleSat {
	var visible []visibleSat
	for _, p := range e.props {
		pos, err := p.PositionECEF(now)
		if err != nil {
			e.metrics.IncPropagationFailure()
			e.log.Debug(ctx, "propagation failed, skipping satellite",
				logging.String("satellite", p.Name()),
				logging.String("error", err.Error()))
			continue
		}
		az, el := core.AzimuthElevation(e.cfg.Truth, pos)
		if !e.cfg.Mask.Visible(el) {
			continue
		}
		visible = append(visible, visibleSat{
			prop:  p,
			pos:   pos,
			azDeg: az,
			elDeg: el,
			meas:  e.synth.Synthesize(pos, e.truthECEF),
		})
	}
	return visible
}

// solveSeeded runs the solver, warm-starting from the previous estimate when
// one exists.
func (e *Engine) solveSeeded(meas []core.Measurement) (core.SolveResult, error) {
	if e.prevEstimate != nil {
		return e.solver.SolveFrom(*e.prevEstimate, meas)
	}
	return e.solver.Solve(meas)
}

// degradedFix is what gets published when this cycle produced no solution:
// the previous fix if one exists, otherwise an explicit no-fix marker.
func (e *Engine) degradedFix() model.Fix {
	if e.haveFix {
		return e.prevFix
	}
	return model.Fix{Mode: model.FixModeNone}
}

// publish assembles and stores the cycle snapshot and records cycle metrics.
func (e *Engine) publish(status, metricLabel string, visible []visibleSat, fix model.Fix, now, start time.Time) {
	views, tracks := e.buildViews(now, visible)
	snap := model.Snapshot{
		Status:     status,
		Source:     e.source,
		Fix:        fix,
		Satellites: views,
		Tracks:     tracks,
		Spectrum:   e.spectrum.Sample(),
	}
	if status != e.lastStatus {
		e.trackingState.AppendLog("NAV: " + status)
		e.lastStatus = status
	}
	e.trackingState.Publish(snap)
	e.metrics.ObserveCycle(metricLabel, len(visible), time.Since(start))
}

// buildViews selects the highest-elevation satellites for display and samples
// their ground tracks.
func (e *Engine) buildViews(now time.Time, visible []visibleSat) ([]model.SatelliteView, []model.GroundTrack) {
	sorted := make([]visibleSat, len(visible))
	copy(sorted, visible)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].elDeg > sorted[j].elDeg
	})
	n := e.cfg.DisplayCount
	if len(sorted) < n {
		n = len(sorted)
	}
	views := make([]model.SatelliteView, 0, n)
	tracks := make([]model.GroundTrack, 0, n)
	for _, vs := range sorted[:n] {
		sub := core.ECEFToGeodetic(vs.pos)
		views = append(views, model.SatelliteView{
			Name:           vs.prop.Name(),
			ElevationDeg:   round1(vs.elDeg),
			AzimuthDeg:     round1(vs.azDeg),
			TimeOfFlightMs: round3(vs.meas.PseudorangeKm / speedOfLightKmPerSec * 1000.0),
			SubLatDeg:      sub.LatDeg,
			SubLonDeg:      sub.LonDeg,
		})
		tracks = append(tracks, orbit.Track(vs.prop, now, e.cfg.TrackSpan, e.cfg.TrackStep))
	}
	return views, tracks
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
