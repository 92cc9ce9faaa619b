package core

import (
	"errors"
	"math"
	"testing"
)

// exactMeasurements builds noiseless pseudoranges from known geometry.
func exactMeasurements(truth Vec3, biasKm float64, sats ...Vec3) []Measurement {
	ms := make([]Measurement, 0, len(sats))
	for _, s := range sats {
		ms = append(ms, Measurement{
			SatPos:        s,
			PseudorangeKm: s.DistanceTo(truth) + biasKm,
		})
	}
	return ms
}

// spreadSatellites places satellites at geodetic offsets around an observer
// and verifies each clears the given elevation.
func spreadSatellites(t *testing.T, observer GeodeticCoordinate, minElevationDeg float64) []Vec3 {
	t.Helper()

	offsets := []struct {
		dLat, dLon, altM float64
	}{
		{5, 0, 600_000},
		{-4, 5, 700_000},
		{2, -6, 900_000},
		{0, 4, 800_000},
	}

	sats := make([]Vec3, 0, len(offsets))
	for _, o := range offsets {
		pos := GeodeticToECEF(GeodeticCoordinate{
			LatDeg: observer.LatDeg + o.dLat,
			LonDeg: observer.LonDeg + o.dLon,
			AltM:   o.altM,
		})
		if _, el := AzimuthElevation(observer, pos); el <= minElevationDeg {
			t.Fatalf("test geometry broken: satellite at elevation %v, need > %v", el, minElevationDeg)
		}
		sats = append(sats, pos)
	}
	return sats
}

func TestSolve_TooFewMeasurements(t *testing.T) {
	solver := NewSolver(SolverConfig{})

	if _, err := solver.Solve(nil); !errors.Is(err, ErrInsufficientMeasurements) {
		t.Errorf("Solve(nil) err = %v, want ErrInsufficientMeasurements", err)
	}

	truth := Vec3{X: 6378, Y: 0, Z: 0}
	three := exactMeasurements(truth, 120,
		Vec3{X: 7178, Y: 0, Z: 0},
		Vec3{X: 7000, Y: 900, Z: 0},
		Vec3{X: 7000, Y: 0, Z: 900},
	)
	if _, err := solver.Solve(three); !errors.Is(err, ErrInsufficientMeasurements) {
		t.Errorf("Solve(3 measurements) err = %v, want ErrInsufficientMeasurements", err)
	}
}

func TestSolve_RecoversTruthAndBias(t *testing.T) {
	observer := GeodeticCoordinate{LatDeg: 12.9706089, LonDeg: 80.0431389, AltM: 45.0}
	truth := GeodeticToECEF(observer)
	const bias = 120.0

	// Six satellites with generous angular spread.
	sats := []Vec3{
		GeodeticToECEF(GeodeticCoordinate{LatDeg: 33, LonDeg: 80, AltM: 800_000}),
		GeodeticToECEF(GeodeticCoordinate{LatDeg: -7, LonDeg: 80, AltM: 750_000}),
		GeodeticToECEF(GeodeticCoordinate{LatDeg: 13, LonDeg: 100, AltM: 820_000}),
		GeodeticToECEF(GeodeticCoordinate{LatDeg: 13, LonDeg: 60, AltM: 780_000}),
		GeodeticToECEF(GeodeticCoordinate{LatDeg: 25, LonDeg: 92, AltM: 900_000}),
		GeodeticToECEF(GeodeticCoordinate{LatDeg: 2, LonDeg: 70, AltM: 600_000}),
	}

	solver := NewSolver(SolverConfig{MaxIterations: 25, ConvergenceThresholdKm: 1e-9})
	result, err := solver.Solve(exactMeasurements(truth, bias, sats...))
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if !result.Converged {
		t.Fatalf("solver did not converge in %d iterations", result.Iterations)
	}

	if d := result.Estimate.Pos.DistanceTo(truth); d > 1e-6 {
		t.Errorf("position error = %v km, want <= 1e-6", d)
	}
	if d := math.Abs(result.Estimate.ClockBiasKm - bias); d > 1e-6 {
		t.Errorf("clock bias error = %v km, want <= 1e-6", d)
	}
}

func TestSolve_CollinearGeometryFails(t *testing.T) {
	truth := Vec3{X: 6378, Y: 0, Z: 0}
	// All satellites on the x-axis: the linearized system has no
	// information in y or z.
	sats := []Vec3{
		{X: 8000}, {X: 9000}, {X: 10000}, {X: 11000},
	}

	solver := NewSolver(SolverConfig{})
	_, err := solver.Solve(exactMeasurements(truth, 120, sats...))
	if !errors.Is(err, ErrSingularGeometry) {
		t.Errorf("collinear solve err = %v, want ErrSingularGeometry", err)
	}
}

func TestSolve_NearCollinearTerminates(t *testing.T) {
	truth := Vec3{X: 6378, Y: 0, Z: 0}
	// Slight perturbations off the x-axis: poor geometry, but the solver
	// must still terminate with either a declared failure or a finite
	// estimate.
	sats := []Vec3{
		{X: 8000, Y: 10, Z: 0},
		{X: 9000, Y: -5, Z: 3},
		{X: 10000, Y: 0, Z: -7},
		{X: 11000, Y: 4, Z: 4},
	}

	cfg := SolverConfig{MaxIterations: 10}
	solver := NewSolver(cfg)
	result, err := solver.Solve(exactMeasurements(truth, 120, sats...))
	if err != nil {
		if !errors.Is(err, ErrSingularGeometry) {
			t.Fatalf("unexpected error kind: %v", err)
		}
		return
	}

	if result.Iterations > cfg.MaxIterations {
		t.Errorf("iterations = %d, exceeds max %d", result.Iterations, cfg.MaxIterations)
	}
	for _, v := range []float64{result.Estimate.Pos.X, result.Estimate.Pos.Y, result.Estimate.Pos.Z, result.Estimate.ClockBiasKm} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("estimate is not finite: %+v", result.Estimate)
		}
	}
}

func TestSolve_ReportsUnconverged(t *testing.T) {
	observer := GeodeticCoordinate{LatDeg: 12.9706089, LonDeg: 80.0431389, AltM: 45.0}
	truth := GeodeticToECEF(observer)
	sats := spreadSatellites(t, observer, 10)

	// One iteration from the zero start cannot reach a metre-level step.
	solver := NewSolver(SolverConfig{MaxIterations: 1, ConvergenceThresholdKm: 0.001})
	result, err := solver.Solve(exactMeasurements(truth, 120, sats...))
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if result.Converged {
		t.Errorf("one iteration reported converged")
	}
	if result.Iterations != 1 {
		t.Errorf("iterations = %d, want 1", result.Iterations)
	}
}

func TestSolveFrom_SeedConvergesFaster(t *testing.T) {
	observer := GeodeticCoordinate{LatDeg: 12.9706089, LonDeg: 80.0431389, AltM: 45.0}
	truth := GeodeticToECEF(observer)
	sats := spreadSatellites(t, observer, 10)
	ms := exactMeasurements(truth, 120, sats...)

	solver := NewSolver(SolverConfig{MaxIterations: 25, ConvergenceThresholdKm: 1e-6})

	cold, err := solver.Solve(ms)
	if err != nil {
		t.Fatalf("cold solve: %v", err)
	}
	seeded, err := solver.SolveFrom(StateEstimate{Pos: truth, ClockBiasKm: 120}, ms)
	if err != nil {
		t.Fatalf("seeded solve: %v", err)
	}

	if !seeded.Converged {
		t.Fatalf("seeded solve did not converge")
	}
	if seeded.Iterations > cold.Iterations {
		t.Errorf("seeded solve took %d iterations, cold start %d", seeded.Iterations, cold.Iterations)
	}
}

func TestSolve_CoincidentSatelliteGuard(t *testing.T) {
	observer := GeodeticCoordinate{LatDeg: 12.9706089, LonDeg: 80.0431389, AltM: 45.0}
	truth := GeodeticToECEF(observer)
	sats := spreadSatellites(t, observer, 10)
	ms := exactMeasurements(truth, 120, sats...)

	// A satellite at the origin coincides with the zero-start estimate;
	// the epsilon guard must keep the line-of-sight row finite.
	ms = append(ms, Measurement{SatPos: Vec3{}, PseudorangeKm: truth.Norm() + 120})

	solver := NewSolver(SolverConfig{})
	result, err := solver.Solve(ms)
	if err != nil {
		if !errors.Is(err, ErrSingularGeometry) {
			t.Fatalf("unexpected error kind: %v", err)
		}
		return
	}
	for _, v := range []float64{result.Estimate.Pos.X, result.Estimate.Pos.Y, result.Estimate.Pos.Z, result.Estimate.ClockBiasKm} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("estimate is not finite: %+v", result.Estimate)
		}
	}
}

func TestSolveAndPostProcess_EndToEnd(t *testing.T) {
	observer := GeodeticCoordinate{LatDeg: 12.9706089, LonDeg: 80.0431389, AltM: 45.0}
	truth := GeodeticToECEF(observer)
	const bias = 120.0

	sats := spreadSatellites(t, observer, 10)
	for _, s := range sats {
		if d := s.DistanceTo(truth); d < 500 {
			t.Fatalf("test geometry broken: satellite only %v km away", d)
		}
	}

	solver := NewSolver(SolverConfig{MaxIterations: 25, ConvergenceThresholdKm: 1e-9})
	result, err := solver.Solve(exactMeasurements(truth, bias, sats...))
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if !result.Converged {
		t.Fatalf("solver did not converge in %d iterations", result.Iterations)
	}

	fix := PostProcess(result.Estimate)
	if errM := PlanarErrorM(fix, observer); errM > 0.01 {
		t.Errorf("planar error = %v m, want <= 0.01", errM)
	}
}
