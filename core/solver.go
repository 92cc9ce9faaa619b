package core

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Solver failure modes. Both degrade to "no fix this cycle" upstream;
// neither is fatal.
var (
	// ErrInsufficientMeasurements means fewer than four measurements were
	// supplied for the four unknowns.
	ErrInsufficientMeasurements = errors.New("insufficient measurements")
	// ErrSingularGeometry means the linearized system could not be solved,
	// typically because the satellites are coplanar or collinear with the
	// estimate (poor geometric dilution of precision).
	ErrSingularGeometry = errors.New("singular measurement geometry")
)

// minMeasurements is the number of unknowns: three position components
// plus the shared clock bias.
const minMeasurements = 4

// losEpsilonKm guards the line-of-sight division when a satellite position
// coincides with the current estimate.
const losEpsilonKm = 1e-6

// StateEstimate is the solved 4-vector: ECEF position plus the receiver
// clock bias expressed as range, all in kilometres.
type StateEstimate struct {
	Pos         Vec3
	ClockBiasKm float64
}

// SolveResult carries the final estimate together with explicit convergence
// information. Callers must not assume convergence; an unconverged estimate
// is still returned and distinguishable.
type SolveResult struct {
	Estimate   StateEstimate
	Converged  bool
	Iterations int
}

// SolverConfig bounds the Gauss-Newton iteration.
type SolverConfig struct {
	// MaxIterations caps the outer loop, guaranteeing termination.
	// Default: 10
	MaxIterations int

	// ConvergenceThresholdKm stops the iteration early once the position
	// update drops below it. Default: 0.001 (one metre)
	ConvergenceThresholdKm float64
}

// ApplyDefaults fills in zero or invalid fields.
func (c SolverConfig) ApplyDefaults() SolverConfig {
	if c.MaxIterations <= 0 {
		c.MaxIterations = 10
	}
	if c.ConvergenceThresholdKm <= 0 {
		c.ConvergenceThresholdKm = 0.001
	}
	return c
}

// Solver estimates receiver position and clock bias from pseudorange
// measurements by iterative linearized least squares.
type Solver struct {
	cfg SolverConfig
}

// NewSolver returns a Solver with the given configuration, defaults applied.
func NewSolver(cfg SolverConfig) *Solver {
	return &Solver{cfg: cfg.ApplyDefaults()}
}

// Solve runs Gauss-Newton from the zero state: position at Earth's center,
// zero clock bias. The problem is well enough behaved near the surface that
// this converges for sane geometry; callers with a prior estimate should
// prefer SolveFrom for faster, more robust convergence.
func (s *Solver) Solve(measurements []Measurement) (SolveResult, error) {
	return s.SolveFrom(StateEstimate{}, measurements)
}

// SolveFrom runs Gauss-Newton seeded at initial.
//
// Each iteration linearizes the pseudorange equations around the current
// estimate X: for measurement i with satellite position s_i and distance
// d_i = ‖X_pos − s_i‖, the design row is [los_i 1] with
// los_i = (X_pos − s_i)/d_i, and the residual is
// r_i = pr_i − (d_i + X_bias). The update ΔX solves H·ΔX ≈ r in the
// least-squares sense; iteration stops early once ‖ΔX_pos‖ falls below the
// convergence threshold.
func (s *Solver) SolveFrom(initial StateEstimate, measurements []Measurement) (SolveResult, error) {
	n := len(measurements)
	if n < minMeasurements {
		return SolveResult{}, fmt.Errorf("%w: have %d, need %d", ErrInsufficientMeasurements, n, minMeasurements)
	}

	est := initial
	h := mat.NewDense(n, 4, nil)
	r := mat.NewVecDense(n, nil)

	result := SolveResult{}
	for iter := 0; iter < s.cfg.MaxIterations; iter++ {
		for i, m := range measurements {
			d := est.Pos.DistanceTo(m.SatPos)
			div := d
			if div < losEpsilonKm {
				div = losEpsilonKm
			}
			los := est.Pos.Sub(m.SatPos).Scale(1.0 / div)

			h.Set(i, 0, los.X)
			h.Set(i, 1, los.Y)
			h.Set(i, 2, los.Z)
			h.Set(i, 3, 1.0)
			r.SetVec(i, m.PseudorangeKm-(d+est.ClockBiasKm))
		}

		var delta mat.VecDense
		if err := delta.SolveVec(h, r); err != nil {
			return SolveResult{}, fmt.Errorf("%w: %v", ErrSingularGeometry, err)
		}

		step := Vec3{X: delta.AtVec(0), Y: delta.AtVec(1), Z: delta.AtVec(2)}
		est.Pos = est.Pos.Add(step)
		est.ClockBiasKm += delta.AtVec(3)
		result.Iterations = iter + 1

		if step.Norm() < s.cfg.ConvergenceThresholdKm {
			result.Converged = true
			break
		}
	}

	result.Estimate = est
	return result, nil
}
