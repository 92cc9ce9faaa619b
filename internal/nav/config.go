// Package nav runs the navigation cycle: propagate the catalog, filter by
// visibility, synthesize pseudoranges, solve, post-process, publish.
package nav

import (
	"time"

	"github.com/signalsfoundry/mission-pnt/core"
)

// defaultTruth is the reference ground-truth observer used when none is
// configured: a rooftop antenna site in Chennai.
var defaultTruth = core.GeodeticCoordinate{
	LatDeg: 12.9706089,
	LonDeg: 80.0431389,
	AltM:   45.0,
}

// Config governs one engine instance.
type Config struct {
	// TickInterval is the cycle cadence. Default: 1 second.
	TickInterval time.Duration

	// MaxSatellites caps how many catalog entries are propagated per cycle.
	// Default: 400.
	MaxSatellites int

	// DisplayCount is how many satellites (highest elevation first) appear
	// in the published view list and ground tracks. Default: 6.
	DisplayCount int

	// TrackSpan and TrackStep size the ground-track sampling window around
	// the cycle time. Defaults: 15 minutes, 3 minutes.
	TrackSpan time.Duration
	TrackStep time.Duration

	// ClockBiasKm is the synthetic receiver clock offset added to every
	// pseudorange, expressed as range. Zero or negative selects the
	// default; a biasless synthesizer must be injected directly.
	// Default: 120.
	ClockBiasKm float64

	// NoiseBoundKm bounds the uniform pseudorange noise. Zero selects the
	// default; a noiseless synthesizer must be injected directly.
	// Default: 0.02.
	NoiseBoundKm float64

	// Truth is the ground-truth observer position that measurements are
	// synthesized against. The zero value selects defaultTruth.
	Truth core.GeodeticCoordinate

	// Mask is the elevation visibility mask. The zero value selects
	// core.DefaultElevationMask (10 degrees).
	Mask core.ElevationMask

	// Solver bounds the Gauss-Newton iteration.
	Solver core.SolverConfig

	// SmoothingWeight blends each fix against the previous one; 1 disables
	// smoothing. Zero selects the default of 1 (off).
	SmoothingWeight float64
}

// ApplyDefaults fills in zero or invalid fields.
func (c Config) ApplyDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.MaxSatellites <= 0 {
		c.MaxSatellites = 400
	}
	if c.DisplayCount <= 0 {
		c.DisplayCount = 6
	}
	if c.TrackSpan <= 0 {
		c.TrackSpan = 15 * time.Minute
	}
	if c.TrackStep <= 0 {
		c.TrackStep = 3 * time.Minute
	}
	if c.ClockBiasKm <= 0 {
		c.ClockBiasKm = 120.0
	}
	if c.NoiseBoundKm == 0 {
		c.NoiseBoundKm = 0.02
	} else if c.NoiseBoundKm < 0 {
		c.NoiseBoundKm = -c.NoiseBoundKm
	}
	if c.Truth == (core.GeodeticCoordinate{}) {
		c.Truth = defaultTruth
	}
	if c.Mask == (core.ElevationMask{}) {
		c.Mask = core.DefaultElevationMask()
	}
	c.Solver = c.Solver.ApplyDefaults()
	if c.SmoothingWeight == 0 {
		c.SmoothingWeight = 1.0
	}
	return c
}
