package core

import "math"

// metersPerDegree is the small-angle scale used by PlanarErrorM: one degree
// of latitude spans roughly 111 km.
const metersPerDegree = 111000.0

// PostProcess converts a raw solver estimate to geodetic coordinates. The
// raw output is the canonical result; smoothing is a separate optional
// stage (Smoother), never fused into the solve path.
func PostProcess(est StateEstimate) GeodeticCoordinate {
	return ECEFToGeodetic(est.Pos)
}

// Smoother damps fix-to-fix jitter with an exponential blend over
// successive fixes: out = Weight·new + (1−Weight)·previous. Weight 1
// disables smoothing; the first sample always passes through unchanged.
// The blend is per-component and not wrap-aware, so it misbehaves across
// the antimeridian.
type Smoother struct {
	Weight float64

	prev   GeodeticCoordinate
	primed bool
}

// NewSmoother builds a Smoother. Weights outside (0, 1] are treated as 1
// (smoothing off).
func NewSmoother(weight float64) *Smoother {
	if weight <= 0 || weight > 1 {
		weight = 1
	}
	return &Smoother{Weight: weight}
}

// Apply blends g against the previous output and returns the result.
func (s *Smoother) Apply(g GeodeticCoordinate) GeodeticCoordinate {
	if !s.primed {
		s.prev = g
		s.primed = true
		return g
	}
	w := s.Weight
	out := GeodeticCoordinate{
		LatDeg: w*g.LatDeg + (1-w)*s.prev.LatDeg,
		LonDeg: w*g.LonDeg + (1-w)*s.prev.LonDeg,
		AltM:   w*g.AltM + (1-w)*s.prev.AltM,
	}
	s.prev = out
	return out
}

// Reset forgets the previous output so the next Apply passes through.
func (s *Smoother) Reset() {
	s.primed = false
}

// PlanarErrorM approximates the horizontal separation of two geodetic
// coordinates in metres using a flat-earth small-angle model, 111 km per
// degree on both axes. It is a display diagnostic: adequate for offsets of
// a few kilometres at low to mid latitudes, increasingly wrong towards the
// poles where a longitude degree shrinks.
func PlanarErrorM(a, b GeodeticCoordinate) float64 {
	dLat := (a.LatDeg - b.LatDeg) * metersPerDegree
	dLon := (a.LonDeg - b.LonDeg) * metersPerDegree
	return math.Hypot(dLat, dLon)
}
