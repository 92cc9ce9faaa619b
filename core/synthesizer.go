package core

import (
	"time"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// Measurement pairs a satellite's ECEF position with a pseudorange to it.
// Measurements are built fresh each cycle and consumed by the solver for
// that cycle only; nothing persists them.
type Measurement struct {
	SatPos        Vec3
	PseudorangeKm float64
}

// Synthesizer produces synthetic pseudoranges: true geometric range plus a
// clock bias shared by every measurement in a solve, plus bounded uniform
// noise drawn independently per measurement.
type Synthesizer struct {
	// ClockBiasKm models the common receiver clock offset, expressed as
	// range (kilometres). It must be non-negative so that pseudoranges
	// stay at or above the true geometric distance.
	ClockBiasKm float64

	// NoiseBoundKm bounds the additive measurement noise; each pseudorange
	// gets an independent draw from U(-NoiseBoundKm, +NoiseBoundKm).
	// Zero disables noise entirely.
	NoiseBoundKm float64

	noise distuv.Uniform
}

// NewSynthesizer builds a Synthesizer over the given random source. A nil
// source falls back to a time-seeded one; tests pass a fixed-seed source
// for reproducibility.
func NewSynthesizer(clockBiasKm, noiseBoundKm float64, src rand.Source) *Synthesizer {
	if noiseBoundKm < 0 {
		noiseBoundKm = -noiseBoundKm
	}
	if src == nil {
		src = rand.NewSource(uint64(time.Now().UnixNano()))
	}
	return &Synthesizer{
		ClockBiasKm:  clockBiasKm,
		NoiseBoundKm: noiseBoundKm,
		noise: distuv.Uniform{
			Min: -noiseBoundKm,
			Max: noiseBoundKm,
			Src: src,
		},
	}
}

// Synthesize returns a Measurement for the satellite at satPos as observed
// from truthPos.
func (s *Synthesizer) Synthesize(satPos, truthPos Vec3) Measurement {
	pr := satPos.DistanceTo(truthPos) + s.ClockBiasKm
	if s.NoiseBoundKm > 0 {
		pr += s.noise.Rand()
	}
	return Measurement{SatPos: satPos, PseudorangeKm: pr}
}
