// Package spectrum models the RF spectrum display feed. The engine's only
// contract with a Source is a list of non-negative magnitudes; the variant
// is chosen at configuration time, never by implicit fallback.
package spectrum

import (
	"sync"
	"time"

	"golang.org/x/exp/rand"
)

// Variant names reported by Source implementations.
const (
	VariantSynthetic = "SYNTHETIC"
	VariantLive      = "LIVE"
)

// DefaultBins is the display width of the spectrum panel.
const DefaultBins = 40

// Source supplies one spectral sample per call.
type Source interface {
	// Sample returns non-negative magnitudes, one per bin.
	Sample() []float64
	// Variant identifies the implementation for logs and diagnostics.
	Variant() string
}

// Synthetic fills the spectrum with uniform integer magnitudes in [10, 50],
// standing in for hardware that is not attached.
type Synthetic struct {
	mu   sync.Mutex
	rng  *rand.Rand
	bins int
}

// NewSynthetic constructs a Synthetic source. Non-positive bins fall back
// to DefaultBins; a zero seed derives one from the clock.
func NewSynthetic(bins int, seed uint64) *Synthetic {
	if bins <= 0 {
		bins = DefaultBins
	}
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Synthetic{
		rng:  rand.New(rand.NewSource(seed)),
		bins: bins,
	}
}

func (s *Synthetic) Sample() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]float64, s.bins)
	for i := range out {
		out[i] = float64(10 + s.rng.Intn(41))
	}
	return out
}

func (s *Synthetic) Variant() string { return VariantSynthetic }

// SampleFunc adapts an attached receiver to the Live source.
type SampleFunc func() ([]float64, error)

// Live wraps a hardware sampling callback. Failed reads degrade to the last
// good sample; before any good sample, a zeroed spectrum. Negative
// magnitudes are clamped to zero.
type Live struct {
	mu       sync.Mutex
	fn       SampleFunc
	lastGood []float64
	bins     int
}

// NewLive constructs a Live source over fn. Non-positive bins fall back to
// DefaultBins; the bin count only sizes the pre-first-sample zero fill.
func NewLive(fn SampleFunc, bins int) *Live {
	if bins <= 0 {
		bins = DefaultBins
	}
	return &Live{fn: fn, bins: bins}
}

func (l *Live) Sample() []float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	sample, err := l.fn()
	if err != nil || len(sample) == 0 {
		if l.lastGood != nil {
			out := make([]float64, len(l.lastGood))
			copy(out, l.lastGood)
			return out
		}
		return make([]float64, l.bins)
	}

	out := make([]float64, len(sample))
	for i, v := range sample {
		if v < 0 {
			v = 0
		}
		out[i] = v
	}
	l.lastGood = out

	result := make([]float64, len(out))
	copy(result, out)
	return result
}

func (l *Live) Variant() string { return VariantLive }
