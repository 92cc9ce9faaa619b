package core

// ElevationMask decides whether a satellite's look angle admits it into the
// solvable measurement set. The threshold is the single named configuration
// value for visibility; call sites must not carry their own constants.
type ElevationMask struct {
	// MinElevationDeg is the minimum elevation above the local horizon.
	// 10° is a conservative but typical value for LEO tracking; negative
	// values effectively disable the mask.
	MinElevationDeg float64
}

// DefaultElevationMask returns the standard 10° mask.
func DefaultElevationMask() ElevationMask {
	return ElevationMask{MinElevationDeg: 10.0}
}

// Visible reports whether the given elevation clears the mask. The
// comparison is strict: a satellite sitting exactly on the mask is not
// visible.
func (m ElevationMask) Visible(elevationDeg float64) bool {
	return elevationDeg > m.MinElevationDeg
}
