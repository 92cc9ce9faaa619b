package model

import "time"

// Fix mode strings published with every solution.
const (
	FixModeNone   = "NO FIX"
	FixMode3DLock = "3D LOCK (ILS)"
)

// Fix is the externally published position solution. It is overwritten
// wholesale each cycle; readers never see a partially updated Fix.
type Fix struct {
	LatDeg float64 `json:"lat"`
	LonDeg float64 `json:"lon"`
	AltM   float64 `json:"alt_m"`
	ErrorM float64 `json:"error_m"`
	Mode   string  `json:"mode"`
}

// SatelliteView is one row of the visible-satellite display list.
type SatelliteView struct {
	Name           string  `json:"name"`
	ElevationDeg   float64 `json:"el"`
	AzimuthDeg     float64 `json:"az"`
	TimeOfFlightMs float64 `json:"tof_ms"`
	SubLatDeg      float64 `json:"lat"`
	SubLonDeg      float64 `json:"lon"`
}

// TrackPoint is a single ground-track subpoint.
type TrackPoint struct {
	LatDeg float64 `json:"lat"`
	LonDeg float64 `json:"lon"`
}

// GroundTrack is a satellite's projected path over a short window around now.
type GroundTrack struct {
	Name   string       `json:"name"`
	Points []TrackPoint `json:"points"`
}

// Snapshot is the full per-cycle publication: one coherent view of the
// engine's output. Consumers receive whole cycles only, never a mix of two.
type Snapshot struct {
	Status     string          `json:"status"`
	Source     string          `json:"source"`
	Fix        Fix             `json:"fix"`
	Satellites []SatelliteView `json:"satellites"`
	Tracks     []GroundTrack   `json:"tracks"`
	Spectrum   []float64       `json:"spectrum"`
	Log        []string        `json:"log"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Clone returns a deep copy the caller may hold without further locking.
func (s Snapshot) Clone() Snapshot {
	out := s
	if s.Satellites != nil {
		out.Satellites = append([]SatelliteView(nil), s.Satellites...)
	}
	if s.Tracks != nil {
		out.Tracks = make([]GroundTrack, len(s.Tracks))
		for i, tr := range s.Tracks {
			out.Tracks[i] = GroundTrack{
				Name:   tr.Name,
				Points: append([]TrackPoint(nil), tr.Points...),
			}
		}
	}
	if s.Spectrum != nil {
		out.Spectrum = append([]float64(nil), s.Spectrum...)
	}
	if s.Log != nil {
		out.Log = append([]string(nil), s.Log...)
	}
	return out
}
