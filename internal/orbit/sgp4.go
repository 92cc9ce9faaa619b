// Package orbit adapts SGP4 two-line element propagation to the ECEF frame
// used by the measurement and solve pipeline. Positions are kilometres
// throughout, matching the go-satellite library.
package orbit

import (
	"errors"
	"fmt"
	"math"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/mission-pnt/core"
	"github.com/signalsfoundry/mission-pnt/model"
)

// ErrPropagation marks a propagation that produced an unusable position.
// Callers skip the satellite for the cycle and move on.
var ErrPropagation = errors.New("orbit: propagation failed")

// maxOrbitRadiusKm bounds plausible geocentric distance; anything beyond
// super-synchronous altitude is treated as a numerical blowup.
const maxOrbitRadiusKm = 100000.0

// Propagator yields a named satellite's ECEF position at a given time.
type Propagator interface {
	Name() string
	PositionECEF(t time.Time) (core.Vec3, error)
}

// SGP4Satellite wraps one TLE-described satellite.
type SGP4Satellite struct {
	name string
	sat  satellite.Satellite
}

// NewSGP4Satellite validates the TLE lines and initialises SGP4 state.
func NewSGP4Satellite(t model.TLE) (*SGP4Satellite, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	sat := satellite.TLEToSat(t.Line1, t.Line2, satellite.GravityWGS72)
	return &SGP4Satellite{name: t.Name, sat: sat}, nil
}

// Name returns the catalog name of the satellite.
func (s *SGP4Satellite) Name() string { return s.name }

// PositionECEF propagates the satellite to t and rotates the ECI result into
// the Earth-fixed frame.
func (s *SGP4Satellite) PositionECEF(t time.Time) (core.Vec3, error) {
	t = t.UTC()
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	posECI, _ := satellite.Propagate(s.sat, year, int(month), day, hour, min, sec)
	jd := satellite.JDay(year, int(month), day, hour, min, sec)
	gmst := satellite.ThetaG_JD(jd)
	posECEF := satellite.ECIToECEF(posECI, gmst)

	pos := core.Vec3{X: posECEF.X, Y: posECEF.Y, Z: posECEF.Z}
	if err := checkPosition(s.name, pos); err != nil {
		return core.Vec3{}, err
	}
	return pos, nil
}

// checkPosition rejects non-finite components and geocentric distances no
// real orbit can have. SGP4 degrades silently on decayed or corrupt
// elements, so the sanity check is the failure signal.
func checkPosition(name string, pos core.Vec3) error {
	if math.IsNaN(pos.X) || math.IsNaN(pos.Y) || math.IsNaN(pos.Z) ||
		math.IsInf(pos.X, 0) || math.IsInf(pos.Y, 0) || math.IsInf(pos.Z, 0) {
		return fmt.Errorf("%w: %s: non-finite position", ErrPropagation, name)
	}
	r := pos.Norm()
	if r < core.EarthRadiusKm || r > maxOrbitRadiusKm {
		return fmt.Errorf("%w: %s: radius %.1f km outside plausible orbit", ErrPropagation, name, r)
	}
	return nil
}

// Subpoint returns the geodetic point directly beneath the satellite at t.
func Subpoint(p Propagator, t time.Time) (core.GeodeticCoordinate, error) {
	pos, err := p.PositionECEF(t)
	if err != nil {
		return core.GeodeticCoordinate{}, err
	}
	return core.ECEFToGeodetic(pos), nil
}

// Track samples ground-track subpoints across [center-span, center+span] at
// step intervals. Samples that fail to propagate are skipped, so a track may
// be shorter than the window implies.
func Track(p Propagator, center time.Time, span, step time.Duration) model.GroundTrack {
	track := model.GroundTrack{Name: p.Name()}
	if span <= 0 || step <= 0 {
		return track
	}
	end := center.Add(span)
	for ts := center.Add(-span); !ts.After(end); ts = ts.Add(step) {
		sub, err := Subpoint(p, ts)
		if err != nil {
			continue
		}
		track.Points = append(track.Points, model.TrackPoint{LatDeg: sub.LatDeg, LonDeg: sub.LonDeg})
	}
	return track
}
