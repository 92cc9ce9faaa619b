package core

import "math"

// WGS-84 ellipsoid parameters. All geodesy in this package works in
// kilometres; GeodeticCoordinate carries altitude in metres and is
// converted at the boundary.
const (
	// WGS84SemiMajorAxisKm is the ellipsoid semi-major axis a.
	WGS84SemiMajorAxisKm = 6378.137
	// WGS84EccentricitySq is the first eccentricity squared e².
	WGS84EccentricitySq = 0.00669437999

	degToRad = math.Pi / 180.0
	radToDeg = 180.0 / math.Pi
)

// GeodeticCoordinate is an immutable latitude/longitude/altitude triple.
// Latitude is in [-90, 90] degrees, longitude in [-180, 180] degrees,
// altitude in metres above the WGS-84 ellipsoid.
type GeodeticCoordinate struct {
	LatDeg float64
	LonDeg float64
	AltM   float64
}

// primeVerticalRadiusKm returns N(lat), the prime-vertical radius of
// curvature at the given geodetic latitude (radians).
func primeVerticalRadiusKm(latRad float64) float64 {
	s := math.Sin(latRad)
	return WGS84SemiMajorAxisKm / math.Sqrt(1.0-WGS84EccentricitySq*s*s)
}

// GeodeticToECEF converts a geodetic coordinate to an ECEF position in
// kilometres. Defined for all valid latitudes; no error conditions.
func GeodeticToECEF(g GeodeticCoordinate) Vec3 {
	lat := g.LatDeg * degToRad
	lon := g.LonDeg * degToRad
	hKm := g.AltM / 1000.0

	n := primeVerticalRadiusKm(lat)
	cosLat := math.Cos(lat)
	return Vec3{
		X: (n + hKm) * cosLat * math.Cos(lon),
		Y: (n + hKm) * cosLat * math.Sin(lon),
		Z: (n*(1.0-WGS84EccentricitySq) + hKm) * math.Sin(lat),
	}
}

// ECEFToGeodetic converts an ECEF position (kilometres) back to a geodetic
// coordinate using a Bowring-style fixed-point iteration. The latitude
// update runs exactly three times; the residual stays below 1 mm for
// |lat| < 89° but degrades towards the poles, where p → 0 makes the
// altitude term ill-conditioned.
func ECEFToGeodetic(v Vec3) GeodeticCoordinate {
	lon := math.Atan2(v.Y, v.X)
	p := math.Hypot(v.X, v.Y)

	lat := math.Atan2(v.Z, p*(1.0-WGS84EccentricitySq))
	var n float64
	for i := 0; i < 3; i++ {
		n = primeVerticalRadiusKm(lat)
		lat = math.Atan2(v.Z+WGS84EccentricitySq*n*math.Sin(lat), p)
	}
	altKm := p/math.Cos(lat) - n

	return GeodeticCoordinate{
		LatDeg: lat * radToDeg,
		LonDeg: lon * radToDeg,
		AltM:   altKm * 1000.0,
	}
}

// AzimuthElevation returns the look angles from a geodetic observer to an
// ECEF target, both in degrees. Azimuth is measured clockwise from true
// north in [0, 360); elevation is 0 at the local horizon and 90 overhead.
func AzimuthElevation(observer GeodeticCoordinate, target Vec3) (azDeg, elDeg float64) {
	d := target.Sub(GeodeticToECEF(observer))

	lat := observer.LatDeg * degToRad
	lon := observer.LonDeg * degToRad
	sinLat, cosLat := math.Sin(lat), math.Cos(lat)
	sinLon, cosLon := math.Sin(lon), math.Cos(lon)

	east := -sinLon*d.X + cosLon*d.Y
	north := -cosLon*sinLat*d.X - sinLon*sinLat*d.Y + cosLat*d.Z
	up := cosLon*cosLat*d.X + sinLon*cosLat*d.Y + sinLat*d.Z

	elDeg = math.Atan2(up, math.Hypot(east, north)) * radToDeg
	azDeg = math.Atan2(east, north) * radToDeg
	if azDeg < 0 {
		azDeg += 360.0
	}
	return azDeg, elDeg
}
