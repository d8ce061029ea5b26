package orbit

import "math"

// EarthRadiusKm is the mean Earth radius used for spherical geometry
// (kilometres).
const EarthRadiusKm = 6371.0

// Vec3 is an ECEF-style vector in kilometres.
type Vec3 struct {
	X, Y, Z float64
}

// Sub returns v - other.
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// Dot returns the dot product of two vectors.
func (v Vec3) Dot(other Vec3) float64 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// Norm returns the Euclidean norm of the vector.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// DistanceTo returns the straight-line distance between two points.
func (v Vec3) DistanceTo(other Vec3) float64 {
	return v.Sub(other).Norm()
}

// GeodeticToECEF converts a geodetic point on the spherical Earth model to
// ECEF kilometres. Latitude and longitude are in degrees, altitude in km.
func GeodeticToECEF(latDeg, lonDeg, altKm float64) Vec3 {
	lat := latDeg * math.Pi / 180.0
	lon := lonDeg * math.Pi / 180.0
	r := EarthRadiusKm + altKm
	return Vec3{
		X: r * math.Cos(lat) * math.Cos(lon),
		Y: r * math.Cos(lat) * math.Sin(lon),
		Z: r * math.Sin(lat),
	}
}

// ElevationDegrees returns the elevation angle of the target as seen from
// the observer, in degrees. 0° = geometric horizon, 90° = overhead.
func ElevationDegrees(observer, target Vec3) float64 {
	v := target.Sub(observer)
	vNorm := v.Norm()
	if vNorm == 0 {
		return 90
	}

	// Local zenith at the observer is its normalised position vector.
	r := observer.Norm()
	if r == 0 {
		return 90
	}
	zenith := Vec3{X: observer.X / r, Y: observer.Y / r, Z: observer.Z / r}

	cosGamma := v.Dot(zenith) / vNorm
	if cosGamma > 1 {
		cosGamma = 1
	} else if cosGamma < -1 {
		cosGamma = -1
	}
	gammaDeg := math.Acos(cosGamma) * 180.0 / math.Pi

	return 90.0 - gammaDeg
}

// AzimuthDegrees returns the azimuth of the target as seen from the
// observer, in degrees clockwise from true north.
func AzimuthDegrees(observer, target Vec3) float64 {
	v := target.Sub(observer)

	r := observer.Norm()
	if r == 0 {
		return 0
	}
	up := Vec3{X: observer.X / r, Y: observer.Y / r, Z: observer.Z / r}

	// East is perpendicular to both the Earth axis and the local up vector.
	east := Vec3{X: -observer.Y, Y: observer.X, Z: 0}
	eNorm := east.Norm()
	if eNorm == 0 {
		// Observer at a pole; azimuth is undefined there.
		return 0
	}
	east = Vec3{X: east.X / eNorm, Y: east.Y / eNorm, Z: east.Z / eNorm}

	// North completes the ENU frame: north = up x east.
	north := Vec3{
		X: up.Y*east.Z - up.Z*east.Y,
		Y: up.Z*east.X - up.X*east.Z,
		Z: up.X*east.Y - up.Y*east.X,
	}

	az := math.Atan2(v.Dot(east), v.Dot(north)) * 180.0 / math.Pi
	if az < 0 {
		az += 360
	}
	return az
}

// losGrazeKm shrinks the blocking sphere so an endpoint resting on the
// surface, like a ground terminal, does not shadow itself. Paths dipping
// more than a fraction of a degree below the horizon stay blocked.
const losGrazeKm = 0.5

// HasLineOfSight checks whether the straight segment between p1 and p2
// intersects the Earth sphere. If it does, the Earth blocks the path and
// the function returns false. All positions are ECEF in kilometres.
func HasLineOfSight(p1, p2 Vec3) bool {
	blockRadius := EarthRadiusKm - losGrazeKm

	v := p2.Sub(p1)
	a := v.Dot(v)
	if a == 0 {
		return p1.Dot(p1) > blockRadius*blockRadius
	}

	// Closest point on the segment to the Earth's centre (origin).
	t := -p1.Dot(v) / a
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}

	closest := Vec3{
		X: p1.X + v.X*t,
		Y: p1.Y + v.Y*t,
		Z: p1.Z + v.Z*t,
	}
	return closest.Dot(closest) > blockRadius*blockRadius
}
