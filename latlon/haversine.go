package latlon

import "math"

// Solver resolves the inverse and direct geodesic problems.
type Solver interface {
	// DistanceAndBearingTo returns the distance in meters and the initial
	// bearing in degrees (-180, 180] from one point to the other.
	DistanceAndBearingTo(from, to LatLon) (float64, float64)
	// Destination moves distance meters from from along bearing.
	Destination(from LatLon, bearing float64, distance float64) LatLon
}

// Haversine works on a sphere of radius R.
type Haversine struct{}

func (Haversine) DistanceAndBearingTo(from, to LatLon) (float64, float64) {
	φ1 := toRadians(from.Lat)
	φ2 := toRadians(to.Lat)
	Δφ := φ2 - φ1

	Δλ := toRadians(to.Lon - from.Lon)

	a := math.Sin(Δφ/2)*math.Sin(Δφ/2) + math.Cos(φ1)*math.Cos(φ2)*math.Sin(Δλ/2)*math.Sin(Δλ/2)
	δ := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	d := R * δ

	if d == 0 {
		return 0, 0
	}

	x := math.Cos(φ1)*math.Sin(φ2) - math.Sin(φ1)*math.Cos(φ2)*math.Cos(Δλ)
	y := math.Sin(Δλ) * math.Cos(φ2)
	θ := math.Atan2(y, x)

	return d, Wrap180(toDegrees(θ))
}

func (Haversine) Destination(from LatLon, bearing float64, distance float64) LatLon {
	φ1 := toRadians(from.Lat)
	λ1 := toRadians(from.Lon)
	θ := toRadians(bearing)

	δ := distance / R

	φ2 := math.Asin(math.Sin(φ1)*math.Cos(δ) + math.Cos(φ1)*math.Sin(δ)*math.Cos(θ))
	λ2 := λ1 + math.Atan2(math.Sin(θ)*math.Sin(δ)*math.Cos(φ1), math.Cos(δ)-math.Sin(φ1)*math.Sin(φ2))

	return LatLon{Lat: toDegrees(φ2), Lon: Wrap180(toDegrees(λ2))}
}
