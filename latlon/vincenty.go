package latlon

import "math"

// WGS84 ellipsoid.
const (
	wgs84A = 6378137.0
	wgs84F = 1 / 298.257223563
	wgs84B = (1 - wgs84F) * wgs84A
)

const (
	vincentyEpsilon  = 1e-12
	vincentyMaxIters = 1000
)

// Vincenty solves the geodesic problems on the WGS84 ellipsoid. When the
// inverse solution does not converge (nearly antipodal points) it falls back
// to Haversine.
type Vincenty struct{}

func (Vincenty) DistanceAndBearingTo(from, to LatLon) (float64, float64) {
	d, b, ok := vincentyInverse(from, to)
	if !ok {
		return Haversine{}.DistanceAndBearingTo(from, to)
	}
	return d, b
}

func vincentyInverse(from, to LatLon) (float64, float64, bool) {
	φ1, λ1 := toRadians(from.Lat), toRadians(from.Lon)
	φ2, λ2 := toRadians(to.Lat), toRadians(to.Lon)

	L := λ2 - λ1
	if L > π {
		L -= 2 * π
	} else if L < -π {
		L += 2 * π
	}

	tanU1 := (1 - wgs84F) * math.Tan(φ1)
	cosU1 := 1 / math.Sqrt(1+tanU1*tanU1)
	sinU1 := tanU1 * cosU1
	tanU2 := (1 - wgs84F) * math.Tan(φ2)
	cosU2 := 1 / math.Sqrt(1+tanU2*tanU2)
	sinU2 := tanU2 * cosU2

	var sinλ, cosλ, sinσ, cosσ, σ, cosSqα, cos2σm float64

	λ := L
	converged := false
	for i := 0; i < vincentyMaxIters; i++ {
		sinλ, cosλ = math.Sin(λ), math.Cos(λ)
		sinSqσ := (cosU2*sinλ)*(cosU2*sinλ) + (cosU1*sinU2-sinU1*cosU2*cosλ)*(cosU1*sinU2-sinU1*cosU2*cosλ)
		if sinSqσ < 1e-24 {
			// coincident points
			return 0, 0, true
		}
		sinσ = math.Sqrt(sinSqσ)
		cosσ = sinU1*sinU2 + cosU1*cosU2*cosλ
		σ = math.Atan2(sinσ, cosσ)
		sinα := cosU1 * cosU2 * sinλ / sinσ
		cosSqα = 1 - sinα*sinα
		cos2σm = 0
		if cosSqα != 0 {
			// equatorial lines have cosSqα = 0
			cos2σm = cosσ - 2*sinU1*sinU2/cosSqα
		}
		C := wgs84F / 16 * cosSqα * (4 + wgs84F*(4-3*cosSqα))
		λʹ := λ
		λ = L + (1-C)*wgs84F*sinα*(σ+C*sinσ*(cos2σm+C*cosσ*(-1+2*cos2σm*cos2σm)))
		if math.Abs(λ) > π {
			return 0, 0, false
		}
		if math.Abs(λ-λʹ) < vincentyEpsilon {
			converged = true
			break
		}
	}
	if !converged {
		return 0, 0, false
	}

	uSq := cosSqα * (wgs84A*wgs84A - wgs84B*wgs84B) / (wgs84B * wgs84B)
	A := 1 + uSq/16384*(4096+uSq*(-768+uSq*(320-175*uSq)))
	B := uSq / 1024 * (256 + uSq*(-128+uSq*(74-47*uSq)))
	Δσ := B * sinσ * (cos2σm + B/4*(cosσ*(-1+2*cos2σm*cos2σm)-B/6*cos2σm*(-3+4*sinσ*sinσ)*(-3+4*cos2σm*cos2σm)))

	s := wgs84B * A * (σ - Δσ)
	α1 := math.Atan2(cosU2*sinλ, cosU1*sinU2-sinU1*cosU2*cosλ)

	return s, Wrap180(toDegrees(α1)), true
}

func (Vincenty) Destination(from LatLon, bearing float64, distance float64) LatLon {
	φ1 := toRadians(from.Lat)
	λ1 := toRadians(from.Lon)
	α1 := toRadians(bearing)
	s := distance

	sinα1, cosα1 := math.Sin(α1), math.Cos(α1)

	tanU1 := (1 - wgs84F) * math.Tan(φ1)
	cosU1 := 1 / math.Sqrt(1+tanU1*tanU1)
	sinU1 := tanU1 * cosU1
	σ1 := math.Atan2(tanU1, cosα1)
	sinα := cosU1 * sinα1
	cosSqα := 1 - sinα*sinα
	uSq := cosSqα * (wgs84A*wgs84A - wgs84B*wgs84B) / (wgs84B * wgs84B)
	A := 1 + uSq/16384*(4096+uSq*(-768+uSq*(320-175*uSq)))
	B := uSq / 1024 * (256 + uSq*(-128+uSq*(74-47*uSq)))

	var sinσ, cosσ, cos2σm float64
	σ := s / (wgs84B * A)
	for i := 0; i < vincentyMaxIters; i++ {
		cos2σm = math.Cos(2*σ1 + σ)
		sinσ, cosσ = math.Sin(σ), math.Cos(σ)
		Δσ := B * sinσ * (cos2σm + B/4*(cosσ*(-1+2*cos2σm*cos2σm)-B/6*cos2σm*(-3+4*sinσ*sinσ)*(-3+4*cos2σm*cos2σm)))
		σʹ := σ
		σ = s/(wgs84B*A) + Δσ
		if math.Abs(σ-σʹ) < vincentyEpsilon {
			break
		}
	}
	cos2σm = math.Cos(2*σ1 + σ)
	sinσ, cosσ = math.Sin(σ), math.Cos(σ)

	x := sinU1*sinσ - cosU1*cosσ*cosα1
	φ2 := math.Atan2(sinU1*cosσ+cosU1*sinσ*cosα1, (1-wgs84F)*math.Sqrt(sinα*sinα+x*x))
	λ := math.Atan2(sinσ*sinα1, cosU1*cosσ-sinU1*sinσ*cosα1)
	C := wgs84F / 16 * cosSqα * (4 + wgs84F*(4-3*cosSqα))
	L := λ - (1-C)*wgs84F*sinα*(σ+C*sinσ*(cos2σm+C*cosσ*(-1+2*cos2σm*cos2σm)))
	λ2 := λ1 + L

	return LatLon{Lat: toDegrees(φ2), Lon: Wrap180(toDegrees(λ2))}
}
