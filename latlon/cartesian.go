package latlon

import "math"

// Vector is a point in 3-D cartesian space, in meters.
type Vector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (a Vector) Sub(b Vector) Vector {
	return Vector{X: a.X - b.X, Y: a.Y - b.Y, Z: a.Z - b.Z}
}

func (a Vector) Cross(b Vector) Vector {
	return Vector{
		X: a.Y*b.Z - a.Z*b.Y,
		Y: a.Z*b.X - a.X*b.Z,
		Z: a.X*b.Y - a.Y*b.X,
	}
}

func (a Vector) Norm() float64 {
	return math.Sqrt(a.X*a.X + a.Y*a.Y + a.Z*a.Z)
}

// ToCartesian projects p on a sphere of radius R. Around 99.5% accurate.
func (p LatLon) ToCartesian() Vector {
	φ := toRadians(p.Lat)
	λ := toRadians(p.Lon)
	return Vector{
		X: R * math.Cos(φ) * math.Cos(λ),
		Y: R * math.Cos(φ) * math.Sin(λ),
		Z: R * math.Sin(φ),
	}
}

// DistanceToLine is the distance in meters from p to the infinite line
// through p1 and p2, computed in cartesian space. Use it for cross track
// error. Coincident p1 and p2 give the distance to that point.
func (p LatLon) DistanceToLine(p1, p2 LatLon) float64 {
	c0 := p.ToCartesian()
	c1 := p1.ToCartesian()
	c2 := p2.ToCartesian()
	a := c2.Sub(c1)
	b := c1.Sub(c0)
	if a.Norm() == 0 {
		return b.Norm()
	}
	return a.Cross(b).Norm() / a.Norm()
}

type point2 struct {
	x, y float64
}

func planar(p LatLon) point2 {
	return point2{x: p.Lon, y: p.Lat}
}

// segmentIntersection intersects the lines a1-a2 and b1-b2. ok is false for
// parallel lines. onA and onB tell whether the intersection lies strictly
// inside each segment.
func segmentIntersection(a1, a2, b1, b2 point2) (at point2, onA, onB, ok bool) {
	denominator := (b2.y-b1.y)*(a2.x-a1.x) - (b2.x-b1.x)*(a2.y-a1.y)
	if denominator == 0 {
		return point2{}, false, false, false
	}
	dy := a1.y - b1.y
	dx := a1.x - b1.x
	ka := ((b2.x-b1.x)*dy - (b2.y-b1.y)*dx) / denominator
	kb := ((a2.x-a1.x)*dy - (a2.y-a1.y)*dx) / denominator

	at = point2{x: a1.x + ka*(a2.x-a1.x), y: a1.y + ka*(a2.y-a1.y)}
	onA = ka > 0 && ka < 1
	onB = kb > 0 && kb < 1
	return at, onA, onB, true
}
