package latlon

import (
	"fmt"
	"time"
)

// Geodesic is the solver used by the LatLon methods.
var Geodesic Solver = Vincenty{}

// sideOfLineProbe is how far the synthetic second point of
// SideOfLineByHeading is projected.
const sideOfLineProbe = 10.0

// Course is the result of DistanceAndHeadingTo.
type Course struct {
	Distance float64 `json:"distance"`
	Heading  float64 `json:"heading"`
}

// Velocity is a speed in m/s along a heading in degrees.
type Velocity struct {
	Speed   float64 `json:"speed"`
	Heading float64 `json:"heading"`
}

// DistanceAndHeadingTo returns the geodesic distance in meters and the
// initial heading in degrees (-180, 180] from p to other.
func (p LatLon) DistanceAndHeadingTo(other LatLon) (Course, error) {
	if err := p.Validate(); err != nil {
		return Course{}, err
	}
	if err := other.Validate(); err != nil {
		return Course{}, err
	}
	d, h := Geodesic.DistanceAndBearingTo(p, other)
	return Course{Distance: d, Heading: h}, nil
}

// ProjectAlongHeading moves distance meters along heading. A negative
// distance moves along the reciprocal heading.
func (p LatLon) ProjectAlongHeading(heading, distance float64) (LatLon, error) {
	if !isFinite(heading) {
		return LatLon{}, fmt.Errorf("heading %v: %w", heading, ErrNotFinite)
	}
	if !isFinite(distance) {
		return LatLon{}, fmt.Errorf("distance %v: %w", distance, ErrNotFinite)
	}
	if err := p.Validate(); err != nil {
		return LatLon{}, err
	}
	return Geodesic.Destination(p, heading, distance), nil
}

// VelocityTo is the average velocity needed to reach other in elapsed.
func (p LatLon) VelocityTo(other LatLon, elapsed time.Duration) (Velocity, error) {
	if elapsed <= 0 {
		return Velocity{}, fmt.Errorf("elapsed time %s must be positive", elapsed)
	}
	c, err := p.DistanceAndHeadingTo(other)
	if err != nil {
		return Velocity{}, err
	}
	return Velocity{Speed: c.Distance / elapsed.Seconds(), Heading: c.Heading}, nil
}

// SideOfLine tells on which side of the line p1->p2 the point lies: 0 on the
// line, -1 or +1 otherwise. It works on raw latitude/longitude, so it is only
// meaningful over short distances.
func (p LatLon) SideOfLine(p1, p2 LatLon) int {
	d := (p.Lat-p1.Lat)*(p2.Lon-p1.Lon) - (p.Lon-p1.Lon)*(p2.Lat-p1.Lat)
	switch {
	case d == 0:
		return 0
	case d < 0:
		return -1
	default:
		return 1
	}
}

// SideOfLineByHeading is SideOfLine against the line from p1 to a point
// projected 10 meters from p along heading.
func (p LatLon) SideOfLineByHeading(p1 LatLon, heading float64) (int, error) {
	p2, err := p.ProjectAlongHeading(heading, sideOfLineProbe)
	if err != nil {
		return 0, err
	}
	return p.SideOfLine(p1, p2), nil
}

// CrossesLine tells whether travelling distLimit meters from p along
// myHeading crosses the boundary starting at linePos1 and running 4*distLimit
// meters along lineHeading. Both segments are intersected in the
// (longitude, latitude) plane, so distLimit must stay short.
func (p LatLon) CrossesLine(myHeading float64, linePos1 LatLon, lineHeading float64, distLimit float64) (bool, error) {
	myPos2, err := p.ProjectAlongHeading(myHeading, distLimit)
	if err != nil {
		return false, err
	}
	lnPos2, err := linePos1.ProjectAlongHeading(lineHeading, distLimit*4)
	if err != nil {
		return false, err
	}

	_, onA, onB, ok := segmentIntersection(planar(p), planar(myPos2), planar(linePos1), planar(lnPos2))
	if !ok {
		return false, nil
	}
	return onA && onB, nil
}
