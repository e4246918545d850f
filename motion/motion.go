package motion

import (
	"fmt"
	"math"
	"time"

	"github.com/a-bouts/course-server/latlon"
)

// Model moves a position at a constant speed (m/s) and heading (degrees) for
// elapsed time.
type Model interface {
	Move(from latlon.LatLon, speed, heading float64, elapsed time.Duration) (latlon.LatLon, error)
}

func check(from latlon.LatLon, speed, heading float64) error {
	if math.IsNaN(speed) || math.IsInf(speed, 0) {
		return fmt.Errorf("speed %v: %w", speed, latlon.ErrNotFinite)
	}
	if math.IsNaN(heading) || math.IsInf(heading, 0) {
		return fmt.Errorf("heading %v: %w", heading, latlon.ErrNotFinite)
	}
	return from.Validate()
}

// Spherical follows a great circle on a sphere of radius latlon.R.
type Spherical struct{}

func (Spherical) Move(from latlon.LatLon, speed, heading float64, elapsed time.Duration) (latlon.LatLon, error) {
	if err := check(from, speed, heading); err != nil {
		return latlon.LatLon{}, err
	}
	to := latlon.Haversine{}.Destination(from, heading, speed*elapsed.Seconds())
	to.Alt = from.Alt
	return to, nil
}

// Geodesic follows the WGS84 geodesic.
type Geodesic struct{}

func (Geodesic) Move(from latlon.LatLon, speed, heading float64, elapsed time.Duration) (latlon.LatLon, error) {
	if err := check(from, speed, heading); err != nil {
		return latlon.LatLon{}, err
	}
	to := latlon.Vincenty{}.Destination(from, heading, speed*elapsed.Seconds())
	to.Alt = from.Alt
	return to, nil
}

// Drift adds the push of the wind and of the current to the boat's own
// velocity. Headings are the direction the boat is pushed toward.
type Drift struct {
	Wind  latlon.Velocity
	Water latlon.Velocity
	Model Model
}

func (d Drift) model() Model {
	if d.Model == nil {
		return Spherical{}
	}
	return d.Model
}

// Move applies the boat velocity, then the wind drift, then the water drift,
// each for the full elapsed time.
func (d Drift) Move(from latlon.LatLon, speed, heading float64, elapsed time.Duration) (latlon.LatLon, error) {
	m := d.model()
	pos, err := m.Move(from, speed, heading, elapsed)
	if err != nil {
		return latlon.LatLon{}, err
	}
	pos, err = m.Move(pos, d.Wind.Speed, d.Wind.Heading, elapsed)
	if err != nil {
		return latlon.LatLon{}, fmt.Errorf("wind drift: %w", err)
	}
	pos, err = m.Move(pos, d.Water.Speed, d.Water.Heading, elapsed)
	if err != nil {
		return latlon.LatLon{}, fmt.Errorf("water drift: %w", err)
	}
	return pos, nil
}

// Ground is the velocity over ground resulting from Move.
func (d Drift) Ground(from latlon.LatLon, speed, heading float64, elapsed time.Duration) (latlon.Velocity, error) {
	to, err := d.Move(from, speed, heading, elapsed)
	if err != nil {
		return latlon.Velocity{}, err
	}
	return from.VelocityTo(to, elapsed)
}
