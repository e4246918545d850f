package latlon

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

const π = math.Pi

// R is the mean earth radius in meters, used by the spherical approximations.
const R = 6371e3

var (
	ErrInvalidLatitude  = errors.New("latitude must be within [-90, 90]")
	ErrInvalidLongitude = errors.New("longitude must be within [-180, 180]")
	ErrNotFinite        = errors.New("value is not a finite number")
)

// InvalidPositionError reports the coordinates rejected when building a LatLon.
type InvalidPositionError struct {
	Lat float64
	Lon float64
	Err error
}

func (e *InvalidPositionError) Error() string {
	return fmt.Sprintf("invalid position (%f,%f): %s", e.Lat, e.Lon, e.Err)
}

func (e *InvalidPositionError) Unwrap() error {
	return e.Err
}

// Altitude in meters. Anything that is not a JSON number decodes to 0.
type Altitude float64

func (a *Altitude) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	f, ok := v.(float64)
	if !ok || !isFinite(f) {
		*a = 0
		return nil
	}
	*a = Altitude(f)
	return nil
}

// LatLon is an immutable geographic position. Use New to build one from
// untrusted input.
type LatLon struct {
	Lat float64  `json:"latitude"`
	Lon float64  `json:"longitude"`
	Alt Altitude `json:"altitude"`
}

// Coordinates are the raw latitude and longitude of a JSON object, nil when
// absent or null.
type Coordinates struct {
	Lat *float64 `json:"latitude"`
	Lon *float64 `json:"longitude"`
}

// Check rejects a missing latitude or longitude. Ranges are left to Validate.
func (c Coordinates) Check() error {
	if c.Lat == nil {
		return &InvalidPositionError{Lat: math.NaN(), Lon: math.NaN(), Err: fmt.Errorf("missing: %w", ErrInvalidLatitude)}
	}
	if c.Lon == nil {
		return &InvalidPositionError{Lat: *c.Lat, Lon: math.NaN(), Err: fmt.Errorf("missing: %w", ErrInvalidLongitude)}
	}
	return nil
}

// UnmarshalJSON fails when latitude or longitude is absent, so an empty
// object never decodes to (0,0).
func (p *LatLon) UnmarshalJSON(data []byte) error {
	var c Coordinates
	if err := json.Unmarshal(data, &c); err != nil {
		return err
	}
	if err := c.Check(); err != nil {
		return err
	}
	var alt struct {
		Alt Altitude `json:"altitude"`
	}
	if err := json.Unmarshal(data, &alt); err != nil {
		return err
	}
	*p = LatLon{Lat: *c.Lat, Lon: *c.Lon, Alt: alt.Alt}
	return nil
}

// New validates lat and lon and returns the position. The optional alt
// defaults to 0, as does a non finite altitude.
func New(lat, lon float64, alt ...float64) (LatLon, error) {
	p := LatLon{Lat: lat, Lon: lon}
	if len(alt) > 0 && isFinite(alt[0]) {
		p.Alt = Altitude(alt[0])
	}
	if err := p.Validate(); err != nil {
		return LatLon{}, err
	}
	return p, nil
}

// MustNew is New for literals known to be valid.
func MustNew(lat, lon float64) LatLon {
	p, err := New(lat, lon)
	if err != nil {
		panic(err)
	}
	return p
}

func (p LatLon) Validate() error {
	if !isFinite(p.Lat) || p.Lat < -90 || p.Lat > 90 {
		return &InvalidPositionError{Lat: p.Lat, Lon: p.Lon, Err: ErrInvalidLatitude}
	}
	if !isFinite(p.Lon) || p.Lon < -180 || p.Lon > 180 {
		return &InvalidPositionError{Lat: p.Lat, Lon: p.Lon, Err: ErrInvalidLongitude}
	}
	return nil
}

func (p LatLon) String() string {
	return fmt.Sprintf("(%.6f,%.6f)", p.Lat, p.Lon)
}

func toRadians(a float64) float64 {
	return a * π / 180.0
}

func toDegrees(a float64) float64 {
	return a * 180.0 / π
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Wrap360 normalizes d to [0, 360).
func Wrap360(d float64) float64 {
	if 0.0 <= d && d < 360.0 {
		return d
	}
	d = math.Mod(d, 360.0)
	if d < 0 {
		d += 360.0
	}
	return d
}

// Wrap180 normalizes d to (-180, 180].
func Wrap180(d float64) float64 {
	if -180.0 < d && d <= 180.0 {
		return d
	}
	d = Wrap360(d)
	if d > 180.0 {
		d -= 360.0
	}
	return d
}
