package course

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/a-bouts/course-server/latlon"
)

// WaypointDef is a waypoint as found in a contest definition.
type WaypointDef struct {
	Latitude  float64         `json:"latitude"`
	Longitude float64         `json:"longitude"`
	Altitude  latlon.Altitude `json:"altitude"`
	Radius    float64         `json:"radius"`
	Type      string          `json:"type"`
	Achieved  bool            `json:"achieved"`
}

// UnmarshalJSON fails when latitude or longitude is absent.
func (d *WaypointDef) UnmarshalJSON(data []byte) error {
	var c latlon.Coordinates
	if err := json.Unmarshal(data, &c); err != nil {
		return err
	}
	if err := c.Check(); err != nil {
		return err
	}
	type plain WaypointDef
	return json.Unmarshal(data, (*plain)(d))
}

// Waypoint is a position to reach within Radius meters. Number is its 1-based
// rank in the course and never changes.
type Waypoint struct {
	latlon.LatLon
	Radius           float64 `json:"radius"`
	Type             string  `json:"type"`
	Number           int     `json:"number"`
	Achieved         bool    `json:"achieved"`
	CourseDistance   float64 `json:"courseDist"`
	DistanceToFinish float64 `json:"distToFinish"`
}

func newWaypoint(def WaypointDef, index int) (Waypoint, error) {
	pos, err := latlon.New(def.Latitude, def.Longitude, float64(def.Altitude))
	if err != nil {
		return Waypoint{}, fmt.Errorf("waypoint %d: %w", index+1, err)
	}
	if math.IsNaN(def.Radius) || math.IsInf(def.Radius, 0) || def.Radius < 0 {
		return Waypoint{}, fmt.Errorf("waypoint %d: radius %v: %w", index+1, def.Radius, ErrInvalidRadius)
	}
	return Waypoint{
		LatLon:   pos,
		Radius:   def.Radius,
		Type:     def.Type,
		Number:   index + 1,
		Achieved: def.Achieved,
	}, nil
}

// UnmarshalJSON decodes the position and the course fields separately, the
// embedded LatLon would otherwise take over the whole object.
func (wp *Waypoint) UnmarshalJSON(data []byte) error {
	var pos latlon.LatLon
	if err := json.Unmarshal(data, &pos); err != nil {
		return err
	}
	var rest struct {
		Radius           float64 `json:"radius"`
		Type             string  `json:"type"`
		Number           int     `json:"number"`
		Achieved         bool    `json:"achieved"`
		CourseDistance   float64 `json:"courseDist"`
		DistanceToFinish float64 `json:"distToFinish"`
	}
	if err := json.Unmarshal(data, &rest); err != nil {
		return err
	}
	*wp = Waypoint{
		LatLon:           pos,
		Radius:           rest.Radius,
		Type:             rest.Type,
		Number:           rest.Number,
		Achieved:         rest.Achieved,
		CourseDistance:   rest.CourseDistance,
		DistanceToFinish: rest.DistanceToFinish,
	}
	return nil
}

func (wp Waypoint) String() string {
	return fmt.Sprintf("#%d %s", wp.Number, wp.LatLon)
}
