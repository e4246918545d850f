package contest

import (
	"errors"
	"fmt"
	"math"
)

const (
	ActionRequestContest = "request-contest"
	ActionUpdateState    = "update-waypoint-state"
	ActionResetState     = "reset-waypoint-state"

	TypeNone = "none"
)

var (
	ValidActions   = []string{ActionRequestContest, ActionUpdateState, ActionResetState}
	ValidTypes     = []string{TypeNone, "fleet-race", "station-keeping", "area-scanning", "obstacle-avoidance"}
	ValidLocations = []string{"auckland", "viana-do-castelo"}
)

// ErrInvalidRequest is matched by every *RequestError.
var ErrInvalidRequest = errors.New("invalid contest request")

// RequestError reports the first invalid field of a Request.
type RequestError struct {
	Field  string
	Value  interface{}
	Reason string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("invalid contest request: %s %s: %v", e.Field, e.Reason, e.Value)
}

func (e *RequestError) Unwrap() error {
	return ErrInvalidRequest
}

// Request is a command sent by the controller.
type Request struct {
	Action      string   `json:"action"`
	Type        string   `json:"type,omitempty"`
	Location    string   `json:"location,omitempty"`
	Realtime    *bool    `json:"realtime,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	WindSpeed   *float64 `json:"windSpeed,omitempty"`
	WindHeading *float64 `json:"windHeading,omitempty"`
	State       []bool   `json:"state,omitempty"`
}

// DefaultRequest is the contest loaded when the controller registers.
func DefaultRequest() Request {
	realtime := true
	windSpeed := 0.8
	windHeading := 40.0
	return Request{
		Action:      ActionRequestContest,
		Type:        "area-scanning",
		Location:    "viana-do-castelo",
		Realtime:    &realtime,
		WindSpeed:   &windSpeed,
		WindHeading: &windHeading,
	}
}

func contains(values []string, v string) bool {
	for _, value := range values {
		if value == v {
			return true
		}
	}
	return false
}

// Validate checks the fields required by the action. A contest request needs
// a known type and location, a realtime flag and finite optional numbers.
func (r Request) Validate() error {
	if !contains(ValidActions, r.Action) {
		return &RequestError{Field: "action", Value: r.Action, Reason: "is unknown"}
	}

	switch r.Action {
	case ActionUpdateState:
		if r.State == nil {
			return &RequestError{Field: "state", Value: nil, Reason: "is not an array"}
		}
		return nil
	case ActionResetState:
		return nil
	}

	if !contains(ValidTypes, r.Type) {
		return &RequestError{Field: "type", Value: r.Type, Reason: "is unknown"}
	}
	if !contains(ValidLocations, r.Location) {
		return &RequestError{Field: "location", Value: r.Location, Reason: "is unknown"}
	}
	if r.Realtime == nil {
		return &RequestError{Field: "realtime", Value: nil, Reason: "is not a boolean"}
	}

	numbers := []struct {
		name  string
		value *float64
	}{
		{"latitude", r.Latitude},
		{"longitude", r.Longitude},
		{"windSpeed", r.WindSpeed},
		{"windHeading", r.WindHeading},
	}
	for _, n := range numbers {
		if n.value != nil && (math.IsNaN(*n.value) || math.IsInf(*n.value, 0)) {
			return &RequestError{Field: n.name, Value: *n.value, Reason: "is not a finite number"}
		}
	}
	return nil
}
