package contest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/a-bouts/course-server/course"
	"github.com/a-bouts/course-server/latlon"
)

var ErrInvalidDefinition = errors.New("invalid contest definition")

// Definition is a contest as stored in the contests folder. Fields not known
// here are kept and written back untouched.
type Definition struct {
	Name      string               `json:"name"`
	Boundary  []latlon.LatLon      `json:"boundary,omitempty"`
	Waypoints []course.WaypointDef `json:"waypoints"`

	Extra map[string]json.RawMessage `json:"-"`
}

func (d *Definition) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	type known Definition
	var k known
	if err := json.Unmarshal(data, &k); err != nil {
		return err
	}
	*d = Definition(k)

	for _, name := range []string{"name", "boundary", "waypoints"} {
		delete(fields, name)
	}
	if len(fields) > 0 {
		d.Extra = fields
	}
	return nil
}

func (d Definition) MarshalJSON() ([]byte, error) {
	fields := make(map[string]interface{}, len(d.Extra)+3)
	for name, raw := range d.Extra {
		fields[name] = raw
	}
	fields["name"] = d.Name
	if len(d.Boundary) > 0 {
		fields["boundary"] = d.Boundary
	}
	waypoints := d.Waypoints
	if waypoints == nil {
		waypoints = []course.WaypointDef{}
	}
	fields["waypoints"] = waypoints
	return json.Marshal(fields)
}

func lowercaseSep(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), " ", "-")
}

// Filename is "<type>.<location>.json", both lowercased with dashes for
// spaces: "Viana do Castelo" becomes "viana-do-castelo".
func Filename(contestType, location string) string {
	return lowercaseSep(contestType) + "." + lowercaseSep(location) + ".json"
}

// Load reads the definition matching the type and location of r from dir.
func Load(dir string, r Request) (Definition, error) {
	filename := filepath.Join(dir, Filename(r.Type, r.Location))

	data, err := os.ReadFile(filename)
	if err != nil {
		log.WithError(err).Errorf("Error reading contest '%s'", filename)
		return Definition{}, fmt.Errorf("read contest: %w", err)
	}

	var d Definition
	if err := json.Unmarshal(data, &d); err != nil {
		log.WithError(err).Errorf("Invalid contest '%s'", filename)
		return Definition{}, fmt.Errorf("%w '%s': %w", ErrInvalidDefinition, filename, err)
	}
	if len(d.Waypoints) == 0 {
		return Definition{}, fmt.Errorf("%w '%s': no waypoints", ErrInvalidDefinition, filename)
	}
	if d.Name == "" {
		d.Name = strings.TrimSuffix(Filename(r.Type, r.Location), ".json")
	}
	return d, nil
}
