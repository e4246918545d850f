package contest

import (
	"encoding/json"
	"errors"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/a-bouts/course-server/course"
	"github.com/a-bouts/course-server/latlon"
	"github.com/a-bouts/course-server/state"
)

const fleetRace = `{
	"name": "Fleet race Auckland",
	"boundary": [{"latitude": -36.83, "longitude": 174.75}, {"latitude": -36.85, "longitude": 174.78}],
	"timeLimit": 3600,
	"waypoints": [
		{"latitude": -36.840, "longitude": 174.760, "radius": 15, "type": "start"},
		{"latitude": -36.845, "longitude": 174.765, "radius": 15, "type": "mark"},
		{"latitude": -36.840, "longitude": 174.770, "radius": 15, "type": "finish", "altitude": "sea level"}
	]
}`

type fakeNotifier struct {
	messages chan string
}

func (n *fakeNotifier) Send(message string) error {
	n.messages <- message
	return nil
}

func (n *fakeNotifier) wait(t *testing.T) string {
	t.Helper()
	select {
	case m := <-n.messages:
		return m
	case <-time.After(time.Second):
		t.Fatal("no notification sent")
	}
	return ""
}

type fakeMetrics struct {
	mu          sync.Mutex
	achieved    int
	restarts    int
	storeErrors int
	waypoint    int
}

func (f *fakeMetrics) Achieved(string) {
	f.mu.Lock()
	f.achieved++
	f.mu.Unlock()
}

func (f *fakeMetrics) Restarted(string) {
	f.mu.Lock()
	f.restarts++
	f.mu.Unlock()
}

func (f *fakeMetrics) StoreFailed() {
	f.mu.Lock()
	f.storeErrors++
	f.mu.Unlock()
}

func (f *fakeMetrics) Navigating(waypoint int, distance float64) {
	f.mu.Lock()
	f.waypoint = waypoint
	f.mu.Unlock()
}

func fleetRaceRequest() Request {
	realtime := false
	return Request{Action: ActionRequestContest, Type: "fleet-race", Location: "auckland", Realtime: &realtime}
}

func contestsDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "fleet-race.auckland.json"), []byte(fleetRace), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "station-keeping.auckland.json"), []byte(`{"name": "broken", "waypoints": [`), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "area-scanning.auckland.json"), []byte(`{"waypoints": [{"longitude": 174.76}]}`), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "obstacle-avoidance.auckland.json"), []byte(`{"waypoints": [{"latitude": 95, "longitude": 0}]}`), 0644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func newStore(t *testing.T) *state.Store {
	t.Helper()
	s, err := state.New(filepath.Join(t.TempDir(), "state"))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestValidate(t *testing.T) {
	yes := true
	nan := math.NaN()
	lat := -36.8

	valid := []Request{
		fleetRaceRequest(),
		DefaultRequest(),
		{Action: ActionRequestContest, Type: "none", Location: "auckland", Realtime: &yes, Latitude: &lat},
		{Action: ActionUpdateState, State: []bool{}},
		{Action: ActionResetState},
	}
	for _, r := range valid {
		if err := r.Validate(); err != nil {
			t.Errorf("Validate(%+v) = %v; want nil", r, err)
		}
	}

	invalid := []struct {
		r     Request
		field string
	}{
		{Request{Action: "launch"}, "action"},
		{Request{Action: ActionRequestContest, Type: "match-race", Location: "auckland", Realtime: &yes}, "type"},
		{Request{Action: ActionRequestContest, Type: "fleet-race", Location: "Auckland", Realtime: &yes}, "location"},
		{Request{Action: ActionRequestContest, Type: "fleet-race", Location: "auckland"}, "realtime"},
		{Request{Action: ActionRequestContest, Type: "fleet-race", Location: "auckland", Realtime: &yes, WindSpeed: &nan}, "windSpeed"},
		{Request{Action: ActionUpdateState}, "state"},
	}
	for _, tc := range invalid {
		err := tc.r.Validate()
		var re *RequestError
		if !errors.As(err, &re) || re.Field != tc.field {
			t.Errorf("Validate(%+v) = %v; want a RequestError on %s", tc.r, err, tc.field)
		}
		if !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("Validate(%+v) = %v; want ErrInvalidRequest", tc.r, err)
		}
	}
}

func TestRequestJSON(t *testing.T) {
	var r Request
	if err := json.Unmarshal([]byte(`{"action":"request-contest","type":"fleet-race","location":"auckland","realtime":false,"windHeading":40}`), &r); err != nil {
		t.Fatal(err)
	}
	if err := r.Validate(); err != nil {
		t.Errorf("Validate() = %v; want nil", err)
	}
	if r.Realtime == nil || *r.Realtime || r.WindHeading == nil || *r.WindHeading != 40 || r.WindSpeed != nil {
		t.Errorf("Unmarshal = %+v", r)
	}
}

func TestFilename(t *testing.T) {
	if got := Filename("Fleet Race", "Viana do Castelo"); got != "fleet-race.viana-do-castelo.json" {
		t.Errorf("Filename() = %s; want fleet-race.viana-do-castelo.json", got)
	}
}

func TestLoad(t *testing.T) {
	dir := contestsDir(t)

	d, err := Load(dir, fleetRaceRequest())
	if err != nil {
		t.Fatal(err)
	}
	if d.Name != "Fleet race Auckland" || len(d.Waypoints) != 3 || len(d.Boundary) != 2 {
		t.Errorf("Load() = %+v", d)
	}
	if d.Waypoints[2].Altitude != 0 || d.Waypoints[1].Radius != 15 {
		t.Errorf("Load() waypoints = %+v", d.Waypoints)
	}
	if string(d.Extra["timeLimit"]) != "3600" {
		t.Errorf("Load() extra = %v; want timeLimit", d.Extra)
	}

	out, err := json.Marshal(d)
	if err != nil {
		t.Fatal(err)
	}
	var back map[string]interface{}
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatal(err)
	}
	if back["timeLimit"] != 3600.0 || back["name"] != "Fleet race Auckland" {
		t.Errorf("Marshal() = %s", out)
	}

	r := fleetRaceRequest()
	r.Type = "station-keeping"
	if _, err := Load(dir, r); !errors.Is(err, ErrInvalidDefinition) {
		t.Errorf("Load(broken json) = %v; want ErrInvalidDefinition", err)
	}

	r.Type = "area-scanning"
	if _, err := Load(dir, r); !errors.Is(err, ErrInvalidDefinition) || !errors.Is(err, latlon.ErrInvalidLatitude) {
		t.Errorf("Load(waypoint without latitude) = %v; want ErrInvalidDefinition and ErrInvalidLatitude", err)
	}

	r.Location = "viana-do-castelo"
	if _, err := Load(dir, r); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Load(missing) = %v; want ErrNotExist", err)
	}
}

func TestRequestContest(t *testing.T) {
	n := &fakeNotifier{messages: make(chan string, 4)}
	m := NewManager(contestsDir(t), newStore(t), WithNotifier(n))

	if _, err := m.Current(); !errors.Is(err, ErrNoContest) {
		t.Errorf("Current() before load = %v; want ErrNoContest", err)
	}
	if _, err := m.Status(latlon.MustNew(0, 0)); !errors.Is(err, ErrNoContest) {
		t.Errorf("Status() before load = %v; want ErrNoContest", err)
	}

	if err := m.Handle(fleetRaceRequest()); err != nil {
		t.Fatal(err)
	}
	if got := n.wait(t); got != "Contest Fleet race Auckland loaded, 3 waypoints" {
		t.Errorf("notification = %q", got)
	}

	v, err := m.Current()
	if err != nil {
		t.Fatal(err)
	}
	if v.Type != "new-contest" || v.Contest.Name != "Fleet race Auckland" || len(v.Course.Waypoints) != 3 || v.Course.Cursor != 0 {
		t.Errorf("Current() = %+v", v)
	}

	none := fleetRaceRequest()
	none.Type = TypeNone
	if err := m.Handle(none); err != nil {
		t.Errorf("Handle(none) = %v; want nil", err)
	}
	if v, _ := m.Current(); v.Contest.Name != "Fleet race Auckland" {
		t.Errorf("Handle(none) replaced the contest with %s", v.Contest.Name)
	}

	bad := fleetRaceRequest()
	bad.Type = "obstacle-avoidance"
	if err := m.Handle(bad); !errors.Is(err, ErrInvalidDefinition) || !errors.Is(err, latlon.ErrInvalidLatitude) {
		t.Errorf("Handle(invalid waypoint) = %v; want ErrInvalidDefinition", err)
	}
}

func TestRequestContestAppliesState(t *testing.T) {
	store := newStore(t)
	if err := store.Save([]bool{true, true}); err != nil {
		t.Fatal(err)
	}
	m := NewManager(contestsDir(t), store)
	if err := m.RequestContest(fleetRaceRequest()); err != nil {
		t.Fatal(err)
	}

	v, _ := m.Current()
	if v.Course.Cursor != 2 {
		t.Errorf("Cursor = %d; want 2", v.Course.Cursor)
	}
	if !v.Contest.Waypoints[0].Achieved || !v.Contest.Waypoints[1].Achieved || v.Contest.Waypoints[2].Achieved {
		t.Errorf("contest waypoints = %+v", v.Contest.Waypoints)
	}
}

func TestUpdateAndResetState(t *testing.T) {
	store := newStore(t)
	m := NewManager(contestsDir(t), store)

	// without a contest only the store is updated
	if err := m.Handle(Request{Action: ActionUpdateState, State: []bool{true}}); err != nil {
		t.Fatal(err)
	}
	got, _ := store.Load()
	if !reflect.DeepEqual(got.Indices(), []int{0}) {
		t.Errorf("store = %v; want [0]", got.Indices())
	}

	if err := m.RequestContest(fleetRaceRequest()); err != nil {
		t.Fatal(err)
	}
	if err := m.UpdateState([]bool{true, true, false}); err != nil {
		t.Fatal(err)
	}
	v, _ := m.Current()
	if v.Course.Cursor != 2 {
		t.Errorf("Cursor after update = %d; want 2", v.Course.Cursor)
	}
	got, _ = store.Load()
	if !reflect.DeepEqual(got.Indices(), []int{0, 1}) {
		t.Errorf("store = %v; want [0 1]", got.Indices())
	}

	if err := m.Handle(Request{Action: ActionResetState}); err != nil {
		t.Fatal(err)
	}
	v, _ = m.Current()
	if v.Course.Cursor != 0 {
		t.Errorf("Cursor after reset = %d; want 0", v.Course.Cursor)
	}
	got, _ = store.Load()
	if len(got) != 0 {
		t.Errorf("store after reset = %v; want none", got.Indices())
	}
}

func TestNavigation(t *testing.T) {
	n := &fakeNotifier{messages: make(chan string, 4)}
	mt := &fakeMetrics{}
	m := NewManager(contestsDir(t), nil, WithNotifier(n), WithMetrics(mt))
	if err := m.RequestContest(fleetRaceRequest()); err != nil {
		t.Fatal(err)
	}
	n.wait(t)

	start := latlon.MustNew(-36.840, 174.760)
	s, err := m.Status(start)
	if err != nil {
		t.Fatal(err)
	}
	if !s.Achieved || s.Waypoint != 1 {
		t.Errorf("Status(start) = %+v; want waypoint 1 achieved", s)
	}

	s, err = m.Advance(start)
	if err != nil {
		t.Fatal(err)
	}
	if s.Waypoint != 2 || s.Achieved {
		t.Errorf("Advance(start) = %+v; want waypoint 2", s)
	}
	s, _ = m.Advance(start)
	if s.Waypoint != 2 {
		t.Errorf("Advance(away) = %+v; want to stay on waypoint 2", s)
	}

	if _, err := m.GoTo(7, start); !errors.Is(err, course.ErrIndexOutOfRange) {
		t.Errorf("GoTo(7) = %v; want ErrIndexOutOfRange", err)
	}
	if _, err := m.GoTo(-1, start); err != nil {
		t.Fatal(err)
	}
	s, err = m.Next(start)
	if err != nil {
		t.Fatal(err)
	}
	if s.Waypoint != 1 {
		t.Errorf("Next(last) = %+v; want waypoint 1", s)
	}
	if got := n.wait(t); got != "Course Fleet race Auckland completed" {
		t.Errorf("notification = %q", got)
	}

	s, _ = m.Nearest(latlon.MustNew(-36.845, 174.765))
	if s.Waypoint != 2 {
		t.Errorf("Nearest = %+v; want waypoint 2", s)
	}

	mt.mu.Lock()
	defer mt.mu.Unlock()
	if mt.achieved != 4 || mt.restarts != 1 || mt.waypoint != 2 {
		t.Errorf("metrics = achieved %d, restarts %d, waypoint %d; want 4, 1, 2", mt.achieved, mt.restarts, mt.waypoint)
	}
}

func TestCheckpoint(t *testing.T) {
	store := newStore(t)
	mt := &fakeMetrics{}
	m := NewManager(contestsDir(t), store, WithMetrics(mt))

	if err := m.Checkpoint(); err != nil {
		t.Errorf("Checkpoint() without contest = %v; want nil", err)
	}

	if err := m.RequestContest(fleetRaceRequest()); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Next(latlon.MustNew(-36.840, 174.760)); err != nil {
		t.Fatal(err)
	}

	// a marker lost behind the course's back
	if err := os.Remove(filepath.Join(store.Dir(), "0")); err != nil {
		t.Fatal(err)
	}
	if err := m.Checkpoint(); err != nil {
		t.Fatal(err)
	}
	got, _ := store.Load()
	if !reflect.DeepEqual(got.Indices(), []int{0}) {
		t.Errorf("store after checkpoint = %v; want [0]", got.Indices())
	}

	if err := os.RemoveAll(store.Dir()); err != nil {
		t.Fatal(err)
	}
	if err := m.Checkpoint(); err == nil {
		t.Errorf("Checkpoint() on a missing folder succeeded; want error")
	}
	mt.mu.Lock()
	defer mt.mu.Unlock()
	if mt.storeErrors != 1 {
		t.Errorf("store errors = %d; want 1", mt.storeErrors)
	}
}

func TestWind(t *testing.T) {
	m := NewManager(contestsDir(t), nil)
	if got := m.Wind(); got != (latlon.Velocity{}) {
		t.Errorf("Wind() before load = %+v; want zero", got)
	}

	r := fleetRaceRequest()
	if err := m.Handle(r); err != nil {
		t.Fatal(err)
	}
	if got := m.Wind(); got != (latlon.Velocity{}) {
		t.Errorf("Wind() without wind = %+v; want zero", got)
	}

	speed, heading := 0.8, 40.0
	r.WindSpeed, r.WindHeading = &speed, &heading
	if err := m.Handle(r); err != nil {
		t.Fatal(err)
	}
	if got := m.Wind(); got.Speed != 0.8 || got.Heading != 40 {
		t.Errorf("Wind() = %+v; want 0.8 m/s toward 40", got)
	}
}

func TestUpdateStateKeepsSavedFlags(t *testing.T) {
	store := newStore(t)
	m := NewManager(contestsDir(t), store)
	if err := m.RequestContest(fleetRaceRequest()); err != nil {
		t.Fatal(err)
	}

	for _, flags := range [][]bool{
		{true, true, true},
		{false, true, false, true},
	} {
		if err := m.UpdateState(flags); err != nil {
			t.Fatal(err)
		}
		got, _ := store.Load()
		var want []int
		for i, achieved := range flags {
			if achieved {
				want = append(want, i)
			}
		}
		if !reflect.DeepEqual(got.Indices(), want) {
			t.Errorf("store after update %v = %v; want %v", flags, got.Indices(), want)
		}
	}

	v, _ := m.Current()
	if v.Course.Cursor != 0 || v.Contest.Waypoints[0].Achieved || !v.Contest.Waypoints[1].Achieved {
		t.Errorf("course after update = cursor %d, %+v", v.Course.Cursor, v.Contest.Waypoints)
	}
}
