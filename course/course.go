package course

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/a-bouts/course-server/latlon"
	"github.com/a-bouts/course-server/state"
)

var (
	ErrEmptyCourse     = errors.New("course needs at least one waypoint")
	ErrInvalidRadius   = errors.New("radius must be a finite, non negative number")
	ErrIndexOutOfRange = errors.New("waypoint index out of range")
	ErrUnreachable     = errors.New("waypoint index not reached")
)

// Recorder persists the achievement flags of a course. *state.Store is one.
type Recorder interface {
	Load() (state.Achievements, error)
	Save(full []bool) error
}

// Hooks are called synchronously by the Manager. Any of them may be nil.
type Hooks struct {
	OnAchieved   func(wp Waypoint)
	OnRestart    func()
	OnStoreError func(err error)
}

// Option configures a Manager.
type Option func(*Manager)

func WithHooks(h Hooks) Option {
	return func(m *Manager) {
		m.hooks = h
	}
}

// Status is the navigation status toward the current waypoint.
type Status struct {
	Waypoint int     `json:"waypoint"`
	Distance float64 `json:"distance"`
	Heading  float64 `json:"heading"`
	Achieved bool    `json:"achieved"`
	Radius   float64 `json:"radius"`
}

// Manager sequences the waypoints of a course. Once every waypoint has been
// achieved the course restarts from the first one with all flags cleared.
//
// A Manager is not safe for concurrent use.
type Manager struct {
	waypoints []Waypoint
	current   int
	average   latlon.LatLon
	clockwise bool
	rec       Recorder
	hooks     Hooks
}

// New builds the course. When rec is not nil the persisted achievements are
// applied on top of the Achieved flags of defs, and every later change is
// mirrored into rec.
func New(defs []WaypointDef, rec Recorder, opts ...Option) (*Manager, error) {
	if len(defs) == 0 {
		return nil, ErrEmptyCourse
	}

	m := &Manager{
		waypoints: make([]Waypoint, len(defs)),
		rec:       rec,
	}
	for _, opt := range opts {
		opt(m)
	}

	for i, def := range defs {
		wp, err := newWaypoint(def, i)
		if err != nil {
			return nil, err
		}
		m.waypoints[i] = wp
	}

	if rec != nil {
		achievements, err := rec.Load()
		if err != nil {
			log.WithError(err).Warn("Error loading waypoint state, starting from the definition")
			m.storeError(err)
		}
		for i := range m.waypoints {
			if achievements[i] {
				m.waypoints[i].Achieved = true
			}
		}
	}

	m.average = average(m.waypoints)
	m.clockwise = isClockwise(m.waypoints)
	m.measure()

	if m.nextActiveWaypoint() {
		m.persist()
	}

	return m, nil
}

func average(wps []Waypoint) latlon.LatLon {
	var lat, lon float64
	for _, wp := range wps {
		lat += wp.Lat
		lon += wp.Lon
	}
	n := float64(len(wps))
	return latlon.LatLon{Lat: lat / n, Lon: lon / n}
}

// isClockwise sums (x2-x1)(y2+y1) over consecutive waypoints, on raw
// longitude/latitude. The closing edge is not part of the sum.
func isClockwise(wps []Waypoint) bool {
	sum := 0.0
	for i := 1; i < len(wps); i++ {
		wp1, wp2 := wps[i-1], wps[i]
		sum += (wp2.Lon - wp1.Lon) * (wp2.Lat + wp1.Lat)
	}
	return sum > 0
}

func (m *Manager) measure() {
	finish := m.waypoints[len(m.waypoints)-1].LatLon
	prev := m.waypoints[0].LatLon
	courseDist := 0.0
	for i := range m.waypoints {
		wp := &m.waypoints[i]
		d, _ := latlon.Geodesic.DistanceAndBearingTo(wp.LatLon, prev)
		courseDist += d
		wp.CourseDistance = courseDist
		wp.DistanceToFinish, _ = latlon.Geodesic.DistanceAndBearingTo(wp.LatLon, finish)
		prev = wp.LatLon
	}
}

// nextActiveWaypoint moves the cursor forward to the first waypoint not yet
// achieved. Past the last one, every flag is cleared and the cursor goes back
// to the start; it then returns true.
func (m *Manager) nextActiveWaypoint() bool {
	i := m.current
	for ; i < len(m.waypoints); i++ {
		if !m.waypoints[i].Achieved {
			break
		}
	}

	if i < len(m.waypoints) {
		m.current = i
		return false
	}

	log.Info("All waypoints achieved, restart the course")
	for i := range m.waypoints {
		m.waypoints[i].Achieved = false
	}
	m.current = 0
	if m.hooks.OnRestart != nil {
		m.hooks.OnRestart()
	}
	return true
}

func (m *Manager) achieve() {
	m.normalize()
	wp := &m.waypoints[m.current]
	wp.Achieved = true
	log.Debugf("Waypoint %s achieved", wp)
	if m.hooks.OnAchieved != nil {
		m.hooks.OnAchieved(*wp)
	}
}

func (m *Manager) persist() {
	if m.rec == nil {
		return
	}
	if err := m.rec.Save(m.Achievements()); err != nil {
		log.WithError(err).Warn("Error saving waypoint state")
		m.storeError(err)
	}
}

func (m *Manager) storeError(err error) {
	if m.hooks.OnStoreError != nil {
		m.hooks.OnStoreError(err)
	}
}

func (m *Manager) normalize() {
	if m.current >= len(m.waypoints) || m.current < 0 {
		m.current = 0
	}
}

// Next marks the current waypoint as achieved and moves to the next one not
// yet achieved, in course order.
func (m *Manager) Next(pos latlon.LatLon) (Status, error) {
	if err := pos.Validate(); err != nil {
		return Status{}, err
	}
	m.achieve()
	m.nextActiveWaypoint()
	m.persist()
	return m.Status(pos)
}

// Nearest marks the current waypoint as achieved and moves to the waypoint
// closest to pos. On a tie the first one in course order wins.
func (m *Manager) Nearest(pos latlon.LatLon) (Status, error) {
	if err := pos.Validate(); err != nil {
		return Status{}, err
	}
	m.achieve()

	nearest := -1
	best := 0.0
	for i, wp := range m.waypoints {
		d, _ := latlon.Geodesic.DistanceAndBearingTo(wp.LatLon, pos)
		if nearest < 0 || d < best {
			nearest = i
			best = d
		}
	}
	m.current = nearest
	log.Debugf("Nearest waypoint %s at %.1f m", m.waypoints[nearest], best)

	m.persist()
	return m.Status(pos)
}

// Status returns the distance and heading from pos to the current waypoint.
// The waypoint counts as achieved when pos is strictly inside its radius.
func (m *Manager) Status(pos latlon.LatLon) (Status, error) {
	wp := m.Current()
	c, err := pos.DistanceAndHeadingTo(wp.LatLon)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Waypoint: wp.Number,
		Distance: c.Distance,
		Heading:  c.Heading,
		Achieved: c.Distance < wp.Radius,
		Radius:   wp.Radius,
	}, nil
}

// GoTo calls Next until the cursor reaches index n. A negative n counts from
// the end of the course.
func (m *Manager) GoTo(n int, pos latlon.LatLon) (Status, error) {
	length := len(m.waypoints)
	if n < 0 {
		n += length
	}
	if n < 0 || n >= length {
		return Status{}, fmt.Errorf("goto %d of %d waypoints: %w", n, length, ErrIndexOutOfRange)
	}
	if err := pos.Validate(); err != nil {
		return Status{}, err
	}

	m.normalize()
	// the cursor wraps at most once, then reaches n in at most n steps
	for steps := 0; m.current != n; steps++ {
		if steps >= 2*length {
			m.persist()
			return Status{}, fmt.Errorf("goto %d after %d steps: %w", n, steps, ErrUnreachable)
		}
		m.achieve()
		m.nextActiveWaypoint()
	}

	m.persist()
	return m.Status(pos)
}

// Current returns the waypoint being navigated to.
func (m *Manager) Current() Waypoint {
	m.normalize()
	return m.waypoints[m.current]
}

// Previous returns the waypoint before the current one, wrapping to the last.
func (m *Manager) Previous() Waypoint {
	m.normalize()
	prev := m.current - 1
	if prev < 0 {
		prev = len(m.waypoints) - 1
	}
	return m.waypoints[prev]
}

// PeekNext returns the waypoint after the current one, wrapping to the first.
func (m *Manager) PeekNext() Waypoint {
	m.normalize()
	return m.waypoints[(m.current+1)%len(m.waypoints)]
}

// Achievements returns the achieved flag of every waypoint, in course order.
func (m *Manager) Achievements() []bool {
	flags := make([]bool, len(m.waypoints))
	for i, wp := range m.waypoints {
		flags[i] = wp.Achieved
	}
	return flags
}

// SetAchievements replaces every achieved flag with achievements and moves
// the cursor to the first waypoint not achieved, or to the first one when
// all are. Indexes beyond the course are ignored. Nothing is written to the
// Recorder: the caller has already stored these flags, and a full course
// only restarts on the next advancement.
func (m *Manager) SetAchievements(achievements map[int]bool) {
	m.current = 0
	for i := len(m.waypoints) - 1; i >= 0; i-- {
		m.waypoints[i].Achieved = achievements[i]
		if !achievements[i] {
			m.current = i
		}
	}
}

// Reset clears every achieved flag and restarts from the first waypoint.
func (m *Manager) Reset() {
	for i := range m.waypoints {
		m.waypoints[i].Achieved = false
	}
	m.current = 0
	m.persist()
}

// Average is the centroid of the waypoints: the plain mean of latitudes and
// longitudes, which is only meaningful for a small course away from the
// antimeridian.
func (m *Manager) Average() latlon.LatLon {
	return m.average
}

func (m *Manager) Clockwise() bool {
	return m.clockwise
}

func (m *Manager) Cursor() int {
	m.normalize()
	return m.current
}

func (m *Manager) Len() int {
	return len(m.waypoints)
}

// Waypoints returns a copy of the waypoints.
func (m *Manager) Waypoints() []Waypoint {
	wps := make([]Waypoint, len(m.waypoints))
	copy(wps, m.waypoints)
	return wps
}
