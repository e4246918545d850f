package contest

import (
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/a-bouts/course-server/course"
	"github.com/a-bouts/course-server/latlon"
	"github.com/a-bouts/course-server/state"
)

var ErrNoContest = errors.New("no contest loaded")

// Notifier sends a short message to the shore crew. *xmpp.Xmpp is one.
type Notifier interface {
	Send(message string) error
}

// Metrics observes the course progress. *metrics.Collector is one.
type Metrics interface {
	Achieved(contest string)
	Restarted(contest string)
	StoreFailed()
	Navigating(waypoint int, distance float64)
}

// CourseView is the live state of the loaded course.
type CourseView struct {
	Average   latlon.LatLon     `json:"average"`
	Clockwise bool              `json:"clockwise"`
	Cursor    int               `json:"cursor"`
	Waypoints []course.Waypoint `json:"waypoints"`
}

// View is what is sent back to the controller when a contest is loaded.
type View struct {
	Type    string     `json:"type"`
	Request Request    `json:"request"`
	Contest Definition `json:"contest"`
	Course  CourseView `json:"course"`
}

type loaded struct {
	request    Request
	definition Definition
	course     *course.Manager
}

// Manager owns the course of the current contest and serialises every access
// to it.
type Manager struct {
	mu       sync.Mutex
	dir      string
	store    *state.Store
	notifier Notifier
	metrics  Metrics
	current  *loaded
}

type Option func(*Manager)

func WithNotifier(n Notifier) Option {
	return func(m *Manager) {
		m.notifier = n
	}
}

func WithMetrics(mt Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// NewManager reads definitions from dir. store may be nil, achievements are
// then only kept in memory.
func NewManager(dir string, store *state.Store, opts ...Option) *Manager {
	m := &Manager{dir: dir, store: store}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) notify(format string, args ...interface{}) {
	if m.notifier == nil {
		return
	}
	message := fmt.Sprintf(format, args...)
	go func() {
		if err := m.notifier.Send(message); err != nil {
			log.WithError(err).Warn("Error sending notification")
		}
	}()
}

// Handle validates r and dispatches it on its action.
func (m *Manager) Handle(r Request) error {
	if err := r.Validate(); err != nil {
		log.WithError(err).Error("Invalid command")
		return err
	}

	switch r.Action {
	case ActionRequestContest:
		return m.RequestContest(r)
	case ActionUpdateState:
		return m.UpdateState(r.State)
	case ActionResetState:
		return m.ResetState()
	}
	return &RequestError{Field: "action", Value: r.Action, Reason: "is unknown"}
}

func (m *Manager) hooks(name string) course.Hooks {
	return course.Hooks{
		OnAchieved: func(wp course.Waypoint) {
			if m.metrics != nil {
				m.metrics.Achieved(name)
			}
		},
		OnRestart: func() {
			if m.metrics != nil {
				m.metrics.Restarted(name)
			}
			m.notify("Course %s completed", name)
		},
		OnStoreError: func(err error) {
			if m.metrics != nil {
				m.metrics.StoreFailed()
			}
		},
	}
}

// RequestContest loads the definition matching r and replaces the current
// course. Persisted achievements are applied on top of the definition. A
// request of type none leaves the current contest in place.
func (m *Manager) RequestContest(r Request) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.Type == TypeNone {
		log.Info("Contest type none requested, nothing to load")
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	d, err := Load(m.dir, r)
	if err != nil {
		return err
	}

	var rec course.Recorder
	if m.store != nil {
		rec = m.store
	}
	c, err := course.New(d.Waypoints, rec, course.WithHooks(m.hooks(d.Name)))
	if err != nil {
		return fmt.Errorf("%w '%s': %w", ErrInvalidDefinition, d.Name, err)
	}

	m.current = &loaded{request: r, definition: d, course: c}

	log.WithFields(log.Fields{
		"contest":   d.Name,
		"waypoints": c.Len(),
		"cursor":    c.Cursor(),
	}).Info("Contest loaded")
	m.notify("Contest %s loaded, %d waypoints", d.Name, c.Len())
	return nil
}

// UpdateState saves flags as the achieved state of the waypoints and applies
// them to the current course.
func (m *Manager) UpdateState(flags []bool) error {
	if flags == nil {
		return &RequestError{Field: "state", Value: nil, Reason: "is not an array"}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	if m.store != nil {
		if err = m.store.Save(flags); err != nil {
			m.storeFailed()
			err = fmt.Errorf("update waypoint state: %w", err)
		}
	}

	if m.current != nil {
		achievements := make(map[int]bool, len(flags))
		for i, achieved := range flags {
			if achieved {
				achievements[i] = true
			}
		}
		m.current.course.SetAchievements(achievements)
	}
	return err
}

// ResetState clears every persisted achievement and restarts the current
// course.
func (m *Manager) ResetState() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	if m.store != nil {
		if err = m.store.ClearAll(); err != nil {
			m.storeFailed()
			err = fmt.Errorf("reset waypoint state: %w", err)
		}
	}
	if m.current != nil {
		m.current.course.Reset()
	}
	return err
}

func (m *Manager) storeFailed() {
	if m.metrics != nil {
		m.metrics.StoreFailed()
	}
}

func (m *Manager) navigate(f func(c *course.Manager) (course.Status, error)) (course.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return course.Status{}, ErrNoContest
	}
	s, err := f(m.current.course)
	if err != nil {
		return course.Status{}, err
	}
	if m.metrics != nil {
		m.metrics.Navigating(s.Waypoint, s.Distance)
	}
	return s, nil
}

func (m *Manager) Status(pos latlon.LatLon) (course.Status, error) {
	return m.navigate(func(c *course.Manager) (course.Status, error) {
		return c.Status(pos)
	})
}

func (m *Manager) Next(pos latlon.LatLon) (course.Status, error) {
	return m.navigate(func(c *course.Manager) (course.Status, error) {
		return c.Next(pos)
	})
}

func (m *Manager) Nearest(pos latlon.LatLon) (course.Status, error) {
	return m.navigate(func(c *course.Manager) (course.Status, error) {
		return c.Nearest(pos)
	})
}

func (m *Manager) GoTo(n int, pos latlon.LatLon) (course.Status, error) {
	return m.navigate(func(c *course.Manager) (course.Status, error) {
		return c.GoTo(n, pos)
	})
}

// Advance moves to the next waypoint when pos is within the radius of the
// current one, and returns the status toward the waypoint to steer to.
func (m *Manager) Advance(pos latlon.LatLon) (course.Status, error) {
	return m.navigate(func(c *course.Manager) (course.Status, error) {
		s, err := c.Status(pos)
		if err != nil || !s.Achieved {
			return s, err
		}
		log.Infof("Waypoint %d reached at %.1f m", s.Waypoint, s.Distance)
		return c.Next(pos)
	})
}

// Wind is the wind drift given with the current contest request, zero when
// there is none.
func (m *Manager) Wind() latlon.Velocity {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return latlon.Velocity{}
	}
	var v latlon.Velocity
	if r := m.current.request; r.WindSpeed != nil && r.WindHeading != nil {
		v.Speed = *r.WindSpeed
		v.Heading = *r.WindHeading
	}
	return v
}

// Checkpoint writes the in memory achievements to the store again, repairing
// markers lost by an earlier failed write.
func (m *Manager) Checkpoint() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil || m.store == nil {
		return nil
	}
	if err := m.store.Save(m.current.course.Achievements()); err != nil {
		m.storeFailed()
		return fmt.Errorf("checkpoint: %w", err)
	}
	return nil
}

// Current returns the loaded contest with its live course.
func (m *Manager) Current() (View, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return View{}, ErrNoContest
	}

	c := m.current.course
	d := m.current.definition
	d.Waypoints = append([]course.WaypointDef(nil), d.Waypoints...)
	for i, achieved := range c.Achievements() {
		d.Waypoints[i].Achieved = achieved
	}

	return View{
		Type:    "new-contest",
		Request: m.current.request,
		Contest: d,
		Course: CourseView{
			Average:   c.Average(),
			Clockwise: c.Clockwise(),
			Cursor:    c.Cursor(),
			Waypoints: c.Waypoints(),
		},
	}, nil
}
