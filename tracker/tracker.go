package tracker

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/a-bouts/course-server/course"
	"github.com/a-bouts/course-server/latlon"
	"github.com/a-bouts/course-server/motion"
)

var ErrSourceClosed = errors.New("position source closed")

// Fix is a position report. Speed is in m/s, Track in degrees.
type Fix struct {
	Position latlon.LatLon
	Speed    float64
	Track    float64
	Time     time.Time
}

// Source streams fixes until ctx is done.
type Source interface {
	Fixes(ctx context.Context) <-chan Fix
}

// Navigator advances the course when a position is within the radius of the
// current waypoint. *contest.Manager is one.
type Navigator interface {
	Advance(pos latlon.LatLon) (course.Status, error)
	Status(pos latlon.LatLon) (course.Status, error)
}

type Config struct {
	// DeadReckoning is how often the position is estimated from the last fix
	// when no new fix comes in. Zero disables it.
	DeadReckoning time.Duration
	// MaxFixAge stops the estimation once the last fix is older.
	MaxFixAge time.Duration
	Model     motion.Model
	// Wind, when set, adds the wind drift to the estimated moves.
	Wind func() latlon.Velocity
}

type Tracker struct {
	src    Source
	nav    Navigator
	config Config

	last     Fix
	hasFix   bool
	lastSeen time.Time
}

func New(src Source, nav Navigator, config Config) *Tracker {
	if config.Model == nil {
		config.Model = motion.Geodesic{}
	}
	if config.MaxFixAge <= 0 {
		config.MaxFixAge = time.Minute
	}
	return &Tracker{src: src, nav: nav, config: config}
}

// update reports pos to the navigator. Estimated positions only read the
// status, a waypoint is achieved on real fixes alone.
func (t *Tracker) update(pos latlon.LatLon, estimated bool) {
	advance := t.nav.Advance
	if estimated {
		advance = t.nav.Status
	}
	s, err := advance(pos)
	if err != nil {
		log.WithError(err).Debug("No status for position")
		return
	}
	log.WithFields(log.Fields{
		"position":  pos.String(),
		"estimated": estimated,
		"waypoint":  s.Waypoint,
		"distance":  s.Distance,
		"heading":   s.Heading,
	}).Debug("Course status")
}

func (t *Tracker) estimate(now time.Time) {
	if !t.hasFix {
		return
	}
	age := now.Sub(t.lastSeen)
	if age <= 0 || age > t.config.MaxFixAge {
		return
	}
	model := t.config.Model
	if t.config.Wind != nil {
		model = motion.Drift{Wind: t.config.Wind(), Model: model}
	}
	pos, err := model.Move(t.last.Position, t.last.Speed, t.last.Track, age)
	if err != nil {
		log.WithError(err).Warn("Error estimating position")
		return
	}
	t.update(pos, true)
}

// Run feeds every fix of the source to the navigator until ctx is done or
// the source closes.
func (t *Tracker) Run(ctx context.Context) error {
	fixes := t.src.Fixes(ctx)

	var tick <-chan time.Time
	if t.config.DeadReckoning > 0 {
		ticker := time.NewTicker(t.config.DeadReckoning)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fix, ok := <-fixes:
			if !ok {
				return ErrSourceClosed
			}
			t.last = fix
			t.hasFix = true
			t.lastSeen = time.Now()
			t.update(fix.Position, false)
		case now := <-tick:
			if now.Sub(t.lastSeen) >= t.config.DeadReckoning {
				t.estimate(now)
			}
		}
	}
}
