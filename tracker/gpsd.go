package tracker

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stratoberry/go-gpsd"

	"github.com/a-bouts/course-server/latlon"
)

const DefaultGPSDAddr = "localhost:2947"

// GPSD streams the TPV reports of a gpsd daemon, reconnecting after Retry
// when the connection is lost.
type GPSD struct {
	Addr  string
	Retry time.Duration
}

func NewGPSD(addr string) *GPSD {
	if addr == "" {
		addr = DefaultGPSDAddr
	}
	return &GPSD{Addr: addr, Retry: 5 * time.Second}
}

// fixFromTPV keeps reports with at least a 2D fix and a valid position.
func fixFromTPV(tpv *gpsd.TPVReport, at time.Time) (Fix, bool) {
	if tpv == nil || tpv.Mode < gpsd.Mode2D {
		return Fix{}, false
	}
	pos, err := latlon.New(tpv.Lat, tpv.Lon, tpv.Alt)
	if err != nil {
		log.WithError(err).Debug("Ignore gpsd report")
		return Fix{}, false
	}
	return Fix{
		Position: pos,
		Speed:    tpv.Speed,
		Track:    latlon.Wrap180(tpv.Track),
		Time:     at,
	}, true
}

func (g *GPSD) Fixes(ctx context.Context) <-chan Fix {
	out := make(chan Fix)

	go func() {
		defer close(out)

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			session, err := gpsd.Dial(g.Addr)
			if err != nil {
				log.WithError(err).Warnf("Error connecting to gpsd at '%s'", g.Addr)
				select {
				case <-ctx.Done():
					return
				case <-time.After(g.Retry):
					continue
				}
			}
			log.Infof("Connected to gpsd at '%s'", g.Addr)

			session.AddFilter("TPV", func(r interface{}) {
				tpv, ok := r.(*gpsd.TPVReport)
				if !ok {
					return
				}
				fix, ok := fixFromTPV(tpv, time.Now())
				if !ok {
					return
				}
				select {
				case <-ctx.Done():
				case out <- fix:
				}
			})

			// go-gpsd has no Close, the connection goes away with the process
			done := session.Watch()
			select {
			case <-ctx.Done():
				return
			case <-done:
				log.Warnf("Lost gpsd at '%s'", g.Addr)
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(g.Retry):
			}
		}
	}()

	return out
}
