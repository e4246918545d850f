package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/jasonlvhit/gocron"
	"github.com/peterbourgon/ff"
	log "github.com/sirupsen/logrus"

	"github.com/a-bouts/course-server/api"
	"github.com/a-bouts/course-server/contest"
	"github.com/a-bouts/course-server/metrics"
	"github.com/a-bouts/course-server/motion"
	"github.com/a-bouts/course-server/state"
	"github.com/a-bouts/course-server/tracker"
	"github.com/a-bouts/course-server/xmpp"
)

func main() {

	fs := flag.NewFlagSet("course-server", flag.ExitOnError)
	var (
		listen        = fs.String("listen", ":8888", "http listen address")
		contestsDir   = fs.String("contests-dir", "contests", "folder of the contest definitions")
		stateDir      = fs.String("state-dir", "state", "folder of the achieved waypoint markers")
		loadDefault   = fs.Bool("load-default-contest", false, "load the default contest at startup")
		checkpoint    = fs.Uint64("checkpoint", 30, "seconds between two writes of the waypoint state, 0 to disable")
		logLevel      = fs.String("log-level", "info", "log level")
		logFile       = fs.String("log-file", "", "also log to this rotated file")
		logMaxSize    = fs.Int("log-max-size", 64, "log file size in MB before rotation")
		logMaxAge     = fs.Int("log-max-age", 14, "days to keep rotated log files")
		logJSON       = fs.Bool("log-json", false, "log as json")
		gpsdAddr      = fs.String("gpsd", "", "gpsd address, e.g. localhost:2947; empty disables tracking")
		deadReckoning = fs.Duration("dead-reckoning", 0, "estimate the position this often between gps fixes, 0 to disable")
		cpuprofile    = fs.Bool("cpuprofile", false, "profile contest loading")
		xmppHost      = fs.String("xmpp-host", "", "")
		xmppJid       = fs.String("xmpp-jid", "", "")
		xmppPassword  = fs.String("xmpp-password", "", "")
		xmppTo        = fs.String("xmpp-to", "", "")
		_             = fs.String("config", "", "config file (optional)")
	)
	ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarNoPrefix(),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
	)

	closer, err := setupLogger(logConfig{
		level:   *logLevel,
		file:    *logFile,
		maxSize: *logMaxSize,
		maxAge:  *logMaxAge,
		json:    *logJSON,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log configuration: %s\n", err)
		os.Exit(2)
	}
	defer closer.Close()

	store, err := state.New(*stateDir)
	if err != nil {
		log.WithError(err).Fatal("Error opening waypoint state")
	}

	collector, err := metrics.New(nil)
	if err != nil {
		log.WithError(err).Fatal("Error registering metrics")
	}

	opts := []contest.Option{contest.WithMetrics(collector)}
	x := &xmpp.Xmpp{Config: xmpp.Config{Host: *xmppHost, Jid: *xmppJid, Password: *xmppPassword, To: *xmppTo}}
	if x.Config.Enabled() {
		opts = append(opts, contest.WithNotifier(x))
	}
	contests := contest.NewManager(*contestsDir, store, opts...)

	if *loadDefault {
		if err := contests.Handle(contest.DefaultRequest()); err != nil {
			log.WithError(err).Error("Error loading the default contest")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *checkpoint > 0 {
		s := gocron.NewScheduler()
		s.Every(*checkpoint).Seconds().Do(func() {
			if err := contests.Checkpoint(); err != nil {
				log.WithError(err).Warn("Checkpoint failed")
			}
		})
		go s.Start()
		defer s.Clear()
	}

	if *gpsdAddr != "" {
		t := tracker.New(tracker.NewGPSD(*gpsdAddr), contests, tracker.Config{
			DeadReckoning: *deadReckoning,
			Model:         motion.Geodesic{},
			Wind:          contests.Wind,
		})
		go func() {
			if err := t.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("Tracker stopped")
			}
		}()
	}

	router := api.InitServer(*cpuprofile, contests, collector)
	h := handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(router)
	h = handlers.CORS(
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)(h)
	h = handlers.LoggingHandler(log.StandardLogger().WriterLevel(log.DebugLevel), h)

	srv := &http.Server{Addr: *listen, Handler: h}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()

	log.Infof("Start server on '%s'", *listen)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("Server stopped")
	}
	log.Info("Server stopped")
}
