package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/mux"
	"github.com/pkg/profile"
	log "github.com/sirupsen/logrus"

	"github.com/a-bouts/course-server/api/model"
	"github.com/a-bouts/course-server/contest"
	"github.com/a-bouts/course-server/course"
	"github.com/a-bouts/course-server/latlon"
	"github.com/a-bouts/course-server/metrics"
)

type server struct {
	cpuprofile  bool
	profileLock sync.Mutex
	contests    *contest.Manager
}

// InitServer builds the router. collector may be nil, the routes are then
// not instrumented and /metrics is not served.
func InitServer(cpuprofile bool, contests *contest.Manager, collector *metrics.Collector) *mux.Router {

	router := mux.NewRouter().StrictSlash(true)

	s := &server{
		cpuprofile: cpuprofile,
		contests:   contests,
	}

	router.HandleFunc("/course/-/healthz", s.healthz).Methods(http.MethodGet)
	if collector != nil {
		router.Handle("/metrics", collector.Handler()).Methods(http.MethodGet)
	}

	apiV1 := router.PathPrefix("/course/api/v1").Subrouter()
	if collector != nil {
		apiV1.Use(collector.Middleware)
	}
	apiV1.HandleFunc("/commands", s.command).Methods(http.MethodPost)
	apiV1.HandleFunc("/contest", s.requestContest).Methods(http.MethodPost)
	apiV1.HandleFunc("/contest", s.contest).Methods(http.MethodGet)
	apiV1.HandleFunc("/contest/state", s.updateState).Methods(http.MethodPut)
	apiV1.HandleFunc("/contest/state", s.resetState).Methods(http.MethodDelete)
	apiV1.HandleFunc("/status", s.navigate("status", s.contests.Status)).Methods(http.MethodPost)
	apiV1.HandleFunc("/next", s.navigate("next", s.contests.Next)).Methods(http.MethodPost)
	apiV1.HandleFunc("/nearest", s.navigate("nearest", s.contests.Nearest)).Methods(http.MethodPost)
	apiV1.HandleFunc("/goto/{n}", s.goTo).Methods(http.MethodPost)

	return router
}

func requestLogger(r *http.Request, action string) *log.Entry {
	fields := log.Fields{
		"action": action,
	}
	if ip, err := getIp(r); err == nil {
		fields["IP"] = ip
	}
	return log.WithFields(fields)
}

func statusCode(err error) int {
	var re *contest.RequestError
	switch {
	case errors.As(err, &re),
		errors.Is(err, latlon.ErrInvalidLatitude),
		errors.Is(err, latlon.ErrInvalidLongitude),
		errors.Is(err, latlon.ErrNotFinite),
		errors.Is(err, course.ErrIndexOutOfRange):
		return http.StatusBadRequest
	case errors.Is(err, contest.ErrNoContest),
		errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, logger *log.Entry, err error) {
	code := statusCode(err)
	body := model.Error{Error: err.Error()}
	var re *contest.RequestError
	if errors.As(err, &re) {
		body.Field = re.Field
	}
	if code == http.StatusInternalServerError {
		logger.WithError(err).Error("Request failed")
	} else {
		logger.WithError(err).Warn("Request rejected")
	}
	writeJSON(w, code, body)
}

func badRequest(w http.ResponseWriter, logger *log.Entry, err error) {
	logger.WithError(err).Warn("Invalid body")
	writeJSON(w, http.StatusBadRequest, model.Error{Error: err.Error()})
}

func (s *server) healthz(w http.ResponseWriter, r *http.Request) {
	h := model.Health{Status: "Ok"}
	if v, err := s.contests.Current(); err == nil {
		h.Contest = v.Contest.Name
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *server) command(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r, "command")

	var c contest.Request
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		badRequest(w, logger, err)
		return
	}
	logger.Infof("Command '%s'", c.Action)

	if err := s.contests.Handle(c); err != nil {
		writeError(w, logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) requestContest(w http.ResponseWriter, r *http.Request) {
	if s.cpuprofile {
		s.profileLock.Lock()
		defer s.profileLock.Unlock()
		defer profile.Start(profile.Quiet).Stop()
	}

	logger := requestLogger(r, "request-contest")

	var c contest.Request
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		badRequest(w, logger, err)
		return
	}
	c.Action = contest.ActionRequestContest
	logger.Infof("Contest '%s' at '%s'", c.Type, c.Location)

	if err := s.contests.RequestContest(c); err != nil {
		writeError(w, logger, err)
		return
	}
	s.contest(w, r)
}

func (s *server) contest(w http.ResponseWriter, r *http.Request) {
	v, err := s.contests.Current()
	if err != nil {
		writeError(w, requestLogger(r, "contest"), err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *server) updateState(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r, "update-waypoint-state")

	var st model.State
	if err := json.NewDecoder(r.Body).Decode(&st); err != nil {
		badRequest(w, logger, err)
		return
	}
	if err := s.contests.Handle(contest.Request{Action: contest.ActionUpdateState, State: st.State}); err != nil {
		writeError(w, logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) resetState(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r, "reset-waypoint-state")

	if err := s.contests.ResetState(); err != nil {
		writeError(w, logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodePosition(r *http.Request) (latlon.LatLon, error) {
	var pos latlon.LatLon
	if err := json.NewDecoder(r.Body).Decode(&pos); err != nil {
		return latlon.LatLon{}, err
	}
	return pos, nil
}

func (s *server) navigate(action string, f func(pos latlon.LatLon) (course.Status, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := requestLogger(r, action)

		pos, err := decodePosition(r)
		if err != nil {
			badRequest(w, logger, err)
			return
		}
		st, err := f(pos)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		logger.Debugf("Waypoint %d at %.1f m heading %.1f°", st.Waypoint, st.Distance, st.Heading)
		writeJSON(w, http.StatusOK, st)
	}
}

func (s *server) goTo(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r, "goto")

	n, err := strconv.Atoi(mux.Vars(r)["n"])
	if err != nil {
		badRequest(w, logger, err)
		return
	}
	pos, err := decodePosition(r)
	if err != nil {
		badRequest(w, logger, err)
		return
	}
	st, err := s.contests.GoTo(n, pos)
	if err != nil {
		writeError(w, logger, err)
		return
	}
	logger.Infof("Goto %d, now on waypoint %d", n, st.Waypoint)
	writeJSON(w, http.StatusOK, st)
}

func getIp(r *http.Request) (string, error) {
	//Get IP from the X-REAL-IP header
	ip := r.Header.Get("X-REAL-IP")
	netIP := net.ParseIP(ip)
	if netIP != nil {
		return ip, nil
	}

	//Get IP from X-FORWARDED-FOR header
	ips := r.Header.Get("X-FORWARDED-FOR")
	splitIps := strings.Split(ips, ",")
	for _, ip := range splitIps {
		ip = strings.TrimSpace(ip)
		netIP := net.ParseIP(ip)
		if netIP != nil {
			return ip, nil
		}
	}

	//Get IP from RemoteAddr
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "", err
	}
	netIP = net.ParseIP(ip)
	if netIP != nil {
		return ip, nil
	}
	return "", fmt.Errorf("No valid ip found")
}
