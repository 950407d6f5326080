// Package api serves the device's local admin API: the current screen, the
// journal, and endpoints that inject button presses and network commands.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/handheld/internal/db"
	"github.com/banshee-data/handheld/internal/eventbus"
	"github.com/banshee-data/handheld/internal/httputil"
	"github.com/banshee-data/handheld/internal/monitoring"
	"github.com/banshee-data/handheld/internal/network"
	"github.com/banshee-data/handheld/internal/orchestrator"
	"github.com/banshee-data/handheld/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

var logf = monitoring.Named("api")

const defaultTransitionLimit = 20

// StateSource publishes the UI loop's state. *orchestrator.Orchestrator
// satisfies it.
type StateSource interface {
	Snapshot() orchestrator.Snapshot
}

// Commander queues network commands. *network.Handle satisfies it.
type Commander interface {
	Send(cmd network.Command) error
}

type Server struct {
	state   StateSource
	input   *eventbus.Sender
	network Commander
	journal *db.Journal
}

// NewServer serves state and injects input through its own clone of the bus
// sender. Close releases the clone.
func NewServer(state StateSource, input *eventbus.Sender) *Server {
	return &Server{state: state, input: input}
}

// SetNetwork enables /api/network.
func (s *Server) SetNetwork(c Commander) { s.network = c }

// SetJournal enables the journal-backed routes.
func (s *Server) SetJournal(j *db.Journal) { s.journal = j }

// Close releases the server's bus sender.
func (s *Server) Close() {
	if s.input != nil {
		s.input.Close()
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/state", s.showState)
	mux.HandleFunc("/api/input", s.injectInput)
	mux.HandleFunc("/api/network", s.sendNetworkCommand)
	mux.HandleFunc("/api/transitions", s.listTransitions)
	mux.HandleFunc("/api/motion/summary", s.showMotionSummary)
	mux.HandleFunc("/api/boots", s.listBoots)
	mux.HandleFunc("/api/version", s.showVersion)
	return mux
}

func (s *Server) showState(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	httputil.WriteJSONOK(w, s.state.Snapshot())
}

func (s *Server) injectInput(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodPost) {
		return
	}
	action := r.FormValue("action")
	in, ok := eventbus.ParseUserInput(action)
	if !ok {
		httputil.BadRequest(w, "unknown action "+strconv.Quote(action))
		return
	}
	if s.input == nil {
		httputil.ServiceUnavailable(w, "input unavailable")
		return
	}
	if err := s.input.Send(eventbus.UserInputEvent{Input: in}); err != nil {
		logf("input %s: %v", in, err)
		httputil.ServiceUnavailable(w, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"queued": in.String()})
}

func (s *Server) sendNetworkCommand(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodPost) {
		return
	}
	creds := network.Credentials{SSID: r.FormValue("ssid"), Password: r.FormValue("password")}
	cmd, err := network.ParseCommand(r.FormValue("cmd"), creds)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if cmd.Kind == eventbus.CommandConnect {
		if err := creds.Validate(); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
	}
	if s.network == nil {
		httputil.ServiceUnavailable(w, "network unavailable")
		return
	}
	if err := s.network.Send(cmd); err != nil {
		if errors.Is(err, network.ErrQueueFull) || errors.Is(err, network.ErrStopped) {
			httputil.ServiceUnavailable(w, err.Error())
			return
		}
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"queued": cmd.Kind.String()})
}

func (s *Server) requireJournal(w http.ResponseWriter) bool {
	if s.journal == nil {
		httputil.ServiceUnavailable(w, "journal disabled")
		return false
	}
	return true
}

func (s *Server) listTransitions(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) || !s.requireJournal(w) {
		return
	}
	limit := defaultTransitionLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			httputil.BadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}
	recs, err := s.journal.DB().RecentTransitions(limit)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if recs == nil {
		recs = []db.TransitionRecord{}
	}
	httputil.WriteJSONOK(w, recs)
}

// showMotionSummary reports per-state motion statistics for one boot. The
// boot parameter defaults to the running boot; "all" spans every boot.
func (s *Server) showMotionSummary(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) || !s.requireJournal(w) {
		return
	}
	boot := r.URL.Query().Get("boot")
	switch boot {
	case "":
		boot = s.journal.BootID()
	case "all":
		boot = ""
	}
	sums, err := s.journal.DB().MotionSummaries(boot)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if sums == nil {
		sums = []db.MotionSummary{}
	}
	httputil.WriteJSONOK(w, sums)
}

func (s *Server) listBoots(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) || !s.requireJournal(w) {
		return
	}
	boots, err := s.journal.DB().Boots()
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"current": s.journal.BootID(),
		"boots":   boots,
	})
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	httputil.WriteJSONOK(w, map[string]string{
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
	})
}
