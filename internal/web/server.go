package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"leasesched/internal/busy"
	"leasesched/internal/calendar"
	"leasesched/internal/config"
	"leasesched/internal/invite"
	appLog "leasesched/internal/log"
	"leasesched/internal/model"
	"leasesched/internal/notify"
	"leasesched/internal/retry"
	"leasesched/internal/store"
)

const maxBodyBytes = 1 << 20

// Notifier announces negotiation changes; *notify.Dispatcher implements it.
type Notifier interface {
	Dispatch(ctx context.Context, ev notify.Event) retry.Result
}

// BusyCalendar reports conflicts with the team's calendars;
// *busy.Calendar implements it.
type BusyCalendar interface {
	Busy(start, end time.Time) bool
	Intervals() []busy.Interval
	Status() busy.Status
}

// Deps are the collaborators a Server works with.
type Deps struct {
	Availability store.AvailabilityStore
	Meetings     store.MeetingStore
	Notifier     Notifier

	// Busy is optional; without it no slot is reported busy.
	Busy BusyCalendar

	// Clock supplies "now" to every time-sensitive decision. Nil uses time.Now.
	Clock func() time.Time
}

// Server provides the HTTP API for availability editing and meeting
// negotiation.
type Server struct {
	cfg  *config.Config
	deps Deps
	mux  *http.ServeMux
	loc  *time.Location

	// locks serializes read-modify-write cycles per record key within this
	// process. Across processes the store is last-write-wins.
	locks sync.Map
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, deps Deps) *Server {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.NewDispatcher(notify.LogSender{}, cfg.Retry, InviteOptions(cfg))
	}
	loc, err := calendar.ResolveLocation(cfg.Timezone)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to UTC", err, "name", cfg.Timezone)
	}
	s := &Server{
		cfg:  cfg,
		deps: deps,
		mux:  http.NewServeMux(),
		loc:  loc,
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("GET /api/calendar/slots", s.handleSlots)
	s.mux.HandleFunc("GET /api/calendar/month", s.handleMonth)
	s.mux.HandleFunc("GET /api/calendar/busy", s.handleBusy)

	s.mux.HandleFunc("GET /api/listings/{id}/availability", s.handleGetAvailability)
	s.mux.HandleFunc("PUT /api/listings/{id}/availability", s.handlePutAvailability)
	s.mux.HandleFunc("POST /api/listings/{id}/availability/toggle", s.handleToggleAvailability)
	s.mux.HandleFunc("GET /api/listings/{id}/nights", s.handleNights)

	s.mux.HandleFunc("GET /api/proposals/{id}/meeting", s.handleGetMeeting)
	s.mux.HandleFunc("PUT /api/proposals/{id}/meeting", s.handleImportMeeting)
	s.mux.HandleFunc("GET /api/proposals/{id}/meeting/invite.ics", s.handleInvite)
	s.mux.HandleFunc("POST /api/proposals/{id}/meeting/{action}", s.handleMeetingAction)
	s.mux.HandleFunc("POST /api/proposals/{id}/stage", s.handleStage)
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="leasesched", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) now() time.Time { return s.deps.Clock() }

// lock returns the mutex guarding one record key.
func (s *Server) lock(key string) *sync.Mutex {
	m, _ := s.locks.LoadOrStore(key, &sync.Mutex{})
	return m.(*sync.Mutex)
}

// locationParam resolves the tz query parameter, defaulting to the
// configured zone. An unknown zone is a client error.
func (s *Server) locationParam(r *http.Request) (*time.Location, error) {
	name := r.URL.Query().Get("tz")
	if name == "" {
		return s.loc, nil
	}
	return time.LoadLocation(name)
}

// InviteOptions builds the invite template from the meeting config. Party
// identifiers that look like email addresses become attendees.
func InviteOptions(cfg *config.Config) notify.InviteOptions {
	return func(ev notify.Event) invite.Options {
		opts := invite.Options{
			Organizer: invite.Party{Email: cfg.Meeting.OrganizerEmail, Name: cfg.Meeting.OrganizerName},
			Duration:  time.Duration(cfg.Meeting.DurationMinutes) * time.Minute,
			Stamp:     ev.At,
		}
		for _, p := range partiesOf(ev.Request, ev.Actor) {
			opts.Attendees = append(opts.Attendees, invite.Party{Email: p})
		}
		return opts
	}
}

func partiesOf(req *model.MeetingRequest, actor string) []string {
	var out []string
	seen := map[string]bool{}
	add := func(p string) {
		if p == "" || seen[p] || !looksLikeEmail(p) {
			return
		}
		seen[p] = true
		out = append(out, p)
	}
	if req != nil {
		add(req.RequestedBy)
	}
	add(actor)
	return out
}

func looksLikeEmail(s string) bool {
	for i := 1; i < len(s)-1; i++ {
		if s[i] == '@' {
			return true
		}
	}
	return false
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
