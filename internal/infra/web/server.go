// Package web is the operator surface: health, metrics, lane inspection and a
// drain trigger for controlled shutdown. It never touches the bot transport.
package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"telegram-bot-dispatch/internal/dispatch"
)

// Dispatcher is the slice of the dispatch core the ops server needs.
type Dispatcher interface {
	Lanes() []dispatch.LaneInfo
	Drain(timeout time.Duration) dispatch.DrainReport
}

type Server struct {
	disp         Dispatcher
	auth         *AuthManager
	apiKey       string
	drainTimeout time.Duration
	log          *zerolog.Logger
}

func NewServer(disp Dispatcher, auth *AuthManager, apiKey string, drainTimeout time.Duration, logger *zerolog.Logger) *Server {
	return &Server{
		disp:         disp,
		auth:         auth,
		apiKey:       apiKey,
		drainTimeout: drainTimeout,
		log:          logger,
	}
}

// Router builds the chi router with all ops routes.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(TraceID(), RequestLog(s.log), Recover(s.log))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Post("/api/v1/login", s.handleLogin)
	r.Group(func(r chi.Router) {
		r.Use(s.auth.RequireAuth)
		r.Get("/api/v1/lanes", s.handleLanes)
		r.Post("/api/v1/drain", s.handleDrain)
		r.Post("/api/v1/logout", s.handleLogout)
	})
	return r
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.apiKey == "" {
		s.log.Error().Msg("ops api key is not configured")
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	if r.Header.Get("X-API-Key") != s.apiKey {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	token, err := s.auth.Mint(w)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request) {
	s.auth.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLanes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.disp.Lanes())
}

// handleDrain stops update intake and waits for lanes to finish. The optional
// "timeout" query parameter overrides the configured drain budget.
func (s *Server) handleDrain(w http.ResponseWriter, r *http.Request) {
	timeout := s.drainTimeout
	if raw := r.URL.Query().Get("timeout"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			http.Error(w, "invalid timeout", http.StatusBadRequest)
			return
		}
		timeout = d
	}
	report := s.disp.Drain(timeout)
	s.log.Info().Int("completed", report.Completed).Ints64("abandoned", report.Abandoned).Msg("drain requested via ops api")
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
