// Package server exposes a time log ledger over the JSON API spoken by
// timelog.HTTPClient, plus a websocket feed of committed transitions.
//
//	POST /v1/jobs/{id}/timelogs/{start|pause|resume|stop}
//	GET  /v1/jobs/{id}/timelogs
//	GET  /v1/jobs/{id}
//	GET  /v1/jobs
//	GET  /v1/events[?job=id]   (websocket)
//	GET  /health
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/aceteam-ai/shiftclock/internal/timelog"
)

// Server errors
var (
	// ErrServerAlreadyRunning indicates Start was called twice
	ErrServerAlreadyRunning = errors.New("server is already running")

	// ErrServerNotRunning indicates Stop was called before Start
	ErrServerNotRunning = errors.New("server is not running")
)

// maxBodyBytes bounds request bodies; only stop carries one
const maxBodyBytes = 64 << 10

// Catalog serves job lookups.
type Catalog interface {
	timelog.JobSource
	ListJobs(ctx context.Context) ([]timelog.Job, error)
}

// SyncReporter reports downstream delivery of completed sessions.
type SyncReporter interface {
	Health() timelog.SyncHealth
}

// Config holds configuration for the server.
type Config struct {
	// Addr is the listen address (default: ":8787")
	Addr string

	// Version is reported by /health
	Version string

	// Logs is the authoritative time log store (required)
	Logs timelog.Client

	// Jobs is the job catalog (required)
	Jobs Catalog

	// Hub receives websocket subscribers; nil disables /v1/events
	Hub *Hub

	// Sync is included in /health when set
	Sync SyncReporter

	// APIKeys accepted as bearer tokens. Empty disables authentication.
	APIKeys []string

	// RateLimitRPS and RateLimitBurst throttle mutating requests per client
	// (defaults: 5 and 10)
	RateLimitRPS   float64
	RateLimitBurst int

	// LogFn is an optional callback for logging
	LogFn func(level, msg string)
}

// Server is the HTTP front of the ledger.
type Server struct {
	cfg     Config
	limiter *RateLimiter
	router  *mux.Router

	upgrader websocket.Upgrader

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
}

// New creates a server. The rate limiter's cleanup goroutine starts
// immediately; Stop or Close releases it.
func New(cfg Config) (*Server, error) {
	if cfg.Logs == nil {
		return nil, fmt.Errorf("Logs is required")
	}
	if cfg.Jobs == nil {
		return nil, fmt.Errorf("Jobs is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8787"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 5
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 10
	}

	s := &Server{
		cfg:     cfg,
		limiter: NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// bearer auth already gates the route
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) log(level, format string, args ...any) {
	if s.cfg.LogFn != nil {
		s.cfg.LogFn(level, fmt.Sprintf(format, args...))
	}
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/v1").Subrouter()
	api.Use(s.authenticate)
	api.HandleFunc("/jobs", s.handleListJobs).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}", s.handleGetJob).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}/timelogs", s.handleListLogs).Methods(http.MethodGet)
	api.Handle("/jobs/{id}/timelogs/{action:start|pause|resume|stop}",
		s.rateLimit(http.HandlerFunc(s.handleAction))).Methods(http.MethodPost)
	if s.cfg.Hub != nil {
		api.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)
	}

	// mux does not inherit these into subrouters
	for _, router := range []*mux.Router{r, api} {
		router.NotFoundHandler = http.HandlerFunc(handleNotFound)
		router.MethodNotAllowedHandler = http.HandlerFunc(handleMethodNotAllowed)
	}
	return r
}

func handleNotFound(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusNotFound, "no such route")
}

func handleMethodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpServer != nil {
		return ErrServerAlreadyRunning
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.log("info", "listening on %s", ln.Addr())

	srv := s.httpServer
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log("error", "server error: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.cfg.Addr
	}
	return s.listener.Addr().String()
}

// Stop disconnects websocket clients and drains in-flight requests.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.httpServer = nil
	s.listener = nil
	s.mu.Unlock()
	if srv == nil {
		return ErrServerNotRunning
	}

	if s.cfg.Hub != nil {
		s.cfg.Hub.Close()
	}
	s.limiter.Stop()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.log("info", "server stopped")
	return nil
}

// Close releases resources for a server that was never started.
func (s *Server) Close() {
	s.limiter.Stop()
}

// authenticate enforces bearer API keys when any are configured
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.cfg.APIKeys) == 0 {
			next.ServeHTTP(w, r)
			return
		}
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		for _, key := range s.cfg.APIKeys {
			if token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(key)) == 1 {
				next.ServeHTTP(w, r)
				return
			}
		}
		writeError(w, http.StatusUnauthorized, timelog.ErrUnauthorized.Error())
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !s.limiter.Allow(ip) {
			s.log("warning", "rate limit exceeded for %s", ip)
			writeError(w, http.StatusTooManyRequests, timelog.ErrRateLimited.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := timelog.HealthResponse{Status: "ok", Version: s.cfg.Version}
	if s.cfg.Sync != nil {
		h := s.cfg.Sync.Health()
		resp.Sync = &h
		if h.ConsecutiveFailures > 0 {
			resp.Status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.cfg.Jobs.ListJobs(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	if jobs == nil {
		jobs = []timelog.Job{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.cfg.Jobs.GetJob(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := s.cfg.Logs.ListLogs(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

type stopRequest struct {
	Notes string `json:"notes"`
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	jobID, action := vars["id"], vars["action"]
	ctx := r.Context()

	var (
		tl  timelog.TimeLog
		err error
	)
	switch action {
	case "start":
		tl, err = s.cfg.Logs.Start(ctx, jobID)
	case "pause":
		tl, err = s.cfg.Logs.Pause(ctx, jobID)
	case "resume":
		tl, err = s.cfg.Logs.Resume(ctx, jobID)
	case "stop":
		var req stopRequest
		body, rerr := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if rerr != nil {
			writeError(w, http.StatusBadRequest, "failed to read request body")
			return
		}
		if len(strings.TrimSpace(string(body))) > 0 {
			if jerr := json.Unmarshal(body, &req); jerr != nil {
				writeError(w, http.StatusBadRequest, "invalid JSON body")
				return
			}
		}
		tl, err = s.cfg.Logs.Stop(ctx, jobID, req.Notes)
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tl)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		s.log("warning", "websocket upgrade failed: %v", err)
		return
	}
	s.cfg.Hub.serve(conn, r.URL.Query().Get("job"))
}

// fail writes err with the status the client maps back onto sentinels
func (s *Server) fail(w http.ResponseWriter, err error) {
	status := timelog.StatusCodeFor(err)
	if status >= http.StatusInternalServerError {
		s.log("error", "request failed: %v", err)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message, "status": status})
}
