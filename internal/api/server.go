// Package api serves the caller pages, the supervisor dashboard and the JSON
// API over HTTP.
package api

import (
	"bufio"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/h1v3-io/frontdesk/internal/desk"
	"github.com/h1v3-io/frontdesk/internal/logbuf"
	"github.com/h1v3-io/frontdesk/internal/store"
	"github.com/h1v3-io/frontdesk/pkg/protocol"
)

const adminCookie = "frontdesk_admin"

// LogQuerier abstracts log entry querying.
type LogQuerier interface {
	Query(f logbuf.Filter) []logbuf.Entry
}

// DeskService is what the server needs from the lifecycle manager.
type DeskService interface {
	Ask(ctx context.Context, caller, question, channel string) (*protocol.AskResult, error)
	ResolveTicket(ctx context.Context, ticketID, answer string) (*protocol.HelpRequest, error)
	GetTicket(ctx context.Context, ticketID string) (*protocol.HelpRequest, error)
	ListTickets(ctx context.Context, f store.Filter) ([]*protocol.HelpRequest, error)
	Dashboard(ctx context.Context, closedLimit int) (*desk.Dashboard, error)
	Entries(ctx context.Context) ([]*protocol.KBEntry, error)
	AddEntry(ctx context.Context, question, answer string) (*protocol.KBEntry, error)
	DeleteEntry(ctx context.Context, id int64) error
	JoinCredentials(ctx context.Context, ticketID string, role protocol.ParticipantRole, wait bool) (*protocol.JoinCredentials, error)
}

// Config holds API server configuration.
type Config struct {
	Host         string
	Port         int
	AdminKey     string // Bearer key for admin routes; empty leaves them open
	HistoryLimit int    // closed requests shown on the dashboard; 0 = all
}

// Options carries optional handlers mounted next to the core routes.
type Options struct {
	Logs    LogQuerier   // GET /api/logs
	Metrics http.Handler // GET /metrics
	Events  http.Handler // GET /admin/events (websocket)
	Intake  http.Handler // POST /api/intake/{name}
}

// Server is the frontdesk HTTP server.
type Server struct {
	desk   DeskService
	cfg    Config
	opts   Options
	logger *slog.Logger
	srv    *http.Server
}

// NewServer creates a new HTTP server.
func NewServer(d DeskService, cfg Config, logger *slog.Logger, opts Options) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		desk:   d,
		cfg:    cfg,
		opts:   opts,
		logger: logger,
	}

	mux := http.NewServeMux()

	// Caller surface.
	mux.HandleFunc("GET /{$}", s.handleCallerForm)
	mux.HandleFunc("POST /call", s.handleCall)
	mux.HandleFunc("POST /ask_voice", s.handleAskVoice)
	mux.HandleFunc("GET /join_token/{ticket_id}", s.handleJoinToken)

	// Supervisor surface.
	mux.HandleFunc("GET /admin", s.requireAdmin(s.handleAdmin))
	mux.HandleFunc("POST /admin/resolve", s.requireAdmin(s.handleAdminResolve))
	mux.HandleFunc("GET /admin/join_call/{ticket_id}", s.requireAdmin(s.handleAdminJoinCall))
	mux.HandleFunc("POST /admin/kb/add", s.requireAdmin(s.handleAdminKBAdd))
	mux.HandleFunc("POST /admin/kb/delete", s.requireAdmin(s.handleAdminKBDelete))
	if opts.Events != nil {
		mux.Handle("GET /admin/events", s.requireAdmin(opts.Events.ServeHTTP))
	}

	// JSON API.
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/ask", s.handleAsk)
	mux.HandleFunc("GET /api/tickets", s.requireAdmin(s.handleListTickets))
	mux.HandleFunc("GET /api/tickets/{ticket_id}", s.requireAdmin(s.handleGetTicket))
	mux.HandleFunc("POST /api/tickets/{ticket_id}/resolve", s.requireAdmin(s.handleResolveTicket))
	mux.HandleFunc("GET /api/kb", s.requireAdmin(s.handleListKB))
	mux.HandleFunc("POST /api/kb", s.requireAdmin(s.handleAddKB))
	mux.HandleFunc("DELETE /api/kb/{id}", s.requireAdmin(s.handleDeleteKB))
	mux.HandleFunc("GET /api/logs", s.requireAdmin(s.handleGetLogs))
	if opts.Intake != nil {
		mux.Handle("POST /api/intake/{name}", opts.Intake)
	}
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics)
	}

	s.srv = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.corsMiddleware(s.logRequests(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start begins listening. Blocks until context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.srv.Shutdown(shutCtx)
	}()

	s.logger.Info("http server starting", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// --- Middleware ---

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Hijack is needed by the websocket upgrade on /admin/events.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("api: response does not support hijacking")
	}
	return h.Hijack()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/health" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

// requireAdmin checks the admin key from the Authorization header, a ?key=
// query parameter (which also sets a session cookie for browsers), or that
// cookie.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AdminKey == "" {
			next(w, r)
			return
		}
		if key := r.URL.Query().Get("key"); key != "" && s.validKey(key) {
			http.SetCookie(w, &http.Cookie{
				Name:     adminCookie,
				Value:    key,
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteStrictMode,
			})
			next(w, r)
			return
		}
		if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") && s.validKey(strings.TrimPrefix(auth, "Bearer ")) {
			next(w, r)
			return
		}
		if c, err := r.Cookie(adminCookie); err == nil && s.validKey(c.Value) {
			next(w, r)
			return
		}
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized", Code: "unauthorized"})
	}
}

func (s *Server) validKey(k string) bool {
	return subtle.ConstantTimeCompare([]byte(k), []byte(s.cfg.AdminKey)) == 1
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decodeBody fills v from a JSON body, or calls fromForm with the parsed
// form for urlencoded posts. It writes a 400 and returns false on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, logger *slog.Logger, v any, fromForm func(url.Values)) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if wantsJSON(r) {
		if err := json.NewDecoder(r.Body).Decode(v); err != nil {
			writeError(w, logger, badRequest("invalid JSON"))
			return false
		}
		return true
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, logger, badRequest("invalid form"))
		return false
	}
	fromForm(r.PostForm)
	return true
}
