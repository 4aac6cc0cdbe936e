package faker

import (
	"encoding/json"
	"net/http"
	"regexp"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Options configure a faker instance.
type Options struct {
	LoginCode string // the 4-digit code the verify step accepts
	PageSize  int    // list feed page size
}

// Server fakes the production API surface the exporter talks to: the
// two-step web login and the WebSocket subscription endpoint, answered
// from a fixture.
type Server struct {
	opts    Options
	fixture *Fixture
	logger  *zap.Logger

	mu        sync.Mutex
	processes map[string]bool // open login processes
	sessions  map[string]bool // issued session tokens
}

func NewServer(fixture *Fixture, opts Options, logger *zap.Logger) *Server {
	if opts.LoginCode == "" {
		opts.LoginCode = "1234"
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 3
	}
	return &Server{
		opts:      opts,
		fixture:   fixture,
		logger:    logger,
		processes: make(map[string]bool),
		sessions:  make(map[string]bool),
	}
}

// Router builds the HTTP surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(zapLoggerMiddleware(s.logger))

	r.Post("/api/v1/auth/web/login", s.handleLogin)
	r.Post("/api/v1/auth/web/login/{processID}/{code}", s.handleVerify)
	r.Get("/", s.handleWS)

	return r
}

func zapLoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
			)
			next.ServeHTTP(w, r)
		})
	}
}

var (
	phonePattern = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)
	pinPattern   = regexp.MustCompile(`^\d{4}$`)
)

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PhoneNumber string `json:"phoneNumber"`
		PIN         string `json:"pin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR")
		return
	}
	if !phonePattern.MatchString(body.PhoneNumber) || !pinPattern.MatchString(body.PIN) {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR")
		return
	}

	processID := uuid.NewString()
	s.mu.Lock()
	s.processes[processID] = true
	s.mu.Unlock()

	s.logger.Info("login initiated", zap.String("processId", processID))
	writeJSON(w, http.StatusOK, map[string]any{
		"processId":          processID,
		"countdownInSeconds": 60,
		"2fa":                "SMS",
	})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	processID := chi.URLParam(r, "processID")
	code := chi.URLParam(r, "code")

	s.mu.Lock()
	known := s.processes[processID]
	s.mu.Unlock()
	if !known {
		writeError(w, http.StatusNotFound, "VALIDATION_CODE_EXPIRED")
		return
	}
	if code != s.opts.LoginCode {
		writeError(w, http.StatusBadRequest, "VALIDATION_CODE_INVALID")
		return
	}

	token := uuid.NewString()
	s.mu.Lock()
	delete(s.processes, processID)
	s.sessions[token] = true
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     "tr_session",
		Value:    token,
		Path:     "/",
		HttpOnly: true,
	})
	s.logger.Info("login verified", zap.String("processId", processID))
	writeJSON(w, http.StatusOK, map[string]any{})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true }, // Allow all origins for faker
}

// handleWS upgrades the connection and serves the subscription protocol on
// it. Web sessions present their cookie on the upgrade request; connections
// without one pass as app-mode logins.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie("tr_session"); err == nil {
		s.mu.Lock()
		valid := s.sessions[cookie.Value]
		s.mu.Unlock()
		if !valid {
			s.logger.Warn("rejecting unknown session", zap.String("token", cookie.Value))
			http.Error(w, "invalid session", http.StatusUnauthorized)
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	sess := &session{
		conn:     conn,
		fixture:  s.fixture,
		pageSize: s.opts.PageSize,
		logger:   s.logger,
	}
	sess.run()
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]any{
		"errors": []map[string]any{{"errorCode": code}},
	})
}
