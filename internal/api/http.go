package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/go-hclog"
	"github.com/heysubinoy/opus/internal/command"
	"github.com/heysubinoy/opus/internal/store"
	"github.com/heysubinoy/opus/pkg/kv"
	"github.com/jmgilman/go/errors"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

// Server exposes the Service over HTTP/JSON.
type Server struct {
	svc      *Service
	metrics  *store.InstrumentedStore
	registry *prometheus.Registry
	httpPort string
	logger   hclog.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithMetrics enables GET /metrics with the store's counters.
func WithMetrics(m *store.InstrumentedStore) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithRegistry enables GET /metrics/prometheus over reg.
func WithRegistry(reg *prometheus.Registry) ServerOption {
	return func(s *Server) { s.registry = reg }
}

// WithHTTPPort sets the port used when redirecting clients to the leader.
func WithHTTPPort(port string) ServerOption {
	return func(s *Server) { s.httpPort = port }
}

// WithHTTPLogger sets the request logger.
func WithHTTPLogger(l hclog.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// NewServer creates a new HTTP server over svc.
func NewServer(svc *Service, opts ...ServerOption) *Server {
	s := &Server{
		svc:      svc,
		httpPort: "8080",
		logger:   hclog.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer, s.logRequests)

	r.Post("/login", s.handleLogin)
	r.Post("/register", s.handleRegister)
	r.Post("/logout", s.handleLogout)
	r.Post("/command", s.handleCommand)
	r.Get("/keys/{key}", s.handleKey)
	r.Post("/join", s.handleJoin)
	r.Get("/status", s.handleStatus)

	if s.metrics != nil {
		r.Get("/metrics", MetricsHandler(s.metrics))
	}
	if s.registry != nil {
		r.Method(http.MethodGet, "/metrics/prometheus", PrometheusHandler(s.registry))
	}
	return r
}

// Serve listens on addr until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    addr,
		Handler: s.Routes(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg.Go(func() error {
		s.logger.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return errors.Wrap(err, errors.CodeNetwork, "HTTP server failed")
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Debug("shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// handleLogin handles POST /login.
// Expects: {"username": "alice", "password": "..."}
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Username == "" {
		http.Error(w, "Missing username field", http.StatusBadRequest)
		return
	}

	token, id, err := s.svc.Login(req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Token: token, Username: id.Username, Role: id.Role})
}

// handleRegister handles POST /register. The body matches /login.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	token, id, err := s.svc.Register(req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{Token: token, Username: id.Username, Role: id.Role})
}

// handleLogout handles POST /logout with a bearer token.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if !s.svc.Logout(bearerFromRequest(r)) {
		writeError(w, ErrUnauthenticated)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCommand handles POST /command with a bearer token.
// Expects: {"args": ["lpush", "queue", "job-1"]}
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Args []string `json:"args"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if len(req.Args) == 0 {
		http.Error(w, "Missing args field", http.StatusBadRequest)
		return
	}

	reply, err := s.svc.Execute(r.Context(), bearerFromRequest(r), req.Args)
	if errors.Is(err, ErrNotLeader) {
		s.redirectToLeader(w, r)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]command.Reply{"result": reply})
}

// handleKey handles GET /keys/{key}, returning the key's kind and full value.
func (s *Server) handleKey(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == "" {
		http.Error(w, "Missing key parameter", http.StatusBadRequest)
		return
	}
	token := bearerFromRequest(r)

	kind, err := s.svc.Execute(r.Context(), token, []string{"type", key})
	if err != nil {
		writeError(w, err)
		return
	}

	var args []string
	switch kind.Str {
	case kv.KindScalar.String():
		args = []string{"get", key}
	case kv.KindSequence.String():
		args = []string{"lrange", key, "0", "-1"}
	case kv.KindCollection.String():
		args = []string{"smembers", key}
	default:
		http.Error(w, "Key not found", http.StatusNotFound)
		return
	}

	value, err := s.svc.Execute(r.Context(), token, args)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"key":   key,
		"kind":  kind.Str,
		"value": value,
	})
}

// handleJoin handles POST /join with an admin bearer token.
// Expects: {"id": "node-2", "addr": "10.0.0.2:7000"}
func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID   string `json:"id"`
		Addr string `json:"addr"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.ID == "" || req.Addr == "" {
		http.Error(w, "Missing id or addr field", http.StatusBadRequest)
		return
	}

	err := s.svc.Join(bearerFromRequest(r), req.ID, req.Addr)
	if errors.Is(err, ErrNotLeader) {
		s.redirectToLeader(w, r)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleStatus handles GET /status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"leader":    s.svc.Leader(),
		"is_leader": s.svc.IsLeader(),
		"keys":      s.svc.Keys(),
	})
}

// redirectToLeader sends a 307 so the client retries the same request,
// body included, against the leader's HTTP port.
func (s *Server) redirectToLeader(w http.ResponseWriter, r *http.Request) {
	leader := s.svc.Leader()
	if leader == "" {
		http.Error(w, "Not leader and no leader known", http.StatusServiceUnavailable)
		return
	}
	host := leader
	if h, _, err := net.SplitHostPort(leader); err == nil {
		host = h
	}
	w.Header().Set("Location", "http://"+net.JoinHostPort(host, s.httpPort)+r.URL.Path)
	http.Error(w, "Not leader. Redirect to leader.", http.StatusTemporaryRedirect)
}

func bearerFromRequest(r *http.Request) string {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return ""
	}
	return token
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError renders err as an errors.ErrorResponse with a matching status.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, httpStatus(err), errors.ToJSON(err))
}

func httpStatus(err error) int {
	switch errors.GetCode(err) {
	case kv.CodeWrongKind, errors.CodeAlreadyExists:
		return http.StatusConflict
	case errors.CodeInvalidInput:
		return http.StatusBadRequest
	case errors.CodeNotImplemented:
		return http.StatusNotImplemented
	case errors.CodeForbidden:
		return http.StatusForbidden
	case errors.CodeUnauthorized:
		return http.StatusUnauthorized
	case errors.CodeNotFound:
		return http.StatusNotFound
	case errors.CodeInvalidConfig:
		return http.StatusPreconditionFailed
	case errors.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
