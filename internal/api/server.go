package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"triage/internal/catalog"
	"triage/internal/history"
	"triage/internal/logging"
	"triage/internal/metrics"
	"triage/internal/services/llm"
)

// Assistant is the slice of the LLM client the server uses.
type Assistant interface {
	Chat(ctx context.Context, transcript []llm.Turn, message string) (string, error)
	Predict(ctx context.Context, input llm.PredictionInput) (llm.Prediction, error)
	HealthCheck(ctx context.Context) error
}

// Options wires the server's collaborators.
type Options struct {
	Bind      string
	Token     string
	UserID    string
	Assistant Assistant
	Store     *history.Store
	Catalog   *catalog.Catalog
	Metrics   *metrics.Recorder
	Logger    *slog.Logger

	// PredictModel is recorded on stored predictions and echoed in responses.
	PredictModel string
}

// Server exposes the HTTP API.
type Server struct {
	opts    Options
	logger  *slog.Logger
	handler http.Handler

	listener net.Listener
	server   *http.Server
}

// New builds the server and its route table.
func New(opts Options) (*Server, error) {
	if opts.Assistant == nil {
		return nil, errors.New("api: assistant required")
	}
	if opts.Store == nil {
		return nil, errors.New("api: store required")
	}
	if opts.Catalog == nil {
		return nil, errors.New("api: catalog required")
	}
	if strings.TrimSpace(opts.UserID) == "" {
		return nil, errors.New("api: user id required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	srv := &Server{
		opts:   opts,
		logger: logger.With(logging.String(logging.FieldComponent, "api-server")),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/predict", srv.requireToken(srv.handlePredict))
	mux.HandleFunc("/api/v1/chat", srv.requireToken(srv.handleChat))
	mux.HandleFunc("/api/v1/history", srv.requireToken(srv.handleHistory))
	mux.HandleFunc("/api/v1/transcript", srv.requireToken(srv.handleTranscript))
	mux.HandleFunc("/healthz", srv.handleHealth)
	if opts.Metrics != nil {
		mux.Handle("/metrics", opts.Metrics.Handler())
	}
	srv.handler = mux

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

// Handler returns the route table, mainly for tests.
func (s *Server) Handler() http.Handler { return s.handler }

// Start listens on the configured bind address and serves until ctx ends.
func (s *Server) Start(ctx context.Context) error {
	bind := strings.TrimSpace(s.opts.Bind)
	if bind == "" {
		return errors.New("api: bind address required")
	}
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Stop shuts the server down, draining in-flight requests briefly.
func (s *Server) Stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// Addr reports the bound address after Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) requireToken(next http.HandlerFunc) http.HandlerFunc {
	token := strings.TrimSpace(s.opts.Token)
	if token == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		supplied, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(supplied)), []byte(token)) != 1 {
			s.writeError(w, http.StatusUnauthorized, "invalid or missing bearer token")
			return
		}
		next(w, r)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
