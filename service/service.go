// Package service serves the health and last-run status of a continuously
// running harness.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/rs/cors"

	"github.com/ruletest-dev/ruletest/logging"
	"github.com/ruletest-dev/ruletest/metrics"
)

const (
	HealthzPath = "/healthz"
	StatusPath  = "/status"

	readHeaderTimeout = 10 * time.Second
)

// StatusFunc returns the summary of the last finished run, or nil before the
// first run completes
type StatusFunc func() *logging.Summary

type Server struct {
	log      log.Logger
	status   StatusFunc
	server   *http.Server
	listener net.Listener
}

func New(logger log.Logger, status StatusFunc) *Server {
	if logger == nil {
		logger = log.New()
		logger.Error("No logger provided, using default")
	}
	return &Server{log: logger, status: status}
}

// Handler returns the routes wrapped in a permissive CORS policy so
// dashboards on other origins can poll the status
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(HealthzPath, s.handleHealthz)
	mux.HandleFunc(StatusPath, s.handleStatus)
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	})
	return c.Handler(mux)
}

// Start listens on addr and serves in the background
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		s.log.Info("starting healthz server", "addr", listener.Addr().String())
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("healthz server failed", "err", err)
			metrics.RecordErrorDetails("healthz_server", err)
		}
	}()
	return nil
}

// Addr is the bound address, useful when listening on port 0
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Write([]byte("OK")) //nolint:errcheck
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var summary *logging.Summary
	if s.status != nil {
		summary = s.status()
	}
	w.Header().Set("Content-Type", "application/json")
	if summary == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "pending"})
		return
	}
	if err := json.NewEncoder(w).Encode(summary); err != nil {
		s.log.Error("failed to encode status", "err", err)
	}
}
