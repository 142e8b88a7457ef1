package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"websocket-service/config"
	"websocket-service/internal/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var _ ports.HTTPServer = (*Server)(nil)

type Server struct {
	broker   config.BrokerClientConfig
	ws       http.Handler
	gatherer prometheus.Gatherer
	logger   *zap.Logger
	srv      *http.Server
}

// NewServer serves the websocket endpoint, the broker config and metrics on
// addr. A nil gatherer disables /metrics.
func NewServer(addr string, broker config.BrokerClientConfig, ws http.Handler, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	s := &Server{
		broker:   broker,
		ws:       ws,
		gatherer: gatherer,
		logger:   logger.Named("http"),
	}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// API endpoints
	mux.HandleFunc("/api/health", s.healthHandler)
	mux.HandleFunc("/api/config", s.configHandler)
	mux.Handle("/ws", s.ws)
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	return mux
}

// Start listens until Shutdown is called. Once Shutdown has been called,
// Start returns nil without listening.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections. Hijacked websocket connections are
// not tracked by net/http and must be closed through the hub.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// configHandler shows the broker client configuration in insertion order.
func (s *Server) configHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, s.broker)
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to encode response", zap.Error(err))
	}
}
