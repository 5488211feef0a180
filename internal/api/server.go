package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/0xspreadcap/polymarket-maker/internal/config"
)

// Server runs the ambient health/metrics HTTP surface.
type Server struct {
	cfg     config.APIConfig
	metrics *Metrics
	server  *http.Server
	logger  *slog.Logger
}

// NewServer wires /health and /metrics against a mux, the same
// construction the teacher uses for its dashboard server, trimmed down
// to this spec's ambient observability surface.
func NewServer(cfg config.APIConfig, metrics *Metrics, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.registry, promhttp.HandlerOpts{}))

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		cfg:     cfg,
		metrics: metrics,
		server:  httpServer,
		logger:  logger.With("component", "api_server"),
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Start blocks serving until the server is stopped; returns nil on a
// graceful Stop, any other failure otherwise.
func (s *Server) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	s.logger.Info("api server starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if !s.cfg.Enabled {
		return nil
	}
	s.logger.Info("api server stopping")
	return s.server.Shutdown(ctx)
}
