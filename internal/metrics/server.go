package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthFunc reports whether the process is healthy. A nil HealthFunc
// disables the /health route.
type HealthFunc func(ctx context.Context) error

// Server exposes metrics (and optionally /health) over HTTP.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// NewServer builds a server on port. path is the metrics route.
func NewServer(port int, path string, health HealthFunc, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		srv: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           Handler(path, health),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the metrics mux.
func Handler(path string, health HealthFunc) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())

	if health != nil {
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()

			if err := health(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				fmt.Fprintf(w, "unhealthy: %v\n", err)
				return
			}
			w.WriteHeader(http.StatusOK)
			fmt.Fprintln(w, "ok")
		})
	}
	return mux
}

// Start serves in the background.
func (s *Server) Start() {
	go func() {
		s.logger.Info("starting metrics server", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Error("metrics server error", "error", err)
		}
	}()
}

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
