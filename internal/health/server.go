package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
)

// StatsFunc returns a JSON-serializable snapshot for the /stats endpoint
type StatsFunc func() any

// Server provides HTTP health check and stats endpoints
type Server struct {
	server *http.Server
	logger *slog.Logger
}

// New creates a new health check server. stats may be nil, in which case
// /stats is not registered.
func New(addr string, stats StatsFunc, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: newMux(stats, logger),
		},
		logger: logger.With("component", "health"),
	}
}

func newMux(stats StatsFunc, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	if stats != nil {
		mux.HandleFunc("GET /stats", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewEncoder(w).Encode(stats()); err != nil {
				logger.Warn("failed to encode stats", "error", err)
			}
		})
	}

	return mux
}

// Handler exposes the routes for embedding in another server
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start begins serving HTTP requests
func (s *Server) Start() error {
	s.logger.Info("health check server listening", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down health check server")
	return s.server.Shutdown(ctx)
}
