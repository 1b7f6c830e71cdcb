// Package api serves the public status page: aggregate bot stats as JSON,
// Prometheus metrics and the static website.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GamerGuyD3/WOM-Role-Sync-Bot/internal/storage"
)

const (
	never           = "Never"
	shutdownTimeout = 10 * time.Second
)

// StatsSource provides the aggregate counters
type StatsSource interface {
	LoadStats(ctx context.Context) (*storage.Stats, error)
}

// StatsResponse is the body of GET /api/stats
type StatsResponse struct {
	Servers        int    `json:"servers"`
	Groups         int    `json:"groups"`
	Users          int    `json:"users"`
	LastSyncTime   string `json:"last_sync_time"`
	LastGlobalSync string `json:"last_global_sync"`
}

// NewRouter builds the status site router. An empty websiteDir disables
// static file serving.
func NewRouter(stats StatsSource, websiteDir string) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(loggingMiddleware)

	r.Get("/api/stats", statsHandler(stats))
	r.Handle("/metrics", promhttp.Handler())

	if websiteDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(websiteDir)))
	}
	return r
}

func statsHandler(source StatsSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := source.LoadStats(r.Context())
		if err != nil {
			slog.Error("Failed to load stats", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load stats"})
			return
		}
		writeJSON(w, http.StatusOK, StatsResponse{
			Servers:        stats.Servers,
			Groups:         stats.Groups,
			Users:          stats.Users,
			LastSyncTime:   formatTime(stats.LastSync),
			LastGlobalSync: formatTime(stats.LastGlobalSync),
		})
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return never
	}
	return t.UTC().Format(time.RFC3339)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}

// Server runs the status site as a supervised service
type Server struct {
	server *http.Server
}

// NewServer creates a status server listening on addr
func NewServer(addr string, handler http.Handler) *Server {
	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Serve implements suture.Service
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.server.Addr, err)
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	slog.Info("Status server listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("status server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("status server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

// String implements fmt.Stringer
func (s *Server) String() string {
	return "status-server"
}
