package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"solana-signal-pipeline/internal/ingest"
	"solana-signal-pipeline/internal/storage"
)

// Status is the /status payload.
type Status struct {
	UniverseSize        int             `json:"universe_size"`
	UniverseRefreshedAt time.Time       `json:"universe_refreshed_at"`
	StreamState         string          `json:"stream_state"`
	CatalogSpent        int             `json:"catalog_requests_spent"`
	Ingestion           ingest.Counters `json:"ingestion"`
}

// StatusSource assembles the current Status.
type StatusSource func() Status

// ServerOptions configures the ops HTTP server.
type ServerOptions struct {
	Addr      string
	Health    storage.Pinger
	Status    StatusSource
	Namespace string // metric namespace; defaults to signal_pipeline
	Logger    zerolog.Logger
}

// Server exposes /metrics, /health and /status.
type Server struct {
	http *http.Server
	log  zerolog.Logger
}

// NewServer builds the ops server.
func NewServer(opts ServerOptions) *Server {
	log := opts.Logger.With().Str("component", "ops").Logger()

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	// Per-server registry so tests can build servers independently.
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if opts.Status != nil {
		reg.MustRegister(NewCollector(opts.Namespace, opts.Status))
	}
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if opts.Health != nil {
			ctx, cancel := context.WithTimeout(req.Context(), 5*time.Second)
			defer cancel()
			if err := opts.Health.Ping(ctx); err != nil {
				http.Error(w, "store unreachable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		if opts.Status == nil {
			http.Error(w, "status unavailable", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(opts.Status()); err != nil {
			log.Warn().Err(err).Msg("status encode failed")
		}
	})

	return &Server{
		http: &http.Server{
			Addr:              opts.Addr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log,
	}
}

// Run serves until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.http.Addr).Msg("ops server listening")
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
