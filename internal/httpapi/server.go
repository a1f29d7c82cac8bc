// Package httpapi exposes the planner's two read-only HTTP endpoints
// (liveness probe and job lookup) the way the teacher's internal/server
// exposes /health and its /api/system/* monitoring routes: a chi router
// with the same middleware stack, generalized from a dashboard backend
// down to the handful of routes this orchestrator actually needs.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/arcfin/planner/internal/domain"
	"github.com/arcfin/planner/internal/metrics"
)

// Store is the read surface the API needs from the Store contract.
// Satisfied by *store.Store.
type Store interface {
	GetJob(ctx context.Context, id string) (*domain.Job, error)
}

// Server is the planner's HTTP surface.
type Server struct {
	router    *chi.Mux
	httpSrv   *http.Server
	store     Store
	mx        *metrics.Registry
	log       zerolog.Logger
	startedAt time.Time
}

// New builds a Server bound to addr (":8080"-style) with routes mounted.
func New(addr string, store Store, mx *metrics.Registry, log zerolog.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		store:     store,
		mx:        mx,
		log:       log.With().Str("component", "httpapi").Logger(),
		startedAt: time.Now(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(30 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Route("/jobs", func(r chi.Router) {
		r.Get("/{id}", s.handleGetJob)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

// Start runs the HTTP server until it errors or Shutdown is called.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpSrv.Addr).Msg("starting http server")
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}
