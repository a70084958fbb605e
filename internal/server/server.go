// Package server exposes the dashboard HTTP API: reconciliation
// reports, the operational health score, and the suggestion box.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/cascade-rentals/opsdash/internal/model"
	"github.com/cascade-rentals/opsdash/internal/store"
)

// Reconciler is the engine surface the API depends on.
type Reconciler interface {
	Reconcile(ctx context.Context, domain model.Domain, scope model.Scope) (*model.ReconciliationReport, error)
	Comprehensive(ctx context.Context, scope model.Scope) (*model.ComprehensiveReport, error)
}

// Config holds the HTTP listener settings.
type Config struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	RateLimit   float64  `yaml:"rate_limit" mapstructure:"rate_limit"`    // requests per second, 0 = unlimited
	RateBurst   int      `yaml:"rate_burst" mapstructure:"rate_burst"`    // burst size for the limiter
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// Server wires the engine and store behind a chi router.
type Server struct {
	engine Reconciler
	store  store.Store
	cfg    Config
	log    *zap.Logger
}

func New(engine Reconciler, st store.Store, cfg Config, log *zap.Logger) *Server {
	return &Server{engine: engine, store: st, cfg: cfg, log: log}
}

// Router builds the full route tree. Exposed separately so tests can
// drive it with httptest without opening a port.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.corsOrigins(),
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	if s.cfg.RateLimit > 0 {
		r.Use(throttle(rate.NewLimiter(rate.Limit(s.cfg.RateLimit), s.rateBurst())))
	}

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/reconciliation/{domain}", s.handleReconciliation)
		r.Get("/health-score", s.handleHealthScore)

		r.Route("/suggestions", func(r chi.Router) {
			r.Post("/", s.handleCreateSuggestion)
			r.Get("/", s.handleListSuggestions)
			r.Get("/{id}", s.handleGetSuggestion)
			r.Patch("/{id}", s.handleUpdateSuggestion)
			r.Delete("/{id}", s.handleDeleteSuggestion)
		})
	})

	return r
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.log.Info("starting server", zap.Int("port", s.cfg.Port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server: listen")
	}
	return nil
}

func (s *Server) corsOrigins() []string {
	if len(s.cfg.CORSOrigins) == 0 {
		return []string{"*"}
	}
	return s.cfg.CORSOrigins
}

func (s *Server) rateBurst() int {
	if s.cfg.RateBurst <= 0 {
		return 10
	}
	return s.cfg.RateBurst
}

// throttle rejects requests beyond the configured rate with 429.
func throttle(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestLogger logs one line per request with status and latency.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}
