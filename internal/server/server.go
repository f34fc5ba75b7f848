// Package server exposes the read-only HTTP surface (§6): JSON status,
// position, and signal endpoints plus a handful of operator actions
// that don't warrant a chat round-trip. It owns no trading state of
// its own — every handler reads through the same components the
// scheduler drives.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/jayanthsaib/stock-agent/internal/analysis"
	"github.com/jayanthsaib/stock-agent/internal/approval"
	"github.com/jayanthsaib/stock-agent/internal/broker"
	"github.com/jayanthsaib/stock-agent/internal/chat"
	"github.com/jayanthsaib/stock-agent/internal/ingestion"
	"github.com/jayanthsaib/stock-agent/internal/instruments"
	"github.com/jayanthsaib/stock-agent/internal/store"
)

// Config bundles every component a handler reads from. Assembled once
// in cmd/server/main.go and handed to New.
type Config struct {
	Port    int
	Log     zerolog.Logger
	DevMode bool

	Store      store.TradeStore
	Registry   *instruments.Registry
	Ingestor   *ingestion.Ingestor
	Gateway    *approval.Gateway
	Chat       chat.Chat
	ChatID     string
	Broker     broker.Broker

	Fundamental    analysis.FundamentalProvider
	FundamentalCfg analysis.FundamentalConfig
	TechnicalCfg   analysis.TechnicalConfig
	MacroCfg       analysis.MacroConfig
	ForeignFlow    analysis.ForeignFlowInput
	SectorLookup   func(symbol string) string
}

// Server is the chi-routed HTTP surface.
type Server struct {
	router  *chi.Mux
	server  *http.Server
	log     zerolog.Logger
	metrics *MetricsRegistry
	cfg     Config
}

// New builds a Server with routes and middleware wired, ready to
// Start.
func New(cfg Config) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		log:     cfg.Log.With().Str("component", "server").Logger(),
		metrics: NewMetricsRegistry(),
		cfg:     cfg,
	}

	if cfg.Gateway != nil {
		cfg.Gateway.WithMetrics(s.metrics)
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", s.metrics.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/positions", s.handlePositions)
		r.Get("/signals/pending", s.handleSignalsPending)
		r.Get("/signals/history", s.handleSignalsHistory)
		r.Get("/performance", s.handlePerformance)
		r.Get("/analyse/{symbol}", s.handleAnalyse)

		r.Post("/telegram/test", s.handleTelegramTest)
		r.Post("/broker/login", s.handleBrokerLogin)
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.metrics.HTTPRequests.WithLabelValues(r.Method, r.URL.Path, fmt.Sprintf("%d", ww.Status())).Inc()
		s.metrics.HTTPRequestDuration.WithLabelValues(r.URL.Path).Observe(time.Since(start).Seconds())

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

// Metrics exposes the server's metrics registry so the scheduler's
// jobs can record cycle-level counters against the same registry
// surfaced at /metrics.
func (s *Server) Metrics() *MetricsRegistry { return s.metrics }
