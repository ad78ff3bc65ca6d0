package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/minibank/middleware/internal/audit"
	"github.com/minibank/middleware/internal/bank"
	"github.com/minibank/middleware/internal/breaker"
	"github.com/minibank/middleware/internal/config"
	"github.com/minibank/middleware/internal/database"
	"github.com/minibank/middleware/internal/serviceclient"
	"github.com/minibank/middleware/internal/web/handlers"
	"github.com/minibank/middleware/internal/web/middleware"
)

// Server is the gateway HTTP server
type Server struct {
	cfg      *config.Config
	router   *chi.Mux
	handlers *handlers.Handlers
}

// NewServer wires the gateway routes over the shared dependencies.
func NewServer(cfg *config.Config, db *database.DB, txnRouter *bank.Router,
	core *bank.CoreClient, service *serviceclient.Client, auditor *audit.Recorder,
	br *breaker.Manager) *Server {
	s := &Server{
		cfg:      cfg,
		router:   chi.NewRouter(),
		handlers: handlers.New(cfg, db, txnRouter, core, service, auditor, br),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := s.router
	h := s.handlers

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(s.cfg.Timeout + 15*time.Second))

	limiter := middleware.NewRateLimiter(s.cfg.RateLimit)

	// Public routes
	r.Get("/", h.Root)
	r.Get("/health", h.Health)

	// Interbank inbound: authenticated by partner API key inside the handler,
	// rate limited like everything else.
	r.Group(func(r chi.Router) {
		r.Use(limiter.Handler)
		r.Post("/api/v1/transactions/receive", h.ReceiveTransaction)
	})

	// Client routes: service token auth plus rate limiting
	r.Group(func(r chi.Router) {
		r.Use(limiter.Handler)
		r.Use(middleware.Auth(s.cfg.SecretKey))

		r.Post("/api/v1/transactions/execute", h.ExecuteTransaction)
		r.Post("/api/v1/transactions/external/execute", h.ExecuteExternalTransaction)
		r.Post("/api/v1/history/mutations", h.MutationHistory)
		r.Get("/api/v1/stats", h.Stats)
		r.Post("/api/v1/circuit-breaker/reset/{service}", h.ResetCircuit)

		r.Post("/core/accounts/sync", h.SyncAccount)
		r.Get("/core/accounts/balance", h.AccountBalance)
		r.Get("/core/accounts/detail", h.AccountDetail)
	})
}

// Router exposes the configured mux, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start runs the HTTP server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	server := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: s.cfg.Timeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}
