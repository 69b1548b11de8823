// Package server provides the HTTP server for the sync service.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/inventoryhub/marketsync/internal/auth"
	"github.com/inventoryhub/marketsync/internal/cache"
	"github.com/inventoryhub/marketsync/internal/config"
	apperrors "github.com/inventoryhub/marketsync/internal/errors"
	"github.com/inventoryhub/marketsync/internal/handler"
	"github.com/inventoryhub/marketsync/internal/health"
	"github.com/inventoryhub/marketsync/internal/middleware"
	"github.com/inventoryhub/marketsync/internal/service"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server represents the HTTP server.
type Server struct {
	router       *mux.Router
	httpServer   *http.Server
	handlers     *handler.Handlers
	healthCheck  *health.HealthCheck
	errorHandler *apperrors.Handler
	verifier     auth.Verifier
	logger       *zap.Logger
	cfg          *config.Config
}

// NewServer creates a new HTTP server.
func NewServer(
	cfg *config.Config,
	syncSvc *service.SyncService,
	analytics *service.AnalyticsService,
	cacheSvc *cache.Service,
	verifier auth.Verifier,
	storePinger health.Pinger,
	logger *zap.Logger,
) *Server {
	router := mux.NewRouter()
	errorHandler := apperrors.NewHandler(logger)
	handlers := handler.NewHandlers(syncSvc, analytics, cacheSvc, errorHandler, logger)
	healthCheck := health.NewHealthCheck(storePinger, logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Server{
		router:       router,
		httpServer:   httpServer,
		handlers:     handlers,
		healthCheck:  healthCheck,
		errorHandler: errorHandler,
		verifier:     verifier,
		logger:       logger,
		cfg:          cfg,
	}
}

// SetupRoutes configures all HTTP routes.
func (s *Server) SetupRoutes() {
	middlewareChain := []func(http.Handler) http.Handler{
		middleware.Recovery(s.logger),
		middleware.RequestID,
		middleware.Logging(s.logger),
	}

	if s.cfg.Server.RateLimit > 0 {
		rateLimiter := middleware.NewRateLimiter(
			s.cfg.Server.RateLimit,
			s.cfg.Server.RateBurst,
			s.logger,
		)
		middlewareChain = append(middlewareChain, rateLimiter.Limit)
	}

	chain := middleware.Chain(middlewareChain...)
	s.router.Use(func(next http.Handler) http.Handler {
		return chain(next)
	})

	s.router.HandleFunc("/healthz", s.healthCheck.LivenessHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/ready", s.healthCheck.ReadinessHandler).Methods(http.MethodGet)
	if s.cfg.Metrics.Enabled {
		s.router.Handle(s.cfg.Metrics.Path, promhttp.Handler()).Methods(http.MethodGet)
	}

	// All v1 routes require a verified tenant.
	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.Use(middleware.Auth(s.verifier, s.errorHandler))

	v1.HandleFunc("/accounts/{accountID}/sync", s.handlers.RunSync).Methods(http.MethodPost)
	v1.HandleFunc("/accounts/{accountID}/health", s.handlers.AccountHealth).Methods(http.MethodGet)
	v1.HandleFunc("/accounts/{accountID}/alerts/{alertID}/dismiss", s.handlers.DismissAlert).Methods(http.MethodPost)
	v1.HandleFunc("/products/{productID}/restock-suggestion", s.handlers.RestockSuggestion).Methods(http.MethodGet)

	v1.HandleFunc("/cache/invalidate", s.handlers.InvalidateCache).Methods(http.MethodPost)
	v1.HandleFunc("/cache/stats", s.handlers.CacheStats).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.errorHandler.WriteErrorResponse(w, http.StatusNotFound,
			apperrors.ErrCodeInvalidArgument, "endpoint not found", r.Header.Get("X-Request-ID"))
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.errorHandler.WriteErrorResponse(w, http.StatusMethodNotAllowed,
			apperrors.ErrCodeInvalidArgument, "method not allowed", r.Header.Get("X-Request-ID"))
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server",
		zap.String("addr", s.httpServer.Addr))

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the http.Handler for the server, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}
