// Package server provides the Luma platform API server: the triage chatbot
// boundary, counselee session endpoints and the counsellor feed.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lumaproject/luma/internal/classifier"
	appconfig "github.com/lumaproject/luma/internal/config"
	"github.com/lumaproject/luma/internal/store"
	"github.com/lumaproject/luma/pkg/health"
	"github.com/lumaproject/luma/pkg/health/checkers"
	"github.com/lumaproject/luma/pkg/httpmiddleware"
	"github.com/lumaproject/luma/pkg/logger"
	"github.com/lumaproject/luma/pkg/metrics"
	"github.com/lumaproject/luma/pkg/utils"
)

// Server encapsulates the API server components and lifecycle management.
type Server struct {
	cfg        *appconfig.AppConfig
	log        logger.Logger
	store      store.Store
	classifier classifier.Classifier
	metrics    metrics.Metrics
	health     *health.HealthChecker
	now        func() time.Time
	cancel     context.CancelFunc
}

// New creates a new Server instance with all components initialized.
func New(ctx context.Context, cfg *appconfig.AppConfig, log logger.Logger) (*Server, error) {
	s := &Server{
		cfg: cfg,
		log: log,
		now: time.Now,
	}

	var err error
	s.store, err = s.createStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	s.classifier, err = classifier.New(cfg.Classifier.Provider, cfg.Classifier.APIKey, cfg.Classifier.Model, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create classifier: %w", err)
	}

	s.metrics = metrics.NewMetrics(true, true, log)

	s.health = health.New(
		health.WithLogger(log),
		health.WithTimeout(cfg.Monitoring.HealthCheckTimeout),
	)
	if pg, ok := s.store.(*store.Postgres); ok {
		s.health.AddReadinessCheck(checkers.NewPostgresChecker(pg.Pool(), "sessions-db"))
	}
	if url := classifierHealthURL(cfg.Classifier.Provider); url != "" {
		s.health.AddReadinessCheck(checkers.NewHTTPChecker(url, "classifier-api"))
	}

	return s, nil
}

// classifierHealthURL maps an LLM provider to the endpoint its readiness
// check probes. The keyword classifier has no external dependency.
func classifierHealthURL(provider string) string {
	switch strings.ToLower(provider) {
	case "openai":
		return "https://api.openai.com/v1/models"
	case "anthropic":
		return "https://api.anthropic.com/v1/models"
	default:
		return ""
	}
}

// createStore creates a session store based on configuration.
func (s *Server) createStore(ctx context.Context) (store.Store, error) {
	backend := strings.ToLower(s.cfg.Database.Backend)

	switch backend {
	case "", "memory":
		s.log.Info("Using in-memory session store")
		return store.NewMemory(), nil

	case "postgres":
		s.log.Info("Using postgres session store")
		if s.cfg.Database.URL == "" {
			return nil, fmt.Errorf("database url is required when using the postgres backend")
		}
		return store.NewPostgres(ctx, s.cfg.Database.URL, store.PoolConfig{
			MaxConns:        int32(s.cfg.Database.MaxConnections),
			ConnMaxLifetime: s.cfg.Database.ConnMaxLifetime,
		}, s.log)

	default:
		return nil, fmt.Errorf("unsupported store backend: %s (must be 'memory' or 'postgres')", backend)
	}
}

// Router builds the chi router with all middleware and routes.
func (s *Server) Router() chi.Router {
	router := chi.NewRouter()

	mwConfig := httpmiddleware.DefaultConfig()
	mwConfig.Logger = s.log
	mwConfig.EnableLogging = true
	mwConfig.Timeout = s.cfg.RequestTimeout
	httpmiddleware.ApplyToRouter(router, mwConfig)
	router.Use(s.metrics.HTTPMiddleware())

	router.Get("/healthz", s.health.LivenessHandler())
	router.Get("/readyz", s.health.ReadinessHandler())

	router.Route("/api", func(r chi.Router) {
		r.Route("/chatbot", func(r chi.Router) {
			r.Post("/query", s.handleChatbotQuery)
			r.Post("/analyze", s.handleChatbotAnalyze)
			r.Get("/health", s.handleChatbotHealth)
		})

		r.Route("/counselees", func(r chi.Router) {
			r.Post("/session/start", s.handleStartSession)
			r.Route("/session/{sessionID}", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Post("/message", s.handleCounseleeMessage)
				r.Get("/messages", s.handleGetMessages)
				r.Post("/end", s.handleEndSession)
			})
		})

		r.Route("/counsellors", func(r chi.Router) {
			r.Post("/register", s.handleRegisterCounsellor)
			r.Get("/", s.handleListCounsellors)
			r.Get("/sessions/available", s.handleListAvailableSessions)
			r.Group(func(r chi.Router) {
				r.Use(s.requireCounsellor)
				r.Post("/sessions/{sessionID}/accept", s.handleAcceptSession)
				r.Post("/sessions/{sessionID}/message", s.handleCounsellorMessage)
			})
		})
	})

	return router
}

// Run starts the server and blocks until shutdown.
func (s *Server) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	defer cancel()

	s.setupGracefulShutdown()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       s.cfg.IdleTimeout,
	}

	apiErrs := make(chan error, 1)
	go func() {
		s.log.Info("API server listening", logger.IntField("port", s.cfg.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			apiErrs <- err
		}
	}()

	errChan := apiErrs
	if s.cfg.Monitoring.MetricsEnabled {
		s.metrics.Listen(s.cfg.Monitoring.MetricsPort)
		errChan = utils.MergeErrorChans(apiErrs, s.metrics.Errors())
	}

	select {
	case err := <-errChan:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	s.log.Info("Shutting down API server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second) //nolint:contextcheck // New context needed for shutdown
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil { //nolint:contextcheck // Using new context for graceful shutdown
		s.log.Error("Server shutdown error", logger.ErrorField(err))
		return err
	}

	s.store.Close()
	s.log.Info("API server stopped")
	return nil
}

// setupGracefulShutdown sets up signal handling for graceful shutdown.
func (s *Server) setupGracefulShutdown() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		s.log.Info("Received shutdown signal", logger.StringField("signal", sig.String()))

		if s.cancel != nil {
			s.cancel()
		}

		// Give processes time to shutdown gracefully, then force exit
		time.AfterFunc(30*time.Second, func() {
			s.log.Warn("Force exiting due to timeout")
			os.Exit(1)
		})
	}()
}
