package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/messagestack/apiserver/config"
	"github.com/messagestack/apiserver/internal/handlers"
	"go.uber.org/zap"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	deps       *Dependencies
	logger     *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Server with basic middleware and defaults.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Server, error) {
	deps, err := Build(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return NewWithDependencies(deps), nil
}

// NewWithDependencies mounts the routes over already built services.
func NewWithDependencies(deps *Dependencies) *Server {
	authMiddleware := handlers.RequireAuth(deps.Identity)
	privacyHandler := handlers.NewPrivacyHandler(deps.AI, deps.Reports, deps.Audit, deps.Logger.Named("http"))
	httpLogger := deps.Logger.Named("http")

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Handle("/metrics", deps.Metrics.Handler())
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, deps.Identity, httpLogger)
	})
	router.Route("/consent", func(r chi.Router) {
		handlers.ConsentRouter(r, deps.Ledger, authMiddleware, httpLogger)
	})
	router.Route("/surveys", func(r chi.Router) {
		handlers.SurveyRouter(r, deps.Pipeline, deps.Settings, deps.Identity, httpLogger)
	})
	router.Route("/ai", func(r chi.Router) {
		handlers.AIRouter(r, privacyHandler, authMiddleware)
	})
	router.Route("/privacy", func(r chi.Router) {
		handlers.PrivacyRouter(r, privacyHandler, authMiddleware)
	})

	port := deps.Config.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		deps:       deps,
		logger:     deps.Logger,
	}
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server. Without a configured broker the revocation
// worker runs in-process alongside it.
func (s *Server) Start() error {
	if s.deps.LocalEvents {
		ctx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.deps.RunRevocationWorker(ctx); err != nil {
				s.logger.Error("in-process revocation worker stopped", zap.Error(err))
			}
		}()
	}

	s.logger.Info("http server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, stops background work and closes
// the dependencies.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	return errors.Join(err, s.deps.Close())
}
