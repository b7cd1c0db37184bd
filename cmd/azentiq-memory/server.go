package main

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/WanderingAstronomer/azentiq-memory-manager-andrew-fork/api/handlers"
	"github.com/WanderingAstronomer/azentiq-memory-manager-andrew-fork/budget"
	"github.com/WanderingAstronomer/azentiq-memory-manager-andrew-fork/config"
	"github.com/WanderingAstronomer/azentiq-memory-manager-andrew-fork/core"
	"github.com/WanderingAstronomer/azentiq-memory-manager-andrew-fork/internal/metrics"
	"github.com/WanderingAstronomer/azentiq-memory-manager-andrew-fork/internal/server"
	"github.com/WanderingAstronomer/azentiq-memory-manager-andrew-fork/store"
)

// Server wires the store, budget engine, memory manager and HTTP handlers
// into the running service.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	store   store.Store
	budget  *budget.Manager
	manager *core.MemoryManager

	collector *metrics.Collector

	httpManager    *server.Manager
	metricsManager *server.Manager
}

// NewServer creates an unstarted server.
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{cfg: cfg, logger: logger}
}

// Start builds the full stack and starts the HTTP and metrics listeners.
func (s *Server) Start() error {
	s.collector = metrics.NewCollector("azentiq", prometheus.DefaultRegisterer, s.logger)

	s.store = openStore(s.cfg, s.logger)

	rules := budget.NewRulesManager(s.cfg, s.logger)
	s.budget = budget.NewManager(budget.ManagerConfig{
		TotalBudget:    s.cfg.Application.GlobalTokenLimit,
		ReservedTokens: s.cfg.Application.ReservedTokens,
		Estimator:      budget.NewEstimatorFromConfig(s.cfg.Estimator),
		Rules:          rules,
		Metrics:        s.collector,
	}, s.logger)

	s.manager = core.NewMemoryManager(s.store, s.budget, s.logger,
		core.WithMetrics(s.collector),
	)
	s.manager.SetContext(s.cfg.Application.DefaultComponent, "")

	if err := s.startHTTPServer(); err != nil {
		return err
	}
	if err := s.startMetricsServer(); err != nil {
		return err
	}

	s.logger.Info("all servers started",
		zap.String("addr", s.cfg.Server.Addr),
		zap.String("metrics_addr", s.cfg.Server.MetricsAddr),
	)
	return nil
}

func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	health := handlers.NewHealthHandler(Version, s.logger)
	health.Register(handlers.StoreCheck{Store: s.store})
	health.Routes(mux)

	handlers.NewMemoryHandler(s.manager, s.budget, s.collector, s.logger).Routes(mux)
	handlers.NewSessionHandler(s.manager, s.collector, s.logger).Routes(mux)

	s.httpManager = server.NewManager(mux, server.Config{
		Addr:            s.cfg.Server.Addr,
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     s.cfg.Server.IdleTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)

	return s.httpManager.Start()
}

func (s *Server) startMetricsServer() error {
	if s.cfg.Server.MetricsAddr == "" {
		s.logger.Info("metrics address not configured, metrics server disabled")
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	s.metricsManager = server.NewManager(mux, server.Config{
		Addr:            s.cfg.Server.MetricsAddr,
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)

	return s.metricsManager.Start()
}

// WaitForShutdown blocks until a shutdown signal, then stops everything.
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown stops the listeners and closes the store.
func (s *Server) Shutdown() {
	s.logger.Info("starting graceful shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout+time.Second)
	defer cancel()

	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("metrics server shutdown error", zap.Error(err))
		}
	}
	if s.manager != nil {
		if err := s.manager.Close(); err != nil {
			s.logger.Error("store close error", zap.Error(err))
		}
	}

	s.logger.Info("graceful shutdown completed")
}
