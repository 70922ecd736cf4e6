package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/wallet_ledger/internal/config"
	"github.com/congo-pay/wallet_ledger/internal/metrics"
	"github.com/congo-pay/wallet_ledger/internal/middleware"
	"github.com/congo-pay/wallet_ledger/internal/routes"
)

// Server wraps the Fiber application and its background workers.
type Server struct {
	app     *fiber.App
	cfg     config.Config
	logger  *slog.Logger
	runtime *routes.Runtime
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
// reg receives the service metrics and backs /metrics.
func New(cfg config.Config, db *pgxpool.Pool, cache *redis.Client, logger *slog.Logger, reg *prometheus.Registry) (*Server, error) {
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorHandler: middleware.ErrorHandler(logger),
	})

	deps := routes.Deps{Cfg: cfg, DB: db, Cache: cache, Logger: logger}
	if reg != nil {
		deps.Metrics = metrics.New(reg)
		deps.Gatherer = reg
	}
	rt, err := routes.Setup(app, deps)
	if err != nil {
		return nil, err
	}

	return &Server{app: app, cfg: cfg, logger: logger, runtime: rt}, nil
}

// App exposes the underlying Fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts background workers and then the HTTP server.
func (s *Server) Listen() error {
	if s.runtime != nil && s.runtime.Reconciler != nil {
		if err := s.runtime.Reconciler.Start(); err != nil {
			return err
		}
		s.logger.Info("deposit reconciler started", slog.Duration("interval", s.cfg.ReconcileInterval))
	}
	return s.app.Listen(s.cfg.Address())
}

// Shutdown stops background workers and gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.runtime != nil && s.runtime.Reconciler != nil {
		if err := s.runtime.Reconciler.Stop(); err != nil {
			s.logger.Warn("stop reconciler", slog.Any("error", err))
		}
	}
	return s.app.ShutdownWithContext(ctx)
}
