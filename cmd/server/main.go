package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/restaurant-reservation/internal/booking"
	"github.com/iliyamo/restaurant-reservation/internal/config"
	"github.com/iliyamo/restaurant-reservation/internal/database"
	"github.com/iliyamo/restaurant-reservation/internal/handler"
	"github.com/iliyamo/restaurant-reservation/internal/logging"
	"github.com/iliyamo/restaurant-reservation/internal/middleware"
	"github.com/iliyamo/restaurant-reservation/internal/queue"
	"github.com/iliyamo/restaurant-reservation/internal/repository"
	"github.com/iliyamo/restaurant-reservation/internal/router"
	"github.com/iliyamo/restaurant-reservation/internal/service"
)

// store is what the server needs from a storage driver.
type store interface {
	booking.Store
	handler.ReservationRepository
	handler.PolicyRepository
}

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, pinger, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	admission := config.LoadAdmissionConfig()
	opts := []booking.Option{
		booking.WithLocation(cfg.Location),
		booking.WithLogger(logger),
		booking.WithRetry(admission.RetryAttempts, admission.RetryBackoff),
		booking.WithLockTimeout(admission.LockTimeout),
	}
	if cfg.BrokerURL != "" {
		opts = append(opts, booking.WithNotifier(service.NewPublisher(cfg.BrokerURL, cfg.Location, logger)))
		consumer := queue.NewConsumer(cfg.BrokerURL, logger)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("reservation consumer stopped", "error", err)
			}
		}()
	} else {
		logger.Info("no broker configured, reservation events disabled")
	}
	ctrl := booking.NewController(st, opts...)

	rdb := config.NewRedisClient(config.LoadRedisConfig())
	if rdb == nil {
		logger.Warn("redis unavailable, rate limiting and availability cache disabled")
	} else {
		defer func() { _ = rdb.Close() }()
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(logger))

	router.RegisterRoutes(e, pinger)
	router.RegisterReservations(e, handler.NewReservationHandler(ctrl, st), cfg.JWTSecret, router.Throttling{
		Redis:     rdb,
		RateLimit: config.LoadRateLimitConfig(),
		Cache:     config.LoadCacheConfig(),
		Logger:    logger,
	})
	router.RegisterAdmin(e, handler.NewAdminPolicyHandler(st), cfg.JWTSecret)

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr, "env", cfg.Env, "driver", cfg.DBDriver, "timezone", cfg.Location.String())
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// openStore connects the configured driver and creates its schema.  The
// returned pinger is nil for the in-memory driver.
func openStore(ctx context.Context, cfg config.Config) (store, handler.Pinger, func(), error) {
	switch cfg.DBDriver {
	case config.DriverMySQL:
		db, err := database.OpenMySQL(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open mysql: %w", err)
		}
		s := repository.NewMySQLStore(db)
		if err := s.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, nil, err
		}
		return s, s, func() { _ = db.Close() }, nil

	case config.DriverPostgres:
		pool, err := database.OpenPostgres(ctx, cfg.DatabaseURL, int32(cfg.DBMaxConns))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		s := repository.NewPostgresStore(pool)
		if err := s.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		return s, s, pool.Close, nil

	case config.DriverMemory:
		return repository.NewMemoryStore(), nil, func() {}, nil
	}
	return nil, nil, nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.DBDriver)
}
