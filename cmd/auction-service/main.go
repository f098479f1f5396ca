package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"auction-engine/internal/api/handlers"
	apimw "auction-engine/internal/api/middleware"
	"auction-engine/internal/app"
	"auction-engine/internal/config"
	"auction-engine/internal/domain"
	"auction-engine/internal/infrastructure/leader"
	"auction-engine/internal/infrastructure/redis"
	"auction-engine/internal/services"
	"auction-engine/pkg/logger"
	"auction-engine/pkg/utils"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New().Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	log := logger.NewWithLevel(cfg.Log.Level)
	log.Info("Starting auction service", "config", cfg.GetConfigString())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("Auction service failed", "error", err)
		os.Exit(1)
	}
	log.Info("Auction service stopped")
}

func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	backend, err := app.OpenBackend(initCtx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Close(); err != nil {
			log.Error("Failed to close MySQL connection", "error", err)
		}
	}()

	rdb, err := utils.InitializeRedis(initCtx, cfg, log)
	if err != nil {
		return err
	}
	defer rdb.Close()

	notifier, closeNotifier, err := app.NewNotifier(cfg, log)
	if err != nil {
		return err
	}
	defer closeNotifier()

	clock := domain.SystemClock{}
	svc := app.NewServices(backend, redis.NewEventPublisher(rdb), notifier, cfg, clock, log)

	leaderElection := leader.NewRedisLeaderElection(rdb, cfg.Leader.TTL, log)
	scheduler := services.NewCronAuctionScheduler(backend.Store, svc.Auctions, svc.Dispatcher,
		leaderElection, app.SchedulerOptions(cfg), clock, log)

	e := newServer(svc, clock, log)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := scheduler.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		return scheduler.Stop()
	})

	g.Go(func() error {
		log.Info("Starting HTTP server", "address", cfg.Server.Address())
		if err := e.Start(cfg.Server.Address()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down auction service")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newServer(svc *app.Services, clock domain.Clock, log logger.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handlers.NewRequestValidator()
	e.HTTPErrorHandler = handlers.ErrorHandler(log)

	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info("Request handled",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"request_id", v.RequestID,
				"remote_addr", c.RealIP())
			return nil
		},
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{echo.GET, echo.POST, echo.DELETE, echo.OPTIONS},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderAuthorization,
			apimw.HeaderUserID,
			apimw.HeaderUserRole,
		},
		MaxAge: 86400,
	}))

	e.GET("/health", handlers.HealthCheck("auction-service", clock))

	auctionHandler := handlers.NewAuctionHandler(svc.Auctions, svc.Bids, svc.Participation, log)
	auctionHandler.Register(e.Group("/api/v1"))

	return e
}
