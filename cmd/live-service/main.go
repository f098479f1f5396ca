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
	"auction-engine/internal/api/middleware"
	"auction-engine/internal/app"
	"auction-engine/internal/config"
	"auction-engine/internal/domain"
	"auction-engine/internal/infrastructure/redis"
	"auction-engine/internal/infrastructure/websocket"
	"auction-engine/internal/services"
	"auction-engine/pkg/logger"
	"auction-engine/pkg/utils"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"
)

const resubscribeDelay = 2 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New().Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	log := logger.NewWithLevel(cfg.Log.Level)
	log.Info("Starting live service", "config", cfg.GetConfigString())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("Live service failed", "error", err)
		os.Exit(1)
	}
	log.Info("Live service stopped")
}

func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	backend, err := app.OpenBackend(initCtx, cfg, log)
	if err != nil {
		return err
	}
	defer backend.Close()

	rdb, err := utils.InitializeRedis(initCtx, cfg, log)
	if err != nil {
		return err
	}
	defer rdb.Close()

	connManager := websocket.NewConnectionManager(log)
	broadcaster := websocket.NewWebSocketNotifier(connManager)
	eventListener := services.NewEventListener(connManager, broadcaster, log)
	subscriber := redis.NewRedisEventSubscriber(rdb, log)

	router := mux.NewRouter()
	router.Use(middleware.CORS(log))
	router.HandleFunc("/ws/auctions/{auctionID}",
		handlers.NewWebSocketHandler(backend.Store, connManager, log).HandleConnection).Methods(http.MethodGet)
	router.HandleFunc("/health", health(domain.SystemClock{})).Methods(http.MethodGet)

	srv := &http.Server{
		Addr:              cfg.Live.Address(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			err := eventListener.Start(gctx, subscriber)
			if gctx.Err() != nil {
				return nil
			}
			log.Error("Event subscription ended, resubscribing", "error", err)

			select {
			case <-gctx.Done():
				return nil
			case <-time.After(resubscribeDelay):
			}
		}
	})

	g.Go(func() error {
		log.Info("Starting live server", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down live service")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func health(clock domain.Clock) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","service":"live-service","timestamp":"` +
			clock.Now().Format(time.RFC3339) + `"}`))
	}
}
