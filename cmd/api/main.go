package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"staybook/internal/api"
	"staybook/internal/config"
	"staybook/internal/database"
	"staybook/internal/events"
	"staybook/internal/logging"
	"staybook/internal/metrics"
	"staybook/internal/payment"
	"staybook/internal/report"
	"staybook/internal/repository"
	"staybook/internal/service"
	"staybook/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	db, err := initDatabase(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer repository.Close(redisClient)
	}

	gateway, err := payment.New(cfg.Payment, logger)
	if err != nil {
		return fmt.Errorf("init payment gateway: %w", err)
	}

	bus := events.NewEventBus()
	bus.Subscribe(events.AllEvents, func(e *events.Event) error {
		logger.Debug().Str("event", e.Type).RawJSON("payload", e.Payload).Msg("Domain event")
		return nil
	})

	cache := repository.NewAvailabilityCache(redisClient, logger)
	availability := service.NewAvailabilityService(db, cache, cfg.Booking, nil, logger)
	reservations := service.NewReservationService(db, cache, bus, cfg.Booking, nil, logger)
	lifecycle := service.NewLifecycleService(db, cache, bus, nil, logger)
	settlement := service.NewSettlementService(db, gateway, lifecycle, bus, cfg.Payment.Currency, nil, logger)

	go worker.NewReaper(db, lifecycle, cfg.Booking, nil, logging.Component(logger, "reaper")).Start(ctx)

	if cfg.Events.AMQPURL != "" {
		publisher, err := events.NewAMQPPublisher(cfg.Events.AMQPURL, cfg.Events.Exchange)
		if err != nil {
			return fmt.Errorf("connect amqp: %w", err)
		}
		defer publisher.Close()
		go worker.NewOutboxRelay(db, publisher, redisClient, cfg.Events, nil, logging.Component(logger, "relay")).Start(ctx)
	} else {
		logger.Warn().Msg("events.amqp_url is empty, outbox events stay in the store")
	}

	if cfg.Backup.Enabled {
		go database.NewBackupService(db, cfg.Backup, logging.Component(logger, "backup")).Start(ctx)
	}

	startMetrics(ctx, cfg, logger)

	svc := api.Services{
		Availability: availability,
		Inventory:    availability,
		Reservations: reservations,
		Lifecycle:    lifecycle,
		Payments:     settlement,
		Store:        db,
		Exporter:     report.NewSettlementExporter(db, cfg.Exports.Path, logger),
	}

	return startServers(ctx, cfg, svc, db, logger)
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}

	return cfg, logging.Component(baseLogger, "api-main"), closer, nil
}

// initDatabase opens the store and upserts the hotel catalog into it.
func initDatabase(cfg *config.Config, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logger, database.WithBusyTimeout(cfg.Database.BusyTimeoutMs))
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}

	hotels, err := config.LoadCatalog(cfg.Catalog.Path)
	if err != nil {
		db.Close()
		logger.Error().Err(err).Str("catalog_path", cfg.Catalog.Path).Msg("load catalog")
		return nil, err
	}
	for i := range hotels {
		if err := db.UpsertHotel(context.Background(), &hotels[i]); err != nil {
			db.Close()
			return nil, fmt.Errorf("upsert hotel %d: %w", hotels[i].ID, err)
		}
	}
	logger.Info().Int("hotels", len(hotels)).Msg("Catalog loaded")

	return db, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, client); err != nil {
		// кэш деградирует до памяти процесса
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = client.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func startServers(ctx context.Context, cfg *config.Config, svc api.Services, store api.Pinger, logger *zerolog.Logger) error {
	httpServer := api.NewHTTPServer(cfg.API, svc, logger)
	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		var err error
		grpcServer, err = api.NewGRPCServer(cfg.API, logger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
		go grpcServer.WatchReadiness(ctx, store, 10*time.Second)
		go func() {
			if err := grpcServer.Serve(); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
	}

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Bool("grpc", grpcServer != nil).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
