// Package main is the entry point of the chat notifier.
//
// The notifier reacts to every new chat message, works out who should be
// told about it, and sends one multicast push notification to their devices.
// New messages arrive from one trigger source (Postgres LISTEN, NATS, or the
// HTTP endpoint) and are processed on an in-process event bus.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/chatpush/notifier/config"
	"github.com/chatpush/notifier/internal/application/command"
	"github.com/chatpush/notifier/internal/application/eventhandler"
	"github.com/chatpush/notifier/internal/application/query"
	"github.com/chatpush/notifier/internal/domain/device"
	"github.com/chatpush/notifier/internal/domain/shared"
	"github.com/chatpush/notifier/internal/infrastructure/external/fcm"
	"github.com/chatpush/notifier/internal/infrastructure/messaging"
	"github.com/chatpush/notifier/internal/infrastructure/metrics"
	"github.com/chatpush/notifier/internal/infrastructure/persistence/postgres"
	"github.com/chatpush/notifier/internal/infrastructure/persistence/redis"
	httpserver "github.com/chatpush/notifier/internal/interface/http"
	"github.com/chatpush/notifier/internal/interface/http/handlers"
	"github.com/chatpush/notifier/pkg/circuitbreaker"
	"github.com/chatpush/notifier/pkg/logger"
	"github.com/chatpush/notifier/pkg/retry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting chat notifier",
		slog.String("env", string(cfg.App.Environment)),
		slog.String("version", cfg.App.Version),
		slog.String("trigger", string(cfg.Trigger.Source)),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. METRICS
	// ─────────────────────────────────────────────────────────────────────────
	var recorder *metrics.Recorder
	if cfg.Observability.MetricsEnabled {
		recorder = metrics.New()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. DOCUMENT STORE (PostgreSQL)
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database...")
	pgCfg := postgres.DefaultConfig()
	pgCfg.URL = cfg.Database.URL
	pgCfg.MaxConns = int32(cfg.Database.MaxOpenConns)
	pgCfg.MinConns = int32(cfg.Database.MaxIdleConns)
	pgCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	pgCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime
	pgCfg.QueryTimeout = cfg.Database.QueryTimeout

	dbConn, err := retry.DoWithData(ctx, func(ctx context.Context) (*postgres.Connection, error) {
		return postgres.NewConnection(ctx, pgCfg)
	}, retry.WithOnRetry(logRetry(log, "database")))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("closing database connection...")
		dbConn.Close()
	}()
	log.Info("database connection established")

	if cfg.Database.AutoMigrate {
		log.Info("checking database migrations...")
		channels := postgres.NotifyChannels{
			MessageCreated: cfg.Trigger.PGChannel,
			UserChanged:    cfg.Redis.InvalidationChannel,
		}
		if err := postgres.NewMigrator(dbConn, channels).Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("database schema is up to date")
	}

	docs := postgres.NewDocumentStore(dbConn)
	chatRepo := postgres.NewChatRepository(docs)
	var deviceRepo device.Repository = postgres.NewDeviceRepository(docs, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ADDRESS CACHE (Redis, optional)
	// ─────────────────────────────────────────────────────────────────────────
	var cache *redis.Cache
	var addressCache *redis.AddressCache
	if !cfg.Redis.Disabled {
		log.Info("connecting to Redis...")
		redisCfg := redis.DefaultConfig()
		redisCfg.URL = cfg.Redis.URL
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.PoolSize = cfg.Redis.PoolSize
		redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
		redisCfg.DialTimeout = cfg.Redis.DialTimeout
		redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
		redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

		cache, err = retry.DoWithData(ctx, func(ctx context.Context) (*redis.Cache, error) {
			return redis.NewCache(ctx, redisCfg)
		}, retry.WithMaxAttempts(3), retry.WithOnRetry(logRetry(log, "redis")))
		if err != nil {
			log.Warn("failed to connect to Redis, address cache disabled", logger.Err(err))
			cache = nil
		} else {
			defer cache.Close()
			addressCache = redis.NewAddressCache(deviceRepo, cache, cfg.Redis.AddressTTL, log)
			deviceRepo = addressCache
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. PUSH GATEWAY
	// ─────────────────────────────────────────────────────────────────────────
	fcmCfg := fcm.DefaultClientConfig(cfg.Push.BaseURL, cfg.Push.ServerKey)
	fcmCfg.Timeout = cfg.Push.RequestTimeout
	fcmCfg.Logger = log
	gateway := fcm.NewClient(fcmCfg)

	breaker := circuitbreaker.PushGatewayBreaker(
		cfg.Push.CircuitBreakerThreshold,
		cfg.Push.CircuitBreakerTimeout,
		func(name string, from, to circuitbreaker.State) {
			log.Warn("circuit breaker state changed",
				slog.String("name", name), slog.String("from", from.String()), slog.String("to", to.String()))
			if recorder != nil {
				recorder.ObserveCircuitState(name, from, to)
			}
		},
		circuitbreaker.WithIsFailure(fcm.CountsAgainstCircuit),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. APPLICATION HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	resolver := query.NewResolveAddressesHandler(deviceRepo, log, query.ResolveAddressesConfig{
		Concurrency: cfg.Resolver.Concurrency,
	})

	var sendRecorder command.SendRecorder
	var invocationRecorder eventhandler.InvocationRecorder
	var handlerRecorder messaging.HandlerRecorder
	if recorder != nil {
		sendRecorder = recorder
		invocationRecorder = recorder
		handlerRecorder = recorder
	}

	dispatcher := command.NewDispatchNotificationHandler(gateway, breaker, sendRecorder, log)
	onMessageCreated := eventhandler.NewOnMessageCreatedHandler(chatRepo, resolver, dispatcher, invocationRecorder, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 8. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	busCfg := messaging.DefaultInMemoryEventBusConfig()
	busCfg.Logger = log
	busCfg.WorkerPoolSize = cfg.Trigger.Workers
	busCfg.Recorder = handlerRecorder
	bus := messaging.NewInMemoryEventBus(busCfg)

	if err := bus.Subscribe(shared.EventMessageCreated, onMessageCreated.Handle); err != nil {
		return fmt.Errorf("failed to subscribe handler: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. HTTP SERVER (trigger endpoint, health, metrics)
	// ─────────────────────────────────────────────────────────────────────────
	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.AddCheck("postgres", handlers.NewPingCheck(dbConn))
	if cache != nil {
		health.AddInfoCheck("redis", handlers.NewPingCheck(cache))
	}
	health.AddInfoCheck("push_gateway", handlers.NewCircuitCheck(breaker))

	httpCfg := httpserver.DefaultConfig()
	httpCfg.Host = cfg.HTTP.Host
	httpCfg.Port = cfg.HTTP.Port
	httpCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	httpCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	httpCfg.MaxBodyBytes = cfg.HTTP.MaxBodyBytes
	httpCfg.APIKeys = cfg.HTTP.TriggerAPIKeys
	httpCfg.TriggerEnabled = cfg.Trigger.Source == config.TriggerHTTP

	deps := httpserver.Dependencies{
		Publisher:     bus,
		HealthChecker: health,
		Logger:        log,
	}
	if recorder != nil {
		deps.Metrics = recorder
	}
	server := httpserver.NewServer(httpCfg, deps)

	// ─────────────────────────────────────────────────────────────────────────
	// 10. TRIGGER SOURCE + RUN
	// ─────────────────────────────────────────────────────────────────────────
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 3)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Start(); err != nil {
			errCh <- err
		}
	}()

	// The document listener carries message triggers for the postgres source
	// and address invalidations whenever the cache is on.
	listenerCfg := postgres.DefaultListenerConfig()
	listenerCfg.Channel = ""
	listenerCfg.InvalidationChannel = cfg.Redis.InvalidationChannel
	if cfg.Trigger.Source == config.TriggerPostgres {
		listenerCfg.Channel = cfg.Trigger.PGChannel
	}
	if addressCache != nil {
		listenerCfg.Invalidator = addressCache
	}
	if len(listenerCfg.Channels()) > 0 {
		listener := postgres.NewDocumentListener(dbConn, docs, bus, log, listenerCfg)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := listener.Run(runCtx); err != nil {
				errCh <- fmt.Errorf("postgres listener: %w", err)
			}
		}()
	}

	switch cfg.Trigger.Source {
	case config.TriggerPostgres:
		log.Info("accepting triggers from postgres", slog.String("channel", cfg.Trigger.PGChannel))

	case config.TriggerNATS:
		natsCfg := messaging.DefaultNATSConfig(cfg.Trigger.NATSURL)
		natsCfg.Subject = cfg.Trigger.NATSSubject
		natsCfg.Queue = cfg.Trigger.NATSQueue
		natsCfg.Name = cfg.App.Name
		subscriber := messaging.NewNATSSubscriber(natsCfg, bus, log)
		if err := subscriber.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer subscriber.Close()
		health.AddCheck("nats", func(context.Context) error {
			if !subscriber.IsConnected() {
				return errors.New("nats not connected")
			}
			return nil
		})

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := subscriber.Run(runCtx); err != nil {
				errCh <- fmt.Errorf("nats subscriber: %w", err)
			}
		}()

	case config.TriggerHTTP:
		log.Info("accepting triggers over HTTP", slog.String("address", httpCfg.Address()))
	}

	log.Info("chat notifier is running")

	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case err := <-errCh:
		log.Error("component failed, shutting down", logger.Err(err))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 11. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("starting graceful shutdown...", slog.String("timeout", cfg.App.ShutdownTimeout.String()))
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	// Stop intake first, then let in-flight invocations finish.
	cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown failed", logger.Err(err))
	}
	wg.Wait()

	done := make(chan struct{})
	go func() {
		_ = bus.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		log.Warn("shutdown timed out with invocations in flight")
	}

	log.Info("shutdown completed")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func setupLogger(cfg *config.Config) *slog.Logger {
	opts := logger.DefaultOptions()
	opts.Service = cfg.App.Name
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	opts.Format = logger.ParseFormat(cfg.Observability.LogFormat)
	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}

	log := logger.New(opts)
	slog.SetDefault(log)
	return log
}

func logRetry(log *slog.Logger, target string) func(attempt int, err error, delay time.Duration) {
	return func(attempt int, err error, delay time.Duration) {
		log.Warn("connection attempt failed, retrying",
			slog.String("target", target),
			slog.Int("attempt", attempt),
			logger.Latency(delay),
			logger.Err(err),
		)
	}
}
