package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fieldservice_backend/internal/adapters"
	"fieldservice_backend/internal/dispatch"
	"fieldservice_backend/internal/email"
	apphttp "fieldservice_backend/internal/http"
	"fieldservice_backend/internal/http/router"
	"fieldservice_backend/internal/interventions"
	"fieldservice_backend/internal/notification"
	"fieldservice_backend/internal/payments"
	"fieldservice_backend/internal/push"
	"fieldservice_backend/internal/quotes"
	"fieldservice_backend/internal/scheduler"
	"fieldservice_backend/internal/sms"
	"fieldservice_backend/migrations"
	"fieldservice_backend/platform/config"
	"fieldservice_backend/platform/db"
	"fieldservice_backend/platform/events"
	"fieldservice_backend/platform/logger"
	"fieldservice_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, migrations.FS)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	retryScheduler, closeScheduler := initRetryScheduler(cfg, log)
	if closeScheduler != nil {
		defer closeScheduler()
	}

	weights, err := config.LoadRankingWeights(cfg.GetDispatchWeightsFile())
	if err != nil {
		log.Error("failed to load dispatch ranking weights", "error", err)
		panic("failed to load dispatch ranking weights: " + err.Error())
	}

	// Shared validator instance for dependency injection
	val := validator.New()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	// Notification module subscribes to domain events (not HTTP-facing)
	coordinator := notification.NewCoordinator(log,
		notificationChannels(cfg, log)...)
	notificationModule := notification.NewModule(pool, coordinator, log)
	notificationModule.Subscribe(eventBus)
	if retryScheduler != nil {
		notificationModule.SetRetryScheduler(retryScheduler)
	}

	// Initialize domain modules
	quotesModule := quotes.NewModule(pool, eventBus, log, val)
	paymentsModule := payments.NewModule(pool, cfg, eventBus, log, val)
	interventionsModule := interventions.NewModule(pool, quotesModule.Service(), paymentsModule.Service(), eventBus, log, val)
	dispatchModule := dispatch.NewModule(pool, cfg, weights, eventBus, log, val)

	// Wire the circular dependencies through adapters. The interventions
	// module is constructed last of the three readers, so the views attach
	// after the fact.
	quotesModule.Service().SetInterventionReader(adapters.NewQuoteInterventionReader(interventionsModule.Service()))
	paymentsModule.Service().SetInterventionReader(adapters.NewPaymentInterventionReader(interventionsModule.Service()))
	dispatchModule.Service().SetInterventionSource(adapters.NewDispatchInterventionSource(interventionsModule.Service()))
	interventionsModule.Service().SetDispatch(dispatchModule.Service())

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			interventionsModule,
			quotesModule,
			paymentsModule,
			dispatchModule,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = shutdownCtx
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

// notificationChannels assembles the delivery channels that are actually
// configured. SMS and push are skipped when their gateway URL is missing;
// email stays registered and reports itself unreachable when disabled.
func notificationChannels(cfg *config.Config, log *logger.Logger) []notification.Channel {
	channels := []notification.Channel{email.NewChannel(cfg)}

	if smsChannel := sms.NewChannel(cfg, log); smsChannel != nil {
		channels = append(channels, smsChannel)
	} else {
		log.Warn("SMS_GATEWAY_URL not configured; sms notifications disabled")
	}

	if pushChannel := push.NewChannel(cfg, log); pushChannel != nil {
		channels = append(channels, pushChannel)
	} else {
		log.Warn("PUSH_GATEWAY_URL not configured; push notifications disabled")
	}

	return channels
}

func initRetryScheduler(cfg config.SchedulerConfig, log *logger.Logger) (*scheduler.Client, func()) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; notification retry scheduling falls back to the periodic sweep")
		return nil, nil
	}

	retryClient, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize retry scheduler client", "error", err)
		return nil, nil
	}

	return retryClient, func() {
		_ = retryClient.Close()
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
