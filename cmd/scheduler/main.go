package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fieldservice_backend/internal/adapters"
	"fieldservice_backend/internal/dispatch"
	"fieldservice_backend/internal/email"
	"fieldservice_backend/internal/interventions"
	"fieldservice_backend/internal/notification"
	"fieldservice_backend/internal/payments"
	"fieldservice_backend/internal/push"
	"fieldservice_backend/internal/quotes"
	"fieldservice_backend/internal/scheduler"
	"fieldservice_backend/internal/sms"
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

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	eventBus := events.NewInMemoryBus(log)

	weights, err := config.LoadRankingWeights(cfg.GetDispatchWeightsFile())
	if err != nil {
		log.Error("failed to load dispatch ranking weights", "error", err)
		panic("failed to load dispatch ranking weights: " + err.Error())
	}

	val := validator.New()

	// Notification channels: expiry sweeps publish domain events, and the
	// outbox retries run in this process.
	channels := []notification.Channel{email.NewChannel(cfg)}
	if smsChannel := sms.NewChannel(cfg, log); smsChannel != nil {
		channels = append(channels, smsChannel)
	}
	if pushChannel := push.NewChannel(cfg, log); pushChannel != nil {
		channels = append(channels, pushChannel)
	}
	coordinator := notification.NewCoordinator(log, channels...)
	notificationModule := notification.NewModule(pool, coordinator, log)
	notificationModule.Subscribe(eventBus)

	// Worker-side domain wiring (no HTTP handlers required). The dispatch
	// expiry sweep needs the full intervention graph to flag exhausted
	// interventions for manual handling.
	quotesModule := quotes.NewModule(pool, eventBus, log, val)
	paymentsModule := payments.NewModule(pool, cfg, eventBus, log, val)
	interventionsModule := interventions.NewModule(pool, quotesModule.Service(), paymentsModule.Service(), eventBus, log, val)
	dispatchModule := dispatch.NewModule(pool, cfg, weights, eventBus, log, val)

	quotesModule.Service().SetInterventionReader(adapters.NewQuoteInterventionReader(interventionsModule.Service()))
	paymentsModule.Service().SetInterventionReader(adapters.NewPaymentInterventionReader(interventionsModule.Service()))
	dispatchModule.Service().SetInterventionSource(adapters.NewDispatchInterventionSource(interventionsModule.Service()))
	interventionsModule.Service().SetDispatch(dispatchModule.Service())

	worker, err := scheduler.NewWorker(cfg, dispatchModule.Service(), quotesModule.Service(), notificationModule, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	periodic, err := scheduler.NewPeriodic(cfg, log)
	if err != nil {
		log.Error("failed to initialize periodic scheduler", "error", err)
		panic("failed to initialize periodic scheduler: " + err.Error())
	}

	go func() {
		<-ctx.Done()
		periodic.Shutdown()
	}()
	go func() {
		if err := periodic.Run(); err != nil {
			log.Error("periodic scheduler stopped", "error", err)
		}
	}()

	worker.Run(ctx)
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
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
