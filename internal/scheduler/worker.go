package scheduler

import (
	"context"
	"fmt"
	"time"

	"fieldservice_backend/platform/config"
	"fieldservice_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// OfferExpirer is the dispatch surface the worker drives.
type OfferExpirer interface {
	ExpireDueAttempts(ctx context.Context, now time.Time) (int, error)
}

// ModificationExpirer is the quotes surface the worker drives.
type ModificationExpirer interface {
	ExpireStaleModifications(ctx context.Context, olderThan time.Duration) (int, error)
}

// OutboxProcessor is the notification surface the worker drives.
type OutboxProcessor interface {
	ProcessRecord(ctx context.Context, id uuid.UUID) error
	ProcessDue(ctx context.Context, limit int) (int, error)
}

// modificationApprovalWindow is how long a client gets to answer a proposed
// modification before it is parked as expired.
const modificationApprovalWindow = 72 * time.Hour

const outboxSweepBatch = 100

// Worker consumes scheduled tasks.
type Worker struct {
	server        *asynq.Server
	mux           *asynq.ServeMux
	dispatch      OfferExpirer
	modifications ModificationExpirer
	outbox        OutboxProcessor
	log           *logger.Logger
}

// NewWorker creates the asynq consumer with all task handlers registered.
func NewWorker(cfg config.SchedulerConfig, dispatch OfferExpirer, modifications ModificationExpirer, outbox OutboxProcessor, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:        server,
		mux:           mux,
		dispatch:      dispatch,
		modifications: modifications,
		outbox:        outbox,
		log:           log,
	}

	mux.HandleFunc(TaskDispatchExpireOffers, w.handleExpireOffers)
	mux.HandleFunc(TaskQuoteExpireModifications, w.handleExpireModifications)
	mux.HandleFunc(TaskNotificationOutboxDue, w.handleOutboxDue)
	mux.HandleFunc(TaskNotificationOutboxSweep, w.handleOutboxSweep)

	return w, nil
}

func (w *Worker) handleExpireOffers(ctx context.Context, _ *asynq.Task) error {
	if w.dispatch == nil {
		return nil
	}

	n, err := w.dispatch.ExpireDueAttempts(ctx, time.Now())
	if err != nil {
		return err
	}
	if n > 0 {
		w.log.Info("expired overdue dispatch offers", "count", n)
	}

	return nil
}

func (w *Worker) handleExpireModifications(ctx context.Context, _ *asynq.Task) error {
	if w.modifications == nil {
		return nil
	}

	n, err := w.modifications.ExpireStaleModifications(ctx, modificationApprovalWindow)
	if err != nil {
		return err
	}
	if n > 0 {
		w.log.Info("expired stale quote modifications", "count", n)
	}

	return nil
}

func (w *Worker) handleOutboxDue(ctx context.Context, task *asynq.Task) error {
	if w.outbox == nil {
		return nil
	}

	payload, err := ParseNotificationOutboxDuePayload(task)
	if err != nil {
		return err
	}

	outboxID, err := uuid.Parse(payload.OutboxID)
	if err != nil {
		return err
	}

	return w.outbox.ProcessRecord(ctx, outboxID)
}

func (w *Worker) handleOutboxSweep(ctx context.Context, _ *asynq.Task) error {
	if w.outbox == nil {
		return nil
	}

	n, err := w.outbox.ProcessDue(ctx, outboxSweepBatch)
	if err != nil {
		return err
	}
	if n > 0 {
		w.log.Info("retried due outbox records", "count", n)
	}

	return nil
}

// Run blocks until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
