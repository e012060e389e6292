package scheduler

import (
	"fmt"

	"fieldservice_backend/platform/config"
	"fieldservice_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// NewPeriodic creates the cron-style producer that keeps the maintenance
// sweeps flowing. Runs alongside the worker in the scheduler process.
func NewPeriodic(cfg config.SchedulerConfig, log *logger.Logger) (*asynq.Scheduler, error) {
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

	sched := asynq.NewScheduler(opt, nil)

	entries := []struct {
		spec string
		task *asynq.Task
	}{
		{"@every 1m", asynq.NewTask(TaskDispatchExpireOffers, nil)},
		{"@every 1m", asynq.NewTask(TaskNotificationOutboxSweep, nil)},
		{"@every 1h", asynq.NewTask(TaskQuoteExpireModifications, nil)},
	}

	for _, e := range entries {
		if _, err := sched.Register(e.spec, e.task, asynq.Queue(queue)); err != nil {
			return nil, fmt.Errorf("register periodic task %s: %w", e.task.Type(), err)
		}
		log.Info("registered periodic task", "task", e.task.Type(), "spec", e.spec)
	}

	return sched, nil
}
