package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

type stubSchedulerCfg struct {
	redisURL string
	queue    string
}

func (c stubSchedulerCfg) GetRedisURL() string       { return c.redisURL }
func (c stubSchedulerCfg) GetRedisTLSInsecure() bool { return false }
func (c stubSchedulerCfg) GetAsynqQueueName() string { return c.queue }
func (c stubSchedulerCfg) GetAsynqConcurrency() int  { return 1 }

func TestScheduleOutboxRetryEnqueuesDelayedTask(t *testing.T) {
	srv := miniredis.RunT(t)

	client, err := NewClient(stubSchedulerCfg{redisURL: "redis://" + srv.Addr(), queue: "notifications"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer func() { _ = client.Close() }()

	outboxID := uuid.New()
	runAt := time.Now().Add(5 * time.Minute)
	if err := client.ScheduleOutboxRetry(context.Background(), outboxID, runAt); err != nil {
		t.Fatalf("ScheduleOutboxRetry: %v", err)
	}

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: srv.Addr()})
	defer func() { _ = inspector.Close() }()

	tasks, err := inspector.ListScheduledTasks("notifications")
	if err != nil {
		t.Fatalf("ListScheduledTasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("scheduled tasks = %d, want 1", len(tasks))
	}
	if tasks[0].Type != TaskNotificationOutboxDue {
		t.Errorf("task type = %q, want %q", tasks[0].Type, TaskNotificationOutboxDue)
	}

	payload, err := ParseNotificationOutboxDuePayload(asynq.NewTask(tasks[0].Type, tasks[0].Payload))
	if err != nil {
		t.Fatalf("parse payload: %v", err)
	}
	if payload.OutboxID != outboxID.String() {
		t.Errorf("payload outbox id = %q, want %q", payload.OutboxID, outboxID)
	}
}

func TestNewClientRequiresRedisURL(t *testing.T) {
	if _, err := NewClient(stubSchedulerCfg{}); err == nil {
		t.Fatal("expected error for missing redis url")
	}
}

func TestNilClientIsSafe(t *testing.T) {
	var client *Client
	if err := client.ScheduleOutboxRetry(context.Background(), uuid.New(), time.Now()); err != nil {
		t.Fatalf("nil client schedule: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("nil client close: %v", err)
	}
}
