// Package scheduler runs background maintenance through asynq: offer expiry
// backstops, stale modification cleanup, and notification outbox retries.
package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// TaskDispatchExpireOffers sweeps pending offers past their deadline.
const TaskDispatchExpireOffers = "dispatch.offers.expire"

// TaskQuoteExpireModifications parks modifications the client never answered.
const TaskQuoteExpireModifications = "quotes.modifications.expire"

// TaskNotificationOutboxDue retries one specific outbox record.
const TaskNotificationOutboxDue = "notification.outbox.due"

// TaskNotificationOutboxSweep retries every due outbox record.
const TaskNotificationOutboxSweep = "notification.outbox.sweep"

// NotificationOutboxDuePayload identifies the record to retry.
type NotificationOutboxDuePayload struct {
	OutboxID string `json:"outboxId"`
}

// NewNotificationOutboxDueTask builds the single-record retry task.
func NewNotificationOutboxDueTask(payload NotificationOutboxDuePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotificationOutboxDue, data), nil
}

// ParseNotificationOutboxDuePayload decodes the single-record retry task.
func ParseNotificationOutboxDuePayload(task *asynq.Task) (NotificationOutboxDuePayload, error) {
	var payload NotificationOutboxDuePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return NotificationOutboxDuePayload{}, err
	}
	return payload, nil
}
