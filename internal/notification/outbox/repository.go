// Package outbox persists failed notification sends for later retry.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fieldservice_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Status values for an outbox record.
type Status string

const (
	StatusPending    Status = "pending"
	StatusEnqueued   Status = "enqueued"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

// MaxAttempts is the retry ceiling before a record is parked as failed.
const MaxAttempts = 5

// Record is one pending channel send.
type Record struct {
	ID        uuid.UUID
	EventKind string
	Recipient string
	Channel   string
	Payload   json.RawMessage
	Status    Status
	Attempts  int
	LastError string
	RunAt     time.Time
}

// InsertParams describe a new outbox record.
type InsertParams struct {
	EventKind string
	Recipient string
	Channel   string
	Payload   any
	RunAt     time.Time
	LastError string
}

// Repository provides outbox persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new outbox repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert stores a record for a later delivery attempt.
func (r *Repository) Insert(ctx context.Context, p InsertParams) (uuid.UUID, error) {
	if p.EventKind == "" {
		return uuid.Nil, fmt.Errorf("event kind is required")
	}
	if p.Channel == "" {
		return uuid.Nil, fmt.Errorf("channel is required")
	}
	if p.RunAt.IsZero() {
		p.RunAt = time.Now().UTC()
	}

	payloadBytes, err := json.Marshal(p.Payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal outbox payload: %w", err)
	}

	var id uuid.UUID
	err = r.pool.QueryRow(ctx,
		`INSERT INTO notification_outbox (event_kind, recipient, channel, payload, run_at, last_error)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		p.EventKind, p.Recipient, p.Channel, payloadBytes, p.RunAt, p.LastError,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert outbox record: %w", err)
	}

	return id, nil
}

// GetByID fetches a record.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Record, error) {
	var rec Record
	var status string
	err := r.pool.QueryRow(ctx,
		`SELECT id, event_kind, recipient, channel, payload, status, attempts, last_error, run_at
		 FROM notification_outbox
		 WHERE id = $1`,
		id,
	).Scan(&rec.ID, &rec.EventKind, &rec.Recipient, &rec.Channel, &rec.Payload, &status, &rec.Attempts, &rec.LastError, &rec.RunAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, apperr.NotFound("outbox record not found")
	}
	if err != nil {
		return Record{}, fmt.Errorf("get outbox record: %w", err)
	}
	rec.Status = Status(status)

	return rec, nil
}

// ClaimDue atomically moves due records to processing and returns them.
// SKIP LOCKED keeps concurrent workers from double-claiming.
func (r *Repository) ClaimDue(ctx context.Context, limit int) ([]Record, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx,
		`UPDATE notification_outbox
		 SET status = 'processing', attempts = attempts + 1, updated_at = now()
		 WHERE id IN (
			SELECT id FROM notification_outbox
			WHERE status IN ('pending', 'enqueued') AND run_at <= now()
			ORDER BY run_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, event_kind, recipient, channel, payload, status, attempts, last_error, run_at`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim due outbox records: %w", err)
	}
	defer rows.Close()

	var items []Record
	for rows.Next() {
		var rec Record
		var status string
		if err := rows.Scan(&rec.ID, &rec.EventKind, &rec.Recipient, &rec.Channel, &rec.Payload, &status, &rec.Attempts, &rec.LastError, &rec.RunAt); err != nil {
			return nil, fmt.Errorf("scan outbox record: %w", err)
		}
		rec.Status = Status(status)
		items = append(items, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox records: %w", err)
	}

	return items, nil
}

// MarkSucceeded finalizes a delivered record.
func (r *Repository) MarkSucceeded(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE notification_outbox
		 SET status = 'succeeded', last_error = '', updated_at = now()
		 WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("mark outbox succeeded: %w", err)
	}
	return nil
}

// Reschedule pushes a failed attempt back into the queue with a new run
// time, or parks it as failed once the attempt ceiling is reached.
func (r *Repository) Reschedule(ctx context.Context, id uuid.UUID, attempts int, lastError string, runAt time.Time) error {
	status := StatusPending
	if attempts >= MaxAttempts {
		status = StatusFailed
	}

	_, err := r.pool.Exec(ctx,
		`UPDATE notification_outbox
		 SET status = $2, last_error = $3, run_at = $4, updated_at = now()
		 WHERE id = $1`,
		id, string(status), lastError, runAt,
	)
	if err != nil {
		return fmt.Errorf("reschedule outbox record: %w", err)
	}
	return nil
}
