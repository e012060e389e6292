// Package repository provides PostgreSQL persistence for payment
// authorizations and cancellation invoices.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fieldservice_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides data access for the payment workflow.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new payments repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Authorization statuses.
const (
	StatusPending    = "pending"
	StatusAuthorized = "authorized"
	StatusCaptured   = "captured"
	StatusCancelled  = "cancelled"
	StatusFailed     = "failed"
)

// Authorization is a persisted hold on the client's payment method.
type Authorization struct {
	ID             uuid.UUID
	InterventionID uuid.UUID
	GatewayRef     string
	AmountCents    int64
	CapturedCents  int64
	Currency       string
	Status         string
	FailureReason  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CancellationInvoice records a displacement fee charged on late cancellation.
type CancellationInvoice struct {
	ID              uuid.UUID
	InterventionID  uuid.UUID
	AuthorizationID uuid.UUID
	AmountCents     int64
	Reason          string
	CreatedAt       time.Time
}

const authorizationColumns = `
	id, intervention_id, gateway_ref, amount_cents, captured_cents,
	currency, status, failure_reason, created_at, updated_at`

func scanAuthorization(row pgx.Row) (Authorization, error) {
	var a Authorization
	err := row.Scan(
		&a.ID, &a.InterventionID, &a.GatewayRef, &a.AmountCents, &a.CapturedCents,
		&a.Currency, &a.Status, &a.FailureReason, &a.CreatedAt, &a.UpdatedAt,
	)
	return a, err
}

// CreatePending inserts a new authorization attempt in status pending.
func (r *Repository) CreatePending(ctx context.Context, interventionID uuid.UUID, amountCents int64, currency string) (Authorization, error) {
	query := `
		INSERT INTO payment_authorizations (intervention_id, amount_cents, currency)
		VALUES ($1, $2, $3)
		RETURNING ` + authorizationColumns

	a, err := scanAuthorization(r.pool.QueryRow(ctx, query, interventionID, amountCents, currency))
	if err != nil {
		return Authorization{}, fmt.Errorf("create payment authorization: %w", err)
	}

	return a, nil
}

// MarkAuthorized promotes a pending attempt once the gateway confirmed the
// hold. The partial unique index idx_payment_one_live_authorization rejects
// a second live hold for the same intervention.
func (r *Repository) MarkAuthorized(ctx context.Context, id uuid.UUID, gatewayRef string) (Authorization, error) {
	query := `
		UPDATE payment_authorizations
		SET status = 'authorized', gateway_ref = $2, updated_at = now()
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + authorizationColumns

	a, err := scanAuthorization(r.pool.QueryRow(ctx, query, id, gatewayRef))
	if errors.Is(err, pgx.ErrNoRows) {
		return Authorization{}, apperr.Conflict("authorization is not pending")
	}
	if err != nil {
		if strings.Contains(err.Error(), "idx_payment_one_live_authorization") {
			return Authorization{}, apperr.Conflict("intervention already has an authorized hold")
		}
		return Authorization{}, fmt.Errorf("mark authorization authorized: %w", err)
	}

	return a, nil
}

// MarkFailed records a failed attempt with its typed reason.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	query := `
		UPDATE payment_authorizations
		SET status = 'failed', failure_reason = $2, updated_at = now()
		WHERE id = $1 AND status = 'pending'`

	tag, err := r.pool.Exec(ctx, query, id, reason)
	if err != nil {
		return fmt.Errorf("mark authorization failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict("authorization is not pending")
	}

	return nil
}

// MarkCaptured finalizes an authorized hold with the amount actually
// charged. Captured rows are never mutated again.
func (r *Repository) MarkCaptured(ctx context.Context, id uuid.UUID, capturedCents int64) (Authorization, error) {
	query := `
		UPDATE payment_authorizations
		SET status = 'captured', captured_cents = $2, updated_at = now()
		WHERE id = $1 AND status = 'authorized'
		RETURNING ` + authorizationColumns

	a, err := scanAuthorization(r.pool.QueryRow(ctx, query, id, capturedCents))
	if errors.Is(err, pgx.ErrNoRows) {
		return Authorization{}, apperr.Conflict("authorization is not capturable")
	}
	if err != nil {
		return Authorization{}, fmt.Errorf("mark authorization captured: %w", err)
	}

	return a, nil
}

// MarkCancelled voids an authorized hold.
func (r *Repository) MarkCancelled(ctx context.Context, id uuid.UUID) (Authorization, error) {
	query := `
		UPDATE payment_authorizations
		SET status = 'cancelled', updated_at = now()
		WHERE id = $1 AND status = 'authorized'
		RETURNING ` + authorizationColumns

	a, err := scanAuthorization(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Authorization{}, apperr.Conflict("authorization is not cancellable")
	}
	if err != nil {
		return Authorization{}, fmt.Errorf("mark authorization cancelled: %w", err)
	}

	return a, nil
}

// GetLiveAuthorization returns the single authorized hold for an
// intervention, if any.
func (r *Repository) GetLiveAuthorization(ctx context.Context, interventionID uuid.UUID) (Authorization, error) {
	query := `
		SELECT ` + authorizationColumns + `
		FROM payment_authorizations
		WHERE intervention_id = $1 AND status = 'authorized'`

	a, err := scanAuthorization(r.pool.QueryRow(ctx, query, interventionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Authorization{}, apperr.NotFound("no authorized hold for intervention")
	}
	if err != nil {
		return Authorization{}, fmt.Errorf("get live authorization: %w", err)
	}

	return a, nil
}

// GetLatest returns the most recent authorization attempt for an intervention.
func (r *Repository) GetLatest(ctx context.Context, interventionID uuid.UUID) (Authorization, error) {
	query := `
		SELECT ` + authorizationColumns + `
		FROM payment_authorizations
		WHERE intervention_id = $1
		ORDER BY created_at DESC
		LIMIT 1`

	a, err := scanAuthorization(r.pool.QueryRow(ctx, query, interventionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Authorization{}, apperr.NotFound("no authorization for intervention")
	}
	if err != nil {
		return Authorization{}, fmt.Errorf("get latest authorization: %w", err)
	}

	return a, nil
}

// ListByIntervention returns all authorization attempts, newest first.
func (r *Repository) ListByIntervention(ctx context.Context, interventionID uuid.UUID) ([]Authorization, error) {
	query := `
		SELECT ` + authorizationColumns + `
		FROM payment_authorizations
		WHERE intervention_id = $1
		ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, interventionID)
	if err != nil {
		return nil, fmt.Errorf("list authorizations: %w", err)
	}
	defer rows.Close()

	var items []Authorization
	for rows.Next() {
		a, err := scanAuthorization(rows)
		if err != nil {
			return nil, fmt.Errorf("scan authorization: %w", err)
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate authorizations: %w", err)
	}

	return items, nil
}

// CreateCancellationInvoice records a charged displacement fee.
func (r *Repository) CreateCancellationInvoice(ctx context.Context, inv CancellationInvoice) (CancellationInvoice, error) {
	query := `
		INSERT INTO cancellation_invoices (intervention_id, authorization_id, amount_cents, reason)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	err := r.pool.QueryRow(ctx, query,
		inv.InterventionID, inv.AuthorizationID, inv.AmountCents, inv.Reason,
	).Scan(&inv.ID, &inv.CreatedAt)
	if err != nil {
		return CancellationInvoice{}, fmt.Errorf("create cancellation invoice: %w", err)
	}

	return inv, nil
}
