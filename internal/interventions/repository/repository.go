// Package repository provides PostgreSQL persistence for interventions.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fieldservice_backend/internal/interventions/domain"
	"fieldservice_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const interventionNotFoundMsg = "intervention not found"

// Repository provides data access for interventions and their status history.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new interventions repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Intervention is the persisted service request record.
type Intervention struct {
	ID                     uuid.UUID
	TrackingCode           string
	ClientID               uuid.UUID
	TechnicianID           *uuid.UUID
	Category               string
	Priority               domain.Priority
	Status                 domain.Status
	Description            string
	Address                string
	Latitude               float64
	Longitude              float64
	RequiredSkill          string
	EstimatedPriceCents    int64
	FinalPriceCents        *int64
	ManualDispatchRequired bool
	CancellationReason     string
	Active                 bool
	Version                int64
	CreatedAt              time.Time
	UpdatedAt              time.Time
	ScheduledAt            *time.Time
	StartedAt              *time.Time
	CompletedAt            *time.Time
	CancelledAt            *time.Time
}

// HistoryEntry is one immutable lifecycle transition record.
type HistoryEntry struct {
	ID             uuid.UUID
	InterventionID uuid.UUID
	OldStatus      domain.Status
	NewStatus      domain.Status
	ActorType      domain.ActorType
	ActorID        *uuid.UUID
	Note           string
	CreatedAt      time.Time
}

const interventionColumns = `
	id, tracking_code, client_id, technician_id, category, priority, status,
	description, address, latitude, longitude, required_skill,
	estimated_price_cents, final_price_cents, manual_dispatch_required, cancellation_reason, active,
	version, created_at, updated_at, scheduled_at, started_at, completed_at, cancelled_at`

func scanIntervention(row pgx.Row) (Intervention, error) {
	var iv Intervention
	err := row.Scan(
		&iv.ID, &iv.TrackingCode, &iv.ClientID, &iv.TechnicianID,
		&iv.Category, &iv.Priority, &iv.Status,
		&iv.Description, &iv.Address, &iv.Latitude, &iv.Longitude, &iv.RequiredSkill,
		&iv.EstimatedPriceCents, &iv.FinalPriceCents, &iv.ManualDispatchRequired, &iv.CancellationReason, &iv.Active,
		&iv.Version, &iv.CreatedAt, &iv.UpdatedAt,
		&iv.ScheduledAt, &iv.StartedAt, &iv.CompletedAt, &iv.CancelledAt,
	)
	return iv, err
}

// Create inserts a new intervention in status new.
func (r *Repository) Create(ctx context.Context, iv Intervention) (Intervention, error) {
	query := `
		INSERT INTO interventions (
			tracking_code, client_id, category, priority, description,
			address, latitude, longitude, required_skill, scheduled_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, status, active, version, created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		iv.TrackingCode, iv.ClientID, iv.Category, iv.Priority, iv.Description,
		iv.Address, iv.Latitude, iv.Longitude, iv.RequiredSkill, iv.ScheduledAt,
	).Scan(&iv.ID, &iv.Status, &iv.Active, &iv.Version, &iv.CreatedAt, &iv.UpdatedAt)
	if err != nil {
		return Intervention{}, fmt.Errorf("create intervention: %w", err)
	}

	return iv, nil
}

// GetByID retrieves an intervention by its identifier.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Intervention, error) {
	query := `SELECT ` + interventionColumns + ` FROM interventions WHERE id = $1`

	iv, err := scanIntervention(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Intervention{}, apperr.NotFound(interventionNotFoundMsg)
	}
	if err != nil {
		return Intervention{}, fmt.Errorf("get intervention: %w", err)
	}

	return iv, nil
}

// GetByTrackingCode retrieves an intervention by its public tracking code.
func (r *Repository) GetByTrackingCode(ctx context.Context, code string) (Intervention, error) {
	query := `SELECT ` + interventionColumns + ` FROM interventions WHERE tracking_code = $1`

	iv, err := scanIntervention(r.pool.QueryRow(ctx, query, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return Intervention{}, apperr.NotFound(interventionNotFoundMsg)
	}
	if err != nil {
		return Intervention{}, fmt.Errorf("get intervention by tracking code: %w", err)
	}

	return iv, nil
}

// ListParams filters the intervention overview.
type ListParams struct {
	Status       domain.Status
	ClientID     uuid.UUID
	TechnicianID uuid.UUID
	// ManualDispatchOnly restricts the result to interventions flagged for
	// operator dispatching after automated dispatch exhausted.
	ManualDispatchOnly bool
	Limit              int
	Offset             int
}

// List returns interventions matching the filters, newest first.
func (r *Repository) List(ctx context.Context, params ListParams) ([]Intervention, error) {
	limit := params.Limit
	if limit < 1 || limit > 100 {
		limit = 50
	}

	query := `
		SELECT ` + interventionColumns + `
		FROM interventions
		WHERE active = TRUE
		  AND ($1 = '' OR status = $1)
		  AND ($2::uuid IS NULL OR client_id = $2)
		  AND ($3::uuid IS NULL OR technician_id = $3)
		  AND ($4 = FALSE OR manual_dispatch_required = TRUE)
		ORDER BY created_at DESC
		LIMIT $5 OFFSET $6`

	var clientID, technicianID *uuid.UUID
	if params.ClientID != uuid.Nil {
		clientID = &params.ClientID
	}
	if params.TechnicianID != uuid.Nil {
		technicianID = &params.TechnicianID
	}

	rows, err := r.pool.Query(ctx, query, string(params.Status), clientID, technicianID, params.ManualDispatchOnly, limit, params.Offset)
	if err != nil {
		return nil, fmt.Errorf("list interventions: %w", err)
	}
	defer rows.Close()

	var items []Intervention
	for rows.Next() {
		iv, err := scanIntervention(rows)
		if err != nil {
			return nil, fmt.Errorf("scan intervention: %w", err)
		}
		items = append(items, iv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate interventions: %w", err)
	}

	return items, nil
}

// TransitionParams describes one optimistic status update.
type TransitionParams struct {
	ID              uuid.UUID
	ExpectedVersion int64
	NewStatus       domain.Status
	// TechnicianID is written as-is: set for assignment, nil to clear.
	TechnicianID       *uuid.UUID
	FinalPriceCents    *int64
	CancellationReason string
}

// TransitionStatus performs the status change as a single conditional write.
// The version predicate serializes writers on the same intervention: a stale
// caller gets a conflict and must re-read.
func (r *Repository) TransitionStatus(ctx context.Context, params TransitionParams) (Intervention, error) {
	query := `
		UPDATE interventions
		SET status = $3,
		    technician_id = $4,
		    final_price_cents = COALESCE($5, final_price_cents),
		    cancellation_reason = CASE WHEN $6 <> '' THEN $6 ELSE cancellation_reason END,
		    started_at = CASE WHEN $3 = 'in_progress' AND started_at IS NULL THEN now() ELSE started_at END,
		    completed_at = CASE WHEN $3 = 'completed' THEN now() ELSE completed_at END,
		    cancelled_at = CASE WHEN $3 = 'cancelled' THEN now() ELSE cancelled_at END,
		    version = version + 1,
		    updated_at = now()
		WHERE id = $1 AND version = $2
		RETURNING ` + interventionColumns

	iv, err := scanIntervention(r.pool.QueryRow(ctx, query,
		params.ID, params.ExpectedVersion, params.NewStatus,
		params.TechnicianID, params.FinalPriceCents, params.CancellationReason,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		// Row missing or version mismatch; disambiguate for the caller.
		if _, getErr := r.GetByID(ctx, params.ID); getErr != nil {
			return Intervention{}, getErr
		}
		return Intervention{}, apperr.Conflict("intervention was modified concurrently")
	}
	if err != nil {
		return Intervention{}, fmt.Errorf("transition intervention status: %w", err)
	}

	return iv, nil
}

// UpdateEstimatedPrice records the seeded base quote total on the
// intervention for quick display.
func (r *Repository) UpdateEstimatedPrice(ctx context.Context, id uuid.UUID, amountCents int64) error {
	query := `
		UPDATE interventions
		SET estimated_price_cents = $2, updated_at = now()
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id, amountCents)
	if err != nil {
		return fmt.Errorf("update estimated price: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(interventionNotFoundMsg)
	}

	return nil
}

// SetManualDispatchRequired flags an intervention for operator dispatching
// after automatic dispatch exhausted its candidates.
func (r *Repository) SetManualDispatchRequired(ctx context.Context, id uuid.UUID, required bool) error {
	query := `
		UPDATE interventions
		SET manual_dispatch_required = $2, updated_at = now()
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id, required)
	if err != nil {
		return fmt.Errorf("set manual dispatch flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(interventionNotFoundMsg)
	}

	return nil
}

// Deactivate soft-deactivates a terminal intervention. Records are never
// deleted.
func (r *Repository) Deactivate(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE interventions
		SET active = FALSE, updated_at = now()
		WHERE id = $1 AND status IN ('completed', 'cancelled')`

	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("deactivate intervention: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return apperr.Conflict("only terminal interventions can be deactivated")
	}

	return nil
}

// AppendHistory records one immutable transition entry.
func (r *Repository) AppendHistory(ctx context.Context, entry HistoryEntry) error {
	query := `
		INSERT INTO intervention_status_history (
			intervention_id, old_status, new_status, actor_type, actor_id, note
		) VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.pool.Exec(ctx, query,
		entry.InterventionID, entry.OldStatus, entry.NewStatus,
		entry.ActorType, entry.ActorID, entry.Note,
	)
	if err != nil {
		return fmt.Errorf("append status history: %w", err)
	}

	return nil
}

// ListHistory returns the transition log for an intervention, oldest first.
func (r *Repository) ListHistory(ctx context.Context, interventionID uuid.UUID) ([]HistoryEntry, error) {
	query := `
		SELECT id, intervention_id, old_status, new_status, actor_type, actor_id, note, created_at
		FROM intervention_status_history
		WHERE intervention_id = $1
		ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, interventionID)
	if err != nil {
		return nil, fmt.Errorf("list status history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.ID, &e.InterventionID, &e.OldStatus, &e.NewStatus,
			&e.ActorType, &e.ActorID, &e.Note, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history entries: %w", err)
	}

	return entries, nil
}
