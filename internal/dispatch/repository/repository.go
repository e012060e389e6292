// Package repository provides PostgreSQL persistence for dispatch attempts
// and the technician candidate pool.
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

// Repository provides data access for the dispatch protocol.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new dispatch repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Attempt statuses.
const (
	StatusPending    = "pending"
	StatusAccepted   = "accepted"
	StatusDeclined   = "declined"
	StatusExpired    = "expired"
	StatusSuperseded = "superseded"
)

// Attempt is one timed offer of an intervention to one technician.
type Attempt struct {
	ID             uuid.UUID
	InterventionID uuid.UUID
	TechnicianID   uuid.UUID
	Status         string
	RankScore      float64
	ExpiresAt      time.Time
	RespondedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Technician is a candidate worker from the dispatch pool.
type Technician struct {
	ID             uuid.UUID
	FullName       string
	Email          string
	Phone          string
	PushToken      string
	Skills         []string
	Rating         float64
	ActiveJobCount int
	Available      bool
	Latitude       float64
	Longitude      float64
}

const attemptColumns = `
	id, intervention_id, technician_id, status, rank_score,
	expires_at, responded_at, created_at, updated_at`

func scanAttempt(row pgx.Row) (Attempt, error) {
	var a Attempt
	err := row.Scan(
		&a.ID, &a.InterventionID, &a.TechnicianID, &a.Status, &a.RankScore,
		&a.ExpiresAt, &a.RespondedAt, &a.CreatedAt, &a.UpdatedAt,
	)
	return a, err
}

// CreateAttempt issues a new pending offer. The partial unique index
// idx_dispatch_one_pending_per_technician rejects a second outstanding offer
// for the same intervention and technician.
func (r *Repository) CreateAttempt(ctx context.Context, interventionID, technicianID uuid.UUID, rankScore float64, expiresAt time.Time) (Attempt, error) {
	query := `
		INSERT INTO dispatch_attempts (intervention_id, technician_id, rank_score, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + attemptColumns

	a, err := scanAttempt(r.pool.QueryRow(ctx, query, interventionID, technicianID, rankScore, expiresAt))
	if err != nil {
		if strings.Contains(err.Error(), "idx_dispatch_one_pending_per_technician") {
			return Attempt{}, apperr.Conflict("technician already has a pending offer for this intervention")
		}
		return Attempt{}, fmt.Errorf("create dispatch attempt: %w", err)
	}

	return a, nil
}

// CreateAcceptedAttempt records a manual operator assignment that bypasses
// the offer protocol. Pending offers for the intervention are superseded in
// the same transaction.
func (r *Repository) CreateAcceptedAttempt(ctx context.Context, interventionID, technicianID uuid.UUID) (Attempt, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Attempt{}, fmt.Errorf("begin manual assignment: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	supersede := `
		UPDATE dispatch_attempts
		SET status = 'superseded', updated_at = now()
		WHERE intervention_id = $1 AND status = 'pending'`
	if _, err := tx.Exec(ctx, supersede, interventionID); err != nil {
		return Attempt{}, fmt.Errorf("supersede pending attempts: %w", err)
	}

	insert := `
		INSERT INTO dispatch_attempts (intervention_id, technician_id, status, expires_at, responded_at)
		VALUES ($1, $2, 'accepted', now(), now())
		RETURNING ` + attemptColumns

	a, err := scanAttempt(tx.QueryRow(ctx, insert, interventionID, technicianID))
	if err != nil {
		if strings.Contains(err.Error(), "idx_dispatch_one_accepted_per_intervention") {
			return Attempt{}, apperr.Conflict("intervention already has an accepted attempt")
		}
		return Attempt{}, fmt.Errorf("create accepted attempt: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Attempt{}, fmt.Errorf("commit manual assignment: %w", err)
	}

	return a, nil
}

// Accept resolves the offer race in the technician's favor. The conditional
// update only wins while the attempt is still pending; every other pending
// attempt for the intervention is superseded in the same transaction. A late
// response loses with a conflict and never overwrites the winner.
func (r *Repository) Accept(ctx context.Context, attemptID uuid.UUID) (Attempt, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Attempt{}, fmt.Errorf("begin accept: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	accept := `
		UPDATE dispatch_attempts
		SET status = 'accepted', responded_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + attemptColumns

	a, err := scanAttempt(tx.QueryRow(ctx, accept, attemptID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Attempt{}, apperr.Conflict("offer is no longer available")
	}
	if err != nil {
		if strings.Contains(err.Error(), "idx_dispatch_one_accepted_per_intervention") {
			return Attempt{}, apperr.Conflict("offer is no longer available")
		}
		return Attempt{}, fmt.Errorf("accept dispatch attempt: %w", err)
	}

	supersede := `
		UPDATE dispatch_attempts
		SET status = 'superseded', updated_at = now()
		WHERE intervention_id = $1 AND id <> $2 AND status = 'pending'`
	if _, err := tx.Exec(ctx, supersede, a.InterventionID, a.ID); err != nil {
		return Attempt{}, fmt.Errorf("supersede competing attempts: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Attempt{}, fmt.Errorf("commit accept: %w", err)
	}

	return a, nil
}

// MarkDeclined records an explicit refusal. Only a pending attempt can be
// declined.
func (r *Repository) MarkDeclined(ctx context.Context, attemptID uuid.UUID) (Attempt, error) {
	query := `
		UPDATE dispatch_attempts
		SET status = 'declined', responded_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + attemptColumns

	a, err := scanAttempt(r.pool.QueryRow(ctx, query, attemptID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Attempt{}, apperr.Conflict("offer is no longer available")
	}
	if err != nil {
		return Attempt{}, fmt.Errorf("decline dispatch attempt: %w", err)
	}

	return a, nil
}

// MarkExpired lapses a pending attempt. Returns false without error when the
// attempt was already resolved, so an in-flight acceptance is never undone.
func (r *Repository) MarkExpired(ctx context.Context, attemptID uuid.UUID) (bool, error) {
	query := `
		UPDATE dispatch_attempts
		SET status = 'expired', updated_at = now()
		WHERE id = $1 AND status = 'pending'`

	tag, err := r.pool.Exec(ctx, query, attemptID)
	if err != nil {
		return false, fmt.Errorf("expire dispatch attempt: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// SupersedePending invalidates every outstanding offer for an intervention.
// Used when the intervention is cancelled while offers are in flight.
func (r *Repository) SupersedePending(ctx context.Context, interventionID uuid.UUID) (int64, error) {
	query := `
		UPDATE dispatch_attempts
		SET status = 'superseded', updated_at = now()
		WHERE intervention_id = $1 AND status = 'pending'`

	tag, err := r.pool.Exec(ctx, query, interventionID)
	if err != nil {
		return 0, fmt.Errorf("supersede pending attempts: %w", err)
	}

	return tag.RowsAffected(), nil
}

// GetAttempt fetches a single attempt by ID.
func (r *Repository) GetAttempt(ctx context.Context, attemptID uuid.UUID) (Attempt, error) {
	query := `
		SELECT ` + attemptColumns + `
		FROM dispatch_attempts
		WHERE id = $1`

	a, err := scanAttempt(r.pool.QueryRow(ctx, query, attemptID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Attempt{}, apperr.NotFound("dispatch attempt not found")
	}
	if err != nil {
		return Attempt{}, fmt.Errorf("get dispatch attempt: %w", err)
	}

	return a, nil
}

// GetAcceptedByIntervention returns the winning attempt, if any.
func (r *Repository) GetAcceptedByIntervention(ctx context.Context, interventionID uuid.UUID) (Attempt, error) {
	query := `
		SELECT ` + attemptColumns + `
		FROM dispatch_attempts
		WHERE intervention_id = $1 AND status = 'accepted'`

	a, err := scanAttempt(r.pool.QueryRow(ctx, query, interventionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Attempt{}, apperr.NotFound("no accepted attempt for intervention")
	}
	if err != nil {
		return Attempt{}, fmt.Errorf("get accepted attempt: %w", err)
	}

	return a, nil
}

// ListByIntervention returns the full offer history, oldest first.
func (r *Repository) ListByIntervention(ctx context.Context, interventionID uuid.UUID) ([]Attempt, error) {
	query := `
		SELECT ` + attemptColumns + `
		FROM dispatch_attempts
		WHERE intervention_id = $1
		ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, interventionID)
	if err != nil {
		return nil, fmt.Errorf("list dispatch attempts: %w", err)
	}
	defer rows.Close()

	var items []Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dispatch attempt: %w", err)
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dispatch attempts: %w", err)
	}

	return items, nil
}

// ExpireDue lapses every pending attempt whose deadline has passed and
// returns the affected rows. This is the scheduler backstop for offers whose
// in-process timer was lost to a restart.
func (r *Repository) ExpireDue(ctx context.Context, now time.Time) ([]Attempt, error) {
	query := `
		UPDATE dispatch_attempts
		SET status = 'expired', updated_at = now()
		WHERE status = 'pending' AND expires_at < $1
		RETURNING ` + attemptColumns

	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("expire due attempts: %w", err)
	}
	defer rows.Close()

	var items []Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expired attempt: %w", err)
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired attempts: %w", err)
	}

	return items, nil
}

// CountPending returns the number of outstanding offers for an intervention.
func (r *Repository) CountPending(ctx context.Context, interventionID uuid.UUID) (int, error) {
	query := `
		SELECT count(*)
		FROM dispatch_attempts
		WHERE intervention_id = $1 AND status = 'pending'`

	var n int
	if err := r.pool.QueryRow(ctx, query, interventionID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending attempts: %w", err)
	}

	return n, nil
}

const technicianColumns = `
	id, full_name, email, phone, push_token, skills,
	rating, active_job_count, available, latitude, longitude`

func scanTechnician(row pgx.Row) (Technician, error) {
	var t Technician
	err := row.Scan(
		&t.ID, &t.FullName, &t.Email, &t.Phone, &t.PushToken, &t.Skills,
		&t.Rating, &t.ActiveJobCount, &t.Available, &t.Latitude, &t.Longitude,
	)
	return t, err
}

// ListCandidates returns available technicians holding the required skill.
func (r *Repository) ListCandidates(ctx context.Context, requiredSkill string) ([]Technician, error) {
	query := `
		SELECT ` + technicianColumns + `
		FROM technicians
		WHERE available = TRUE AND $1 = ANY(skills)`

	rows, err := r.pool.Query(ctx, query, requiredSkill)
	if err != nil {
		return nil, fmt.Errorf("list dispatch candidates: %w", err)
	}
	defer rows.Close()

	var items []Technician
	for rows.Next() {
		t, err := scanTechnician(rows)
		if err != nil {
			return nil, fmt.Errorf("scan technician: %w", err)
		}
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate technicians: %w", err)
	}

	return items, nil
}

// GetTechnician fetches a technician by ID.
func (r *Repository) GetTechnician(ctx context.Context, id uuid.UUID) (Technician, error) {
	query := `
		SELECT ` + technicianColumns + `
		FROM technicians
		WHERE id = $1`

	t, err := scanTechnician(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Technician{}, apperr.NotFound("technician not found")
	}
	if err != nil {
		return Technician{}, fmt.Errorf("get technician: %w", err)
	}

	return t, nil
}

// AdjustWorkload shifts a technician's active job counter. The counter never
// goes below zero.
func (r *Repository) AdjustWorkload(ctx context.Context, technicianID uuid.UUID, delta int) error {
	query := `
		UPDATE technicians
		SET active_job_count = GREATEST(active_job_count + $2, 0), updated_at = now()
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, technicianID, delta)
	if err != nil {
		return fmt.Errorf("adjust technician workload: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("technician not found")
	}

	return nil
}
