// Package repository provides PostgreSQL persistence for the quote ledger.
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

// Repository provides data access for quote lines and modifications.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new quotes repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// QuoteLine is one immutable base-price line item.
type QuoteLine struct {
	ID             uuid.UUID
	InterventionID uuid.UUID
	Label          string
	AmountCents    int64
	Origin         string
	CreatedAt      time.Time
}

// QuoteModification is a technician-proposed supplemental charge awaiting
// client resolution.
type QuoteModification struct {
	ID             uuid.UUID
	InterventionID uuid.UUID
	TechnicianID   uuid.UUID
	Label          string
	AmountCents    int64
	Status         string
	CreatedAt      time.Time
	ResolvedAt     *time.Time
}

// Modification statuses.
const (
	ModificationPending  = "pending"
	ModificationApproved = "approved"
	ModificationDeclined = "declined"
	ModificationExpired  = "expired"
)

// CreateLine inserts a quote line.
func (r *Repository) CreateLine(ctx context.Context, line QuoteLine) (QuoteLine, error) {
	query := `
		INSERT INTO quote_lines (intervention_id, label, amount_cents, origin)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	origin := line.Origin
	if origin == "" {
		origin = "initial"
	}
	line.Origin = origin

	err := r.pool.QueryRow(ctx, query,
		line.InterventionID, line.Label, line.AmountCents, origin,
	).Scan(&line.ID, &line.CreatedAt)
	if err != nil {
		return QuoteLine{}, fmt.Errorf("create quote line: %w", err)
	}

	return line, nil
}

// ListLines returns all quote lines for an intervention, oldest first.
func (r *Repository) ListLines(ctx context.Context, interventionID uuid.UUID) ([]QuoteLine, error) {
	query := `
		SELECT id, intervention_id, label, amount_cents, origin, created_at
		FROM quote_lines
		WHERE intervention_id = $1
		ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, interventionID)
	if err != nil {
		return nil, fmt.Errorf("list quote lines: %w", err)
	}
	defer rows.Close()

	var lines []QuoteLine
	for rows.Next() {
		var l QuoteLine
		if err := rows.Scan(&l.ID, &l.InterventionID, &l.Label, &l.AmountCents, &l.Origin, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan quote line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quote lines: %w", err)
	}

	return lines, nil
}

// CurrentTotal sums all base lines plus all approved modifications.
// Pending and declined modifications never contribute.
func (r *Repository) CurrentTotal(ctx context.Context, interventionID uuid.UUID) (int64, error) {
	query := `
		SELECT COALESCE((SELECT SUM(amount_cents) FROM quote_lines WHERE intervention_id = $1), 0)
		     + COALESCE((SELECT SUM(amount_cents) FROM quote_modifications
		                 WHERE intervention_id = $1 AND status = 'approved'), 0)`

	var total int64
	if err := r.pool.QueryRow(ctx, query, interventionID).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum quote total: %w", err)
	}

	return total, nil
}

// HasPendingModification reports whether an unresolved modification exists.
func (r *Repository) HasPendingModification(ctx context.Context, interventionID uuid.UUID) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(
		SELECT 1 FROM quote_modifications
		WHERE intervention_id = $1 AND status = 'pending'
	)`
	if err := r.pool.QueryRow(ctx, query, interventionID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check pending modification: %w", err)
	}
	return exists, nil
}

// CreateModification inserts a pending modification. The partial unique index
// idx_quote_one_pending_modification rejects a second concurrent proposal.
func (r *Repository) CreateModification(ctx context.Context, mod QuoteModification) (QuoteModification, error) {
	query := `
		INSERT INTO quote_modifications (intervention_id, technician_id, label, amount_cents)
		VALUES ($1, $2, $3, $4)
		RETURNING id, status, created_at`

	err := r.pool.QueryRow(ctx, query,
		mod.InterventionID, mod.TechnicianID, mod.Label, mod.AmountCents,
	).Scan(&mod.ID, &mod.Status, &mod.CreatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "idx_quote_one_pending_modification") {
			return QuoteModification{}, apperr.Conflict("a modification is already awaiting client approval")
		}
		return QuoteModification{}, fmt.Errorf("create quote modification: %w", err)
	}

	return mod, nil
}

// GetModification retrieves a modification by ID.
func (r *Repository) GetModification(ctx context.Context, id uuid.UUID) (QuoteModification, error) {
	query := `
		SELECT id, intervention_id, technician_id, label, amount_cents, status, created_at, resolved_at
		FROM quote_modifications
		WHERE id = $1`

	var m QuoteModification
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&m.ID, &m.InterventionID, &m.TechnicianID, &m.Label, &m.AmountCents,
		&m.Status, &m.CreatedAt, &m.ResolvedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return QuoteModification{}, apperr.NotFound("modification not found")
	}
	if err != nil {
		return QuoteModification{}, fmt.Errorf("get quote modification: %w", err)
	}

	return m, nil
}

// ListModifications returns all modifications for an intervention, oldest first.
func (r *Repository) ListModifications(ctx context.Context, interventionID uuid.UUID) ([]QuoteModification, error) {
	query := `
		SELECT id, intervention_id, technician_id, label, amount_cents, status, created_at, resolved_at
		FROM quote_modifications
		WHERE intervention_id = $1
		ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, interventionID)
	if err != nil {
		return nil, fmt.Errorf("list quote modifications: %w", err)
	}
	defer rows.Close()

	var mods []QuoteModification
	for rows.Next() {
		var m QuoteModification
		if err := rows.Scan(&m.ID, &m.InterventionID, &m.TechnicianID, &m.Label, &m.AmountCents,
			&m.Status, &m.CreatedAt, &m.ResolvedAt); err != nil {
			return nil, fmt.Errorf("scan quote modification: %w", err)
		}
		mods = append(mods, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quote modifications: %w", err)
	}

	return mods, nil
}

// ResolveModification moves a pending modification to approved or declined.
// The status predicate makes concurrent resolutions race-safe: the loser
// gets a conflict.
func (r *Repository) ResolveModification(ctx context.Context, id uuid.UUID, newStatus string) (QuoteModification, error) {
	if newStatus != ModificationApproved && newStatus != ModificationDeclined {
		return QuoteModification{}, apperr.Validation("invalid modification resolution")
	}

	query := `
		UPDATE quote_modifications
		SET status = $2, resolved_at = now()
		WHERE id = $1 AND status = 'pending'
		RETURNING id, intervention_id, technician_id, label, amount_cents, status, created_at, resolved_at`

	var m QuoteModification
	err := r.pool.QueryRow(ctx, query, id, newStatus).Scan(
		&m.ID, &m.InterventionID, &m.TechnicianID, &m.Label, &m.AmountCents,
		&m.Status, &m.CreatedAt, &m.ResolvedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := r.GetModification(ctx, id); getErr != nil {
			return QuoteModification{}, getErr
		}
		return QuoteModification{}, apperr.Conflict("modification has already been resolved")
	}
	if err != nil {
		return QuoteModification{}, fmt.Errorf("resolve quote modification: %w", err)
	}

	return m, nil
}

// ExpireStaleModifications marks pending modifications older than the cutoff
// as expired so an unresponsive client cannot block finalization forever.
// Returns the expired modifications for event publishing.
func (r *Repository) ExpireStaleModifications(ctx context.Context, olderThan time.Duration) ([]QuoteModification, error) {
	query := `
		UPDATE quote_modifications
		SET status = 'expired', resolved_at = now()
		WHERE status = 'pending' AND created_at < $1
		RETURNING id, intervention_id, technician_id, label, amount_cents, status, created_at, resolved_at`

	rows, err := r.pool.Query(ctx, query, time.Now().Add(-olderThan))
	if err != nil {
		return nil, fmt.Errorf("expire stale modifications: %w", err)
	}
	defer rows.Close()

	var mods []QuoteModification
	for rows.Next() {
		var m QuoteModification
		if err := rows.Scan(&m.ID, &m.InterventionID, &m.TechnicianID, &m.Label, &m.AmountCents,
			&m.Status, &m.CreatedAt, &m.ResolvedAt); err != nil {
			return nil, fmt.Errorf("scan expired modification: %w", err)
		}
		mods = append(mods, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired modifications: %w", err)
	}

	return mods, nil
}
