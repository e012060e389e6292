package notification

import (
	"context"
	"errors"
	"fmt"

	"fieldservice_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Recipient roles.
const (
	RoleClient     = "client"
	RoleTechnician = "technician"
)

// Repository resolves recipients to their known addresses.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new recipient repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Client resolves a client's contact addresses.
func (r *Repository) Client(ctx context.Context, id uuid.UUID) (Recipient, error) {
	var rec Recipient
	err := r.pool.QueryRow(ctx,
		`SELECT id, full_name, email, phone, push_token FROM clients WHERE id = $1`,
		id,
	).Scan(&rec.ID, &rec.Name, &rec.Email, &rec.Phone, &rec.PushToken)
	if errors.Is(err, pgx.ErrNoRows) {
		return Recipient{}, apperr.NotFound("client not found")
	}
	if err != nil {
		return Recipient{}, fmt.Errorf("resolve client recipient: %w", err)
	}
	rec.Role = RoleClient

	return rec, nil
}

// Technician resolves a technician's contact addresses.
func (r *Repository) Technician(ctx context.Context, id uuid.UUID) (Recipient, error) {
	var rec Recipient
	err := r.pool.QueryRow(ctx,
		`SELECT id, full_name, email, phone, push_token FROM technicians WHERE id = $1`,
		id,
	).Scan(&rec.ID, &rec.Name, &rec.Email, &rec.Phone, &rec.PushToken)
	if errors.Is(err, pgx.ErrNoRows) {
		return Recipient{}, apperr.NotFound("technician not found")
	}
	if err != nil {
		return Recipient{}, fmt.Errorf("resolve technician recipient: %w", err)
	}
	rec.Role = RoleTechnician

	return rec, nil
}
