// Package transport defines request and response DTOs for dispatch endpoints.
package transport

import (
	"time"

	"fieldservice_backend/internal/dispatch/repository"
)

// RespondRequest carries a technician's answer to an offer.
type RespondRequest struct {
	Action string `json:"action" validate:"required,oneof=accept decline"`
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

// ManualAssignRequest is the operator override.
type ManualAssignRequest struct {
	TechnicianID string `json:"technicianId" validate:"required,uuid"`
}

// AttemptResponse is the API shape of a dispatch attempt.
type AttemptResponse struct {
	ID             string     `json:"id"`
	InterventionID string     `json:"interventionId"`
	TechnicianID   string     `json:"technicianId"`
	Status         string     `json:"status"`
	RankScore      float64    `json:"rankScore"`
	ExpiresAt      time.Time  `json:"expiresAt"`
	RespondedAt    *time.Time `json:"respondedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// ToAttemptResponse maps a persisted attempt to its API shape.
func ToAttemptResponse(a repository.Attempt) AttemptResponse {
	return AttemptResponse{
		ID:             a.ID.String(),
		InterventionID: a.InterventionID.String(),
		TechnicianID:   a.TechnicianID.String(),
		Status:         a.Status,
		RankScore:      a.RankScore,
		ExpiresAt:      a.ExpiresAt,
		RespondedAt:    a.RespondedAt,
		CreatedAt:      a.CreatedAt,
	}
}

// ListAttemptsResponse wraps the offer history for an intervention.
type ListAttemptsResponse struct {
	Attempts []AttemptResponse `json:"attempts"`
}

// ToListAttemptsResponse maps the offer history.
func ToListAttemptsResponse(items []repository.Attempt) ListAttemptsResponse {
	out := ListAttemptsResponse{Attempts: make([]AttemptResponse, 0, len(items))}
	for _, a := range items {
		out.Attempts = append(out.Attempts, ToAttemptResponse(a))
	}
	return out
}
