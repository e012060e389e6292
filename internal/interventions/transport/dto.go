// Package transport defines the request and response shapes for the
// interventions API.
package transport

import (
	"time"

	"fieldservice_backend/internal/interventions/repository"

	"github.com/google/uuid"
)

// CreateInterventionRequest is the client intake payload.
type CreateInterventionRequest struct {
	Category      string     `json:"category" validate:"required,max=100"`
	Priority      string     `json:"priority,omitempty" validate:"omitempty,oneof=urgent high normal low"`
	Description   string     `json:"description,omitempty" validate:"omitempty,max=2000"`
	Address       string     `json:"address" validate:"required,max=500"`
	Latitude      float64    `json:"latitude" validate:"min=-90,max=90"`
	Longitude     float64    `json:"longitude" validate:"min=-180,max=180"`
	RequiredSkill string     `json:"requiredSkill,omitempty" validate:"omitempty,max=100"`
	ScheduledAt   *time.Time `json:"scheduledAt,omitempty"`
}

// TransitionRequest asks for one lifecycle edge.
type TransitionRequest struct {
	TargetStatus string `json:"targetStatus" validate:"required,oneof=assigned on_route in_progress completed cancelled"`
	Note         string `json:"note,omitempty" validate:"omitempty,max=500"`
}

// CancelRequest carries the optional cancellation reason.
type CancelRequest struct {
	Reason string `json:"reason,omitempty" validate:"omitempty,max=500"`
}

// InterventionResponse is the full view for authenticated callers.
type InterventionResponse struct {
	ID                     uuid.UUID  `json:"id"`
	TrackingCode           string     `json:"trackingCode"`
	ClientID               uuid.UUID  `json:"clientId"`
	TechnicianID           *uuid.UUID `json:"technicianId,omitempty"`
	Category               string     `json:"category"`
	Priority               string     `json:"priority"`
	Status                 string     `json:"status"`
	Description            string     `json:"description,omitempty"`
	Address                string     `json:"address"`
	Latitude               float64    `json:"latitude"`
	Longitude              float64    `json:"longitude"`
	RequiredSkill          string     `json:"requiredSkill,omitempty"`
	EstimatedPriceCents    int64      `json:"estimatedPriceCents"`
	FinalPriceCents        *int64     `json:"finalPriceCents,omitempty"`
	ManualDispatchRequired bool       `json:"manualDispatchRequired"`
	CancellationReason     string     `json:"cancellationReason,omitempty"`
	CreatedAt              time.Time  `json:"createdAt"`
	ScheduledAt            *time.Time `json:"scheduledAt,omitempty"`
	StartedAt              *time.Time `json:"startedAt,omitempty"`
	CompletedAt            *time.Time `json:"completedAt,omitempty"`
	CancelledAt            *time.Time `json:"cancelledAt,omitempty"`
}

// ToInterventionResponse maps a repository record to its API view.
func ToInterventionResponse(iv repository.Intervention) InterventionResponse {
	return InterventionResponse{
		ID:                     iv.ID,
		TrackingCode:           iv.TrackingCode,
		ClientID:               iv.ClientID,
		TechnicianID:           iv.TechnicianID,
		Category:               iv.Category,
		Priority:               string(iv.Priority),
		Status:                 string(iv.Status),
		Description:            iv.Description,
		Address:                iv.Address,
		Latitude:               iv.Latitude,
		Longitude:              iv.Longitude,
		RequiredSkill:          iv.RequiredSkill,
		EstimatedPriceCents:    iv.EstimatedPriceCents,
		FinalPriceCents:        iv.FinalPriceCents,
		ManualDispatchRequired: iv.ManualDispatchRequired,
		CancellationReason:     iv.CancellationReason,
		CreatedAt:              iv.CreatedAt,
		ScheduledAt:            iv.ScheduledAt,
		StartedAt:              iv.StartedAt,
		CompletedAt:            iv.CompletedAt,
		CancelledAt:            iv.CancelledAt,
	}
}

// ListInterventionsResponse wraps the overview listing.
type ListInterventionsResponse struct {
	Items []InterventionResponse `json:"items"`
}

// HistoryEntryResponse is one lifecycle transition record.
type HistoryEntryResponse struct {
	OldStatus string     `json:"oldStatus"`
	NewStatus string     `json:"newStatus"`
	ActorType string     `json:"actorType"`
	ActorID   *uuid.UUID `json:"actorId,omitempty"`
	Note      string     `json:"note,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// HistoryResponse is the full transition log.
type HistoryResponse struct {
	Items []HistoryEntryResponse `json:"items"`
}

// TrackingResponse is the unauthenticated tracking-code view. It exposes no
// personal data beyond progress.
type TrackingResponse struct {
	TrackingCode string     `json:"trackingCode"`
	Status       string     `json:"status"`
	Category     string     `json:"category"`
	Priority     string     `json:"priority"`
	CreatedAt    time.Time  `json:"createdAt"`
	ScheduledAt  *time.Time `json:"scheduledAt,omitempty"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}
