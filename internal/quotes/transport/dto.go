// Package transport defines the request and response shapes for the quote
// ledger API.
package transport

import (
	"time"

	"fieldservice_backend/internal/quotes/repository"
	"fieldservice_backend/internal/quotes/service"

	"github.com/google/uuid"
)

// ProposeModificationRequest is the technician's supplemental work proposal.
type ProposeModificationRequest struct {
	Label       string `json:"label" validate:"required,max=300"`
	AmountCents int64  `json:"amountCents" validate:"required,min=1"`
}

// QuoteLineResponse is one base line item.
type QuoteLineResponse struct {
	ID          uuid.UUID `json:"id"`
	Label       string    `json:"label"`
	AmountCents int64     `json:"amountCents"`
	Origin      string    `json:"origin"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ModificationResponse is one supplemental work proposal.
type ModificationResponse struct {
	ID             uuid.UUID  `json:"id"`
	InterventionID uuid.UUID  `json:"interventionId"`
	TechnicianID   uuid.UUID  `json:"technicianId"`
	Label          string     `json:"label"`
	AmountCents    int64      `json:"amountCents"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"createdAt"`
	ResolvedAt     *time.Time `json:"resolvedAt,omitempty"`
}

// ToModificationResponse maps a repository record to its API view.
func ToModificationResponse(m repository.QuoteModification) ModificationResponse {
	return ModificationResponse{
		ID:             m.ID,
		InterventionID: m.InterventionID,
		TechnicianID:   m.TechnicianID,
		Label:          m.Label,
		AmountCents:    m.AmountCents,
		Status:         m.Status,
		CreatedAt:      m.CreatedAt,
		ResolvedAt:     m.ResolvedAt,
	}
}

// LedgerResponse is the full ledger view for one intervention.
type LedgerResponse struct {
	Lines               []QuoteLineResponse    `json:"lines"`
	Modifications       []ModificationResponse `json:"modifications"`
	TotalCents          int64                  `json:"totalCents"`
	FinalizationBlocked bool                   `json:"finalizationBlocked"`
}

// ToLedgerResponse maps the service view to its API shape.
func ToLedgerResponse(v service.LedgerView) LedgerResponse {
	resp := LedgerResponse{
		Lines:               make([]QuoteLineResponse, 0, len(v.Lines)),
		Modifications:       make([]ModificationResponse, 0, len(v.Modifications)),
		TotalCents:          v.TotalCents,
		FinalizationBlocked: v.FinalizationBlocked,
	}
	for _, l := range v.Lines {
		resp.Lines = append(resp.Lines, QuoteLineResponse{
			ID:          l.ID,
			Label:       l.Label,
			AmountCents: l.AmountCents,
			Origin:      l.Origin,
			CreatedAt:   l.CreatedAt,
		})
	}
	for _, m := range v.Modifications {
		resp.Modifications = append(resp.Modifications, ToModificationResponse(m))
	}
	return resp
}
