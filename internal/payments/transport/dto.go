// Package transport defines request and response DTOs for payment endpoints.
package transport

import (
	"time"

	"fieldservice_backend/internal/payments/repository"
)

// AuthorizeRequest asks for a new hold. A zero amount means "use the
// current estimate".
type AuthorizeRequest struct {
	AmountCents int64 `json:"amountCents" validate:"gte=0"`
}

// AuthorizationResponse is the API shape of a payment authorization.
type AuthorizationResponse struct {
	ID             string    `json:"id"`
	InterventionID string    `json:"interventionId"`
	AmountCents    int64     `json:"amountCents"`
	CapturedCents  int64     `json:"capturedCents,omitempty"`
	Currency       string    `json:"currency"`
	Status         string    `json:"status"`
	FailureReason  string    `json:"failureReason,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// ToAuthorizationResponse maps a persisted authorization to its API shape.
// The gateway reference stays internal.
func ToAuthorizationResponse(a repository.Authorization) AuthorizationResponse {
	return AuthorizationResponse{
		ID:             a.ID.String(),
		InterventionID: a.InterventionID.String(),
		AmountCents:    a.AmountCents,
		CapturedCents:  a.CapturedCents,
		Currency:       a.Currency,
		Status:         a.Status,
		FailureReason:  a.FailureReason,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

// ListAuthorizationsResponse wraps the authorization history.
type ListAuthorizationsResponse struct {
	Authorizations []AuthorizationResponse `json:"authorizations"`
}

// ToListAuthorizationsResponse maps the authorization history.
func ToListAuthorizationsResponse(items []repository.Authorization) ListAuthorizationsResponse {
	out := ListAuthorizationsResponse{Authorizations: make([]AuthorizationResponse, 0, len(items))}
	for _, a := range items {
		out.Authorizations = append(out.Authorizations, ToAuthorizationResponse(a))
	}
	return out
}
