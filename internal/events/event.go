// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"fieldservice_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Intervention Domain Events
// =============================================================================

// InterventionCreated is published when a client registers a new intervention.
type InterventionCreated struct {
	BaseEvent
	InterventionID uuid.UUID `json:"interventionId"`
	TrackingCode   string    `json:"trackingCode"`
	ClientID       uuid.UUID `json:"clientId"`
	Category       string    `json:"category"`
	Priority       string    `json:"priority"`
}

func (e InterventionCreated) EventName() string { return "interventions.created" }

// InterventionStatusChanged is published after every lifecycle transition.
// Notification fan-out and history projection both key off this event.
type InterventionStatusChanged struct {
	BaseEvent
	InterventionID uuid.UUID  `json:"interventionId"`
	TrackingCode   string     `json:"trackingCode"`
	ClientID       uuid.UUID  `json:"clientId"`
	TechnicianID   *uuid.UUID `json:"technicianId,omitempty"`
	OldStatus      string     `json:"oldStatus"`
	NewStatus      string     `json:"newStatus"`
	ActorType      string     `json:"actorType"`
}

func (e InterventionStatusChanged) EventName() string { return "interventions.status_changed" }

// InterventionCancelled is published when an intervention is cancelled, in
// addition to the status change, so billing-sensitive handlers can react to
// the cancellation context specifically.
type InterventionCancelled struct {
	BaseEvent
	InterventionID  uuid.UUID  `json:"interventionId"`
	TrackingCode    string     `json:"trackingCode"`
	ClientID        uuid.UUID  `json:"clientId"`
	TechnicianID    *uuid.UUID `json:"technicianId,omitempty"`
	PreviousStatus  string     `json:"previousStatus"`
	Reason          string     `json:"reason,omitempty"`
	FeeChargedCents int64      `json:"feeChargedCents"`
}

func (e InterventionCancelled) EventName() string { return "interventions.cancelled" }

// InterventionCompleted is published when work is finalized and the payment
// capture has succeeded.
type InterventionCompleted struct {
	BaseEvent
	InterventionID  uuid.UUID `json:"interventionId"`
	TrackingCode    string    `json:"trackingCode"`
	ClientID        uuid.UUID `json:"clientId"`
	TechnicianID    uuid.UUID `json:"technicianId"`
	FinalPriceCents int64     `json:"finalPriceCents"`
}

func (e InterventionCompleted) EventName() string { return "interventions.completed" }

// =============================================================================
// Dispatch Domain Events
// =============================================================================

// DispatchOfferIssued is published when an offer is extended to a technician.
type DispatchOfferIssued struct {
	BaseEvent
	AttemptID      uuid.UUID `json:"attemptId"`
	InterventionID uuid.UUID `json:"interventionId"`
	TrackingCode   string    `json:"trackingCode"`
	TechnicianID   uuid.UUID `json:"technicianId"`
	Category       string    `json:"category"`
	Priority       string    `json:"priority"`
	Address        string    `json:"address"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

func (e DispatchOfferIssued) EventName() string { return "dispatch.offer.issued" }

// DispatchOfferAccepted is published when a technician wins the offer race.
type DispatchOfferAccepted struct {
	BaseEvent
	AttemptID      uuid.UUID `json:"attemptId"`
	InterventionID uuid.UUID `json:"interventionId"`
	TrackingCode   string    `json:"trackingCode"`
	TechnicianID   uuid.UUID `json:"technicianId"`
	ClientID       uuid.UUID `json:"clientId"`
}

func (e DispatchOfferAccepted) EventName() string { return "dispatch.offer.accepted" }

// DispatchOfferDeclined is published when a technician declines an offer.
type DispatchOfferDeclined struct {
	BaseEvent
	AttemptID      uuid.UUID `json:"attemptId"`
	InterventionID uuid.UUID `json:"interventionId"`
	TechnicianID   uuid.UUID `json:"technicianId"`
	Reason         string    `json:"reason,omitempty"`
}

func (e DispatchOfferDeclined) EventName() string { return "dispatch.offer.declined" }

// DispatchOfferExpired is published when an offer lapses without a response.
type DispatchOfferExpired struct {
	BaseEvent
	AttemptID      uuid.UUID `json:"attemptId"`
	InterventionID uuid.UUID `json:"interventionId"`
	TechnicianID   uuid.UUID `json:"technicianId"`
}

func (e DispatchOfferExpired) EventName() string { return "dispatch.offer.expired" }

// DispatchOfferClosed is published to a late responder whose offer was
// already resolved, so they can be told the job is no longer available.
type DispatchOfferClosed struct {
	BaseEvent
	AttemptID      uuid.UUID `json:"attemptId"`
	InterventionID uuid.UUID `json:"interventionId"`
	TechnicianID   uuid.UUID `json:"technicianId"`
}

func (e DispatchOfferClosed) EventName() string { return "dispatch.offer.closed" }

// DispatchExhausted is published when every ranked candidate has declined or
// timed out and the intervention needs manual dispatching.
type DispatchExhausted struct {
	BaseEvent
	InterventionID  uuid.UUID `json:"interventionId"`
	TrackingCode    string    `json:"trackingCode"`
	ClientID        uuid.UUID `json:"clientId"`
	CandidatesTried int       `json:"candidatesTried"`
}

func (e DispatchExhausted) EventName() string { return "dispatch.exhausted" }

// =============================================================================
// Quotes Domain Events
// =============================================================================

// QuoteModificationProposed is published when a technician proposes an extra
// charge that needs client approval.
type QuoteModificationProposed struct {
	BaseEvent
	ModificationID uuid.UUID `json:"modificationId"`
	InterventionID uuid.UUID `json:"interventionId"`
	TrackingCode   string    `json:"trackingCode"`
	ClientID       uuid.UUID `json:"clientId"`
	TechnicianID   uuid.UUID `json:"technicianId"`
	Label          string    `json:"label"`
	AmountCents    int64     `json:"amountCents"`
}

func (e QuoteModificationProposed) EventName() string { return "quotes.modification.proposed" }

// QuoteModificationResolved is published when the client approves or declines
// a proposed modification.
type QuoteModificationResolved struct {
	BaseEvent
	ModificationID uuid.UUID `json:"modificationId"`
	InterventionID uuid.UUID `json:"interventionId"`
	TechnicianID   uuid.UUID `json:"technicianId"`
	Label          string    `json:"label"`
	AmountCents    int64     `json:"amountCents"`
	Approved       bool      `json:"approved"`
	NewTotalCents  int64     `json:"newTotalCents"`
}

func (e QuoteModificationResolved) EventName() string { return "quotes.modification.resolved" }

// =============================================================================
// Payments Domain Events
// =============================================================================

// PaymentAuthorized is published when a hold is successfully placed on the
// client's payment method.
type PaymentAuthorized struct {
	BaseEvent
	AuthorizationID uuid.UUID `json:"authorizationId"`
	InterventionID  uuid.UUID `json:"interventionId"`
	ClientID        uuid.UUID `json:"clientId"`
	AmountCents     int64     `json:"amountCents"`
}

func (e PaymentAuthorized) EventName() string { return "payments.authorized" }

// PaymentAuthorizationFailed is published when the authorization attempt is
// rejected. The reason drives which prompt the client receives.
type PaymentAuthorizationFailed struct {
	BaseEvent
	InterventionID uuid.UUID `json:"interventionId"`
	ClientID       uuid.UUID `json:"clientId"`
	AmountCents    int64     `json:"amountCents"`
	Reason         string    `json:"reason"`
}

func (e PaymentAuthorizationFailed) EventName() string { return "payments.authorization_failed" }

// PaymentCaptured is published when the final amount is collected.
type PaymentCaptured struct {
	BaseEvent
	AuthorizationID uuid.UUID `json:"authorizationId"`
	InterventionID  uuid.UUID `json:"interventionId"`
	ClientID        uuid.UUID `json:"clientId"`
	AmountCents     int64     `json:"amountCents"`
}

func (e PaymentCaptured) EventName() string { return "payments.captured" }

// PaymentHoldReleased is published when an authorization is voided without a
// charge, typically after an early cancellation.
type PaymentHoldReleased struct {
	BaseEvent
	AuthorizationID uuid.UUID `json:"authorizationId"`
	InterventionID  uuid.UUID `json:"interventionId"`
	ClientID        uuid.UUID `json:"clientId"`
}

func (e PaymentHoldReleased) EventName() string { return "payments.hold_released" }

// CancellationFeeCharged is published when a displacement fee is captured for
// a late cancellation.
type CancellationFeeCharged struct {
	BaseEvent
	InvoiceID      uuid.UUID `json:"invoiceId"`
	InterventionID uuid.UUID `json:"interventionId"`
	ClientID       uuid.UUID `json:"clientId"`
	AmountCents    int64     `json:"amountCents"`
}

func (e CancellationFeeCharged) EventName() string { return "payments.cancellation_fee_charged" }

// =============================================================================
// Notification Domain Events
// =============================================================================

// NotificationOutboxDue is published by the scheduler when a notification
// outbox record should be processed.
type NotificationOutboxDue struct {
	BaseEvent
	OutboxID uuid.UUID `json:"outboxId"`
}

func (e NotificationOutboxDue) EventName() string { return "notification.outbox.due" }
