// Package gateway wraps the remote payment processor. Failures carry a
// machine-readable reason so callers can prompt the correct remedial action.
package gateway

import (
	"context"
)

// FailureReason classifies why a gateway call did not succeed.
type FailureReason string

const (
	// ReasonNoValidMethod means the client has no usable payment method.
	ReasonNoValidMethod FailureReason = "no_valid_method"
	// ReasonRequiresReauthentication means the client must re-authenticate
	// the payment method before a new attempt.
	ReasonRequiresReauthentication FailureReason = "requires_reauthentication"
	// ReasonDeclined means the processor refused the charge.
	ReasonDeclined FailureReason = "declined"
	// ReasonUnavailable means the gateway timed out or was unreachable. The
	// attempt is treated as failed, never as indefinitely pending.
	ReasonUnavailable FailureReason = "gateway_unavailable"
)

// Error is a typed gateway failure.
type Error struct {
	Reason  FailureReason
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Reason)
}

// AuthorizeRequest asks the processor to place a hold.
type AuthorizeRequest struct {
	InterventionID string
	ClientID       string
	AmountCents    int64
	Currency       string
}

// AuthorizeResult carries the processor's hold reference.
type AuthorizeResult struct {
	Reference string
}

// Gateway is the payment processor contract. Implementations return *Error
// for business failures and plain errors only for programming mistakes.
type Gateway interface {
	Authorize(ctx context.Context, req AuthorizeRequest) (AuthorizeResult, error)
	Capture(ctx context.Context, reference string, amountCents int64) error
	Cancel(ctx context.Context, reference string) error
}
