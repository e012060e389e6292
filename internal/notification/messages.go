package notification

import (
	"fmt"
	"time"

	"fieldservice_backend/internal/events"
)

func formatEUR(cents int64) string {
	return fmt.Sprintf("€%d.%02d", cents/100, cents%100)
}

func statusChangedMessage(e events.InterventionStatusChanged) Message {
	msg := Message{
		EventKind: e.EventName(),
		Metadata: map[string]string{
			"interventionId": e.InterventionID.String(),
			"trackingCode":   e.TrackingCode,
			"status":         e.NewStatus,
		},
	}

	switch e.NewStatus {
	case "assigned":
		msg.Title = "Technician assigned"
		msg.Body = fmt.Sprintf("A technician has been assigned to your request %s.", e.TrackingCode)
	case "on_route":
		msg.Title = "Technician on the way"
		msg.Body = fmt.Sprintf("Your technician is on the way for request %s.", e.TrackingCode)
	case "in_progress":
		msg.Title = "Work started"
		msg.Body = fmt.Sprintf("Work on your request %s has started.", e.TrackingCode)
	default:
		msg.Title = "Request updated"
		msg.Body = fmt.Sprintf("Your request %s is now %s.", e.TrackingCode, e.NewStatus)
	}

	return msg
}

func completedMessage(e events.InterventionCompleted) Message {
	return Message{
		EventKind: e.EventName(),
		Title:     "Work completed",
		Body: fmt.Sprintf("Your request %s is completed. Total charged: %s.",
			e.TrackingCode, formatEUR(e.FinalPriceCents)),
		Metadata: map[string]string{
			"interventionId": e.InterventionID.String(),
			"trackingCode":   e.TrackingCode,
		},
	}
}

func cancelledMessage(e events.InterventionCancelled) Message {
	body := fmt.Sprintf("Your request %s has been cancelled.", e.TrackingCode)
	if e.FeeChargedCents > 0 {
		body = fmt.Sprintf("Your request %s has been cancelled. A displacement fee of %s was charged because the technician was already on the way.",
			e.TrackingCode, formatEUR(e.FeeChargedCents))
	}

	return Message{
		EventKind: e.EventName(),
		Title:     "Request cancelled",
		Body:      body,
		Metadata: map[string]string{
			"interventionId": e.InterventionID.String(),
			"trackingCode":   e.TrackingCode,
		},
	}
}

func offerIssuedMessage(e events.DispatchOfferIssued) Message {
	return Message{
		EventKind: e.EventName(),
		Title:     fmt.Sprintf("New job offer: %s", e.Category),
		Body: fmt.Sprintf("%s job at %s (priority %s). Respond before %s.",
			e.Category, e.Address, e.Priority, e.ExpiresAt.Format(time.Kitchen)),
		Metadata: map[string]string{
			"attemptId":      e.AttemptID.String(),
			"interventionId": e.InterventionID.String(),
			"expiresAt":      e.ExpiresAt.Format(time.RFC3339),
		},
	}
}

func offerClosedMessage(e events.DispatchOfferClosed) Message {
	return Message{
		EventKind: e.EventName(),
		Title:     "Job no longer available",
		Body:      "The job you responded to has already been taken or withdrawn.",
		Metadata: map[string]string{
			"attemptId":      e.AttemptID.String(),
			"interventionId": e.InterventionID.String(),
		},
	}
}

func exhaustedMessage(e events.DispatchExhausted) Message {
	return Message{
		EventKind: e.EventName(),
		Title:     "Still looking for a technician",
		Body: fmt.Sprintf("Finding a technician for your request %s is taking longer than expected. Our team is on it.",
			e.TrackingCode),
		Metadata: map[string]string{
			"interventionId": e.InterventionID.String(),
			"trackingCode":   e.TrackingCode,
		},
	}
}

func modificationProposedMessage(e events.QuoteModificationProposed) Message {
	return Message{
		EventKind: e.EventName(),
		Title:     "Additional work proposed",
		Body: fmt.Sprintf("Your technician proposes additional work on request %s: %s (%s). Please approve or decline.",
			e.TrackingCode, e.Label, formatEUR(e.AmountCents)),
		Metadata: map[string]string{
			"modificationId": e.ModificationID.String(),
			"interventionId": e.InterventionID.String(),
		},
	}
}

func modificationResolvedMessage(e events.QuoteModificationResolved) Message {
	verdict := "declined"
	if e.Approved {
		verdict = "approved"
	}

	return Message{
		EventKind: e.EventName(),
		Title:     fmt.Sprintf("Additional work %s", verdict),
		Body: fmt.Sprintf("The client %s the proposed work %q. Current total: %s.",
			verdict, e.Label, formatEUR(e.NewTotalCents)),
		Metadata: map[string]string{
			"modificationId": e.ModificationID.String(),
			"interventionId": e.InterventionID.String(),
		},
	}
}

func authorizationFailedMessage(e events.PaymentAuthorizationFailed) Message {
	body := "We could not place a hold on your payment method. Please try again."
	switch e.Reason {
	case "no_valid_method":
		body = "No valid payment method is on file. Please add one to continue."
	case "requires_reauthentication":
		body = "Your payment method needs to be re-authorized. Please confirm it to continue."
	case "declined":
		body = "Your payment method was declined. Please use a different one."
	}

	return Message{
		EventKind: e.EventName(),
		Title:     "Payment action required",
		Body:      body,
		Metadata: map[string]string{
			"interventionId": e.InterventionID.String(),
			"reason":         e.Reason,
		},
	}
}

func feeChargedMessage(e events.CancellationFeeCharged) Message {
	return Message{
		EventKind: e.EventName(),
		Title:     "Cancellation fee charged",
		Body: fmt.Sprintf("A displacement fee of %s was charged for the cancelled visit.",
			formatEUR(e.AmountCents)),
		Metadata: map[string]string{
			"interventionId": e.InterventionID.String(),
			"invoiceId":      e.InvoiceID.String(),
		},
	}
}
