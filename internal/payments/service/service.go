// Package service implements the two-phase payment workflow: authorize a
// hold up front, capture or cancel it when the intervention resolves.
package service

import (
	"context"

	"fieldservice_backend/internal/events"
	"fieldservice_backend/internal/interventions/domain"
	"fieldservice_backend/internal/payments/gateway"
	"fieldservice_backend/internal/payments/repository"
	"fieldservice_backend/platform/apperr"
	"fieldservice_backend/platform/config"
	"fieldservice_backend/platform/logger"

	"github.com/google/uuid"
)

// Repo is the persistence contract for the payment workflow.
type Repo interface {
	CreatePending(ctx context.Context, interventionID uuid.UUID, amountCents int64, currency string) (repository.Authorization, error)
	MarkAuthorized(ctx context.Context, id uuid.UUID, gatewayRef string) (repository.Authorization, error)
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	MarkCaptured(ctx context.Context, id uuid.UUID, capturedCents int64) (repository.Authorization, error)
	MarkCancelled(ctx context.Context, id uuid.UUID) (repository.Authorization, error)
	GetLiveAuthorization(ctx context.Context, interventionID uuid.UUID) (repository.Authorization, error)
	GetLatest(ctx context.Context, interventionID uuid.UUID) (repository.Authorization, error)
	ListByIntervention(ctx context.Context, interventionID uuid.UUID) ([]repository.Authorization, error)
	CreateCancellationInvoice(ctx context.Context, inv repository.CancellationInvoice) (repository.CancellationInvoice, error)
}

// InterventionView is the minimal intervention state the workflow needs.
type InterventionView struct {
	ID                  uuid.UUID
	ClientID            uuid.UUID
	Status              domain.Status
	EstimatedPriceCents int64
}

// InterventionReader resolves intervention state. Wired after construction
// because the interventions module also depends on this one.
type InterventionReader interface {
	PaymentView(ctx context.Context, interventionID uuid.UUID) (InterventionView, error)
}

// Service is the payment workflow.
type Service struct {
	repo          Repo
	gw            gateway.Gateway
	bus           events.Bus
	log           *logger.Logger
	cfg           config.PaymentConfig
	interventions InterventionReader
}

// New creates the payments service.
func New(repo Repo, gw gateway.Gateway, cfg config.PaymentConfig, bus events.Bus, log *logger.Logger) *Service {
	return &Service{repo: repo, gw: gw, cfg: cfg, bus: bus, log: log}
}

// SetInterventionReader wires the intervention state source after construction.
func (s *Service) SetInterventionReader(r InterventionReader) {
	s.interventions = r
}

// Authorize places a hold for the intervention. A zero amount defaults to
// the estimated price. Failures are recorded and surfaced with their typed
// reason so the client can be prompted to remediate.
func (s *Service) Authorize(ctx context.Context, interventionID uuid.UUID, amountCents int64) (repository.Authorization, error) {
	view, err := s.interventions.PaymentView(ctx, interventionID)
	if err != nil {
		return repository.Authorization{}, err
	}
	if view.Status.Terminal() {
		return repository.Authorization{}, apperr.Conflict("intervention is already closed")
	}

	if amountCents <= 0 {
		amountCents = view.EstimatedPriceCents
	}
	if amountCents <= 0 {
		return repository.Authorization{}, apperr.Validation("authorization amount must be positive")
	}

	if _, err := s.repo.GetLiveAuthorization(ctx, interventionID); err == nil {
		return repository.Authorization{}, apperr.Conflict("intervention already has an authorized hold")
	} else if !apperr.Is(err, apperr.KindNotFound) {
		return repository.Authorization{}, err
	}

	auth, err := s.repo.CreatePending(ctx, interventionID, amountCents, s.cfg.GetPaymentCurrency())
	if err != nil {
		return repository.Authorization{}, err
	}

	result, err := s.gw.Authorize(ctx, gateway.AuthorizeRequest{
		InterventionID: interventionID.String(),
		ClientID:       view.ClientID.String(),
		AmountCents:    amountCents,
		Currency:       s.cfg.GetPaymentCurrency(),
	})
	if err != nil {
		reason := failureReason(err)
		if markErr := s.repo.MarkFailed(ctx, auth.ID, string(reason)); markErr != nil {
			s.log.PaymentEvent("authorization_mark_failed_error", interventionID.String(), amountCents, markErr.Error())
		}
		s.log.PaymentEvent("authorization_failed", interventionID.String(), amountCents, string(reason))

		// Trigger the client re-authorization prompt.
		s.bus.Publish(ctx, events.PaymentAuthorizationFailed{
			BaseEvent:      events.NewBaseEvent(),
			InterventionID: interventionID,
			ClientID:       view.ClientID,
			AmountCents:    amountCents,
			Reason:         string(reason),
		})

		return repository.Authorization{}, apperr.
			Unprocessable("payment authorization failed").
			WithReason(string(reason))
	}

	auth, err = s.repo.MarkAuthorized(ctx, auth.ID, result.Reference)
	if err != nil {
		return repository.Authorization{}, err
	}

	s.log.PaymentEvent("authorized", interventionID.String(), amountCents, "")
	s.bus.Publish(ctx, events.PaymentAuthorized{
		BaseEvent:       events.NewBaseEvent(),
		AuthorizationID: auth.ID,
		InterventionID:  interventionID,
		ClientID:        view.ClientID,
		AmountCents:     amountCents,
	})

	return auth, nil
}

// HasCaptured reports whether the most recent authorization reached
// captured. This is the finalization prerequisite the state machine checks.
func (s *Service) HasCaptured(ctx context.Context, interventionID uuid.UUID) (bool, error) {
	latest, err := s.repo.GetLatest(ctx, interventionID)
	if apperr.Is(err, apperr.KindNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return latest.Status == repository.StatusCaptured, nil
}

// Capture charges the full current total against the live hold. On gateway
// failure the hold stays authorized so the finalize flow can retry.
func (s *Service) Capture(ctx context.Context, interventionID uuid.UUID, amountCents int64) error {
	live, err := s.repo.GetLiveAuthorization(ctx, interventionID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return apperr.
				Conflict("no authorized hold to capture").
				WithReason("no_authorization")
		}
		return err
	}

	if err := s.gw.Capture(ctx, live.GatewayRef, amountCents); err != nil {
		reason := failureReason(err)
		s.log.PaymentEvent("capture_failed", interventionID.String(), amountCents, string(reason))
		return apperr.
			Unprocessable("payment capture failed").
			WithReason(string(reason))
	}

	auth, err := s.repo.MarkCaptured(ctx, live.ID, amountCents)
	if err != nil {
		return err
	}

	s.log.PaymentEvent("captured", interventionID.String(), amountCents, "")
	s.publishCaptured(ctx, auth)

	return nil
}

// ReleaseHold voids the live authorization. A missing authorization is a
// no-op: cancelling an unauthorized intervention must not touch the gateway.
func (s *Service) ReleaseHold(ctx context.Context, interventionID uuid.UUID) error {
	live, err := s.repo.GetLiveAuthorization(ctx, interventionID)
	if apperr.Is(err, apperr.KindNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := s.gw.Cancel(ctx, live.GatewayRef); err != nil {
		reason := failureReason(err)
		s.log.PaymentEvent("hold_release_failed", interventionID.String(), live.AmountCents, string(reason))
		return apperr.
			Unprocessable("payment hold release failed").
			WithReason(string(reason))
	}

	auth, err := s.repo.MarkCancelled(ctx, live.ID)
	if err != nil {
		return err
	}

	s.log.PaymentEvent("hold_released", interventionID.String(), auth.AmountCents, "")

	view, err := s.interventions.PaymentView(ctx, interventionID)
	if err == nil {
		s.bus.Publish(ctx, events.PaymentHoldReleased{
			BaseEvent:       events.NewBaseEvent(),
			AuthorizationID: auth.ID,
			InterventionID:  interventionID,
			ClientID:        view.ClientID,
		})
	}

	return nil
}

// ChargeCancellationFee captures only the displacement portion of the live
// hold and records a cancellation invoice. Returns the fee charged, 0 when
// no authorization existed.
func (s *Service) ChargeCancellationFee(ctx context.Context, interventionID uuid.UUID, reason string) (int64, error) {
	live, err := s.repo.GetLiveAuthorization(ctx, interventionID)
	if apperr.Is(err, apperr.KindNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	feeCents := live.AmountCents * int64(s.cfg.GetDisplacementFeePercent()) / 100
	if feeCents <= 0 {
		return 0, s.ReleaseHold(ctx, interventionID)
	}

	if err := s.gw.Capture(ctx, live.GatewayRef, feeCents); err != nil {
		gwReason := failureReason(err)
		s.log.PaymentEvent("cancellation_fee_failed", interventionID.String(), feeCents, string(gwReason))
		return 0, apperr.
			Unprocessable("cancellation fee capture failed").
			WithReason(string(gwReason))
	}

	auth, err := s.repo.MarkCaptured(ctx, live.ID, feeCents)
	if err != nil {
		return 0, err
	}

	invoice, err := s.repo.CreateCancellationInvoice(ctx, repository.CancellationInvoice{
		InterventionID:  interventionID,
		AuthorizationID: auth.ID,
		AmountCents:     feeCents,
		Reason:          reason,
	})
	if err != nil {
		return 0, err
	}

	s.log.PaymentEvent("cancellation_fee_captured", interventionID.String(), feeCents, "")

	view, viewErr := s.interventions.PaymentView(ctx, interventionID)
	if viewErr == nil {
		s.bus.Publish(ctx, events.CancellationFeeCharged{
			BaseEvent:      events.NewBaseEvent(),
			InvoiceID:      invoice.ID,
			InterventionID: interventionID,
			ClientID:       view.ClientID,
			AmountCents:    feeCents,
		})
	}

	return feeCents, nil
}

// ListAuthorizations returns all attempts for an intervention, newest first.
func (s *Service) ListAuthorizations(ctx context.Context, interventionID uuid.UUID) ([]repository.Authorization, error) {
	return s.repo.ListByIntervention(ctx, interventionID)
}

func (s *Service) publishCaptured(ctx context.Context, auth repository.Authorization) {
	view, err := s.interventions.PaymentView(ctx, auth.InterventionID)
	if err != nil {
		return
	}
	s.bus.Publish(ctx, events.PaymentCaptured{
		BaseEvent:       events.NewBaseEvent(),
		AuthorizationID: auth.ID,
		InterventionID:  auth.InterventionID,
		ClientID:        view.ClientID,
		AmountCents:     auth.CapturedCents,
	})
}

func failureReason(err error) gateway.FailureReason {
	if gwErr, ok := gateway.AsError(err); ok {
		return gwErr.Reason
	}
	return gateway.ReasonUnavailable
}
