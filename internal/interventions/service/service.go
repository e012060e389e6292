// Package service implements the intervention lifecycle state machine. It
// owns the canonical status and coordinates dispatch, the quote ledger, the
// payment workflow, and notification fan-out around every transition.
package service

import (
	"context"
	"time"

	"fieldservice_backend/internal/events"
	"fieldservice_backend/internal/interventions/domain"
	"fieldservice_backend/internal/interventions/repository"
	"fieldservice_backend/platform/apperr"
	"fieldservice_backend/platform/logger"

	"github.com/google/uuid"
)

// Machine-readable reasons attached to blocked-transition errors so the UI
// can prompt the correct remedial action.
const (
	ReasonInvalidTransition   = "invalid_transition"
	ReasonNoAcceptedAttempt   = "no_accepted_attempt"
	ReasonModificationPending = "modification_pending"
	ReasonPaymentNotCaptured  = "payment_not_captured"
)

// Repo is the persistence contract the state machine depends on.
type Repo interface {
	Create(ctx context.Context, iv repository.Intervention) (repository.Intervention, error)
	GetByID(ctx context.Context, id uuid.UUID) (repository.Intervention, error)
	GetByTrackingCode(ctx context.Context, code string) (repository.Intervention, error)
	List(ctx context.Context, params repository.ListParams) ([]repository.Intervention, error)
	TransitionStatus(ctx context.Context, params repository.TransitionParams) (repository.Intervention, error)
	UpdateEstimatedPrice(ctx context.Context, id uuid.UUID, amountCents int64) error
	SetManualDispatchRequired(ctx context.Context, id uuid.UUID, required bool) error
	Deactivate(ctx context.Context, id uuid.UUID) error
	AppendHistory(ctx context.Context, entry repository.HistoryEntry) error
	ListHistory(ctx context.Context, interventionID uuid.UUID) ([]repository.HistoryEntry, error)
}

// QuoteLedger gates finalization on the quote and modification state.
type QuoteLedger interface {
	SeedBaseQuote(ctx context.Context, interventionID uuid.UUID, category string, priority domain.Priority) (int64, error)
	IsFinalizationBlocked(ctx context.Context, interventionID uuid.UUID) (bool, error)
	CurrentTotal(ctx context.Context, interventionID uuid.UUID) (int64, error)
}

// PaymentCoordinator wraps the two-phase payment workflow for an
// intervention. All amounts are in cents.
type PaymentCoordinator interface {
	HasCaptured(ctx context.Context, interventionID uuid.UUID) (bool, error)
	Capture(ctx context.Context, interventionID uuid.UUID, amountCents int64) error
	// ReleaseHold voids the live authorization. It is a no-op when no
	// authorization exists.
	ReleaseHold(ctx context.Context, interventionID uuid.UUID) error
	// ChargeCancellationFee captures only the displacement portion of the
	// hold and records a cancellation invoice. Returns the fee charged, 0
	// when no authorization existed.
	ChargeCancellationFee(ctx context.Context, interventionID uuid.UUID, reason string) (int64, error)
}

// DispatchCoordinator is the technician acquisition protocol.
type DispatchCoordinator interface {
	StartDispatch(ctx context.Context, interventionID uuid.UUID) error
	CancelDispatch(ctx context.Context, interventionID uuid.UUID) error
	AcceptedTechnician(ctx context.Context, interventionID uuid.UUID) (uuid.UUID, error)
}

// Actor identifies who requested a lifecycle change.
type Actor struct {
	Type domain.ActorType
	ID   *uuid.UUID
}

// SystemActor is used for transitions the platform performs on its own.
var SystemActor = Actor{Type: domain.ActorSystem}

// Service is the intervention state machine.
type Service struct {
	repo     Repo
	quotes   QuoteLedger
	payments PaymentCoordinator
	dispatch DispatchCoordinator
	bus      events.Bus
	log      *logger.Logger
}

// New creates the interventions service. The dispatch coordinator is wired
// afterwards via SetDispatch because the two modules reference each other.
func New(repo Repo, quotes QuoteLedger, payments PaymentCoordinator, bus events.Bus, log *logger.Logger) *Service {
	return &Service{
		repo:     repo,
		quotes:   quotes,
		payments: payments,
		bus:      bus,
		log:      log,
	}
}

// SetDispatch wires the dispatch coordinator after construction.
func (s *Service) SetDispatch(d DispatchCoordinator) {
	s.dispatch = d
}

// CreateParams describe a new service request from the intake flow.
type CreateParams struct {
	ClientID      uuid.UUID
	Category      string
	Priority      domain.Priority
	Description   string
	Address       string
	Latitude      float64
	Longitude     float64
	RequiredSkill string
	ScheduledAt   *time.Time
}

// Create registers a new intervention, seeds its base quote line, and kicks
// off automatic dispatch.
func (s *Service) Create(ctx context.Context, params CreateParams) (repository.Intervention, error) {
	priority := params.Priority
	if priority == "" {
		priority = domain.PriorityNormal
	}
	if !priority.Valid() {
		return repository.Intervention{}, apperr.Validation("unknown priority").WithOp("interventions.Create")
	}

	iv, err := s.repo.Create(ctx, repository.Intervention{
		TrackingCode:  domain.NewTrackingCode(),
		ClientID:      params.ClientID,
		Category:      params.Category,
		Priority:      priority,
		Description:   params.Description,
		Address:       params.Address,
		Latitude:      params.Latitude,
		Longitude:     params.Longitude,
		RequiredSkill: params.RequiredSkill,
		ScheduledAt:   params.ScheduledAt,
	})
	if err != nil {
		return repository.Intervention{}, err
	}

	estimate, err := s.quotes.SeedBaseQuote(ctx, iv.ID, iv.Category, iv.Priority)
	if err != nil {
		return repository.Intervention{}, err
	}
	if err := s.repo.UpdateEstimatedPrice(ctx, iv.ID, estimate); err != nil {
		return repository.Intervention{}, err
	}
	iv.EstimatedPriceCents = estimate

	s.bus.Publish(ctx, events.InterventionCreated{
		BaseEvent:      events.NewBaseEvent(),
		InterventionID: iv.ID,
		TrackingCode:   iv.TrackingCode,
		ClientID:       iv.ClientID,
		Category:       iv.Category,
		Priority:       string(iv.Priority),
	})

	if s.dispatch != nil {
		if err := s.dispatch.StartDispatch(ctx, iv.ID); err != nil {
			s.log.Warn("automatic dispatch failed to start",
				"interventionId", iv.ID.String(), "error", err.Error())
		}
	}

	return iv, nil
}

// Get retrieves an intervention by ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (repository.Intervention, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByTrackingCode retrieves an intervention for the public tracking page.
func (s *Service) GetByTrackingCode(ctx context.Context, code string) (repository.Intervention, error) {
	return s.repo.GetByTrackingCode(ctx, code)
}

// List returns interventions matching the filters.
func (s *Service) List(ctx context.Context, params repository.ListParams) ([]repository.Intervention, error) {
	return s.repo.List(ctx, params)
}

// History returns the transition log for an intervention.
func (s *Service) History(ctx context.Context, id uuid.UUID) ([]repository.HistoryEntry, error) {
	return s.repo.ListHistory(ctx, id)
}

// RequestTransition applies one lifecycle edge. Every illegal call reports
// which invariant blocked it; nothing silently no-ops.
func (s *Service) RequestTransition(ctx context.Context, id uuid.UUID, target domain.Status, actor Actor, note string) (repository.Intervention, error) {
	if !target.Valid() {
		return repository.Intervention{}, apperr.Validation("unknown status").WithOp("interventions.RequestTransition")
	}

	iv, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return repository.Intervention{}, err
	}

	if !domain.CanTransition(iv.Status, target) {
		return repository.Intervention{}, apperr.
			Validation("transition from "+string(iv.Status)+" to "+string(target)+" is not allowed").
			WithReason(ReasonInvalidTransition)
	}

	switch target {
	case domain.StatusAssigned:
		return s.transitionToAssigned(ctx, iv, actor, note)
	case domain.StatusCompleted:
		return s.transitionToCompleted(ctx, iv, actor, note)
	case domain.StatusCancelled:
		return s.Cancel(ctx, id, note, actor)
	default:
		return s.applyTransition(ctx, iv, target, iv.TechnicianID, nil, "", actor, note)
	}
}

// transitionToAssigned is only legal as the result of a dispatch acceptance.
func (s *Service) transitionToAssigned(ctx context.Context, iv repository.Intervention, actor Actor, note string) (repository.Intervention, error) {
	technicianID, err := s.dispatch.AcceptedTechnician(ctx, iv.ID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return repository.Intervention{}, apperr.
				Conflict("no accepted dispatch attempt for this intervention").
				WithReason(ReasonNoAcceptedAttempt)
		}
		return repository.Intervention{}, err
	}

	return s.applyTransition(ctx, iv, domain.StatusAssigned, &technicianID, nil, "", actor, note)
}

// transitionToCompleted verifies both finalization gates. Capture itself
// happens in Finalize; this path only accepts an already-captured payment.
func (s *Service) transitionToCompleted(ctx context.Context, iv repository.Intervention, actor Actor, note string) (repository.Intervention, error) {
	if err := s.checkModificationGate(ctx, iv.ID); err != nil {
		return repository.Intervention{}, err
	}

	captured, err := s.payments.HasCaptured(ctx, iv.ID)
	if err != nil {
		return repository.Intervention{}, err
	}
	if !captured {
		return repository.Intervention{}, apperr.
			Conflict("payment has not been captured").
			WithReason(ReasonPaymentNotCaptured)
	}

	total, err := s.quotes.CurrentTotal(ctx, iv.ID)
	if err != nil {
		return repository.Intervention{}, err
	}

	return s.applyTransition(ctx, iv, domain.StatusCompleted, iv.TechnicianID, &total, "", actor, note)
}

// Finalize attempts capture of the current total and, on success,
// transitions the intervention to completed. Capture failures are surfaced
// with their typed reason and leave the status untouched so the technician
// can retry.
func (s *Service) Finalize(ctx context.Context, id uuid.UUID, actor Actor) (repository.Intervention, error) {
	iv, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return repository.Intervention{}, err
	}
	if iv.Status != domain.StatusInProgress {
		return repository.Intervention{}, apperr.
			Validation("only an in-progress intervention can be finalized").
			WithReason(ReasonInvalidTransition)
	}

	if err := s.checkModificationGate(ctx, iv.ID); err != nil {
		return repository.Intervention{}, err
	}

	total, err := s.quotes.CurrentTotal(ctx, iv.ID)
	if err != nil {
		return repository.Intervention{}, err
	}

	if err := s.payments.Capture(ctx, iv.ID, total); err != nil {
		return repository.Intervention{}, err
	}

	iv, err = s.applyTransition(ctx, iv, domain.StatusCompleted, iv.TechnicianID, &total, "", actor, "")
	if err != nil {
		return repository.Intervention{}, err
	}

	if iv.TechnicianID != nil {
		s.bus.Publish(ctx, events.InterventionCompleted{
			BaseEvent:       events.NewBaseEvent(),
			InterventionID:  iv.ID,
			TrackingCode:    iv.TrackingCode,
			ClientID:        iv.ClientID,
			TechnicianID:    *iv.TechnicianID,
			FinalPriceCents: total,
		})
	}

	return iv, nil
}

func (s *Service) checkModificationGate(ctx context.Context, id uuid.UUID) error {
	blocked, err := s.quotes.IsFinalizationBlocked(ctx, id)
	if err != nil {
		return err
	}
	if blocked {
		return apperr.
			Conflict("awaiting client approval of additional work").
			WithReason(ReasonModificationPending)
	}
	return nil
}

// Cancel transitions an intervention to cancelled and runs the compensating
// payment action for the status it was in. The status write claims the
// cancellation first; compensation errors are returned to the caller but do
// not resurrect the intervention.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string, actor Actor) (repository.Intervention, error) {
	iv, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return repository.Intervention{}, err
	}

	if !domain.CanTransition(iv.Status, domain.StatusCancelled) {
		return repository.Intervention{}, apperr.
			Validation("intervention can no longer be cancelled").
			WithReason(ReasonInvalidTransition)
	}

	previous := iv.Status
	previousTechnician := iv.TechnicianID

	iv, err = s.applyTransition(ctx, iv, domain.StatusCancelled, nil, nil, reason, actor, reason)
	if err != nil {
		return repository.Intervention{}, err
	}

	// Stop any in-flight offers before touching money.
	if previous == domain.StatusNew && s.dispatch != nil {
		if err := s.dispatch.CancelDispatch(ctx, iv.ID); err != nil {
			s.log.Warn("cancel dispatch failed",
				"interventionId", iv.ID.String(), "error", err.Error())
		}
	}

	var feeCents int64
	switch previous {
	case domain.StatusNew, domain.StatusAssigned:
		if err := s.payments.ReleaseHold(ctx, iv.ID); err != nil {
			return iv, err
		}
	case domain.StatusOnRoute:
		// Technician already travelling: capture only the displacement fee.
		feeCents, err = s.payments.ChargeCancellationFee(ctx, iv.ID, reason)
		if err != nil {
			return iv, err
		}
	}

	s.bus.Publish(ctx, events.InterventionCancelled{
		BaseEvent:       events.NewBaseEvent(),
		InterventionID:  iv.ID,
		TrackingCode:    iv.TrackingCode,
		ClientID:        iv.ClientID,
		TechnicianID:    previousTechnician,
		PreviousStatus:  string(previous),
		Reason:          reason,
		FeeChargedCents: feeCents,
	})

	return iv, nil
}

// AssignFromDispatch applies the new -> assigned edge on behalf of the
// dispatch coordinator after an offer acceptance won the race.
func (s *Service) AssignFromDispatch(ctx context.Context, interventionID, technicianID uuid.UUID) error {
	iv, err := s.repo.GetByID(ctx, interventionID)
	if err != nil {
		return err
	}
	if iv.Status != domain.StatusNew {
		return apperr.
			Conflict("intervention is no longer awaiting dispatch").
			WithReason(ReasonInvalidTransition)
	}

	_, err = s.applyTransition(ctx, iv, domain.StatusAssigned, &technicianID, nil, "", SystemActor, "assigned by dispatch")
	return err
}

// FlagManualDispatch marks an intervention for operator attention after
// automatic dispatch exhausted its candidates. Exhaustion is an outcome,
// not an error.
func (s *Service) FlagManualDispatch(ctx context.Context, interventionID uuid.UUID) error {
	return s.repo.SetManualDispatchRequired(ctx, interventionID, true)
}

// Deactivate soft-deactivates a terminal intervention.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) error {
	return s.repo.Deactivate(ctx, id)
}

// applyTransition performs the optimistic status write, records history, and
// publishes the status change. The write commits before fan-out starts so a
// concurrent reader never sees a notification for a non-durable status.
func (s *Service) applyTransition(
	ctx context.Context,
	iv repository.Intervention,
	target domain.Status,
	technicianID *uuid.UUID,
	finalPriceCents *int64,
	cancellationReason string,
	actor Actor,
	note string,
) (repository.Intervention, error) {
	oldStatus := iv.Status

	updated, err := s.repo.TransitionStatus(ctx, repository.TransitionParams{
		ID:                 iv.ID,
		ExpectedVersion:    iv.Version,
		NewStatus:          target,
		TechnicianID:       technicianID,
		FinalPriceCents:    finalPriceCents,
		CancellationReason: cancellationReason,
	})
	if err != nil {
		return repository.Intervention{}, err
	}

	if err := s.repo.AppendHistory(ctx, repository.HistoryEntry{
		InterventionID: updated.ID,
		OldStatus:      oldStatus,
		NewStatus:      updated.Status,
		ActorType:      actor.Type,
		ActorID:        actor.ID,
		Note:           note,
	}); err != nil {
		// History is observability, not a gate on the committed transition.
		s.log.Warn("append status history failed",
			"interventionId", updated.ID.String(), "error", err.Error())
	}

	s.bus.Publish(ctx, events.InterventionStatusChanged{
		BaseEvent:      events.NewBaseEvent(),
		InterventionID: updated.ID,
		TrackingCode:   updated.TrackingCode,
		ClientID:       updated.ClientID,
		TechnicianID:   updated.TechnicianID,
		OldStatus:      string(oldStatus),
		NewStatus:      string(updated.Status),
		ActorType:      string(actor.Type),
	})

	return updated, nil
}
