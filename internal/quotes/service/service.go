// Package service implements the quote and modification ledger. It owns the
// single finalization gate: an intervention cannot complete while a
// modification awaits the client.
package service

import (
	"context"
	"fmt"
	"time"

	"fieldservice_backend/internal/events"
	"fieldservice_backend/internal/interventions/domain"
	"fieldservice_backend/internal/quotes/repository"
	"fieldservice_backend/platform/apperr"
	"fieldservice_backend/platform/logger"

	"github.com/google/uuid"
)

// Repo is the persistence contract for the ledger.
type Repo interface {
	CreateLine(ctx context.Context, line repository.QuoteLine) (repository.QuoteLine, error)
	ListLines(ctx context.Context, interventionID uuid.UUID) ([]repository.QuoteLine, error)
	CurrentTotal(ctx context.Context, interventionID uuid.UUID) (int64, error)
	HasPendingModification(ctx context.Context, interventionID uuid.UUID) (bool, error)
	CreateModification(ctx context.Context, mod repository.QuoteModification) (repository.QuoteModification, error)
	GetModification(ctx context.Context, id uuid.UUID) (repository.QuoteModification, error)
	ListModifications(ctx context.Context, interventionID uuid.UUID) ([]repository.QuoteModification, error)
	ResolveModification(ctx context.Context, id uuid.UUID, newStatus string) (repository.QuoteModification, error)
	ExpireStaleModifications(ctx context.Context, olderThan time.Duration) ([]repository.QuoteModification, error)
}

// InterventionView is the minimal intervention state the ledger needs to
// gate its operations.
type InterventionView struct {
	ID           uuid.UUID
	TrackingCode string
	ClientID     uuid.UUID
	TechnicianID *uuid.UUID
	Status       domain.Status
}

// InterventionReader resolves intervention state for gating. Wired after
// construction because the interventions module also depends on this one.
type InterventionReader interface {
	View(ctx context.Context, interventionID uuid.UUID) (InterventionView, error)
}

// Service is the quote and modification ledger.
type Service struct {
	repo          Repo
	bus           events.Bus
	log           *logger.Logger
	interventions InterventionReader
}

// New creates the quotes service.
func New(repo Repo, bus events.Bus, log *logger.Logger) *Service {
	return &Service{repo: repo, bus: bus, log: log}
}

// SetInterventionReader wires the intervention state source after construction.
func (s *Service) SetInterventionReader(r InterventionReader) {
	s.interventions = r
}

// SeedBaseQuote creates the immutable base line for a freshly created
// intervention and returns its amount.
func (s *Service) SeedBaseQuote(ctx context.Context, interventionID uuid.UUID, category string, priority domain.Priority) (int64, error) {
	amount := BaseQuoteAmount(category, priority)

	_, err := s.repo.CreateLine(ctx, repository.QuoteLine{
		InterventionID: interventionID,
		Label:          fmt.Sprintf("Base service charge (%s, %s priority)", category, priority),
		AmountCents:    amount,
	})
	if err != nil {
		return 0, err
	}

	return amount, nil
}

// IsFinalizationBlocked reports whether any modification is awaiting the
// client. This is the ledger's gate consulted by the state machine.
func (s *Service) IsFinalizationBlocked(ctx context.Context, interventionID uuid.UUID) (bool, error) {
	return s.repo.HasPendingModification(ctx, interventionID)
}

// CurrentTotal sums base lines plus approved modifications.
func (s *Service) CurrentTotal(ctx context.Context, interventionID uuid.UUID) (int64, error) {
	return s.repo.CurrentTotal(ctx, interventionID)
}

// LedgerView is the full ledger state for one intervention.
type LedgerView struct {
	Lines               []repository.QuoteLine
	Modifications       []repository.QuoteModification
	TotalCents          int64
	FinalizationBlocked bool
}

// Ledger returns lines, modifications, the running total, and the gate state.
func (s *Service) Ledger(ctx context.Context, interventionID uuid.UUID) (LedgerView, error) {
	lines, err := s.repo.ListLines(ctx, interventionID)
	if err != nil {
		return LedgerView{}, err
	}
	mods, err := s.repo.ListModifications(ctx, interventionID)
	if err != nil {
		return LedgerView{}, err
	}
	total, err := s.repo.CurrentTotal(ctx, interventionID)
	if err != nil {
		return LedgerView{}, err
	}
	blocked, err := s.repo.HasPendingModification(ctx, interventionID)
	if err != nil {
		return LedgerView{}, err
	}

	return LedgerView{Lines: lines, Modifications: mods, TotalCents: total, FinalizationBlocked: blocked}, nil
}

// ProposeModification records a technician-proposed supplemental charge.
// Only the assigned technician may propose, and only while on site.
func (s *Service) ProposeModification(ctx context.Context, interventionID, technicianID uuid.UUID, label string, amountCents int64) (repository.QuoteModification, error) {
	if amountCents <= 0 {
		return repository.QuoteModification{}, apperr.Validation("modification amount must be positive")
	}

	view, err := s.interventions.View(ctx, interventionID)
	if err != nil {
		return repository.QuoteModification{}, err
	}
	if view.Status != domain.StatusInProgress {
		return repository.QuoteModification{}, apperr.Conflict("additional work can only be proposed while on site")
	}
	if view.TechnicianID == nil || *view.TechnicianID != technicianID {
		return repository.QuoteModification{}, apperr.Forbidden("only the assigned technician can propose additional work")
	}

	mod, err := s.repo.CreateModification(ctx, repository.QuoteModification{
		InterventionID: interventionID,
		TechnicianID:   technicianID,
		Label:          label,
		AmountCents:    amountCents,
	})
	if err != nil {
		return repository.QuoteModification{}, err
	}

	s.bus.Publish(ctx, events.QuoteModificationProposed{
		BaseEvent:      events.NewBaseEvent(),
		ModificationID: mod.ID,
		InterventionID: interventionID,
		TrackingCode:   view.TrackingCode,
		ClientID:       view.ClientID,
		TechnicianID:   technicianID,
		Label:          mod.Label,
		AmountCents:    mod.AmountCents,
	})

	return mod, nil
}

// ApproveModification resolves a pending modification in the client's favor.
func (s *Service) ApproveModification(ctx context.Context, modificationID, clientID uuid.UUID) (repository.QuoteModification, error) {
	return s.resolveModification(ctx, modificationID, clientID, repository.ModificationApproved)
}

// DeclineModification resolves a pending modification against the proposal.
func (s *Service) DeclineModification(ctx context.Context, modificationID, clientID uuid.UUID) (repository.QuoteModification, error) {
	return s.resolveModification(ctx, modificationID, clientID, repository.ModificationDeclined)
}

func (s *Service) resolveModification(ctx context.Context, modificationID, clientID uuid.UUID, newStatus string) (repository.QuoteModification, error) {
	mod, err := s.repo.GetModification(ctx, modificationID)
	if err != nil {
		return repository.QuoteModification{}, err
	}

	view, err := s.interventions.View(ctx, mod.InterventionID)
	if err != nil {
		return repository.QuoteModification{}, err
	}
	if view.Status.Terminal() {
		return repository.QuoteModification{}, apperr.Conflict("intervention is already closed")
	}
	if view.ClientID != clientID {
		return repository.QuoteModification{}, apperr.Forbidden("only the client can resolve a modification")
	}

	resolved, err := s.repo.ResolveModification(ctx, modificationID, newStatus)
	if err != nil {
		return repository.QuoteModification{}, err
	}

	total, err := s.repo.CurrentTotal(ctx, mod.InterventionID)
	if err != nil {
		return repository.QuoteModification{}, err
	}

	s.bus.Publish(ctx, events.QuoteModificationResolved{
		BaseEvent:      events.NewBaseEvent(),
		ModificationID: resolved.ID,
		InterventionID: resolved.InterventionID,
		TechnicianID:   resolved.TechnicianID,
		Label:          resolved.Label,
		AmountCents:    resolved.AmountCents,
		Approved:       newStatus == repository.ModificationApproved,
		NewTotalCents:  total,
	})

	return resolved, nil
}

// ExpireStaleModifications resolves pending modifications older than the
// cutoff so an unresponsive client cannot block finalization forever. Called
// from the scheduler.
func (s *Service) ExpireStaleModifications(ctx context.Context, olderThan time.Duration) (int, error) {
	expired, err := s.repo.ExpireStaleModifications(ctx, olderThan)
	if err != nil {
		return 0, err
	}

	for _, mod := range expired {
		total, err := s.repo.CurrentTotal(ctx, mod.InterventionID)
		if err != nil {
			s.log.Warn("total after modification expiry unavailable",
				"interventionId", mod.InterventionID.String(), "error", err.Error())
			continue
		}
		s.bus.Publish(ctx, events.QuoteModificationResolved{
			BaseEvent:      events.NewBaseEvent(),
			ModificationID: mod.ID,
			InterventionID: mod.InterventionID,
			TechnicianID:   mod.TechnicianID,
			Label:          mod.Label,
			AmountCents:    mod.AmountCents,
			Approved:       false,
			NewTotalCents:  total,
		})
	}

	return len(expired), nil
}
