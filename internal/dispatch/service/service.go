// Package service implements the dispatch coordinator: it ranks candidate
// technicians, issues timed offers, and resolves accept/decline races so
// that exactly one technician ends up assigned.
package service

import (
	"context"
	"sync"
	"time"

	"fieldservice_backend/internal/dispatch/repository"
	"fieldservice_backend/internal/events"
	"fieldservice_backend/internal/interventions/domain"
	"fieldservice_backend/platform/apperr"
	"fieldservice_backend/platform/config"
	"fieldservice_backend/platform/logger"

	"github.com/google/uuid"
)

// Repo is the persistence contract for the dispatch protocol.
type Repo interface {
	CreateAttempt(ctx context.Context, interventionID, technicianID uuid.UUID, rankScore float64, expiresAt time.Time) (repository.Attempt, error)
	CreateAcceptedAttempt(ctx context.Context, interventionID, technicianID uuid.UUID) (repository.Attempt, error)
	Accept(ctx context.Context, attemptID uuid.UUID) (repository.Attempt, error)
	MarkDeclined(ctx context.Context, attemptID uuid.UUID) (repository.Attempt, error)
	MarkExpired(ctx context.Context, attemptID uuid.UUID) (bool, error)
	SupersedePending(ctx context.Context, interventionID uuid.UUID) (int64, error)
	GetAttempt(ctx context.Context, attemptID uuid.UUID) (repository.Attempt, error)
	GetAcceptedByIntervention(ctx context.Context, interventionID uuid.UUID) (repository.Attempt, error)
	ListByIntervention(ctx context.Context, interventionID uuid.UUID) ([]repository.Attempt, error)
	ExpireDue(ctx context.Context, now time.Time) ([]repository.Attempt, error)
	CountPending(ctx context.Context, interventionID uuid.UUID) (int, error)
	ListCandidates(ctx context.Context, requiredSkill string) ([]repository.Technician, error)
	GetTechnician(ctx context.Context, id uuid.UUID) (repository.Technician, error)
	AdjustWorkload(ctx context.Context, technicianID uuid.UUID, delta int) error
}

// InterventionView is the intervention state the coordinator needs to rank
// candidates and describe the job in offers.
type InterventionView struct {
	ID            uuid.UUID
	TrackingCode  string
	ClientID      uuid.UUID
	Status        domain.Status
	Category      string
	Priority      domain.Priority
	Address       string
	RequiredSkill string
	Latitude      float64
	Longitude     float64
}

// InterventionSource is the state machine surface the coordinator drives.
// Wired after construction because the two modules reference each other.
type InterventionSource interface {
	DispatchView(ctx context.Context, interventionID uuid.UUID) (InterventionView, error)
	AssignFromDispatch(ctx context.Context, interventionID, technicianID uuid.UUID) error
	FlagManualDispatch(ctx context.Context, interventionID uuid.UUID) error
}

// Service is the dispatch coordinator.
type Service struct {
	repo          Repo
	interventions InterventionSource
	bus           events.Bus
	log           *logger.Logger
	cfg           config.DispatchConfig
	weights       config.RankingWeights

	mu       sync.Mutex
	sessions map[uuid.UUID]*session
}

// New creates the dispatch coordinator.
func New(repo Repo, cfg config.DispatchConfig, weights config.RankingWeights, bus events.Bus, log *logger.Logger) *Service {
	return &Service{
		repo:     repo,
		bus:      bus,
		log:      log,
		cfg:      cfg,
		weights:  weights,
		sessions: make(map[uuid.UUID]*session),
	}
}

// SetInterventionSource wires the state machine after construction.
func (s *Service) SetInterventionSource(src InterventionSource) {
	s.interventions = src
}

// StartDispatch ranks candidates and begins the offer protocol for an
// intervention in status new. The protocol runs in its own goroutine;
// multiple interventions dispatch fully in parallel.
func (s *Service) StartDispatch(ctx context.Context, interventionID uuid.UUID) error {
	view, err := s.interventions.DispatchView(ctx, interventionID)
	if err != nil {
		return err
	}
	if view.Status != domain.StatusNew {
		return apperr.Conflict("intervention is not awaiting dispatch")
	}

	techs, err := s.repo.ListCandidates(ctx, view.RequiredSkill)
	if err != nil {
		return err
	}

	candidates := rankCandidates(techs, view, s.weights)
	if max := s.cfg.GetMaxDispatchCandidates(); max > 0 && len(candidates) > max {
		candidates = candidates[:max]
	}

	if len(candidates) == 0 {
		return s.exhaust(ctx, view, 0)
	}

	sess, err := s.register(interventionID)
	if err != nil {
		return err
	}

	go s.runOfferLoop(sess, view, candidates)

	return nil
}

// CancelDispatch stops the offer loop and invalidates every outstanding
// offer. Safe to call when no dispatch is running.
func (s *Service) CancelDispatch(ctx context.Context, interventionID uuid.UUID) error {
	s.unregister(interventionID)

	if _, err := s.repo.SupersedePending(ctx, interventionID); err != nil {
		return err
	}

	return nil
}

// AcceptedTechnician returns the technician holding the accepted attempt.
func (s *Service) AcceptedTechnician(ctx context.Context, interventionID uuid.UUID) (uuid.UUID, error) {
	attempt, err := s.repo.GetAcceptedByIntervention(ctx, interventionID)
	if err != nil {
		return uuid.Nil, err
	}
	return attempt.TechnicianID, nil
}

// RespondToOffer resolves a technician's answer to an outstanding offer.
// Acceptance is a single conditional write: when two technicians race,
// exactly one wins and the loser gets a conflict telling them the job is
// gone. A late response never overwrites the winning assignment.
func (s *Service) RespondToOffer(ctx context.Context, attemptID, technicianID uuid.UUID, accept bool, reason string) (repository.Attempt, error) {
	attempt, err := s.repo.GetAttempt(ctx, attemptID)
	if err != nil {
		return repository.Attempt{}, err
	}
	if attempt.TechnicianID != technicianID {
		return repository.Attempt{}, apperr.Forbidden("offer belongs to another technician")
	}

	if !accept {
		return s.decline(ctx, attempt, reason)
	}

	return s.accept(ctx, attempt)
}

func (s *Service) accept(ctx context.Context, attempt repository.Attempt) (repository.Attempt, error) {
	won, err := s.repo.Accept(ctx, attempt.ID)
	if err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			s.bus.Publish(ctx, events.DispatchOfferClosed{
				BaseEvent:      events.NewBaseEvent(),
				AttemptID:      attempt.ID,
				InterventionID: attempt.InterventionID,
				TechnicianID:   attempt.TechnicianID,
			})
		}
		return repository.Attempt{}, err
	}

	if err := s.interventions.AssignFromDispatch(ctx, won.InterventionID, won.TechnicianID); err != nil {
		// The intervention moved on while the offer was open, typically a
		// cancellation. The acceptance stands down.
		if _, sErr := s.repo.SupersedePending(ctx, won.InterventionID); sErr != nil {
			s.log.Warn("supersede after failed assignment",
				"interventionId", won.InterventionID.String(), "error", sErr.Error())
		}
		s.unregister(won.InterventionID)
		return repository.Attempt{}, err
	}

	if err := s.repo.AdjustWorkload(ctx, won.TechnicianID, 1); err != nil {
		s.log.Warn("increment technician workload",
			"technicianId", won.TechnicianID.String(), "error", err.Error())
	}

	view, viewErr := s.interventions.DispatchView(ctx, won.InterventionID)
	if viewErr == nil {
		s.bus.Publish(ctx, events.DispatchOfferAccepted{
			BaseEvent:      events.NewBaseEvent(),
			AttemptID:      won.ID,
			InterventionID: won.InterventionID,
			TrackingCode:   view.TrackingCode,
			TechnicianID:   won.TechnicianID,
			ClientID:       view.ClientID,
		})
	}

	s.log.DispatchEvent("offer_accepted", won.InterventionID.String(), won.TechnicianID.String())
	s.signal(won.InterventionID, outcome{attemptID: won.ID, kind: outcomeAccepted})

	return won, nil
}

func (s *Service) decline(ctx context.Context, attempt repository.Attempt, reason string) (repository.Attempt, error) {
	declined, err := s.repo.MarkDeclined(ctx, attempt.ID)
	if err != nil {
		return repository.Attempt{}, err
	}

	s.bus.Publish(ctx, events.DispatchOfferDeclined{
		BaseEvent:      events.NewBaseEvent(),
		AttemptID:      declined.ID,
		InterventionID: declined.InterventionID,
		TechnicianID:   declined.TechnicianID,
		Reason:         reason,
	})

	s.log.DispatchEvent("offer_declined", declined.InterventionID.String(), declined.TechnicianID.String())
	s.signal(declined.InterventionID, outcome{attemptID: declined.ID, kind: outcomeDeclined})

	return declined, nil
}

// ManualAssign is the operator override: it bypasses ranking, supersedes any
// outstanding offers, and assigns the chosen technician directly.
func (s *Service) ManualAssign(ctx context.Context, interventionID, technicianID uuid.UUID) (repository.Attempt, error) {
	if _, err := s.repo.GetTechnician(ctx, technicianID); err != nil {
		return repository.Attempt{}, err
	}

	s.unregister(interventionID)

	attempt, err := s.repo.CreateAcceptedAttempt(ctx, interventionID, technicianID)
	if err != nil {
		return repository.Attempt{}, err
	}

	if err := s.interventions.AssignFromDispatch(ctx, interventionID, technicianID); err != nil {
		return repository.Attempt{}, err
	}

	if err := s.repo.AdjustWorkload(ctx, technicianID, 1); err != nil {
		s.log.Warn("increment technician workload",
			"technicianId", technicianID.String(), "error", err.Error())
	}

	s.log.DispatchEvent("manual_assignment", interventionID.String(), technicianID.String())

	return attempt, nil
}

// ListAttempts returns the offer history for an intervention.
func (s *Service) ListAttempts(ctx context.Context, interventionID uuid.UUID) ([]repository.Attempt, error) {
	return s.repo.ListByIntervention(ctx, interventionID)
}

// ExpireDueAttempts is the scheduler backstop: it lapses offers whose
// deadline passed without an in-process timer firing, then flags orphaned
// interventions for manual dispatch.
func (s *Service) ExpireDueAttempts(ctx context.Context, now time.Time) (int, error) {
	expired, err := s.repo.ExpireDue(ctx, now)
	if err != nil {
		return 0, err
	}

	seen := make(map[uuid.UUID]bool)
	for _, attempt := range expired {
		s.bus.Publish(ctx, events.DispatchOfferExpired{
			BaseEvent:      events.NewBaseEvent(),
			AttemptID:      attempt.ID,
			InterventionID: attempt.InterventionID,
			TechnicianID:   attempt.TechnicianID,
		})

		if seen[attempt.InterventionID] {
			continue
		}
		seen[attempt.InterventionID] = true

		// A live session advances the loop on its own. Only interventions
		// without one need operator attention.
		if s.hasSession(attempt.InterventionID) {
			continue
		}

		pending, err := s.repo.CountPending(ctx, attempt.InterventionID)
		if err != nil {
			s.log.Warn("count pending after backstop expiry",
				"interventionId", attempt.InterventionID.String(), "error", err.Error())
			continue
		}
		if pending > 0 {
			continue
		}

		if err := s.interventions.FlagManualDispatch(ctx, attempt.InterventionID); err != nil {
			s.log.Warn("flag manual dispatch after backstop expiry",
				"interventionId", attempt.InterventionID.String(), "error", err.Error())
		}
	}

	return len(expired), nil
}

// HandleWorkloadRelease frees a technician slot when their intervention
// reaches a terminal status. Subscribed on the event bus.
func (s *Service) HandleWorkloadRelease(ctx context.Context, technicianID uuid.UUID) {
	if err := s.repo.AdjustWorkload(ctx, technicianID, -1); err != nil {
		s.log.Warn("decrement technician workload",
			"technicianId", technicianID.String(), "error", err.Error())
	}
}

// exhaust reports that no candidate accepted. Exhaustion is an outcome, not
// an error: the intervention stays new and is flagged for an operator.
func (s *Service) exhaust(ctx context.Context, view InterventionView, tried int) error {
	if err := s.interventions.FlagManualDispatch(ctx, view.ID); err != nil {
		return err
	}

	s.bus.Publish(ctx, events.DispatchExhausted{
		BaseEvent:       events.NewBaseEvent(),
		InterventionID:  view.ID,
		TrackingCode:    view.TrackingCode,
		ClientID:        view.ClientID,
		CandidatesTried: tried,
	})

	s.log.DispatchEvent("exhausted", view.ID.String(), "")

	return nil
}
