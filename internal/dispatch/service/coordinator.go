package service

import (
	"context"
	"time"

	"fieldservice_backend/internal/dispatch/repository"
	"fieldservice_backend/internal/events"
	"fieldservice_backend/internal/interventions/domain"
	"fieldservice_backend/platform/apperr"

	"github.com/google/uuid"
)

type outcomeKind int

const (
	outcomeAccepted outcomeKind = iota
	outcomeDeclined
)

// outcome is a resolved response delivered to the offer loop.
type outcome struct {
	attemptID uuid.UUID
	kind      outcomeKind
}

// session is the in-process handle for one intervention's offer loop.
type session struct {
	ctx      context.Context
	cancel   context.CancelFunc
	outcomes chan outcome
}

// register creates the session for an intervention. At most one offer loop
// runs per intervention at a time.
func (s *Service) register(interventionID uuid.UUID) (*session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[interventionID]; exists {
		return nil, apperr.Conflict("dispatch already in progress for intervention")
	}

	// The loop outlives the request that started it. Cancellation happens
	// through the session, not the caller's context.
	ctx, cancel := context.WithCancel(context.Background())
	sess := &session{ctx: ctx, cancel: cancel, outcomes: make(chan outcome, 4)}
	s.sessions[interventionID] = sess

	return sess, nil
}

func (s *Service) unregister(interventionID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[interventionID]; ok {
		sess.cancel()
		delete(s.sessions, interventionID)
	}
}

func (s *Service) hasSession(interventionID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.sessions[interventionID]
	return ok
}

// signal delivers a resolved response to the offer loop, if one is running.
// Non-blocking: the DB write is the source of truth, the channel only wakes
// the loop early.
func (s *Service) signal(interventionID uuid.UUID, o outcome) {
	s.mu.Lock()
	sess, ok := s.sessions[interventionID]
	s.mu.Unlock()
	if !ok {
		return
	}

	select {
	case sess.outcomes <- o:
	default:
	}
}

// offerTTL picks the deadline for one offer. Urgent jobs get a shorter one.
func (s *Service) offerTTL(priority domain.Priority) time.Duration {
	if priority == domain.PriorityUrgent {
		return s.cfg.GetUrgentOfferTTL()
	}
	return s.cfg.GetOfferTTL()
}

// runOfferLoop walks the ranked candidates one at a time. For each it issues
// a pending attempt and races the technician's response against the offer
// deadline. Acceptance stops the loop; decline and expiry advance it. When
// every candidate is tried without an acceptance the intervention is flagged
// for manual dispatch.
func (s *Service) runOfferLoop(sess *session, view InterventionView, candidates []Candidate) {
	defer s.unregister(view.ID)

	ttl := s.offerTTL(view.Priority)
	tried := 0

	for _, candidate := range candidates {
		if sess.ctx.Err() != nil {
			return
		}

		attempt, err := s.repo.CreateAttempt(sess.ctx, view.ID, candidate.Technician.ID, candidate.Score, time.Now().Add(ttl))
		if err != nil {
			if apperr.Is(err, apperr.KindConflict) {
				continue
			}
			s.log.Warn("issue dispatch offer",
				"interventionId", view.ID.String(),
				"technicianId", candidate.Technician.ID.String(),
				"error", err.Error())
			continue
		}
		tried++

		s.log.DispatchEvent("offer_issued", view.ID.String(), candidate.Technician.ID.String())
		s.bus.Publish(sess.ctx, events.DispatchOfferIssued{
			BaseEvent:      events.NewBaseEvent(),
			AttemptID:      attempt.ID,
			InterventionID: view.ID,
			TrackingCode:   view.TrackingCode,
			TechnicianID:   candidate.Technician.ID,
			Category:       view.Category,
			Priority:       string(view.Priority),
			Address:        view.Address,
			ExpiresAt:      attempt.ExpiresAt,
		})

		switch s.awaitResponse(sess, attempt.ID, attempt.ExpiresAt) {
		case outcomeAccepted:
			return
		case outcomeDeclined:
			// Advance to the next candidate immediately.
		}
	}

	if sess.ctx.Err() != nil {
		return
	}

	if err := s.exhaust(sess.ctx, view, tried); err != nil {
		s.log.Warn("report dispatch exhaustion",
			"interventionId", view.ID.String(), "error", err.Error())
	}
}

// awaitResponse blocks until the current offer resolves: a response arrives,
// the deadline lapses, or the dispatch is cancelled. Expiry uses a
// conditional write so it never undoes an acceptance that slipped in after
// the timer fired.
func (s *Service) awaitResponse(sess *session, attemptID uuid.UUID, expiresAt time.Time) outcomeKind {
	timer := time.NewTimer(time.Until(expiresAt))
	defer timer.Stop()

	for {
		select {
		case o := <-sess.outcomes:
			if o.attemptID != attemptID {
				continue
			}
			return o.kind

		case <-timer.C:
			expired, err := s.repo.MarkExpired(context.WithoutCancel(sess.ctx), attemptID)
			if err != nil {
				s.log.Warn("expire dispatch offer", "attemptId", attemptID.String(), "error", err.Error())
				return outcomeDeclined
			}
			if !expired {
				// The attempt resolved just before the timer fired. Drain
				// the signal if one was queued.
				select {
				case o := <-sess.outcomes:
					if o.attemptID == attemptID {
						return o.kind
					}
				default:
				}
				return s.resolvedKind(attemptID)
			}

			s.publishExpired(attemptID)
			return outcomeDeclined

		case <-sess.ctx.Done():
			return outcomeAccepted
		}
	}
}

// resolvedKind reads the attempt back when the timer lost the race.
func (s *Service) resolvedKind(attemptID uuid.UUID) outcomeKind {
	attempt, err := s.repo.GetAttempt(context.Background(), attemptID)
	if err != nil {
		return outcomeDeclined
	}
	if attempt.Status == repository.StatusAccepted {
		return outcomeAccepted
	}
	return outcomeDeclined
}

func (s *Service) publishExpired(attemptID uuid.UUID) {
	attempt, err := s.repo.GetAttempt(context.Background(), attemptID)
	if err != nil {
		return
	}

	s.log.DispatchEvent("offer_expired", attempt.InterventionID.String(), attempt.TechnicianID.String())
	s.bus.Publish(context.Background(), events.DispatchOfferExpired{
		BaseEvent:      events.NewBaseEvent(),
		AttemptID:      attempt.ID,
		InterventionID: attempt.InterventionID,
		TechnicianID:   attempt.TechnicianID,
	})
}
