package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"fieldservice_backend/internal/dispatch/repository"
	"fieldservice_backend/internal/events"
	"fieldservice_backend/internal/interventions/domain"
	"fieldservice_backend/platform/apperr"
	"fieldservice_backend/platform/config"
	"fieldservice_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeRepo struct {
	mu       sync.Mutex
	attempts map[uuid.UUID]repository.Attempt
	techs    map[uuid.UUID]repository.Technician
}

func newFakeRepo(techs ...repository.Technician) *fakeRepo {
	r := &fakeRepo{
		attempts: make(map[uuid.UUID]repository.Attempt),
		techs:    make(map[uuid.UUID]repository.Technician),
	}
	for _, t := range techs {
		r.techs[t.ID] = t
	}
	return r
}

func (r *fakeRepo) CreateAttempt(_ context.Context, interventionID, technicianID uuid.UUID, rankScore float64, expiresAt time.Time) (repository.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.attempts {
		if a.InterventionID == interventionID && a.TechnicianID == technicianID && a.Status == repository.StatusPending {
			return repository.Attempt{}, apperr.Conflict("technician already has a pending offer for this intervention")
		}
	}

	a := repository.Attempt{
		ID:             uuid.New(),
		InterventionID: interventionID,
		TechnicianID:   technicianID,
		Status:         repository.StatusPending,
		RankScore:      rankScore,
		ExpiresAt:      expiresAt,
		CreatedAt:      time.Now(),
	}
	r.attempts[a.ID] = a
	return a, nil
}

func (r *fakeRepo) CreateAcceptedAttempt(_ context.Context, interventionID, technicianID uuid.UUID) (repository.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, a := range r.attempts {
		if a.InterventionID == interventionID && a.Status == repository.StatusPending {
			a.Status = repository.StatusSuperseded
			r.attempts[id] = a
		}
	}

	now := time.Now()
	a := repository.Attempt{
		ID:             uuid.New(),
		InterventionID: interventionID,
		TechnicianID:   technicianID,
		Status:         repository.StatusAccepted,
		ExpiresAt:      now,
		RespondedAt:    &now,
		CreatedAt:      now,
	}
	r.attempts[a.ID] = a
	return a, nil
}

func (r *fakeRepo) Accept(_ context.Context, attemptID uuid.UUID) (repository.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.attempts[attemptID]
	if !ok || a.Status != repository.StatusPending {
		return repository.Attempt{}, apperr.Conflict("offer is no longer available")
	}

	now := time.Now()
	a.Status = repository.StatusAccepted
	a.RespondedAt = &now
	r.attempts[attemptID] = a

	for id, other := range r.attempts {
		if other.InterventionID == a.InterventionID && id != attemptID && other.Status == repository.StatusPending {
			other.Status = repository.StatusSuperseded
			r.attempts[id] = other
		}
	}

	return a, nil
}

func (r *fakeRepo) MarkDeclined(_ context.Context, attemptID uuid.UUID) (repository.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.attempts[attemptID]
	if !ok || a.Status != repository.StatusPending {
		return repository.Attempt{}, apperr.Conflict("offer is no longer available")
	}

	now := time.Now()
	a.Status = repository.StatusDeclined
	a.RespondedAt = &now
	r.attempts[attemptID] = a
	return a, nil
}

func (r *fakeRepo) MarkExpired(_ context.Context, attemptID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.attempts[attemptID]
	if !ok || a.Status != repository.StatusPending {
		return false, nil
	}
	a.Status = repository.StatusExpired
	r.attempts[attemptID] = a
	return true, nil
}

func (r *fakeRepo) SupersedePending(_ context.Context, interventionID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, a := range r.attempts {
		if a.InterventionID == interventionID && a.Status == repository.StatusPending {
			a.Status = repository.StatusSuperseded
			r.attempts[id] = a
			n++
		}
	}
	return n, nil
}

func (r *fakeRepo) GetAttempt(_ context.Context, attemptID uuid.UUID) (repository.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.attempts[attemptID]
	if !ok {
		return repository.Attempt{}, apperr.NotFound("dispatch attempt not found")
	}
	return a, nil
}

func (r *fakeRepo) GetAcceptedByIntervention(_ context.Context, interventionID uuid.UUID) (repository.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.attempts {
		if a.InterventionID == interventionID && a.Status == repository.StatusAccepted {
			return a, nil
		}
	}
	return repository.Attempt{}, apperr.NotFound("no accepted attempt for intervention")
}

func (r *fakeRepo) ListByIntervention(_ context.Context, interventionID uuid.UUID) ([]repository.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var items []repository.Attempt
	for _, a := range r.attempts {
		if a.InterventionID == interventionID {
			items = append(items, a)
		}
	}
	return items, nil
}

func (r *fakeRepo) ExpireDue(_ context.Context, now time.Time) ([]repository.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var items []repository.Attempt
	for id, a := range r.attempts {
		if a.Status == repository.StatusPending && a.ExpiresAt.Before(now) {
			a.Status = repository.StatusExpired
			r.attempts[id] = a
			items = append(items, a)
		}
	}
	return items, nil
}

func (r *fakeRepo) CountPending(_ context.Context, interventionID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, a := range r.attempts {
		if a.InterventionID == interventionID && a.Status == repository.StatusPending {
			n++
		}
	}
	return n, nil
}

func (r *fakeRepo) ListCandidates(_ context.Context, requiredSkill string) ([]repository.Technician, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var items []repository.Technician
	for _, t := range r.techs {
		if !t.Available {
			continue
		}
		for _, s := range t.Skills {
			if s == requiredSkill {
				items = append(items, t)
				break
			}
		}
	}
	return items, nil
}

func (r *fakeRepo) GetTechnician(_ context.Context, id uuid.UUID) (repository.Technician, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.techs[id]
	if !ok {
		return repository.Technician{}, apperr.NotFound("technician not found")
	}
	return t, nil
}

func (r *fakeRepo) AdjustWorkload(_ context.Context, technicianID uuid.UUID, delta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.techs[technicianID]
	if !ok {
		return apperr.NotFound("technician not found")
	}
	t.ActiveJobCount += delta
	if t.ActiveJobCount < 0 {
		t.ActiveJobCount = 0
	}
	r.techs[technicianID] = t
	return nil
}

func (r *fakeRepo) pendingAttempt(interventionID uuid.UUID) (repository.Attempt, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.attempts {
		if a.InterventionID == interventionID && a.Status == repository.StatusPending {
			return a, true
		}
	}
	return repository.Attempt{}, false
}

func (r *fakeRepo) countByStatus(interventionID uuid.UUID, status string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, a := range r.attempts {
		if a.InterventionID == interventionID && a.Status == status {
			n++
		}
	}
	return n
}

type fakeInterventions struct {
	mu       sync.Mutex
	views    map[uuid.UUID]InterventionView
	assigned map[uuid.UUID]uuid.UUID
	flagged  map[uuid.UUID]bool
}

func newFakeInterventions(views ...InterventionView) *fakeInterventions {
	f := &fakeInterventions{
		views:    make(map[uuid.UUID]InterventionView),
		assigned: make(map[uuid.UUID]uuid.UUID),
		flagged:  make(map[uuid.UUID]bool),
	}
	for _, v := range views {
		f.views[v.ID] = v
	}
	return f
}

func (f *fakeInterventions) DispatchView(_ context.Context, id uuid.UUID) (InterventionView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	v, ok := f.views[id]
	if !ok {
		return InterventionView{}, apperr.NotFound("intervention not found")
	}
	return v, nil
}

func (f *fakeInterventions) AssignFromDispatch(_ context.Context, interventionID, technicianID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, done := f.assigned[interventionID]; done {
		return apperr.Conflict("intervention is no longer awaiting dispatch")
	}
	f.assigned[interventionID] = technicianID

	v := f.views[interventionID]
	v.Status = domain.StatusAssigned
	f.views[interventionID] = v
	return nil
}

func (f *fakeInterventions) FlagManualDispatch(_ context.Context, interventionID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.flagged[interventionID] = true
	return nil
}

func (f *fakeInterventions) assignedTo(interventionID uuid.UUID) (uuid.UUID, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id, ok := f.assigned[interventionID]
	return id, ok
}

func (f *fakeInterventions) isFlagged(interventionID uuid.UUID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.flagged[interventionID]
}

type recordingBus struct {
	mu        sync.Mutex
	published []events.Event
}

func (b *recordingBus) Publish(_ context.Context, e events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, e)
}

func (b *recordingBus) PublishSync(ctx context.Context, e events.Event) error {
	b.Publish(ctx, e)
	return nil
}

func (b *recordingBus) Subscribe(string, events.Handler) {}

func (b *recordingBus) has(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.published {
		if e.EventName() == name {
			return true
		}
	}
	return false
}

type stubDispatchCfg struct {
	offerTTL  time.Duration
	urgentTTL time.Duration
	maxCands  int
}

func (c stubDispatchCfg) GetOfferTTL() time.Duration       { return c.offerTTL }
func (c stubDispatchCfg) GetUrgentOfferTTL() time.Duration { return c.urgentTTL }
func (c stubDispatchCfg) GetMaxDispatchCandidates() int    { return c.maxCands }
func (c stubDispatchCfg) GetDispatchWeightsFile() string   { return "" }

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func newIntervention(priority domain.Priority) InterventionView {
	return InterventionView{
		ID:            uuid.New(),
		TrackingCode:  "FS-0000000001",
		ClientID:      uuid.New(),
		Status:        domain.StatusNew,
		Category:      "plumbing",
		Priority:      priority,
		Address:       "Kerkstraat 1, Amsterdam",
		RequiredSkill: "plumbing",
		Latitude:      52.37,
		Longitude:     4.89,
	}
}

func plumber(jobs int, rating float64) repository.Technician {
	return repository.Technician{
		ID:             uuid.New(),
		Skills:         []string{"plumbing"},
		Rating:         rating,
		ActiveJobCount: jobs,
		Available:      true,
		Latitude:       52.37,
		Longitude:      4.89,
	}
}

func TestDispatchOfferAcceptedAssignsTechnician(t *testing.T) {
	best := plumber(0, 5.0)
	backup := plumber(3, 3.0)
	repo := newFakeRepo(best, backup)
	iv := newIntervention(domain.PriorityNormal)
	source := newFakeInterventions(iv)
	bus := &recordingBus{}

	svc := New(repo, stubDispatchCfg{offerTTL: time.Second, urgentTTL: time.Second, maxCands: 10}, config.DefaultRankingWeights(), bus, logger.New("test"))
	svc.SetInterventionSource(source)

	if err := svc.StartDispatch(context.Background(), iv.ID); err != nil {
		t.Fatalf("StartDispatch() error = %v", err)
	}

	var offer repository.Attempt
	waitFor(t, time.Second, func() bool {
		a, ok := repo.pendingAttempt(iv.ID)
		offer = a
		return ok
	})
	if offer.TechnicianID != best.ID {
		t.Errorf("first offer went to %s, want the top-ranked technician", offer.TechnicianID)
	}

	if _, err := svc.RespondToOffer(context.Background(), offer.ID, best.ID, true, ""); err != nil {
		t.Fatalf("RespondToOffer() error = %v", err)
	}

	if got, ok := source.assignedTo(iv.ID); !ok || got != best.ID {
		t.Errorf("assigned = %v, want %s", got, best.ID)
	}

	techID, err := svc.AcceptedTechnician(context.Background(), iv.ID)
	if err != nil || techID != best.ID {
		t.Errorf("AcceptedTechnician() = %v, %v, want %s", techID, err, best.ID)
	}

	waitFor(t, time.Second, func() bool { return !svc.hasSession(iv.ID) })
	if repo.countByStatus(iv.ID, repository.StatusPending) != 0 {
		t.Errorf("pending attempts remain after acceptance")
	}
	if !bus.has("dispatch.offer.accepted") {
		t.Errorf("dispatch.offer.accepted was not published")
	}
}

func TestDispatchAdvancesThroughDeclineAndExpiry(t *testing.T) {
	silent := plumber(0, 5.0)
	refuser := plumber(1, 4.5)
	taker := plumber(2, 4.0)
	repo := newFakeRepo(silent, refuser, taker)
	iv := newIntervention(domain.PriorityUrgent)
	source := newFakeInterventions(iv)
	bus := &recordingBus{}

	// Urgent priority uses the short deadline, so the silent technician's
	// offer lapses quickly.
	svc := New(repo, stubDispatchCfg{offerTTL: time.Second, urgentTTL: 15 * time.Millisecond, maxCands: 10}, config.DefaultRankingWeights(), bus, logger.New("test"))
	svc.SetInterventionSource(source)

	if err := svc.StartDispatch(context.Background(), iv.ID); err != nil {
		t.Fatalf("StartDispatch() error = %v", err)
	}

	// Ranking order is silent, refuser, taker. Let the first expire.
	waitFor(t, time.Second, func() bool {
		a, ok := repo.pendingAttempt(iv.ID)
		return ok && a.TechnicianID == refuser.ID
	})

	second, _ := repo.pendingAttempt(iv.ID)
	if _, err := svc.RespondToOffer(context.Background(), second.ID, refuser.ID, false, "already on a job"); err != nil {
		t.Fatalf("decline RespondToOffer() error = %v", err)
	}

	var third repository.Attempt
	waitFor(t, time.Second, func() bool {
		a, ok := repo.pendingAttempt(iv.ID)
		third = a
		return ok && a.TechnicianID == taker.ID
	})

	if _, err := svc.RespondToOffer(context.Background(), third.ID, taker.ID, true, ""); err != nil {
		t.Fatalf("accept RespondToOffer() error = %v", err)
	}

	if got, ok := source.assignedTo(iv.ID); !ok || got != taker.ID {
		t.Errorf("assigned = %v, want %s", got, taker.ID)
	}
	if repo.countByStatus(iv.ID, repository.StatusExpired) != 1 {
		t.Errorf("expired attempts = %d, want 1", repo.countByStatus(iv.ID, repository.StatusExpired))
	}
	if repo.countByStatus(iv.ID, repository.StatusDeclined) != 1 {
		t.Errorf("declined attempts = %d, want 1", repo.countByStatus(iv.ID, repository.StatusDeclined))
	}
	if !bus.has("dispatch.offer.expired") || !bus.has("dispatch.offer.declined") {
		t.Errorf("expiry and decline events were not both published")
	}
}

func TestLateResponseLosesRaceAndNeverReassigns(t *testing.T) {
	repo := newFakeRepo()
	iv := newIntervention(domain.PriorityNormal)
	source := newFakeInterventions(iv)
	bus := &recordingBus{}

	svc := New(repo, stubDispatchCfg{offerTTL: time.Second, urgentTTL: time.Second, maxCands: 10}, config.DefaultRankingWeights(), bus, logger.New("test"))
	svc.SetInterventionSource(source)

	winner := plumber(0, 5.0)
	loser := plumber(0, 5.0)
	repo.techs[winner.ID] = winner
	repo.techs[loser.ID] = loser

	// Two concurrently outstanding offers for the same intervention.
	first, err := repo.CreateAttempt(context.Background(), iv.ID, winner.ID, 90, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("create first attempt: %v", err)
	}
	second, err := repo.CreateAttempt(context.Background(), iv.ID, loser.ID, 85, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("create second attempt: %v", err)
	}

	if _, err := svc.RespondToOffer(context.Background(), first.ID, winner.ID, true, ""); err != nil {
		t.Fatalf("winning RespondToOffer() error = %v", err)
	}

	_, err = svc.RespondToOffer(context.Background(), second.ID, loser.ID, true, "")
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("late RespondToOffer() error = %v, want conflict", err)
	}

	if got, _ := source.assignedTo(iv.ID); got != winner.ID {
		t.Errorf("assigned = %s, want the first responder %s", got, winner.ID)
	}
	if repo.countByStatus(iv.ID, repository.StatusAccepted) != 1 {
		t.Errorf("accepted attempts = %d, want exactly 1", repo.countByStatus(iv.ID, repository.StatusAccepted))
	}
	if repo.countByStatus(iv.ID, repository.StatusSuperseded) != 1 {
		t.Errorf("superseded attempts = %d, want 1", repo.countByStatus(iv.ID, repository.StatusSuperseded))
	}
	if !bus.has("dispatch.offer.closed") {
		t.Errorf("late responder was not told the offer closed")
	}
}

func TestExhaustionFlagsManualDispatch(t *testing.T) {
	only := plumber(0, 4.0)
	repo := newFakeRepo(only)
	iv := newIntervention(domain.PriorityNormal)
	source := newFakeInterventions(iv)
	bus := &recordingBus{}

	svc := New(repo, stubDispatchCfg{offerTTL: 10 * time.Millisecond, urgentTTL: 10 * time.Millisecond, maxCands: 10}, config.DefaultRankingWeights(), bus, logger.New("test"))
	svc.SetInterventionSource(source)

	if err := svc.StartDispatch(context.Background(), iv.ID); err != nil {
		t.Fatalf("StartDispatch() error = %v", err)
	}

	waitFor(t, time.Second, func() bool { return source.isFlagged(iv.ID) })

	if _, ok := source.assignedTo(iv.ID); ok {
		t.Errorf("intervention was assigned despite exhaustion")
	}
	if !bus.has("dispatch.exhausted") {
		t.Errorf("dispatch.exhausted was not published")
	}
}

func TestNoCandidatesExhaustsImmediately(t *testing.T) {
	repo := newFakeRepo()
	iv := newIntervention(domain.PriorityNormal)
	source := newFakeInterventions(iv)
	bus := &recordingBus{}

	svc := New(repo, stubDispatchCfg{offerTTL: time.Second, urgentTTL: time.Second, maxCands: 10}, config.DefaultRankingWeights(), bus, logger.New("test"))
	svc.SetInterventionSource(source)

	if err := svc.StartDispatch(context.Background(), iv.ID); err != nil {
		t.Fatalf("StartDispatch() error = %v", err)
	}
	if !source.isFlagged(iv.ID) {
		t.Errorf("intervention was not flagged for manual dispatch")
	}
	if svc.hasSession(iv.ID) {
		t.Errorf("offer loop started with no candidates")
	}
}

func TestCancelDispatchStopsOfferLoop(t *testing.T) {
	first := plumber(0, 5.0)
	second := plumber(1, 4.0)
	repo := newFakeRepo(first, second)
	iv := newIntervention(domain.PriorityNormal)
	source := newFakeInterventions(iv)
	bus := &recordingBus{}

	svc := New(repo, stubDispatchCfg{offerTTL: time.Minute, urgentTTL: time.Minute, maxCands: 10}, config.DefaultRankingWeights(), bus, logger.New("test"))
	svc.SetInterventionSource(source)

	if err := svc.StartDispatch(context.Background(), iv.ID); err != nil {
		t.Fatalf("StartDispatch() error = %v", err)
	}
	waitFor(t, time.Second, func() bool {
		_, ok := repo.pendingAttempt(iv.ID)
		return ok
	})

	if err := svc.CancelDispatch(context.Background(), iv.ID); err != nil {
		t.Fatalf("CancelDispatch() error = %v", err)
	}

	if n, _ := repo.CountPending(context.Background(), iv.ID); n != 0 {
		t.Errorf("pending attempts = %d after cancel, want 0", n)
	}
	waitFor(t, time.Second, func() bool { return !svc.hasSession(iv.ID) })
	if _, ok := source.assignedTo(iv.ID); ok {
		t.Errorf("intervention was assigned after cancellation")
	}
}

func TestManualAssignBypassesRanking(t *testing.T) {
	chosen := plumber(4, 2.0)
	repo := newFakeRepo(chosen)
	iv := newIntervention(domain.PriorityNormal)
	source := newFakeInterventions(iv)
	bus := &recordingBus{}

	svc := New(repo, stubDispatchCfg{offerTTL: time.Minute, urgentTTL: time.Minute, maxCands: 10}, config.DefaultRankingWeights(), bus, logger.New("test"))
	svc.SetInterventionSource(source)

	attempt, err := svc.ManualAssign(context.Background(), iv.ID, chosen.ID)
	if err != nil {
		t.Fatalf("ManualAssign() error = %v", err)
	}
	if attempt.Status != repository.StatusAccepted {
		t.Errorf("attempt status = %s, want accepted", attempt.Status)
	}
	if got, ok := source.assignedTo(iv.ID); !ok || got != chosen.ID {
		t.Errorf("assigned = %v, want %s", got, chosen.ID)
	}
}

func TestExpireDueAttemptsBackstop(t *testing.T) {
	tech1 := plumber(0, 4.0)
	repo := newFakeRepo(tech1)
	iv := newIntervention(domain.PriorityNormal)
	source := newFakeInterventions(iv)
	bus := &recordingBus{}

	svc := New(repo, stubDispatchCfg{offerTTL: time.Minute, urgentTTL: time.Minute, maxCands: 10}, config.DefaultRankingWeights(), bus, logger.New("test"))
	svc.SetInterventionSource(source)

	// A stale offer without a live session, as after a process restart.
	if _, err := repo.CreateAttempt(context.Background(), iv.ID, tech1.ID, 80, time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("create stale attempt: %v", err)
	}

	n, err := svc.ExpireDueAttempts(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("ExpireDueAttempts() error = %v", err)
	}
	if n != 1 {
		t.Errorf("expired = %d, want 1", n)
	}
	if !source.isFlagged(iv.ID) {
		t.Errorf("orphaned intervention was not flagged for manual dispatch")
	}
	if !bus.has("dispatch.offer.expired") {
		t.Errorf("dispatch.offer.expired was not published")
	}
}
