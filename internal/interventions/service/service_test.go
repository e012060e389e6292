package service

import (
	"context"
	"testing"

	"fieldservice_backend/internal/events"
	"fieldservice_backend/internal/interventions/domain"
	"fieldservice_backend/internal/interventions/repository"
	"fieldservice_backend/platform/apperr"
	"fieldservice_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeRepo struct {
	interventions map[uuid.UUID]repository.Intervention
	history       []repository.HistoryEntry
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{interventions: make(map[uuid.UUID]repository.Intervention)}
}

func (f *fakeRepo) Create(_ context.Context, iv repository.Intervention) (repository.Intervention, error) {
	iv.ID = uuid.New()
	iv.Status = domain.StatusNew
	iv.Active = true
	iv.Version = 1
	f.interventions[iv.ID] = iv
	return iv, nil
}

func (f *fakeRepo) GetByID(_ context.Context, id uuid.UUID) (repository.Intervention, error) {
	iv, ok := f.interventions[id]
	if !ok {
		return repository.Intervention{}, apperr.NotFound("intervention not found")
	}
	return iv, nil
}

func (f *fakeRepo) GetByTrackingCode(_ context.Context, code string) (repository.Intervention, error) {
	for _, iv := range f.interventions {
		if iv.TrackingCode == code {
			return iv, nil
		}
	}
	return repository.Intervention{}, apperr.NotFound("intervention not found")
}

func (f *fakeRepo) List(_ context.Context, _ repository.ListParams) ([]repository.Intervention, error) {
	return nil, nil
}

func (f *fakeRepo) TransitionStatus(_ context.Context, params repository.TransitionParams) (repository.Intervention, error) {
	iv, ok := f.interventions[params.ID]
	if !ok {
		return repository.Intervention{}, apperr.NotFound("intervention not found")
	}
	if iv.Version != params.ExpectedVersion {
		return repository.Intervention{}, apperr.Conflict("intervention was modified concurrently")
	}
	iv.Status = params.NewStatus
	iv.TechnicianID = params.TechnicianID
	if params.FinalPriceCents != nil {
		iv.FinalPriceCents = params.FinalPriceCents
	}
	if params.CancellationReason != "" {
		iv.CancellationReason = params.CancellationReason
	}
	iv.Version++
	f.interventions[params.ID] = iv
	return iv, nil
}

func (f *fakeRepo) UpdateEstimatedPrice(_ context.Context, id uuid.UUID, amountCents int64) error {
	iv := f.interventions[id]
	iv.EstimatedPriceCents = amountCents
	f.interventions[id] = iv
	return nil
}

func (f *fakeRepo) SetManualDispatchRequired(_ context.Context, id uuid.UUID, required bool) error {
	iv := f.interventions[id]
	iv.ManualDispatchRequired = required
	f.interventions[id] = iv
	return nil
}

func (f *fakeRepo) Deactivate(_ context.Context, id uuid.UUID) error {
	iv := f.interventions[id]
	iv.Active = false
	f.interventions[id] = iv
	return nil
}

func (f *fakeRepo) AppendHistory(_ context.Context, entry repository.HistoryEntry) error {
	f.history = append(f.history, entry)
	return nil
}

func (f *fakeRepo) ListHistory(_ context.Context, interventionID uuid.UUID) ([]repository.HistoryEntry, error) {
	var entries []repository.HistoryEntry
	for _, e := range f.history {
		if e.InterventionID == interventionID {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

type fakeQuotes struct {
	blocked    bool
	totalCents int64
	seeded     []uuid.UUID
}

func (f *fakeQuotes) SeedBaseQuote(_ context.Context, interventionID uuid.UUID, _ string, _ domain.Priority) (int64, error) {
	f.seeded = append(f.seeded, interventionID)
	return f.totalCents, nil
}

func (f *fakeQuotes) IsFinalizationBlocked(_ context.Context, _ uuid.UUID) (bool, error) {
	return f.blocked, nil
}

func (f *fakeQuotes) CurrentTotal(_ context.Context, _ uuid.UUID) (int64, error) {
	return f.totalCents, nil
}

type fakePayments struct {
	captured        bool
	captureErr      error
	captureCalls    int
	releaseCalls    int
	feeCalls        int
	feeChargedCents int64
}

func (f *fakePayments) HasCaptured(_ context.Context, _ uuid.UUID) (bool, error) {
	return f.captured, nil
}

func (f *fakePayments) Capture(_ context.Context, _ uuid.UUID, _ int64) error {
	f.captureCalls++
	if f.captureErr != nil {
		return f.captureErr
	}
	f.captured = true
	return nil
}

func (f *fakePayments) ReleaseHold(_ context.Context, _ uuid.UUID) error {
	f.releaseCalls++
	return nil
}

func (f *fakePayments) ChargeCancellationFee(_ context.Context, _ uuid.UUID, _ string) (int64, error) {
	f.feeCalls++
	return f.feeChargedCents, nil
}

type fakeDispatch struct {
	startCalls   int
	cancelCalls  int
	acceptedTech *uuid.UUID
}

func (f *fakeDispatch) StartDispatch(_ context.Context, _ uuid.UUID) error {
	f.startCalls++
	return nil
}

func (f *fakeDispatch) CancelDispatch(_ context.Context, _ uuid.UUID) error {
	f.cancelCalls++
	return nil
}

func (f *fakeDispatch) AcceptedTechnician(_ context.Context, _ uuid.UUID) (uuid.UUID, error) {
	if f.acceptedTech == nil {
		return uuid.Nil, apperr.NotFound("no accepted attempt")
	}
	return *f.acceptedTech, nil
}

type recordingBus struct {
	published []events.Event
}

func (b *recordingBus) Publish(_ context.Context, event events.Event) {
	b.published = append(b.published, event)
}

func (b *recordingBus) PublishSync(_ context.Context, event events.Event) error {
	b.published = append(b.published, event)
	return nil
}

func (b *recordingBus) Subscribe(_ string, _ events.Handler) {}

func (b *recordingBus) names() []string {
	var names []string
	for _, e := range b.published {
		names = append(names, e.EventName())
	}
	return names
}

type fixture struct {
	svc      *Service
	repo     *fakeRepo
	quotes   *fakeQuotes
	payments *fakePayments
	dispatch *fakeDispatch
	bus      *recordingBus
}

func newFixture() *fixture {
	repo := newFakeRepo()
	quotes := &fakeQuotes{totalCents: 8000}
	payments := &fakePayments{}
	dispatch := &fakeDispatch{}
	bus := &recordingBus{}

	svc := New(repo, quotes, payments, bus, logger.New("test"))
	svc.SetDispatch(dispatch)

	return &fixture{svc: svc, repo: repo, quotes: quotes, payments: payments, dispatch: dispatch, bus: bus}
}

func (fx *fixture) createAt(t *testing.T, status domain.Status) repository.Intervention {
	t.Helper()

	iv, err := fx.svc.Create(context.Background(), CreateParams{
		ClientID: uuid.New(),
		Category: "locksmith",
		Priority: domain.PriorityNormal,
	})
	if err != nil {
		t.Fatalf("create intervention: %v", err)
	}

	if status == domain.StatusNew {
		return iv
	}

	techID := uuid.New()
	path := []domain.Status{domain.StatusAssigned, domain.StatusOnRoute, domain.StatusInProgress}
	for _, step := range path {
		stored := fx.repo.interventions[iv.ID]
		stored.Status = step
		stored.TechnicianID = &techID
		stored.Version++
		fx.repo.interventions[iv.ID] = stored
		if step == status {
			break
		}
	}

	return fx.repo.interventions[iv.ID]
}

func TestCreateSeedsQuoteAndStartsDispatch(t *testing.T) {
	fx := newFixture()

	iv, err := fx.svc.Create(context.Background(), CreateParams{
		ClientID: uuid.New(),
		Category: "plumbing",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if iv.Status != domain.StatusNew {
		t.Errorf("status = %s, want new", iv.Status)
	}
	if iv.Priority != domain.PriorityNormal {
		t.Errorf("priority = %s, want normal default", iv.Priority)
	}
	if iv.TrackingCode == "" {
		t.Error("tracking code not generated")
	}
	if iv.EstimatedPriceCents != 8000 {
		t.Errorf("estimated price = %d, want seeded 8000", iv.EstimatedPriceCents)
	}
	if len(fx.quotes.seeded) != 1 {
		t.Errorf("base quote seeded %d times, want 1", len(fx.quotes.seeded))
	}
	if fx.dispatch.startCalls != 1 {
		t.Errorf("dispatch started %d times, want 1", fx.dispatch.startCalls)
	}
}

func TestRequestTransitionRejectsIllegalEdge(t *testing.T) {
	fx := newFixture()
	iv := fx.createAt(t, domain.StatusNew)

	_, err := fx.svc.RequestTransition(context.Background(), iv.ID, domain.StatusInProgress, SystemActor, "")
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("err = %v, want validation error", err)
	}
	if apperr.Reason(err) != ReasonInvalidTransition {
		t.Errorf("reason = %q, want %q", apperr.Reason(err), ReasonInvalidTransition)
	}

	if got := fx.repo.interventions[iv.ID].Status; got != domain.StatusNew {
		t.Errorf("status mutated to %s on rejected transition", got)
	}
}

func TestRequestTransitionToAssignedRequiresAcceptedAttempt(t *testing.T) {
	fx := newFixture()
	iv := fx.createAt(t, domain.StatusNew)

	_, err := fx.svc.RequestTransition(context.Background(), iv.ID, domain.StatusAssigned, SystemActor, "")
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
	if apperr.Reason(err) != ReasonNoAcceptedAttempt {
		t.Errorf("reason = %q, want %q", apperr.Reason(err), ReasonNoAcceptedAttempt)
	}

	techID := uuid.New()
	fx.dispatch.acceptedTech = &techID

	updated, err := fx.svc.RequestTransition(context.Background(), iv.ID, domain.StatusAssigned, SystemActor, "")
	if err != nil {
		t.Fatalf("transition with accepted attempt: %v", err)
	}
	if updated.TechnicianID == nil || *updated.TechnicianID != techID {
		t.Error("technician not taken from the accepted attempt")
	}
}

func TestFinalizeBlockedByPendingModification(t *testing.T) {
	fx := newFixture()
	iv := fx.createAt(t, domain.StatusInProgress)
	fx.quotes.blocked = true

	_, err := fx.svc.Finalize(context.Background(), iv.ID, SystemActor)
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
	if apperr.Reason(err) != ReasonModificationPending {
		t.Errorf("reason = %q, want %q", apperr.Reason(err), ReasonModificationPending)
	}
	if fx.payments.captureCalls != 0 {
		t.Error("capture attempted while ledger blocked finalization")
	}
}

func TestFinalizeCaptureFailureIsRetryable(t *testing.T) {
	fx := newFixture()
	iv := fx.createAt(t, domain.StatusInProgress)
	fx.payments.captureErr = apperr.Unprocessable("card declined").WithReason("declined")

	_, err := fx.svc.Finalize(context.Background(), iv.ID, SystemActor)
	if apperr.Reason(err) != "declined" {
		t.Fatalf("reason = %q, want declined passthrough", apperr.Reason(err))
	}
	if got := fx.repo.interventions[iv.ID].Status; got != domain.StatusInProgress {
		t.Errorf("status = %s after failed capture, want in_progress", got)
	}

	// Retrying the same finalize succeeds once the gateway accepts.
	fx.payments.captureErr = nil
	updated, err := fx.svc.Finalize(context.Background(), iv.ID, SystemActor)
	if err != nil {
		t.Fatalf("retry finalize: %v", err)
	}
	if updated.Status != domain.StatusCompleted {
		t.Errorf("status = %s, want completed", updated.Status)
	}
	if updated.FinalPriceCents == nil || *updated.FinalPriceCents != 8000 {
		t.Error("final price not set to the captured total")
	}
}

func TestCancelNewSkipsFeeFlow(t *testing.T) {
	fx := newFixture()
	iv := fx.createAt(t, domain.StatusNew)

	updated, err := fx.svc.Cancel(context.Background(), iv.ID, "client changed mind", Actor{Type: domain.ActorClient})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if updated.Status != domain.StatusCancelled {
		t.Errorf("status = %s, want cancelled", updated.Status)
	}
	if fx.dispatch.cancelCalls != 1 {
		t.Error("outstanding dispatch not cancelled")
	}
	if fx.payments.feeCalls != 0 {
		t.Error("displacement fee charged for a new intervention")
	}
	if fx.payments.releaseCalls != 1 {
		t.Errorf("hold released %d times, want 1", fx.payments.releaseCalls)
	}
}

func TestCancelOnRouteChargesDisplacementFee(t *testing.T) {
	fx := newFixture()
	iv := fx.createAt(t, domain.StatusOnRoute)
	fx.payments.feeChargedCents = 2000

	updated, err := fx.svc.Cancel(context.Background(), iv.ID, "not home", Actor{Type: domain.ActorClient})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if fx.payments.feeCalls != 1 {
		t.Fatalf("fee charged %d times, want 1", fx.payments.feeCalls)
	}
	if fx.payments.releaseCalls != 0 {
		t.Error("hold released instead of charging the displacement fee")
	}
	if updated.TechnicianID != nil {
		t.Error("technician reference not cleared on cancellation")
	}

	var cancelled *events.InterventionCancelled
	for _, e := range fx.bus.published {
		if ev, ok := e.(events.InterventionCancelled); ok {
			cancelled = &ev
		}
	}
	if cancelled == nil {
		t.Fatalf("no cancellation event published, got %v", fx.bus.names())
	}
	if cancelled.FeeChargedCents != 2000 {
		t.Errorf("fee in event = %d, want 2000", cancelled.FeeChargedCents)
	}
}

func TestCancelInProgressIsRejected(t *testing.T) {
	fx := newFixture()
	iv := fx.createAt(t, domain.StatusInProgress)

	_, err := fx.svc.Cancel(context.Background(), iv.ID, "", Actor{Type: domain.ActorClient})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
	if fx.payments.feeCalls != 0 || fx.payments.releaseCalls != 0 {
		t.Error("payment side effects ran for a rejected cancellation")
	}
}

func TestTransitionRecordsHistory(t *testing.T) {
	fx := newFixture()
	iv := fx.createAt(t, domain.StatusAssigned)

	if _, err := fx.svc.RequestTransition(context.Background(), iv.ID, domain.StatusOnRoute, Actor{Type: domain.ActorTechnician}, "leaving now"); err != nil {
		t.Fatalf("transition: %v", err)
	}

	entries, err := fx.svc.History(context.Background(), iv.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("no history recorded")
	}
	last := entries[len(entries)-1]
	if last.OldStatus != domain.StatusAssigned || last.NewStatus != domain.StatusOnRoute {
		t.Errorf("history entry %s -> %s, want assigned -> on_route", last.OldStatus, last.NewStatus)
	}
	if last.ActorType != domain.ActorTechnician {
		t.Errorf("actor = %s, want technician", last.ActorType)
	}
	if last.Note != "leaving now" {
		t.Errorf("note = %q", last.Note)
	}
}
