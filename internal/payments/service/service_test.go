package service

import (
	"context"
	"testing"
	"time"

	"fieldservice_backend/internal/events"
	"fieldservice_backend/internal/interventions/domain"
	"fieldservice_backend/internal/payments/gateway"
	"fieldservice_backend/internal/payments/repository"
	"fieldservice_backend/platform/apperr"
	"fieldservice_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeRepo struct {
	auths    map[uuid.UUID]repository.Authorization
	invoices []repository.CancellationInvoice
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{auths: make(map[uuid.UUID]repository.Authorization)}
}

func (f *fakeRepo) CreatePending(_ context.Context, interventionID uuid.UUID, amountCents int64, currency string) (repository.Authorization, error) {
	a := repository.Authorization{
		ID:             uuid.New(),
		InterventionID: interventionID,
		AmountCents:    amountCents,
		Currency:       currency,
		Status:         repository.StatusPending,
	}
	f.auths[a.ID] = a
	return a, nil
}

func (f *fakeRepo) MarkAuthorized(_ context.Context, id uuid.UUID, gatewayRef string) (repository.Authorization, error) {
	a, ok := f.auths[id]
	if !ok || a.Status != repository.StatusPending {
		return repository.Authorization{}, apperr.Conflict("authorization is not pending")
	}
	a.Status = repository.StatusAuthorized
	a.GatewayRef = gatewayRef
	f.auths[id] = a
	return a, nil
}

func (f *fakeRepo) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	a, ok := f.auths[id]
	if !ok || a.Status != repository.StatusPending {
		return apperr.Conflict("authorization is not pending")
	}
	a.Status = repository.StatusFailed
	a.FailureReason = reason
	f.auths[id] = a
	return nil
}

func (f *fakeRepo) MarkCaptured(_ context.Context, id uuid.UUID, capturedCents int64) (repository.Authorization, error) {
	a, ok := f.auths[id]
	if !ok || a.Status != repository.StatusAuthorized {
		return repository.Authorization{}, apperr.Conflict("authorization is not capturable")
	}
	a.Status = repository.StatusCaptured
	a.CapturedCents = capturedCents
	f.auths[id] = a
	return a, nil
}

func (f *fakeRepo) MarkCancelled(_ context.Context, id uuid.UUID) (repository.Authorization, error) {
	a, ok := f.auths[id]
	if !ok || a.Status != repository.StatusAuthorized {
		return repository.Authorization{}, apperr.Conflict("authorization is not cancellable")
	}
	a.Status = repository.StatusCancelled
	f.auths[id] = a
	return a, nil
}

func (f *fakeRepo) GetLiveAuthorization(_ context.Context, interventionID uuid.UUID) (repository.Authorization, error) {
	for _, a := range f.auths {
		if a.InterventionID == interventionID && a.Status == repository.StatusAuthorized {
			return a, nil
		}
	}
	return repository.Authorization{}, apperr.NotFound("no authorized hold for intervention")
}

func (f *fakeRepo) GetLatest(_ context.Context, interventionID uuid.UUID) (repository.Authorization, error) {
	var latest repository.Authorization
	found := false
	for _, a := range f.auths {
		if a.InterventionID == interventionID {
			latest = a
			found = true
		}
	}
	if !found {
		return repository.Authorization{}, apperr.NotFound("no authorization for intervention")
	}
	return latest, nil
}

func (f *fakeRepo) ListByIntervention(_ context.Context, interventionID uuid.UUID) ([]repository.Authorization, error) {
	var items []repository.Authorization
	for _, a := range f.auths {
		if a.InterventionID == interventionID {
			items = append(items, a)
		}
	}
	return items, nil
}

func (f *fakeRepo) CreateCancellationInvoice(_ context.Context, inv repository.CancellationInvoice) (repository.CancellationInvoice, error) {
	inv.ID = uuid.New()
	f.invoices = append(f.invoices, inv)
	return inv, nil
}

type fakeGateway struct {
	authorizeErr   error
	captureErr     error
	cancelErr      error
	authorizeCalls int
	captureCalls   int
	cancelCalls    int
	capturedCents  []int64
}

func (f *fakeGateway) Authorize(_ context.Context, _ gateway.AuthorizeRequest) (gateway.AuthorizeResult, error) {
	f.authorizeCalls++
	if f.authorizeErr != nil {
		return gateway.AuthorizeResult{}, f.authorizeErr
	}
	return gateway.AuthorizeResult{Reference: "hold-" + uuid.NewString()[:8]}, nil
}

func (f *fakeGateway) Capture(_ context.Context, _ string, amountCents int64) error {
	f.captureCalls++
	if f.captureErr != nil {
		return f.captureErr
	}
	f.capturedCents = append(f.capturedCents, amountCents)
	return nil
}

func (f *fakeGateway) Cancel(_ context.Context, _ string) error {
	f.cancelCalls++
	return f.cancelErr
}

type fakeReader struct {
	views map[uuid.UUID]InterventionView
}

func (f *fakeReader) PaymentView(_ context.Context, id uuid.UUID) (InterventionView, error) {
	v, ok := f.views[id]
	if !ok {
		return InterventionView{}, apperr.NotFound("intervention not found")
	}
	return v, nil
}

type stubPaymentCfg struct{}

func (stubPaymentCfg) GetPaymentGatewayURL() string           { return "http://gateway.test" }
func (stubPaymentCfg) GetPaymentGatewayKey() string           { return "key" }
func (stubPaymentCfg) GetPaymentGatewayTimeout() time.Duration { return 5 * time.Second }
func (stubPaymentCfg) GetPaymentCurrency() string             { return "EUR" }
func (stubPaymentCfg) GetDisplacementFeePercent() int         { return 25 }

type recordingBus struct {
	published []events.Event
}

func (b *recordingBus) Publish(_ context.Context, e events.Event) { b.published = append(b.published, e) }

func (b *recordingBus) PublishSync(ctx context.Context, e events.Event) error {
	b.Publish(ctx, e)
	return nil
}

func (b *recordingBus) Subscribe(string, events.Handler) {}

func (b *recordingBus) names() []string {
	var out []string
	for _, e := range b.published {
		out = append(out, e.EventName())
	}
	return out
}

func newFixture(status domain.Status, estimateCents int64) (*Service, *fakeRepo, *fakeGateway, *recordingBus, uuid.UUID) {
	repo := newFakeRepo()
	gw := &fakeGateway{}
	bus := &recordingBus{}
	interventionID := uuid.New()

	svc := New(repo, gw, stubPaymentCfg{}, bus, logger.New("test"))
	svc.SetInterventionReader(&fakeReader{views: map[uuid.UUID]InterventionView{
		interventionID: {
			ID:                  interventionID,
			ClientID:            uuid.New(),
			Status:              status,
			EstimatedPriceCents: estimateCents,
		},
	}})

	return svc, repo, gw, bus, interventionID
}

func TestAuthorizeDefaultsToEstimate(t *testing.T) {
	svc, _, gw, bus, id := newFixture(domain.StatusNew, 8000)

	auth, err := svc.Authorize(context.Background(), id, 0)
	if err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}
	if auth.AmountCents != 8000 {
		t.Errorf("AmountCents = %d, want 8000", auth.AmountCents)
	}
	if auth.Status != repository.StatusAuthorized {
		t.Errorf("Status = %s, want authorized", auth.Status)
	}
	if gw.authorizeCalls != 1 {
		t.Errorf("authorize calls = %d, want 1", gw.authorizeCalls)
	}
	if got := bus.names(); len(got) != 1 || got[0] != "payments.authorized" {
		t.Errorf("published = %v, want [payments.authorized]", got)
	}
}

func TestAuthorizeFailureSurfacesReason(t *testing.T) {
	svc, repo, gw, bus, id := newFixture(domain.StatusNew, 8000)
	gw.authorizeErr = &gateway.Error{Reason: gateway.ReasonRequiresReauthentication, Message: "card expired"}

	_, err := svc.Authorize(context.Background(), id, 5000)
	if !apperr.Is(err, apperr.KindUnprocessable) {
		t.Fatalf("Authorize() error = %v, want unprocessable", err)
	}
	if got := apperr.Reason(err); got != string(gateway.ReasonRequiresReauthentication) {
		t.Errorf("reason = %q, want requires_reauthentication", got)
	}

	latest, err := repo.GetLatest(context.Background(), id)
	if err != nil {
		t.Fatalf("GetLatest() error = %v", err)
	}
	if latest.Status != repository.StatusFailed {
		t.Errorf("Status = %s, want failed", latest.Status)
	}
	if got := bus.names(); len(got) != 1 || got[0] != "payments.authorization_failed" {
		t.Errorf("published = %v, want [payments.authorization_failed]", got)
	}
}

func TestAuthorizeRejectsSecondLiveHold(t *testing.T) {
	svc, _, _, _, id := newFixture(domain.StatusNew, 8000)

	if _, err := svc.Authorize(context.Background(), id, 5000); err != nil {
		t.Fatalf("first Authorize() error = %v", err)
	}
	_, err := svc.Authorize(context.Background(), id, 5000)
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("second Authorize() error = %v, want conflict", err)
	}
}

func TestCaptureFailureLeavesHoldRetryable(t *testing.T) {
	svc, repo, gw, _, id := newFixture(domain.StatusInProgress, 8000)

	if _, err := svc.Authorize(context.Background(), id, 8000); err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}

	gw.captureErr = &gateway.Error{Reason: gateway.ReasonDeclined}
	err := svc.Capture(context.Background(), id, 9500)
	if !apperr.Is(err, apperr.KindUnprocessable) {
		t.Fatalf("Capture() error = %v, want unprocessable", err)
	}
	if got := apperr.Reason(err); got != string(gateway.ReasonDeclined) {
		t.Errorf("reason = %q, want declined", got)
	}

	live, err := repo.GetLiveAuthorization(context.Background(), id)
	if err != nil {
		t.Fatalf("hold should still be authorized after failed capture: %v", err)
	}

	gw.captureErr = nil
	if err := svc.Capture(context.Background(), id, 9500); err != nil {
		t.Fatalf("retry Capture() error = %v", err)
	}
	captured, ok := repo.auths[live.ID]
	if !ok || captured.Status != repository.StatusCaptured || captured.CapturedCents != 9500 {
		t.Errorf("captured = %+v, want status captured with 9500 cents", captured)
	}

	has, err := svc.HasCaptured(context.Background(), id)
	if err != nil || !has {
		t.Errorf("HasCaptured() = %v, %v, want true, nil", has, err)
	}
}

func TestReleaseHoldWithoutAuthorizationIsNoop(t *testing.T) {
	svc, _, gw, bus, id := newFixture(domain.StatusNew, 8000)

	if err := svc.ReleaseHold(context.Background(), id); err != nil {
		t.Fatalf("ReleaseHold() error = %v", err)
	}
	if gw.authorizeCalls+gw.captureCalls+gw.cancelCalls != 0 {
		t.Errorf("gateway was called for an intervention without a hold")
	}
	if len(bus.published) != 0 {
		t.Errorf("published = %v, want none", bus.names())
	}
}

func TestReleaseHoldVoidsAuthorization(t *testing.T) {
	svc, repo, gw, bus, id := newFixture(domain.StatusAssigned, 8000)

	if _, err := svc.Authorize(context.Background(), id, 8000); err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}

	if err := svc.ReleaseHold(context.Background(), id); err != nil {
		t.Fatalf("ReleaseHold() error = %v", err)
	}
	if gw.cancelCalls != 1 {
		t.Errorf("cancel calls = %d, want 1", gw.cancelCalls)
	}
	if _, err := repo.GetLiveAuthorization(context.Background(), id); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("live authorization still present after release")
	}
	if got := bus.names(); len(got) != 2 || got[1] != "payments.hold_released" {
		t.Errorf("published = %v, want authorized then hold_released", got)
	}
}

func TestChargeCancellationFeeCapturesDisplacementShare(t *testing.T) {
	svc, repo, gw, bus, id := newFixture(domain.StatusOnRoute, 8000)

	if _, err := svc.Authorize(context.Background(), id, 8000); err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}

	fee, err := svc.ChargeCancellationFee(context.Background(), id, "client cancelled after departure")
	if err != nil {
		t.Fatalf("ChargeCancellationFee() error = %v", err)
	}
	if fee != 2000 {
		t.Errorf("fee = %d, want 2000 (25%% of 8000)", fee)
	}
	if len(gw.capturedCents) != 1 || gw.capturedCents[0] != 2000 {
		t.Errorf("gateway captured = %v, want [2000]", gw.capturedCents)
	}
	if len(repo.invoices) != 1 || repo.invoices[0].AmountCents != 2000 {
		t.Fatalf("invoices = %+v, want one invoice of 2000", repo.invoices)
	}
	if got := bus.names(); len(got) != 2 || got[1] != "payments.cancellation_fee_charged" {
		t.Errorf("published = %v, want authorized then cancellation_fee_charged", got)
	}
}

func TestChargeCancellationFeeWithoutHoldChargesNothing(t *testing.T) {
	svc, repo, gw, _, id := newFixture(domain.StatusOnRoute, 8000)

	fee, err := svc.ChargeCancellationFee(context.Background(), id, "client cancelled")
	if err != nil {
		t.Fatalf("ChargeCancellationFee() error = %v", err)
	}
	if fee != 0 {
		t.Errorf("fee = %d, want 0", fee)
	}
	if gw.captureCalls != 0 {
		t.Errorf("capture calls = %d, want 0", gw.captureCalls)
	}
	if len(repo.invoices) != 0 {
		t.Errorf("invoices = %+v, want none", repo.invoices)
	}
}
