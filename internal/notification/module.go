package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"fieldservice_backend/internal/events"
	"fieldservice_backend/internal/notification/outbox"
	"fieldservice_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RetryScheduler enqueues a delayed retry for one outbox record. Optional:
// without it the periodic sweep picks the record up instead.
type RetryScheduler interface {
	ScheduleOutboxRetry(ctx context.Context, outboxID uuid.UUID, runAt time.Time) error
}

// Module wires the notification coordinator to the event bus and the retry
// outbox. It exposes no HTTP surface; everything it does is a side effect of
// domain events.
type Module struct {
	recipients  *Repository
	outbox      *outbox.Repository
	coordinator *Coordinator
	retries     RetryScheduler
	log         *logger.Logger
}

// NewModule creates the notification module.
func NewModule(pool *pgxpool.Pool, coordinator *Coordinator, log *logger.Logger) *Module {
	return &Module{
		recipients:  NewRepository(pool),
		outbox:      outbox.New(pool),
		coordinator: coordinator,
		log:         log,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "notification"
}

// SetRetryScheduler wires the delayed-retry producer after construction.
func (m *Module) SetRetryScheduler(r RetryScheduler) {
	m.retries = r
}

// Subscribe registers the module's event handlers. Handlers never return
// errors for delivery failures: the outbox retries those.
func (m *Module) Subscribe(bus events.Bus) {
	bus.Subscribe("interventions.status_changed", events.HandlerFunc(func(ctx context.Context, e events.Event) error {
		if ev, ok := e.(events.InterventionStatusChanged); ok {
			m.notifyClient(ctx, ev.ClientID, statusChangedMessage(ev))
		}
		return nil
	}))

	bus.Subscribe("interventions.completed", events.HandlerFunc(func(ctx context.Context, e events.Event) error {
		if ev, ok := e.(events.InterventionCompleted); ok {
			m.notifyClient(ctx, ev.ClientID, completedMessage(ev))
		}
		return nil
	}))

	bus.Subscribe("interventions.cancelled", events.HandlerFunc(func(ctx context.Context, e events.Event) error {
		if ev, ok := e.(events.InterventionCancelled); ok {
			m.notifyClient(ctx, ev.ClientID, cancelledMessage(ev))
			if ev.TechnicianID != nil {
				m.notifyTechnician(ctx, *ev.TechnicianID, cancelledMessage(ev))
			}
		}
		return nil
	}))

	bus.Subscribe("dispatch.offer.issued", events.HandlerFunc(func(ctx context.Context, e events.Event) error {
		if ev, ok := e.(events.DispatchOfferIssued); ok {
			m.notifyTechnician(ctx, ev.TechnicianID, offerIssuedMessage(ev))
		}
		return nil
	}))

	bus.Subscribe("dispatch.offer.closed", events.HandlerFunc(func(ctx context.Context, e events.Event) error {
		if ev, ok := e.(events.DispatchOfferClosed); ok {
			m.notifyTechnician(ctx, ev.TechnicianID, offerClosedMessage(ev))
		}
		return nil
	}))

	bus.Subscribe("dispatch.exhausted", events.HandlerFunc(func(ctx context.Context, e events.Event) error {
		if ev, ok := e.(events.DispatchExhausted); ok {
			m.notifyClient(ctx, ev.ClientID, exhaustedMessage(ev))
		}
		return nil
	}))

	bus.Subscribe("quotes.modification.proposed", events.HandlerFunc(func(ctx context.Context, e events.Event) error {
		if ev, ok := e.(events.QuoteModificationProposed); ok {
			m.notifyClient(ctx, ev.ClientID, modificationProposedMessage(ev))
		}
		return nil
	}))

	bus.Subscribe("quotes.modification.resolved", events.HandlerFunc(func(ctx context.Context, e events.Event) error {
		if ev, ok := e.(events.QuoteModificationResolved); ok {
			m.notifyTechnician(ctx, ev.TechnicianID, modificationResolvedMessage(ev))
		}
		return nil
	}))

	bus.Subscribe("payments.authorization_failed", events.HandlerFunc(func(ctx context.Context, e events.Event) error {
		if ev, ok := e.(events.PaymentAuthorizationFailed); ok {
			// Re-authorization prompt to the client.
			m.notifyClient(ctx, ev.ClientID, authorizationFailedMessage(ev))
		}
		return nil
	}))

	bus.Subscribe("payments.cancellation_fee_charged", events.HandlerFunc(func(ctx context.Context, e events.Event) error {
		if ev, ok := e.(events.CancellationFeeCharged); ok {
			m.notifyClient(ctx, ev.ClientID, feeChargedMessage(ev))
		}
		return nil
	}))

	bus.Subscribe("notification.outbox.due", events.HandlerFunc(func(ctx context.Context, e events.Event) error {
		if ev, ok := e.(events.NotificationOutboxDue); ok && ev.OutboxID != uuid.Nil {
			return m.ProcessRecord(ctx, ev.OutboxID)
		}
		return nil
	}))
}

func (m *Module) notifyClient(ctx context.Context, clientID uuid.UUID, msg Message) {
	recipient, err := m.recipients.Client(ctx, clientID)
	if err != nil {
		m.log.Warn("resolve client recipient", "clientId", clientID.String(), "error", err.Error())
		return
	}
	m.deliver(ctx, recipient, msg)
}

func (m *Module) notifyTechnician(ctx context.Context, technicianID uuid.UUID, msg Message) {
	recipient, err := m.recipients.Technician(ctx, technicianID)
	if err != nil {
		m.log.Warn("resolve technician recipient", "technicianId", technicianID.String(), "error", err.Error())
		return
	}
	m.deliver(ctx, recipient, msg)
}

// deliver fans out immediately and queues an outbox retry for every channel
// that failed.
func (m *Module) deliver(ctx context.Context, recipient Recipient, msg Message) {
	report := m.coordinator.Notify(ctx, recipient, msg)

	for _, result := range report.Results {
		if result.OK {
			continue
		}

		runAt := time.Now().Add(retryBackoff(1))
		id, err := m.outbox.Insert(ctx, outbox.InsertParams{
			EventKind: msg.EventKind,
			Recipient: recipientRef(recipient),
			Channel:   result.Channel,
			Payload:   msg,
			RunAt:     runAt,
			LastError: result.Error,
		})
		if err != nil {
			m.log.Warn("queue notification retry",
				"channel", result.Channel, "eventKind", msg.EventKind, "error", err.Error())
			continue
		}

		if m.retries != nil {
			if err := m.retries.ScheduleOutboxRetry(ctx, id, runAt); err != nil {
				// The periodic sweep still picks the record up.
				m.log.Warn("schedule outbox retry",
					"outboxId", id.String(), "error", err.Error())
			}
		}
	}
}

// ProcessRecord retries a single outbox record. Called by the scheduler.
func (m *Module) ProcessRecord(ctx context.Context, id uuid.UUID) error {
	rec, err := m.outbox.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if rec.Status == outbox.StatusSucceeded || rec.Status == outbox.StatusFailed {
		return nil
	}

	return m.retry(ctx, rec)
}

// ProcessDue claims and retries every due outbox record. Called by the
// scheduler's periodic sweep.
func (m *Module) ProcessDue(ctx context.Context, limit int) (int, error) {
	records, err := m.outbox.ClaimDue(ctx, limit)
	if err != nil {
		return 0, err
	}

	for _, rec := range records {
		if err := m.retry(ctx, rec); err != nil {
			m.log.Warn("outbox retry", "outboxId", rec.ID.String(), "error", err.Error())
		}
	}

	return len(records), nil
}

func (m *Module) retry(ctx context.Context, rec outbox.Record) error {
	var msg Message
	if err := json.Unmarshal(rec.Payload, &msg); err != nil {
		return m.outbox.Reschedule(ctx, rec.ID, outbox.MaxAttempts, "unreadable payload", time.Now())
	}

	recipient, err := m.resolveRef(ctx, rec.Recipient)
	if err != nil {
		return m.outbox.Reschedule(ctx, rec.ID, outbox.MaxAttempts, err.Error(), time.Now())
	}

	if err := m.coordinator.Send(ctx, rec.Channel, recipient, msg); err != nil {
		m.log.NotificationResult(rec.Channel, msg.EventKind, false, err.Error())
		return m.outbox.Reschedule(ctx, rec.ID, rec.Attempts, err.Error(), time.Now().Add(retryBackoff(rec.Attempts)))
	}

	m.log.NotificationResult(rec.Channel, msg.EventKind, true, "")
	return m.outbox.MarkSucceeded(ctx, rec.ID)
}

func recipientRef(r Recipient) string {
	return r.Role + ":" + r.ID.String()
}

func (m *Module) resolveRef(ctx context.Context, ref string) (Recipient, error) {
	role, rawID, found := strings.Cut(ref, ":")
	if !found {
		return Recipient{}, fmt.Errorf("malformed recipient reference %q", ref)
	}

	id, err := uuid.Parse(rawID)
	if err != nil {
		return Recipient{}, fmt.Errorf("malformed recipient reference %q", ref)
	}

	switch role {
	case RoleClient:
		return m.recipients.Client(ctx, id)
	case RoleTechnician:
		return m.recipients.Technician(ctx, id)
	default:
		return Recipient{}, fmt.Errorf("unknown recipient role %q", role)
	}
}

// retryBackoff doubles per attempt starting at one minute.
func retryBackoff(attempts int) time.Duration {
	d := time.Minute
	for i := 1; i < attempts && d < 30*time.Minute; i++ {
		d *= 2
	}
	return d
}
