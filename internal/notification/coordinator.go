package notification

import (
	"context"
	"sync"

	"fieldservice_backend/platform/logger"

	"golang.org/x/sync/errgroup"
)

// Coordinator fans one message out over every channel that reaches the
// recipient. All sends run concurrently; each result is collected
// independently and a partial or total failure never surfaces as an error.
type Coordinator struct {
	channels []Channel
	log      *logger.Logger
}

// NewCoordinator creates the fan-out coordinator.
func NewCoordinator(log *logger.Logger, channels ...Channel) *Coordinator {
	return &Coordinator{channels: channels, log: log}
}

// Notify delivers the message on every reachable channel and reports which
// succeeded. Never returns an error: delivery is best-effort by contract.
func (c *Coordinator) Notify(ctx context.Context, recipient Recipient, msg Message) DeliveryReport {
	report := DeliveryReport{EventKind: msg.EventKind, Recipient: recipient.ID}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	for _, ch := range c.channels {
		if !ch.Reaches(recipient) {
			continue
		}

		g.Go(func() error {
			result := ChannelResult{Channel: ch.Name(), OK: true}
			if err := ch.Send(gctx, recipient, msg); err != nil {
				result.OK = false
				result.Error = err.Error()
			}

			c.log.NotificationResult(result.Channel, msg.EventKind, result.OK, result.Error)

			mu.Lock()
			report.Results = append(report.Results, result)
			mu.Unlock()

			// Failures are carried in the report, not as errors, so one bad
			// channel never cancels the others.
			return nil
		})
	}

	_ = g.Wait()

	return report
}

// Send delivers on a single named channel. Used by the outbox retry path.
func (c *Coordinator) Send(ctx context.Context, channelName string, recipient Recipient, msg Message) error {
	for _, ch := range c.channels {
		if ch.Name() == channelName {
			return ch.Send(ctx, recipient, msg)
		}
	}
	return nil
}
