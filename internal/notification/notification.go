// Package notification fans business events out to clients and technicians
// over every channel they are reachable on. Delivery is best-effort: channel
// failures are reported and retried through the outbox, never raised to the
// caller that triggered the notification.
package notification

import (
	"context"

	"github.com/google/uuid"
)

// Recipient is a resolved notification target with its known addresses.
// Empty addresses mean the recipient is not reachable on that channel.
type Recipient struct {
	ID        uuid.UUID
	Role      string
	Name      string
	Email     string
	Phone     string
	PushToken string
}

// Message is one notification to deliver, channel-agnostic.
type Message struct {
	EventKind string            `json:"eventKind"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Channel delivers a message over one medium.
type Channel interface {
	Name() string
	// Reaches reports whether the recipient has an address for this channel.
	Reaches(r Recipient) bool
	Send(ctx context.Context, r Recipient, msg Message) error
}

// ChannelResult is the outcome of one channel's send.
type ChannelResult struct {
	Channel string
	OK      bool
	Error   string
}

// DeliveryReport collects the per-channel outcomes of one notification.
type DeliveryReport struct {
	EventKind string
	Recipient uuid.UUID
	Results   []ChannelResult
}

// Delivered reports whether at least one channel succeeded.
func (r DeliveryReport) Delivered() bool {
	for _, res := range r.Results {
		if res.OK {
			return true
		}
	}
	return false
}

// Succeeded lists the channels that delivered.
func (r DeliveryReport) Succeeded() []string {
	var out []string
	for _, res := range r.Results {
		if res.OK {
			out = append(out, res.Channel)
		}
	}
	return out
}
