// Package email delivers notifications over SMTP using go-mail.
package email

import (
	"context"
	"fmt"
	"net"
	"time"

	"fieldservice_backend/internal/notification"
	"fieldservice_backend/platform/config"

	gomail "github.com/wneessen/go-mail"
)

// Channel implements notification.Channel over a direct SMTP connection.
type Channel struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
	enabled   bool
}

// NewChannel creates the SMTP channel from configuration.
func NewChannel(cfg config.EmailConfig) *Channel {
	return &Channel{
		host:      cfg.GetSMTPHost(),
		port:      cfg.GetSMTPPort(),
		username:  cfg.GetSMTPUsername(),
		password:  cfg.GetSMTPPassword(),
		fromName:  cfg.GetEmailFromName(),
		fromEmail: cfg.GetEmailFromAddress(),
		enabled:   cfg.GetEmailEnabled() && cfg.GetSMTPHost() != "",
	}
}

// Name returns the channel identifier.
func (c *Channel) Name() string { return "email" }

// Reaches reports whether the recipient has an email address on file.
func (c *Channel) Reaches(r notification.Recipient) bool {
	return c.enabled && r.Email != ""
}

// Send delivers one message.
func (c *Channel) Send(ctx context.Context, r notification.Recipient, msg notification.Message) error {
	if !c.enabled {
		return fmt.Errorf("email channel disabled")
	}

	m := gomail.NewMsg()
	if err := m.FromFormat(c.fromName, c.fromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := m.To(r.Email); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	m.Subject(msg.Title)
	m.SetBodyString(gomail.TypeTextHTML, renderBody(r, msg))

	client, err := gomail.NewClient(c.host,
		gomail.WithPort(c.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(c.username),
		gomail.WithPassword(c.password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	return nil
}

// Compile-time check that Channel implements notification.Channel
var _ notification.Channel = (*Channel)(nil)
