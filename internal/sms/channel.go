// Package sms delivers notifications through an HTTP SMS gateway.
package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"fieldservice_backend/internal/notification"
	"fieldservice_backend/platform/config"
	"fieldservice_backend/platform/logger"
	"fieldservice_backend/platform/phone"
)

// Channel implements notification.Channel over the SMS gateway's JSON API.
// A nil channel (no gateway configured) reaches nobody.
type Channel struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *logger.Logger
}

type sendRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// NewChannel creates the SMS channel. Returns nil when no gateway URL is
// configured.
func NewChannel(cfg config.SMSConfig, log *logger.Logger) *Channel {
	if cfg.GetSMSGatewayURL() == "" {
		return nil
	}

	return &Channel{
		baseURL: strings.TrimRight(cfg.GetSMSGatewayURL(), "/"),
		apiKey:  cfg.GetSMSGatewayKey(),
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

// Name returns the channel identifier.
func (c *Channel) Name() string { return "sms" }

// Reaches reports whether the recipient has a phone number on file.
func (c *Channel) Reaches(r notification.Recipient) bool {
	return c != nil && r.Phone != ""
}

// Send delivers one message. The body goes out as a single text; the title
// is prepended since SMS has no subject line.
func (c *Channel) Send(ctx context.Context, r notification.Recipient, msg notification.Message) error {
	if c == nil {
		return fmt.Errorf("sms gateway not configured")
	}

	normalized := phone.NormalizeE164(r.Phone)

	payload := sendRequest{
		Phone:   normalized,
		Message: msg.Title + "\n" + msg.Body,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal sms payload: %w", err)
	}

	url := fmt.Sprintf("%s/send/message", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sms request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("sms gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	return nil
}

// Compile-time check that Channel implements notification.Channel
var _ notification.Channel = (*Channel)(nil)
