// Package push delivers notifications to registered mobile devices through
// an HTTP push gateway.
package push

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
)

// Channel implements notification.Channel over the push gateway's JSON API.
// A nil channel (no gateway configured) reaches nobody.
type Channel struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *logger.Logger
}

type sendRequest struct {
	Token string            `json:"token"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// NewChannel creates the push channel. Returns nil when no gateway URL is
// configured.
func NewChannel(cfg config.PushConfig, log *logger.Logger) *Channel {
	if cfg.GetPushGatewayURL() == "" {
		return nil
	}

	return &Channel{
		baseURL: strings.TrimRight(cfg.GetPushGatewayURL(), "/"),
		apiKey:  cfg.GetPushGatewayKey(),
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

// Name returns the channel identifier.
func (c *Channel) Name() string { return "push" }

// Reaches reports whether the recipient has a registered device token.
func (c *Channel) Reaches(r notification.Recipient) bool {
	return c != nil && r.PushToken != ""
}

// Send delivers one message.
func (c *Channel) Send(ctx context.Context, r notification.Recipient, msg notification.Message) error {
	if c == nil {
		return fmt.Errorf("push gateway not configured")
	}

	payload := sendRequest{
		Token: r.PushToken,
		Title: msg.Title,
		Body:  msg.Body,
		Data:  msg.Metadata,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal push payload: %w", err)
	}

	url := fmt.Sprintf("%s/v1/push", c.baseURL)
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
		return fmt.Errorf("push request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("push gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	return nil
}

// Compile-time check that Channel implements notification.Channel
var _ notification.Channel = (*Channel)(nil)
