package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"fieldservice_backend/platform/config"
	"fieldservice_backend/platform/logger"
)

// HTTPGateway talks to the hosted payment processor over JSON/HTTP.
type HTTPGateway struct {
	baseURL  string
	apiKey   string
	currency string
	http     *http.Client
	log      *logger.Logger
}

// NewHTTPGateway creates the processor client. Returns nil when no gateway
// URL is configured; callers treat a nil gateway as unavailable.
func NewHTTPGateway(cfg config.PaymentConfig, log *logger.Logger) *HTTPGateway {
	if cfg.GetPaymentGatewayURL() == "" {
		return nil
	}

	return &HTTPGateway{
		baseURL:  strings.TrimRight(cfg.GetPaymentGatewayURL(), "/"),
		apiKey:   cfg.GetPaymentGatewayKey(),
		currency: cfg.GetPaymentCurrency(),
		http:     &http.Client{Timeout: cfg.GetPaymentGatewayTimeout()},
		log:      log,
	}
}

type authorizePayload struct {
	InterventionID string `json:"interventionId"`
	ClientID       string `json:"clientId"`
	AmountCents    int64  `json:"amountCents"`
	Currency       string `json:"currency"`
}

type capturePayload struct {
	AmountCents int64 `json:"amountCents"`
}

type gatewayResponse struct {
	Status    string `json:"status"`
	Reference string `json:"reference"`
	Reason    string `json:"reason"`
	Message   string `json:"message"`
}

// Authorize places a hold for the given amount.
func (g *HTTPGateway) Authorize(ctx context.Context, req AuthorizeRequest) (AuthorizeResult, error) {
	if g == nil {
		return AuthorizeResult{}, &Error{Reason: ReasonUnavailable, Message: "payment gateway not configured"}
	}

	currency := req.Currency
	if currency == "" {
		currency = g.currency
	}

	resp, err := g.post(ctx, "/v1/authorizations", authorizePayload{
		InterventionID: req.InterventionID,
		ClientID:       req.ClientID,
		AmountCents:    req.AmountCents,
		Currency:       currency,
	})
	if err != nil {
		return AuthorizeResult{}, err
	}
	if resp.Reference == "" {
		return AuthorizeResult{}, &Error{Reason: ReasonUnavailable, Message: "gateway returned no hold reference"}
	}

	return AuthorizeResult{Reference: resp.Reference}, nil
}

// Capture converts a hold (fully or partially) into a charge.
func (g *HTTPGateway) Capture(ctx context.Context, reference string, amountCents int64) error {
	if g == nil {
		return &Error{Reason: ReasonUnavailable, Message: "payment gateway not configured"}
	}

	_, err := g.post(ctx, fmt.Sprintf("/v1/authorizations/%s/capture", reference), capturePayload{AmountCents: amountCents})
	return err
}

// Cancel releases a hold without charging.
func (g *HTTPGateway) Cancel(ctx context.Context, reference string) error {
	if g == nil {
		return &Error{Reason: ReasonUnavailable, Message: "payment gateway not configured"}
	}

	_, err := g.post(ctx, fmt.Sprintf("/v1/authorizations/%s/cancel", reference), struct{}{})
	return err
}

func (g *HTTPGateway) post(ctx context.Context, path string, payload interface{}) (gatewayResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return gatewayResponse{}, fmt.Errorf("marshal gateway payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return gatewayResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.http.Do(req)
	if err != nil {
		// A timed-out call is failed, never pending.
		g.log.Warn("payment gateway unreachable", "path", path, "error", err.Error())
		return gatewayResponse{}, &Error{Reason: ReasonUnavailable, Message: "payment gateway unreachable"}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, _ := io.ReadAll(resp.Body)
	var parsed gatewayResponse
	if len(data) > 0 {
		if err := json.Unmarshal(data, &parsed); err != nil {
			parsed = gatewayResponse{}
		}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return gatewayResponse{}, &Error{
			Reason:  mapFailureReason(parsed.Reason),
			Message: failureMessage(parsed, resp.StatusCode),
		}
	}

	return parsed, nil
}

func mapFailureReason(raw string) FailureReason {
	switch FailureReason(raw) {
	case ReasonNoValidMethod, ReasonRequiresReauthentication, ReasonDeclined:
		return FailureReason(raw)
	default:
		return ReasonUnavailable
	}
}

func failureMessage(resp gatewayResponse, status int) string {
	if resp.Message != "" {
		return resp.Message
	}
	return fmt.Sprintf("payment gateway returned %d", status)
}

// AsError extracts the typed gateway failure, if any.
func AsError(err error) (*Error, bool) {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr, true
	}
	return nil, false
}
