package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"revenda/internal/config"
	"revenda/internal/types"
)

// WhatsAppGateway sends rendered messages through the WhatsApp HTTP
// gateway. All calls go through a ResilientClient, so 429/5xx responses
// are retried and a failing gateway trips the circuit breaker.
type WhatsAppGateway struct {
	client  *ResilientClient
	baseURL string
	apiKey  types.SecretString
}

// NewWhatsAppGateway creates a gateway client from configuration.
func NewWhatsAppGateway(cfg config.GatewayConfig, opts ...ResilientClientOption) *WhatsAppGateway {
	httpClient := &http.Client{Timeout: cfg.Timeout}
	policy := DefaultRetryPolicy()
	policy.MaxRetries = cfg.MaxRetries

	return &WhatsAppGateway{
		client:  NewResilientClient(httpClient, "whatsapp-gateway", policy, opts...),
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
	}
}

// sendRequest is the gateway's wire format for an outbound message.
type sendRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// sendResponse is the gateway's reply.
type sendResponse struct {
	MessageID string `json:"message_id"`
	Error     string `json:"error,omitempty"`
}

// Deliver sends one message to the given phone number.
//
// Outcomes:
//   - 2xx: DeliveryResult with the provider message id.
//   - 4xx: permanent failure (bad number, blocked recipient); Retryable
//     is false so the worker marks the dispatch failed without requeueing.
//   - 429/5xx/network/breaker-open: an upstream AppError after the client
//     exhausts its retries; the worker lets SQS redeliver.
func (g *WhatsAppGateway) Deliver(ctx context.Context, phone, body string) (*types.DeliveryResult, error) {
	payload, err := json.Marshal(sendRequest{To: phone, Body: body})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal gateway request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build gateway request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey.Unmask())

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamGateway, "failed to read gateway response", err)
	}

	var parsed sendResponse
	// A non-JSON body on an error status is still a usable failure reason.
	_ = json.Unmarshal(respBody, &parsed)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return &types.DeliveryResult{
			ProviderMessageID: parsed.MessageID,
			Status:            "sent",
		}, nil
	}

	reason := parsed.Error
	if reason == "" {
		reason = fmt.Sprintf("gateway returned %d", resp.StatusCode)
	}
	return &types.DeliveryResult{
		Status:        "failed",
		FailureReason: reason,
		Retryable:     false,
	}, nil
}
