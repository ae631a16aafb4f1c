package audit

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/mail-failover/internal/domain"
)

const defaultWebhookTimeout = 10 * time.Second

type webhookRequest struct {
	EventID       string `json:"eventId"`
	CorrelationID string `json:"correlationId,omitempty"`
	Identity      string `json:"identity"`
	Recipient     string `json:"recipient"`
	Outcome       string `json:"outcome"`
	Attempts      int    `json:"attempts"`
	OccurredAt    string `json:"occurredAt"`
	Text          string `json:"text"`
}

// WebhookSink posts escalation events to an HTTP alerting endpoint.
type WebhookSink struct {
	client   *resty.Client
	endpoint string
}

func NewWebhookSink(endpoint string) (*WebhookSink, error) {
	client := resty.New()
	client.SetTimeout(defaultWebhookTimeout)
	client.SetRetryCount(0)

	return NewWebhookSinkWithClient(endpoint, client)
}

func NewWebhookSinkWithClient(endpoint string, client *resty.Client) (*WebhookSink, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("webhook endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid webhook endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultWebhookTimeout)
	}
	client.SetRetryCount(0)

	return &WebhookSink{
		client:   client,
		endpoint: trimmedEndpoint,
	}, nil
}

func (s *WebhookSink) Write(ctx context.Context, event *domain.EscalationEvent) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("webhook sink is not initialized")
	}
	if event == nil {
		return fmt.Errorf("escalation event is required")
	}

	reqBody := webhookRequest{
		EventID:       event.ID,
		CorrelationID: event.CorrelationID,
		Identity:      event.Identity,
		Recipient:     event.Recipient,
		Outcome:       event.Outcome.String(),
		Attempts:      event.Attempts,
		OccurredAt:    event.OccurredAt.UTC().Format(LineTimeLayout),
		Text:          FormatLine(event),
	}

	response, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(reqBody).
		Post(s.endpoint)
	if err != nil {
		return fmt.Errorf("failed to post escalation webhook: %w", err)
	}

	statusCode := response.StatusCode()
	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		body := strings.TrimSpace(response.String())
		if body == "" {
			return fmt.Errorf("webhook returned status %d", statusCode)
		}
		return fmt.Errorf("webhook returned status %d: %s", statusCode, body)
	}

	return nil
}

func (s *WebhookSink) Close() error {
	return nil
}

func (s *WebhookSink) Name() string {
	return "webhook"
}
