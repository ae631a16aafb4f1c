package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/mail-failover/internal/domain"
	"github.com/kursadbilgin/mail-failover/internal/observability"
	"github.com/kursadbilgin/mail-failover/internal/provider"
	"go.uber.org/zap"
)

const (
	SendSuccessText = "Email sent successfully"
	SendFailureText = "Error sending email"
)

type Deliverer interface {
	Deliver(ctx context.Context, subject, body string) (*provider.ProviderResponse, error)
}

type SendHandler struct {
	deliverer Deliverer
	logger    *zap.Logger
}

func NewSendHandler(deliverer Deliverer, logger *zap.Logger) (*SendHandler, error) {
	if deliverer == nil {
		return nil, fmt.Errorf("deliverer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SendHandler{deliverer: deliverer, logger: logger}, nil
}

func RegisterSendRoutes(router fiber.Router, deliverer Deliverer, logger *zap.Logger) error {
	h, err := NewSendHandler(deliverer, logger)
	if err != nil {
		return err
	}

	router.Post("/send", h.Send)
	return nil
}

// sendRequest optionally overrides the default self-test content.
type sendRequest struct {
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

func (h *SendHandler) Send(c *fiber.Ctx) error {
	var req sendRequest
	if len(c.Body()) > 0 && strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}

	ctx := c.UserContext()
	if correlationID := requestCorrelationID(c); correlationID != "" {
		ctx = observability.WithCorrelationID(ctx, correlationID)
	}

	if _, err := h.deliverer.Deliver(ctx, req.Subject, req.Text); err != nil {
		if errors.Is(err, domain.ErrValidation) {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		observability.WithContextLogger(h.logger, ctx).Error("email delivery failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).SendString(SendFailureText)
	}

	return c.Status(fiber.StatusOK).SendString(SendSuccessText)
}

func requestCorrelationID(c *fiber.Ctx) string {
	if value, ok := c.Locals("requestid").(string); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return strings.TrimSpace(c.Get(fiber.HeaderXRequestID))
}
