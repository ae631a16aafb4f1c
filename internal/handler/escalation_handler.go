package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/mail-failover/internal/audit"
	"github.com/kursadbilgin/mail-failover/internal/domain"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type EscalationLister interface {
	ListRecent(ctx context.Context, limit int) ([]domain.EscalationEvent, error)
}

type EscalationHandler struct {
	lister EscalationLister
}

func RegisterEscalationRoutes(router fiber.Router, lister EscalationLister) error {
	if lister == nil {
		return fmt.Errorf("escalation lister is required")
	}
	h := &EscalationHandler{lister: lister}

	v1 := router.Group("/v1")
	v1.Get("/escalations", h.ListEscalations)

	return nil
}

type escalationResponse struct {
	ID            string    `json:"id"`
	CorrelationID string    `json:"correlationId,omitempty"`
	Identity      string    `json:"identity"`
	Recipient     string    `json:"recipient"`
	Outcome       string    `json:"outcome"`
	Attempts      int       `json:"attempts"`
	OccurredAt    time.Time `json:"occurredAt"`
	Line          string    `json:"line"`
}

type listEscalationsResponse struct {
	Data []escalationResponse `json:"data"`
	Meta listMeta             `json:"meta"`
}

type listMeta struct {
	Limit int `json:"limit"`
	Count int `json:"count"`
}

func (h *EscalationHandler) ListEscalations(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultListLimit)
	if limit < 1 || limit > maxListLimit {
		return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxListLimit))
	}

	events, err := h.lister.ListRecent(c.UserContext(), limit)
	if err != nil {
		return fmt.Errorf("failed to list escalations: %w", err)
	}

	data := make([]escalationResponse, 0, len(events))
	for i := range events {
		e := &events[i]
		data = append(data, escalationResponse{
			ID:            e.ID,
			CorrelationID: e.CorrelationID,
			Identity:      e.Identity,
			Recipient:     e.Recipient,
			Outcome:       e.Outcome.String(),
			Attempts:      e.Attempts,
			OccurredAt:    e.OccurredAt.UTC(),
			Line:          audit.FormatLine(e),
		})
	}

	return c.Status(fiber.StatusOK).JSON(listEscalationsResponse{
		Data: data,
		Meta: listMeta{Limit: limit, Count: len(data)},
	})
}
