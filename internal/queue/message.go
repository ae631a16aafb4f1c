package queue

import (
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/mail-failover/internal/domain"
)

// EscalationMessage is the broker payload announcing a backup escalation.
type EscalationMessage struct {
	EventID       string                   `json:"eventId"`
	CorrelationID string                   `json:"correlationId,omitempty"`
	Identity      string                   `json:"identity"`
	Recipient     string                   `json:"recipient"`
	Outcome       domain.EscalationOutcome `json:"outcome"`
	Attempts      int                      `json:"attempts"`
	OccurredAt    time.Time                `json:"occurredAt"`
}

func NewEscalationMessage(e *domain.EscalationEvent) EscalationMessage {
	if e == nil {
		return EscalationMessage{}
	}

	return EscalationMessage{
		EventID:       e.ID,
		CorrelationID: e.CorrelationID,
		Identity:      e.Identity,
		Recipient:     e.Recipient,
		Outcome:       e.Outcome,
		Attempts:      e.Attempts,
		OccurredAt:    e.OccurredAt.UTC(),
	}
}

func (m EscalationMessage) Validate() error {
	if strings.TrimSpace(m.EventID) == "" {
		return fmt.Errorf("eventId is required")
	}
	if strings.TrimSpace(m.Identity) == "" {
		return fmt.Errorf("identity is required")
	}
	if strings.TrimSpace(m.Recipient) == "" {
		return fmt.Errorf("recipient is required")
	}
	if m.OccurredAt.IsZero() {
		return fmt.Errorf("occurredAt is required")
	}
	return nil
}
