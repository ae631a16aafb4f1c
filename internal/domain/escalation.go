package domain

import "time"

// EscalationOutcome is the result recorded for a backup escalation.
type EscalationOutcome string

const (
	EscalationDelivered EscalationOutcome = "DELIVERED"
)

func (o EscalationOutcome) String() string { return string(o) }

// EscalationEvent is the audit fact written when the backup identity
// delivered a message.
type EscalationEvent struct {
	ID            string
	CorrelationID string
	Identity      string
	Recipient     string
	Outcome       EscalationOutcome
	Attempts      int
	OccurredAt    time.Time
}
