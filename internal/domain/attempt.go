package domain

import "time"

// AttemptOutcome is the tagged result of one delivery attempt.
type AttemptOutcome string

const (
	AttemptDelivered AttemptOutcome = "DELIVERED"
	AttemptFailed    AttemptOutcome = "FAILED"
)

func (o AttemptOutcome) String() string { return string(o) }

// DeliveryAttempt records a single send made through one identity.
type DeliveryAttempt struct {
	ID             string
	CorrelationID  string
	Role           Role
	Identity       string
	Recipient      string
	AttemptNumber  int
	Outcome        AttemptOutcome
	ProviderResult *string
	Error          *string
	CreatedAt      time.Time
}
