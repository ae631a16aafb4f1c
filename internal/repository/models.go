package repository

import (
	"time"

	"github.com/kursadbilgin/mail-failover/internal/domain"
)

// EscalationEventModel is the persistence model for escalation_events.
type EscalationEventModel struct {
	ID            string                   `gorm:"type:uuid;primaryKey"`
	CorrelationID string                   `gorm:"type:varchar(64)"`
	Identity      string                   `gorm:"type:varchar(255);not null"`
	Recipient     string                   `gorm:"type:varchar(255);not null"`
	Outcome       domain.EscalationOutcome `gorm:"type:varchar(20);not null"`
	Attempts      int                      `gorm:"not null;default:0"`
	OccurredAt    time.Time                `gorm:"type:timestamptz;not null"`
	CreatedAt     time.Time
}

func (EscalationEventModel) TableName() string {
	return "escalation_events"
}

// DeliveryAttemptModel is the persistence model for delivery_attempts.
type DeliveryAttemptModel struct {
	ID             string                `gorm:"type:uuid;primaryKey"`
	CorrelationID  string                `gorm:"type:varchar(64)"`
	Role           domain.Role           `gorm:"type:varchar(10);not null"`
	Identity       string                `gorm:"type:varchar(255);not null"`
	Recipient      string                `gorm:"type:varchar(255);not null"`
	AttemptNumber  int                   `gorm:"not null"`
	Outcome        domain.AttemptOutcome `gorm:"type:varchar(20);not null"`
	ProviderResult *string               `gorm:"type:text"`
	Error          *string               `gorm:"type:text"`
	CreatedAt      time.Time
}

func (DeliveryAttemptModel) TableName() string {
	return "delivery_attempts"
}

func escalationModelFromDomain(e *domain.EscalationEvent) *EscalationEventModel {
	if e == nil {
		return nil
	}

	return &EscalationEventModel{
		ID:            e.ID,
		CorrelationID: e.CorrelationID,
		Identity:      e.Identity,
		Recipient:     e.Recipient,
		Outcome:       e.Outcome,
		Attempts:      e.Attempts,
		OccurredAt:    e.OccurredAt,
	}
}

func escalationModelToDomain(m *EscalationEventModel) *domain.EscalationEvent {
	if m == nil {
		return nil
	}

	return &domain.EscalationEvent{
		ID:            m.ID,
		CorrelationID: m.CorrelationID,
		Identity:      m.Identity,
		Recipient:     m.Recipient,
		Outcome:       m.Outcome,
		Attempts:      m.Attempts,
		OccurredAt:    m.OccurredAt,
	}
}

func attemptModelFromDomain(a *domain.DeliveryAttempt) *DeliveryAttemptModel {
	if a == nil {
		return nil
	}

	return &DeliveryAttemptModel{
		ID:             a.ID,
		CorrelationID:  a.CorrelationID,
		Role:           a.Role,
		Identity:       a.Identity,
		Recipient:      a.Recipient,
		AttemptNumber:  a.AttemptNumber,
		Outcome:        a.Outcome,
		ProviderResult: a.ProviderResult,
		Error:          a.Error,
		CreatedAt:      a.CreatedAt,
	}
}

func attemptModelToDomain(m *DeliveryAttemptModel) *domain.DeliveryAttempt {
	if m == nil {
		return nil
	}

	return &domain.DeliveryAttempt{
		ID:             m.ID,
		CorrelationID:  m.CorrelationID,
		Role:           m.Role,
		Identity:       m.Identity,
		Recipient:      m.Recipient,
		AttemptNumber:  m.AttemptNumber,
		Outcome:        m.Outcome,
		ProviderResult: m.ProviderResult,
		Error:          m.Error,
		CreatedAt:      m.CreatedAt,
	}
}
