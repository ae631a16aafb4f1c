package repository

import (
	"context"
	"errors"

	"github.com/kursadbilgin/mail-failover/internal/domain"
	"gorm.io/gorm"
)

const maxListLimit = 500

type EscalationRepository interface {
	Create(ctx context.Context, e *domain.EscalationEvent) error
	GetByID(ctx context.Context, id string) (*domain.EscalationEvent, error)
	ListRecent(ctx context.Context, limit int) ([]domain.EscalationEvent, error)
}

type GormEscalationRepo struct {
	db *gorm.DB
}

func NewGormEscalationRepo(db *gorm.DB) *GormEscalationRepo {
	return &GormEscalationRepo{db: db}
}

func (r *GormEscalationRepo) Create(ctx context.Context, e *domain.EscalationEvent) error {
	model := escalationModelFromDomain(e)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if e != nil {
		*e = *escalationModelToDomain(model)
	}
	return nil
}

func (r *GormEscalationRepo) GetByID(ctx context.Context, id string) (*domain.EscalationEvent, error) {
	var model EscalationEventModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return escalationModelToDomain(&model), nil
}

// ListRecent returns events newest first.
func (r *GormEscalationRepo) ListRecent(ctx context.Context, limit int) ([]domain.EscalationEvent, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}

	var models []EscalationEventModel
	err := r.db.WithContext(ctx).
		Order("occurred_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	events := make([]domain.EscalationEvent, 0, len(models))
	for i := range models {
		events = append(events, *escalationModelToDomain(&models[i]))
	}

	return events, nil
}
