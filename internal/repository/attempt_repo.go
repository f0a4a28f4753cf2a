package repository

import (
	"context"

	"github.com/businessweb01/dbmiddleware/internal/domain"
	"gorm.io/gorm"
)

// AttemptRepository persists the delivery audit trail. The relay works fine
// without it; deployments that want a durable record of every sink attempt
// point it at postgres.
type AttemptRepository interface {
	Create(ctx context.Context, a *domain.DeliveryAttempt) error
	GetByBookingID(ctx context.Context, bookingID string) ([]domain.DeliveryAttempt, error)
}

type GormAttemptRepo struct {
	db *gorm.DB
}

func NewGormAttemptRepo(db *gorm.DB) *GormAttemptRepo {
	return &GormAttemptRepo{db: db}
}

func (r *GormAttemptRepo) Create(ctx context.Context, a *domain.DeliveryAttempt) error {
	model := attemptModelFromDomain(a)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if a != nil {
		*a = *attemptModelToDomain(model)
	}
	return nil
}

func (r *GormAttemptRepo) GetByBookingID(ctx context.Context, bookingID string) ([]domain.DeliveryAttempt, error) {
	var models []DeliveryAttemptModel
	err := r.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Order("created_at ASC, attempt_number ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	attempts := make([]domain.DeliveryAttempt, 0, len(models))
	for i := range models {
		attempts = append(attempts, *attemptModelToDomain(&models[i]))
	}

	return attempts, nil
}

// NoopAttemptRepo is wired when no audit database is configured.
type NoopAttemptRepo struct{}

func (NoopAttemptRepo) Create(context.Context, *domain.DeliveryAttempt) error {
	return nil
}

func (NoopAttemptRepo) GetByBookingID(context.Context, string) ([]domain.DeliveryAttempt, error) {
	return nil, nil
}
