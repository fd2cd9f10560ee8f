package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/jobify-assessment-api/internal/models"
)

// ApplicationRepository reads applications on behalf of the assessment engine.
type ApplicationRepository interface {
	GetForUser(ctx context.Context, id, userID uint) (models.Application, error)
	UpdateStatus(ctx context.Context, id uint, status string) error
}

// NewApplicationRepository constructs an application repository.
func NewApplicationRepository(db *gorm.DB) ApplicationRepository {
	return &applicationRepository{db: db}
}

type applicationRepository struct {
	db *gorm.DB
}

func (r *applicationRepository) GetForUser(ctx context.Context, id, userID uint) (models.Application, error) {
	var application models.Application
	err := r.db.WithContext(ctx).
		Preload("Opportunity").
		Where("id = ? AND user_id = ?", id, userID).
		First(&application).Error
	if err != nil {
		return models.Application{}, err
	}
	return application, nil
}

func (r *applicationRepository) UpdateStatus(ctx context.Context, id uint, status string) error {
	return r.db.WithContext(ctx).
		Model(&models.Application{}).
		Where("id = ?", id).
		Update("status", status).Error
}
