package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/noah-isme/jobify-assessment-api/internal/models"
)

// Migrate creates or updates the tables owned by the assessment engine.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Opportunity{},
		&models.Application{},
		&models.AssessmentAttempt{},
		&models.ProctorEvent{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}
