package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/jobify-assessment-api/internal/assessment"
	"github.com/noah-isme/jobify-assessment-api/internal/models"
	"github.com/noah-isme/jobify-assessment-api/internal/repository"
)

// assessmentStore resolves the application and attempt a caller may act on.
type assessmentStore struct {
	applications repository.ApplicationRepository
	attempts     repository.AttemptRepository
}

func (s assessmentStore) application(ctx context.Context, userID, applicationID uint) (models.Application, error) {
	application, err := s.applications.GetForUser(ctx, applicationID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Application{}, ErrApplicationNotFound
		}
		return models.Application{}, fmt.Errorf("load application: %w", err)
	}
	return application, nil
}

func (s assessmentStore) attempt(ctx context.Context, userID, applicationID uint) (models.Application, models.AssessmentAttempt, error) {
	application, err := s.application(ctx, userID, applicationID)
	if err != nil {
		return models.Application{}, models.AssessmentAttempt{}, err
	}

	attempt, err := s.attempts.GetByApplication(ctx, application.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return application, models.AssessmentAttempt{}, ErrAttemptNotFound
		}
		return application, models.AssessmentAttempt{}, fmt.Errorf("load attempt: %w", err)
	}
	return application, attempt, nil
}

// opportunityDefinition parses the assessment currently attached to the posting.
func opportunityDefinition(opportunity models.Opportunity) (assessment.Definition, error) {
	def, err := assessment.ParseDefinition(opportunity.AssessmentJSON)
	if err != nil {
		if errors.Is(err, assessment.ErrEmptyDefinition) {
			return assessment.Definition{}, ErrAssessmentEmpty
		}
		return assessment.Definition{}, fmt.Errorf("%w: %v", ErrAssessmentInvalid, err)
	}
	return def, nil
}

// attemptDefinition parses the definition frozen on the attempt at start.
func attemptDefinition(attempt models.AssessmentAttempt) (assessment.Definition, error) {
	def, err := assessment.ParseDefinition(attempt.DefinitionSnapshot)
	if err != nil {
		return assessment.Definition{}, fmt.Errorf("attempt %d definition snapshot: %w", attempt.ID, err)
	}
	return def, nil
}

// ensureLive rejects attempts that can no longer change.
func ensureLive(attempt models.AssessmentAttempt, now func() time.Time) error {
	if attempt.IsSubmitted() {
		return ErrAttemptSubmitted
	}
	if attempt.IsExpired(now()) {
		return ErrAttemptExpired
	}
	return nil
}
