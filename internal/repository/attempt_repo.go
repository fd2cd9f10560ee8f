package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/jobify-assessment-api/internal/assessment"
	"github.com/noah-isme/jobify-assessment-api/internal/models"
)

var (
	// ErrDuplicateAttempt is returned when the application already owns an attempt.
	ErrDuplicateAttempt = errors.New("application already has an attempt")
	// ErrAttemptFinalized is returned when a guarded write finds the attempt submitted.
	ErrAttemptFinalized = errors.New("attempt already submitted")
)

// AttemptResult carries the grading output persisted on submit.
type AttemptResult struct {
	Score       float64
	MCQScore    float64
	CodeScore   float64
	CodeDetails datatypes.JSON
	SubmittedAt time.Time
}

// AttemptRepository persists assessment attempts and their proctoring log.
type AttemptRepository interface {
	GetByApplication(ctx context.Context, applicationID uint) (models.AssessmentAttempt, error)
	GetByID(ctx context.Context, id uint) (models.AssessmentAttempt, error)
	Create(ctx context.Context, attempt *models.AssessmentAttempt) error
	Replace(ctx context.Context, staleID uint, attempt *models.AssessmentAttempt) error
	Resume(ctx context.Context, attempt *models.AssessmentAttempt, webcamConsent bool) error
	SaveAnswers(ctx context.Context, id uint, answers datatypes.JSON) error
	DeleteByApplication(ctx context.Context, applicationID uint) error
	RecordEvent(ctx context.Context, event *models.ProctorEvent, category assessment.EventCategory) (models.AssessmentAttempt, error)
	Flag(ctx context.Context, id uint, reason string) (bool, error)
	ListEvents(ctx context.Context, attemptID uint) ([]models.ProctorEvent, error)
	Finalize(ctx context.Context, attempt models.AssessmentAttempt, result AttemptResult) error
}

// NewAttemptRepository constructs an attempt repository.
func NewAttemptRepository(db *gorm.DB) AttemptRepository {
	return &attemptRepository{db: db}
}

type attemptRepository struct {
	db *gorm.DB
}

func (r *attemptRepository) GetByApplication(ctx context.Context, applicationID uint) (models.AssessmentAttempt, error) {
	var attempt models.AssessmentAttempt
	err := r.db.WithContext(ctx).
		Where("application_id = ?", applicationID).
		First(&attempt).Error
	if err != nil {
		return models.AssessmentAttempt{}, err
	}
	return attempt, nil
}

func (r *attemptRepository) GetByID(ctx context.Context, id uint) (models.AssessmentAttempt, error) {
	var attempt models.AssessmentAttempt
	if err := r.db.WithContext(ctx).First(&attempt, id).Error; err != nil {
		return models.AssessmentAttempt{}, err
	}
	return attempt, nil
}

// Create inserts the attempt and moves the application into assessment.
func (r *attemptRepository) Create(ctx context.Context, attempt *models.AssessmentAttempt) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return createAttempt(tx, attempt)
	})
}

// Replace removes an expired attempt and its events before inserting the new one.
func (r *attemptRepository) Replace(ctx context.Context, staleID uint, attempt *models.AssessmentAttempt) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := deleteAttempt(tx, staleID); err != nil {
			return err
		}
		return createAttempt(tx, attempt)
	})
}

func createAttempt(tx *gorm.DB, attempt *models.AssessmentAttempt) error {
	if err := tx.Create(attempt).Error; err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicateAttempt
		}
		return err
	}
	return tx.Model(&models.Application{}).
		Where("id = ?", attempt.ApplicationID).
		Update("status", models.ApplicationStatusInAssessment).Error
}

func deleteAttempt(tx *gorm.DB, id uint) error {
	if err := tx.Where("attempt_id = ?", id).Delete(&models.ProctorEvent{}).Error; err != nil {
		return err
	}
	return tx.Delete(&models.AssessmentAttempt{}, id).Error
}

func (r *attemptRepository) Resume(ctx context.Context, attempt *models.AssessmentAttempt, webcamConsent bool) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(attempt).Update("webcam_consent", webcamConsent).Error; err != nil {
			return err
		}
		return tx.Model(&models.Application{}).
			Where("id = ?", attempt.ApplicationID).
			Update("status", models.ApplicationStatusInAssessment).Error
	})
}

func (r *attemptRepository) SaveAnswers(ctx context.Context, id uint, answers datatypes.JSON) error {
	result := r.db.WithContext(ctx).
		Model(&models.AssessmentAttempt{}).
		Where("id = ? AND submitted_at IS NULL", id).
		Update("answers", answers)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAttemptFinalized
	}
	return nil
}

// DeleteByApplication removes the attempt with its events and returns the
// application to draft.
func (r *attemptRepository) DeleteByApplication(ctx context.Context, applicationID uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []uint
		if err := tx.Model(&models.AssessmentAttempt{}).
			Where("application_id = ?", applicationID).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		for _, id := range ids {
			if err := deleteAttempt(tx, id); err != nil {
				return err
			}
		}
		return tx.Model(&models.Application{}).
			Where("id = ?", applicationID).
			Update("status", models.ApplicationStatusDraft).Error
	})
}

// RecordEvent appends the event, bumps the matching counter in SQL, and
// returns the attempt as stored afterwards.
func (r *attemptRepository) RecordEvent(ctx context.Context, event *models.ProctorEvent, category assessment.EventCategory) (models.AssessmentAttempt, error) {
	var attempt models.AssessmentAttempt
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(event).Error; err != nil {
			return err
		}
		if column := counterColumn(category); column != "" {
			if err := tx.Model(&models.AssessmentAttempt{}).
				Where("id = ?", event.AttemptID).
				Update(column, gorm.Expr(column+" + ?", 1)).Error; err != nil {
				return err
			}
		}
		return tx.First(&attempt, event.AttemptID).Error
	})
	if err != nil {
		return models.AssessmentAttempt{}, err
	}
	return attempt, nil
}

func counterColumn(category assessment.EventCategory) string {
	switch category {
	case assessment.CategoryTabSwitch:
		return "tab_switch_count"
	case assessment.CategoryCopyPaste:
		return "copy_paste_count"
	case assessment.CategorySuspicious:
		return "suspicious_count"
	default:
		return ""
	}
}

// Flag sets the flag once. It reports false when another writer got there first.
func (r *attemptRepository) Flag(ctx context.Context, id uint, reason string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.AssessmentAttempt{}).
		Where("id = ? AND flagged = ?", id, false).
		Updates(map[string]interface{}{
			"flagged":     true,
			"flag_reason": reason,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *attemptRepository) ListEvents(ctx context.Context, attemptID uint) ([]models.ProctorEvent, error) {
	var events []models.ProctorEvent
	err := r.db.WithContext(ctx).
		Where("attempt_id = ?", attemptID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

// Finalize stores the score and submits the application, provided nobody
// submitted the attempt in the meantime.
func (r *attemptRepository) Finalize(ctx context.Context, attempt models.AssessmentAttempt, result AttemptResult) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		update := tx.Model(&models.AssessmentAttempt{}).
			Where("id = ? AND submitted_at IS NULL", attempt.ID).
			Updates(map[string]interface{}{
				"score":        result.Score,
				"mcq_score":    result.MCQScore,
				"code_score":   result.CodeScore,
				"code_details": result.CodeDetails,
				"submitted_at": result.SubmittedAt,
			})
		if update.Error != nil {
			return update.Error
		}
		if update.RowsAffected == 0 {
			return ErrAttemptFinalized
		}
		return tx.Model(&models.Application{}).
			Where("id = ?", attempt.ApplicationID).
			Update("status", models.ApplicationStatusSubmitted).Error
	})
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
