package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/noah-isme/jobify-assessment-api/internal/assessment"
	"github.com/noah-isme/jobify-assessment-api/internal/dto"
	"github.com/noah-isme/jobify-assessment-api/internal/models"
	"github.com/noah-isme/jobify-assessment-api/internal/observability"
	"github.com/noah-isme/jobify-assessment-api/internal/repository"
)

const maxEventDetailsBytes = 4096

const flaggedMessage = "Your attempt has been flagged for review."

// ProctorService records behavioural events and applies the flagging policy.
type ProctorService interface {
	RecordEvent(ctx context.Context, userID, applicationID uint, req dto.ProctorEventRequest) (dto.ProctorEventResponse, error)
	ListEvents(ctx context.Context, userID, applicationID uint) ([]dto.ProctorEventItem, error)
}

type proctorService struct {
	store     assessmentStore
	attempts  repository.AttemptRepository
	events    EventPublisher
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
}

// NewProctorService constructs the proctoring monitor.
func NewProctorService(
	applications repository.ApplicationRepository,
	attempts repository.AttemptRepository,
	events EventPublisher,
	validate *validator.Validate,
	logger zerolog.Logger,
) ProctorService {
	return &proctorService{
		store:     assessmentStore{applications: applications, attempts: attempts},
		attempts:  attempts,
		events:    events,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "proctor_service").Logger(),
	}
}

func (s *proctorService) RecordEvent(ctx context.Context, userID, applicationID uint, req dto.ProctorEventRequest) (dto.ProctorEventResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.ProctorEventResponse{}, err
	}

	application, attempt, err := s.store.attempt(ctx, userID, applicationID)
	if err != nil {
		return dto.ProctorEventResponse{}, err
	}
	if attempt.IsSubmitted() {
		return proctorResponse(attempt, false, ""), nil
	}

	eventType := assessment.NormalizeEventType(req.Type)
	category := eventType.Category()

	details, err := s.sanitizeDetails(req.Details)
	if err != nil {
		return dto.ProctorEventResponse{}, err
	}

	event := models.ProctorEvent{
		AttemptID: attempt.ID,
		Type:      string(eventType),
		Details:   details,
	}
	updated, err := s.attempts.RecordEvent(ctx, &event, category)
	if err != nil {
		return dto.ProctorEventResponse{}, fmt.Errorf("record proctor event: %w", err)
	}
	observability.ProctorEvents().WithLabelValues(eventMetricLabel(eventType, category)).Inc()

	decision := assessment.Evaluate(dto.AttemptCounters(updated), updated.Flagged, category)
	if decision.Flag {
		won, err := s.attempts.Flag(ctx, updated.ID, decision.Reason)
		if err != nil {
			return dto.ProctorEventResponse{}, fmt.Errorf("flag attempt: %w", err)
		}
		if won {
			reason := decision.Reason
			updated.Flagged = true
			updated.FlagReason = &reason
			observability.AttemptsFlagged().WithLabelValues(reason).Inc()
			s.logger.Warn().
				Uint("attempt_id", updated.ID).
				Str("reason", reason).
				Msg("assessment attempt flagged")
			if s.events != nil {
				s.events.Publish(ctx, AssessmentEvent{
					Kind:          EventKindFlagged,
					AttemptID:     updated.ID,
					ApplicationID: application.ID,
					UserID:        application.UserID,
					Flagged:       true,
					FlagReason:    reason,
				})
			}
		} else {
			if updated, err = s.attempts.GetByID(ctx, updated.ID); err != nil {
				return dto.ProctorEventResponse{}, fmt.Errorf("reload attempt: %w", err)
			}
		}
	}

	return proctorResponse(updated, true, decision.Message), nil
}

func proctorResponse(attempt models.AssessmentAttempt, recorded bool, message string) dto.ProctorEventResponse {
	if message == "" && attempt.Flagged {
		message = flaggedMessage
	}
	return dto.ProctorEventResponse{
		Recorded:   recorded,
		Flagged:    attempt.Flagged,
		FlagReason: attempt.FlagReason,
		Counters:   dto.AttemptCounters(attempt),
		Message:    message,
	}
}

// eventMetricLabel keeps metric cardinality bounded for unknown client types.
func eventMetricLabel(eventType assessment.EventType, category assessment.EventCategory) string {
	if category == assessment.CategoryNone && eventType != assessment.EventWebcamSnapshot {
		return "OTHER"
	}
	return string(eventType)
}

// sanitizeDetails strips markup from every string in the client payload.
func (s *proctorService) sanitizeDetails(raw json.RawMessage) (datatypes.JSON, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if len(trimmed) > maxEventDetailsBytes {
		return nil, fmt.Errorf("%w: event details exceed %d bytes", ErrValidation, maxEventDetailsBytes)
	}

	var value interface{}
	if err := json.Unmarshal(trimmed, &value); err != nil {
		return nil, fmt.Errorf("%w: event details must be JSON", ErrValidation)
	}

	cleaned, err := json.Marshal(s.sanitizeValue(value))
	if err != nil {
		return nil, fmt.Errorf("encode event details: %w", err)
	}
	return datatypes.JSON(cleaned), nil
}

func (s *proctorService) sanitizeValue(value interface{}) interface{} {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(s.sanitizer.Sanitize(v))
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, item := range v {
			out[s.sanitizer.Sanitize(key)] = s.sanitizeValue(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = s.sanitizeValue(item)
		}
		return out
	default:
		return v
	}
}

func (s *proctorService) ListEvents(ctx context.Context, userID, applicationID uint) ([]dto.ProctorEventItem, error) {
	_, attempt, err := s.store.attempt(ctx, userID, applicationID)
	if err != nil {
		return nil, err
	}

	events, err := s.attempts.ListEvents(ctx, attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("list proctor events: %w", err)
	}
	return dto.NewProctorEventItems(events), nil
}
