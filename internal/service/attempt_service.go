package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/jobify-assessment-api/internal/assessment"
	"github.com/noah-isme/jobify-assessment-api/internal/dto"
	"github.com/noah-isme/jobify-assessment-api/internal/models"
	"github.com/noah-isme/jobify-assessment-api/internal/observability"
	"github.com/noah-isme/jobify-assessment-api/internal/repository"
)

const maxSnapshotBytes = 2 << 20

// FileUploader abstracts uploading binary data and returning a URL.
type FileUploader interface {
	Upload(ctx context.Context, name string, reader io.Reader) (string, error)
}

// AttemptService drives the attempt lifecycle for a candidate's application.
type AttemptService interface {
	Start(ctx context.Context, userID, applicationID uint, req dto.StartAssessmentRequest) (dto.StartAssessmentResponse, error)
	Get(ctx context.Context, userID, applicationID uint) (dto.AssessmentView, error)
	SaveAnswers(ctx context.Context, userID, applicationID uint, req dto.SaveAnswersRequest) error
	Reset(ctx context.Context, userID, applicationID uint) (dto.ResetResponse, error)
	UploadSnapshot(ctx context.Context, userID, applicationID uint, req dto.SnapshotRequest) (dto.SnapshotResponse, error)
	Run(ctx context.Context, userID, applicationID uint, req dto.RunCodeRequest) (dto.RunResponse, error)
}

type attemptService struct {
	store     assessmentStore
	attempts  repository.AttemptRepository
	runner    CodeRunner
	seeds     assessment.SeedSource
	uploader  FileUploader
	validator *validator.Validate
	logger    zerolog.Logger
	now       func() time.Time
}

// NewAttemptService constructs the attempt orchestrator. uploader may be nil,
// in which case snapshots are rejected as a storage failure.
func NewAttemptService(
	applications repository.ApplicationRepository,
	attempts repository.AttemptRepository,
	runner CodeRunner,
	seeds assessment.SeedSource,
	uploader FileUploader,
	validate *validator.Validate,
	logger zerolog.Logger,
) AttemptService {
	if seeds == nil {
		seeds = assessment.CryptoSeedSource{}
	}
	return &attemptService{
		store:     assessmentStore{applications: applications, attempts: attempts},
		attempts:  attempts,
		runner:    runner,
		seeds:     seeds,
		uploader:  uploader,
		validator: validate,
		logger:    logger.With().Str("component", "attempt_service").Logger(),
		now:       time.Now,
	}
}

func (s *attemptService) Start(ctx context.Context, userID, applicationID uint, req dto.StartAssessmentRequest) (dto.StartAssessmentResponse, error) {
	application, err := s.store.application(ctx, userID, applicationID)
	if err != nil {
		return dto.StartAssessmentResponse{}, err
	}
	if application.IsWithdrawn() {
		return dto.StartAssessmentResponse{}, ErrApplicationWithdrawn
	}

	def, err := opportunityDefinition(application.Opportunity)
	if err != nil {
		return dto.StartAssessmentResponse{}, err
	}

	var staleID uint
	existing, err := s.attempts.GetByApplication(ctx, application.ID)
	switch {
	case err == nil:
		if existing.IsSubmitted() {
			observability.AttemptStarts().WithLabelValues("already_submitted").Inc()
			return startResponse(existing), nil
		}
		if !existing.IsExpired(s.now()) {
			if err := s.attempts.Resume(ctx, &existing, req.WebcamConsent); err != nil {
				return dto.StartAssessmentResponse{}, fmt.Errorf("resume attempt: %w", err)
			}
			observability.AttemptStarts().WithLabelValues("resumed").Inc()
			return startResponse(existing), nil
		}
		staleID = existing.ID
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return dto.StartAssessmentResponse{}, fmt.Errorf("load attempt: %w", err)
	}

	attempt, err := s.newAttempt(application, def, req.WebcamConsent)
	if err != nil {
		return dto.StartAssessmentResponse{}, err
	}

	outcome := "created"
	if staleID != 0 {
		outcome = "restarted"
		err = s.attempts.Replace(ctx, staleID, &attempt)
	} else {
		err = s.attempts.Create(ctx, &attempt)
	}
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateAttempt) {
			winner, loadErr := s.attempts.GetByApplication(ctx, application.ID)
			if loadErr != nil {
				return dto.StartAssessmentResponse{}, fmt.Errorf("load concurrent attempt: %w", loadErr)
			}
			observability.AttemptStarts().WithLabelValues("resumed").Inc()
			return startResponse(winner), nil
		}
		return dto.StartAssessmentResponse{}, fmt.Errorf("create attempt: %w", err)
	}

	observability.AttemptStarts().WithLabelValues(outcome).Inc()
	s.logger.Info().
		Uint("application_id", application.ID).
		Uint("attempt_id", attempt.ID).
		Str("outcome", outcome).
		Time("expires_at", attempt.ExpiresAt).
		Msg("assessment attempt started")

	return startResponse(attempt), nil
}

func (s *attemptService) newAttempt(application models.Application, def assessment.Definition, webcamConsent bool) (models.AssessmentAttempt, error) {
	seed, err := s.seeds.NextSeed()
	if err != nil {
		return models.AssessmentAttempt{}, fmt.Errorf("draw seed: %w", err)
	}

	mcqCount, codeCount := def.Counts()
	startedAt := s.now().UTC()

	attempt := models.AssessmentAttempt{
		ApplicationID:          application.ID,
		DefinitionSnapshot:     datatypes.JSON(append([]byte(nil), application.Opportunity.AssessmentJSON...)),
		Answers:                datatypes.JSON([]byte("{}")),
		StartedAt:              startedAt,
		ExpiresAt:              startedAt.Add(time.Duration(def.TimeLimitSeconds) * time.Second),
		TimeLimitSeconds:       def.TimeLimitSeconds,
		RandomSeed:             seed,
		MCQCountSnapshot:       mcqCount,
		ChallengeCountSnapshot: codeCount,
		WebcamConsent:          webcamConsent,
	}
	attempt.SetQuestionOrder(assessment.QuestionOrder(def, seed))
	return attempt, nil
}

func startResponse(attempt models.AssessmentAttempt) dto.StartAssessmentResponse {
	return dto.StartAssessmentResponse{
		AttemptID:        attempt.ID,
		ExpiresAt:        attempt.ExpiresAt,
		AlreadySubmitted: attempt.IsSubmitted(),
	}
}

func (s *attemptService) Get(ctx context.Context, userID, applicationID uint) (dto.AssessmentView, error) {
	application, err := s.store.application(ctx, userID, applicationID)
	if err != nil {
		return dto.AssessmentView{}, err
	}

	view := dto.AssessmentView{
		ApplicationID:     application.ID,
		ApplicationStatus: application.Status,
		Opportunity: dto.OpportunitySummary{
			ID:          application.Opportunity.ID,
			Title:       application.Opportunity.Title,
			CompanyName: application.Opportunity.CompanyName,
		},
	}

	attempt, err := s.attempts.GetByApplication(ctx, application.ID)
	switch {
	case err == nil:
		def, defErr := attemptDefinition(attempt)
		if defErr != nil {
			return dto.AssessmentView{}, defErr
		}
		public := def.PublicView(attempt.QuestionOrderList())
		public.TimeLimitSeconds = attempt.TimeLimitSeconds
		summary := dto.NewAttemptSummary(attempt)
		view.Assessment = &public
		view.Attempt = &summary
	case errors.Is(err, gorm.ErrRecordNotFound):
		if def, defErr := opportunityDefinition(application.Opportunity); defErr == nil {
			public := def.PublicView(nil)
			view.Assessment = &public
		}
	default:
		return dto.AssessmentView{}, fmt.Errorf("load attempt: %w", err)
	}

	return view, nil
}

func (s *attemptService) SaveAnswers(ctx context.Context, userID, applicationID uint, req dto.SaveAnswersRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return err
	}

	_, attempt, err := s.store.attempt(ctx, userID, applicationID)
	if err != nil {
		return err
	}
	if err := ensureLive(attempt, s.now); err != nil {
		return err
	}

	def, err := attemptDefinition(attempt)
	if err != nil {
		return err
	}

	answers, err := assessment.ParseAnswers(req.Answers, def)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAnswers, err)
	}

	payload, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}

	if err := s.attempts.SaveAnswers(ctx, attempt.ID, datatypes.JSON(payload)); err != nil {
		if errors.Is(err, repository.ErrAttemptFinalized) {
			return ErrAttemptSubmitted
		}
		return fmt.Errorf("save answers: %w", err)
	}
	return nil
}

func (s *attemptService) Reset(ctx context.Context, userID, applicationID uint) (dto.ResetResponse, error) {
	application, err := s.store.application(ctx, userID, applicationID)
	if err != nil {
		return dto.ResetResponse{}, err
	}

	if err := s.attempts.DeleteByApplication(ctx, application.ID); err != nil {
		return dto.ResetResponse{}, fmt.Errorf("reset attempt: %w", err)
	}

	s.logger.Info().Uint("application_id", application.ID).Msg("assessment attempt reset")
	return dto.ResetResponse{Reset: true}, nil
}

func (s *attemptService) UploadSnapshot(ctx context.Context, userID, applicationID uint, req dto.SnapshotRequest) (dto.SnapshotResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.SnapshotResponse{}, err
	}

	_, attempt, err := s.store.attempt(ctx, userID, applicationID)
	if err != nil {
		return dto.SnapshotResponse{}, err
	}
	if !attempt.WebcamConsent {
		return dto.SnapshotResponse{}, ErrNoWebcamConsent
	}
	if attempt.IsSubmitted() {
		return dto.SnapshotResponse{Saved: false}, nil
	}

	data, err := decodeSnapshot(req.Base64Jpeg)
	if err != nil {
		return dto.SnapshotResponse{}, err
	}

	detected := mimetype.Detect(data)
	if !strings.HasPrefix(detected.String(), "image/") {
		return dto.SnapshotResponse{}, fmt.Errorf("%w: expected an image, got %s", ErrInvalidSnapshot, detected.String())
	}

	if s.uploader == nil {
		return dto.SnapshotResponse{}, ErrSnapshotStorage
	}

	name := fmt.Sprintf("attempt-%d-%d%s", attempt.ID, s.now().UnixMilli(), detected.Extension())
	url, err := s.uploader.Upload(ctx, name, bytes.NewReader(data))
	if err != nil {
		s.logger.Error().Err(err).Uint("attempt_id", attempt.ID).Msg("failed to store webcam snapshot")
		return dto.SnapshotResponse{}, fmt.Errorf("%w: %v", ErrSnapshotStorage, err)
	}

	details, err := json.Marshal(map[string]interface{}{"saved": true, "file": url})
	if err != nil {
		return dto.SnapshotResponse{}, fmt.Errorf("encode snapshot event: %w", err)
	}
	event := models.ProctorEvent{
		AttemptID: attempt.ID,
		Type:      string(assessment.EventWebcamSnapshot),
		Details:   datatypes.JSON(details),
	}
	if _, err := s.attempts.RecordEvent(ctx, &event, assessment.CategoryNone); err != nil {
		return dto.SnapshotResponse{}, fmt.Errorf("record snapshot event: %w", err)
	}

	return dto.SnapshotResponse{Saved: true, File: url}, nil
}

// decodeSnapshot accepts raw base64 or a data URL.
func decodeSnapshot(raw string) ([]byte, error) {
	payload := strings.TrimSpace(raw)
	if strings.HasPrefix(payload, "data:") {
		comma := strings.IndexByte(payload, ',')
		if comma < 0 {
			return nil, fmt.Errorf("%w: malformed data url", ErrInvalidSnapshot)
		}
		payload = payload[comma+1:]
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidSnapshot)
	}
	if len(data) > maxSnapshotBytes {
		return nil, fmt.Errorf("%w: image exceeds %d bytes", ErrInvalidSnapshot, maxSnapshotBytes)
	}
	return data, nil
}

func (s *attemptService) Run(ctx context.Context, userID, applicationID uint, req dto.RunCodeRequest) (dto.RunResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.RunResponse{}, err
	}

	_, attempt, err := s.store.attempt(ctx, userID, applicationID)
	if err != nil {
		return dto.RunResponse{}, err
	}
	if err := ensureLive(attempt, s.now); err != nil {
		return dto.RunResponse{}, err
	}

	def, err := attemptDefinition(attempt)
	if err != nil {
		return dto.RunResponse{}, err
	}

	q, ok := def.Question(strings.TrimSpace(req.QuestionID))
	if !ok {
		return dto.RunResponse{}, ErrInvalidQuestion
	}
	question, ok := q.(assessment.CodeQuestion)
	if !ok {
		return dto.RunResponse{}, ErrInvalidQuestion
	}
	if !question.AllowsLanguage(req.LanguageID) {
		return dto.RunResponse{}, ErrLanguageNotAllowed
	}

	return s.runner.RunPublic(ctx, question, req.LanguageID, req.SourceCode, req.StdinOverride)
}
