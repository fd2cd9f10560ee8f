package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/noah-isme/jobify-assessment-api/internal/assessment"
	"github.com/noah-isme/jobify-assessment-api/internal/dto"
	"github.com/noah-isme/jobify-assessment-api/internal/models"
	"github.com/noah-isme/jobify-assessment-api/internal/observability"
	"github.com/noah-isme/jobify-assessment-api/internal/repository"
)

const (
	defaultGradingWorkers = 4
	defaultSubmitTimeout  = 2 * time.Minute
)

// GradingConfig tunes the submit pipeline.
type GradingConfig struct {
	Workers       int
	SubmitTimeout time.Duration
}

// GradingService scores and finalizes attempts.
type GradingService interface {
	Submit(ctx context.Context, userID, applicationID uint) (dto.SubmitResponse, error)
}

type gradingService struct {
	store    assessmentStore
	attempts repository.AttemptRepository
	runner   CodeRunner
	locker   SubmitLocker
	events   EventPublisher
	cfg      GradingConfig
	tracer   trace.Tracer
	logger   zerolog.Logger
	now      func() time.Time
}

// NewGradingService constructs the scoring engine. A nil locker falls back to
// a process-local lock.
func NewGradingService(
	applications repository.ApplicationRepository,
	attempts repository.AttemptRepository,
	runner CodeRunner,
	locker SubmitLocker,
	events EventPublisher,
	cfg GradingConfig,
	logger zerolog.Logger,
) GradingService {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultGradingWorkers
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = defaultSubmitTimeout
	}
	if locker == nil {
		locker = NewSubmitLocker(nil, "", logger)
	}
	return &gradingService{
		store:    assessmentStore{applications: applications, attempts: attempts},
		attempts: attempts,
		runner:   runner,
		locker:   locker,
		events:   events,
		cfg:      cfg,
		tracer:   otel.Tracer("jobify/internal/service"),
		logger:   logger.With().Str("component", "grading_service").Logger(),
		now:      time.Now,
	}
}

func (s *gradingService) Submit(ctx context.Context, userID, applicationID uint) (dto.SubmitResponse, error) {
	application, attempt, err := s.store.attempt(ctx, userID, applicationID)
	if err != nil {
		return dto.SubmitResponse{}, err
	}

	release, err := s.locker.Acquire(ctx, attempt.ID, s.cfg.SubmitTimeout)
	if err != nil {
		observability.Submissions().WithLabelValues("locked").Inc()
		return dto.SubmitResponse{}, err
	}
	defer release()

	// Re-read under the lock; another grader may have finished meanwhile.
	attempt, err = s.attempts.GetByID(ctx, attempt.ID)
	if err != nil {
		return dto.SubmitResponse{}, fmt.Errorf("reload attempt: %w", err)
	}
	if err := ensureLive(attempt, s.now); err != nil {
		observability.Submissions().WithLabelValues(submitRejectLabel(err)).Inc()
		return dto.SubmitResponse{}, err
	}

	def, err := attemptDefinition(attempt)
	if err != nil {
		return dto.SubmitResponse{}, err
	}
	answers, err := assessment.ParseAnswers(attempt.Answers, def)
	if err != nil {
		return dto.SubmitResponse{}, fmt.Errorf("stored answers for attempt %d: %w", attempt.ID, err)
	}

	gradeCtx, cancel := context.WithTimeout(ctx, s.cfg.SubmitTimeout)
	defer cancel()
	gradeCtx, span := s.tracer.Start(gradeCtx, "assessment.grade", trace.WithAttributes(
		attribute.Int("attempt.id", int(attempt.ID)),
	))
	defer span.End()

	started := time.Now()
	mcq := assessment.ScoreMCQ(def, answers)
	details, err := s.gradeCode(gradeCtx, def, answers)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "grading failed")
		observability.Submissions().WithLabelValues("upstream_error").Inc()
		s.logger.Warn().Err(err).Uint("attempt_id", attempt.ID).Msg("grading aborted")
		return dto.SubmitResponse{}, err
	}
	code := details.Score()

	mcqCount, codeCount := def.Counts()
	final := assessment.ComposeFinal(mcqCount > 0, codeCount > 0, mcq.Score, code)
	observability.GradingDuration().Observe(time.Since(started).Seconds())

	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return dto.SubmitResponse{}, fmt.Errorf("encode code details: %w", err)
	}

	result := repository.AttemptResult{
		Score:       final.Float(),
		MCQScore:    mcq.Score.Float(),
		CodeScore:   code.Float(),
		CodeDetails: datatypes.JSON(detailsJSON),
		SubmittedAt: s.now().UTC(),
	}
	if err := s.attempts.Finalize(ctx, attempt, result); err != nil {
		if errors.Is(err, repository.ErrAttemptFinalized) {
			observability.Submissions().WithLabelValues("already_submitted").Inc()
			return dto.SubmitResponse{}, ErrAttemptSubmitted
		}
		return dto.SubmitResponse{}, fmt.Errorf("finalize attempt: %w", err)
	}

	observability.Submissions().WithLabelValues("scored").Inc()
	span.SetAttributes(attribute.String("assessment.score", final.String()))
	s.logger.Info().
		Uint("application_id", application.ID).
		Uint("attempt_id", attempt.ID).
		Str("score", final.String()).
		Str("mcq_score", mcq.Score.String()).
		Str("code_score", code.String()).
		Int("hidden_passed", details.PassedHiddenTests).
		Int("hidden_total", details.TotalHiddenTests).
		Msg("assessment submitted")

	if s.events != nil {
		score := result.Score
		event := AssessmentEvent{
			Kind:          EventKindSubmitted,
			AttemptID:     attempt.ID,
			ApplicationID: application.ID,
			UserID:        application.UserID,
			Score:         &score,
			Flagged:       attempt.Flagged,
			OccurredAt:    result.SubmittedAt,
		}
		if attempt.FlagReason != nil {
			event.FlagReason = *attempt.FlagReason
		}
		s.events.Publish(ctx, event)
	}

	return dto.SubmitResponse{
		Status:      models.ApplicationStatusSubmitted,
		FinalScore:  result.Score,
		MCQScore:    result.MCQScore,
		CodeScore:   result.CodeScore,
		CodeDetails: details,
		Flagged:     attempt.Flagged,
		FlagReason:  attempt.FlagReason,
	}, nil
}

// gradeCode runs every hidden test of every submitted code answer on a
// bounded pool. Outcomes land in fixed slots so diagnostics keep question and
// test order regardless of completion order.
func (s *gradingService) gradeCode(ctx context.Context, def assessment.Definition, answers assessment.Answers) (assessment.CodeDetails, error) {
	questions := def.CodeQuestions()
	diagnostics := make([]assessment.QuestionDiagnostics, len(questions))
	outcomes := make([][]assessment.TestOutcome, len(questions))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.cfg.Workers)

	for qi, question := range questions {
		diag := assessment.QuestionDiagnostics{QuestionID: question.ID}

		answer, ok := answers.Code(question.ID)
		if !ok || !answer.Submitted() {
			diag.Error = assessment.NoteNoCodeSubmitted
			diagnostics[qi] = diag
			continue
		}
		diag.LanguageID = answer.LanguageID
		diag.Total = len(question.HiddenTests)

		if !question.AllowsLanguage(answer.LanguageID) {
			diag.Error = assessment.NoteLanguageNotAllowed
			diagnostics[qi] = diag
			continue
		}
		diagnostics[qi] = diag

		outcomes[qi] = make([]assessment.TestOutcome, len(question.HiddenTests))
		for ti, test := range question.HiddenTests {
			group.Go(func() error {
				verdict, err := s.runner.Submit(groupCtx, answer.SourceCode, answer.LanguageID, test.Stdin, test.Expected)
				if err != nil {
					return err
				}
				outcomes[qi][ti] = assessment.TestOutcome{
					Index:   ti,
					Verdict: verdict.Status,
					Passed:  verdict.Passed,
				}
				return nil
			})
		}
	}

	if err := group.Wait(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return assessment.CodeDetails{}, fmt.Errorf("%w: grading timed out", ErrUpstreamUnavailable)
		}
		return assessment.CodeDetails{}, err
	}

	details := assessment.CodeDetails{PerQuestion: []assessment.QuestionDiagnostics{}}
	for qi, diag := range diagnostics {
		for _, outcome := range outcomes[qi] {
			if outcome.Passed {
				diag.Passed++
			}
		}
		diag.Tests = outcomes[qi]
		details.Add(diag)
	}
	return details, nil
}

func submitRejectLabel(err error) string {
	if errors.Is(err, ErrExpired) {
		return "expired"
	}
	return "already_submitted"
}
