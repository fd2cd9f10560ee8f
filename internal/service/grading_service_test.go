package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/jobify-assessment-api/internal/assessment"
	"github.com/noah-isme/jobify-assessment-api/internal/dto"
	"github.com/noah-isme/jobify-assessment-api/internal/models"
	"github.com/noah-isme/jobify-assessment-api/pkg/sandbox"
)

func startWithAnswers(t *testing.T, h *assessmentHarness, app models.Application, answers string) {
	t.Helper()
	ctx := context.Background()
	_, err := h.attempt.Start(ctx, candidateID, app.ID, dto.StartAssessmentRequest{})
	require.NoError(t, err)
	require.NoError(t, h.attempt.SaveAnswers(ctx, candidateID, app.ID, dto.SaveAnswersRequest{
		Answers: json.RawMessage(answers),
	}))
}

func TestSubmitMixedAssessment(t *testing.T) {
	h := newAssessmentHarness(t, nil)
	h.sandbox.wrong = map[string]bool{"3": true}
	app := seedApplication(t, h.db, mixedAssessment)
	startWithAnswers(t, h, app, `{"q1": 1, "q2": 1, "c1": {"languageId": 71, "sourceCode": "print(input())"}}`)

	resp, err := h.grading.Submit(context.Background(), candidateID, app.ID)
	require.NoError(t, err)
	require.Equal(t, models.ApplicationStatusSubmitted, resp.Status)
	require.Equal(t, 50.0, resp.MCQScore)
	require.Equal(t, 50.0, resp.CodeScore)
	require.Equal(t, 50.0, resp.FinalScore)
	require.Equal(t, 1, resp.CodeDetails.PassedHiddenTests)
	require.Equal(t, 2, resp.CodeDetails.TotalHiddenTests)

	require.Len(t, resp.CodeDetails.PerQuestion, 1)
	diag := resp.CodeDetails.PerQuestion[0]
	require.Equal(t, "c1", diag.QuestionID)
	require.Equal(t, []assessment.TestOutcome{
		{Index: 0, Verdict: assessment.VerdictAccepted, Passed: true},
		{Index: 1, Verdict: assessment.VerdictWrongAnswer, Passed: false},
	}, diag.Tests)

	stored, err := h.attempts.GetByApplication(context.Background(), app.ID)
	require.NoError(t, err)
	require.True(t, stored.IsSubmitted())
	require.NotNil(t, stored.Score)
	require.Equal(t, 50.0, *stored.Score)

	var application models.Application
	require.NoError(t, h.db.First(&application, app.ID).Error)
	require.Equal(t, models.ApplicationStatusSubmitted, application.Status)

	_, err = h.grading.Submit(context.Background(), candidateID, app.ID)
	require.ErrorIs(t, err, ErrAttemptSubmitted)
}

func TestSubmitCodeOnlyAssessment(t *testing.T) {
	h := newAssessmentHarness(t, nil)
	h.sandbox.wrong = map[string]bool{"4": true}
	app := seedApplication(t, h.db, codeOnlyAssessment)
	startWithAnswers(t, h, app, `{"c1": {"languageId": 63, "sourceCode": "console.log(1)"}}`)

	resp, err := h.grading.Submit(context.Background(), candidateID, app.ID)
	require.NoError(t, err)
	require.Equal(t, 75.0, resp.CodeScore)
	require.Equal(t, 75.0, resp.FinalScore)
	require.Zero(t, resp.MCQScore)
	require.Equal(t, 4, h.sandbox.callCount())
}

func TestSubmitKeepsTestOrderWhenRunsFinishOutOfOrder(t *testing.T) {
	h := newAssessmentHarness(t, nil)
	h.sandbox.wrong = map[string]bool{"4": true}
	h.sandbox.delay = map[string]time.Duration{"1": 200 * time.Millisecond, "2": 50 * time.Millisecond}
	app := seedApplication(t, h.db, codeOnlyAssessment)
	startWithAnswers(t, h, app, `{"c1": {"languageId": 71, "sourceCode": "print(input())"}}`)

	resp, err := h.grading.Submit(context.Background(), candidateID, app.ID)
	require.NoError(t, err)

	order := h.sandbox.completionOrder()
	require.Len(t, order, 4)
	require.Equal(t, "1", order[len(order)-1])

	require.Len(t, resp.CodeDetails.PerQuestion, 1)
	tests := resp.CodeDetails.PerQuestion[0].Tests
	require.Len(t, tests, 4)
	for i, outcome := range tests {
		require.Equal(t, i, outcome.Index)
		require.Equal(t, i != 3, outcome.Passed)
	}
	require.Equal(t, 75.0, resp.CodeScore)
}

func TestSubmitWithoutCodeAnswer(t *testing.T) {
	h := newAssessmentHarness(t, nil)
	app := seedApplication(t, h.db, mixedAssessment)
	startWithAnswers(t, h, app, `{"q1": 1, "q2": 0}`)

	resp, err := h.grading.Submit(context.Background(), candidateID, app.ID)
	require.NoError(t, err)
	require.Equal(t, 100.0, resp.MCQScore)
	require.Zero(t, resp.CodeScore)
	require.Equal(t, 50.0, resp.FinalScore)
	require.Zero(t, h.sandbox.callCount())

	require.Len(t, resp.CodeDetails.PerQuestion, 1)
	require.Equal(t, assessment.NoteNoCodeSubmitted, resp.CodeDetails.PerQuestion[0].Error)
	require.Zero(t, resp.CodeDetails.TotalHiddenTests)
}

func TestSubmitDisallowedLanguageFailsHiddenTests(t *testing.T) {
	h := newAssessmentHarness(t, nil)
	app := seedApplication(t, h.db, mixedAssessment)
	startWithAnswers(t, h, app, `{"c1": {"languageId": 63, "sourceCode": "console.log(1)"}}`)

	resp, err := h.grading.Submit(context.Background(), candidateID, app.ID)
	require.NoError(t, err)
	require.Zero(t, h.sandbox.callCount())
	require.Equal(t, 0, resp.CodeDetails.PassedHiddenTests)
	require.Equal(t, 2, resp.CodeDetails.TotalHiddenTests)
	require.Equal(t, assessment.NoteLanguageNotAllowed, resp.CodeDetails.PerQuestion[0].Error)
}

func TestSubmitAfterExpiryFails(t *testing.T) {
	h := newAssessmentHarness(t, nil)
	app := seedApplication(t, h.db, mixedAssessment)
	startWithAnswers(t, h, app, `{"q1": 1}`)

	h.clock.Advance(10*time.Minute + time.Second)
	_, err := h.grading.Submit(context.Background(), candidateID, app.ID)
	require.ErrorIs(t, err, ErrAttemptExpired)

	stored, err := h.attempts.GetByApplication(context.Background(), app.ID)
	require.NoError(t, err)
	require.False(t, stored.IsSubmitted())
}

func TestSubmitUpstreamFailurePersistsNothing(t *testing.T) {
	h := newAssessmentHarness(t, nil)
	h.sandbox.err = errors.New("connection refused")
	app := seedApplication(t, h.db, mixedAssessment)
	startWithAnswers(t, h, app, `{"q1": 1, "c1": {"languageId": 71, "sourceCode": "print(input())"}}`)

	_, err := h.grading.Submit(context.Background(), candidateID, app.ID)
	require.ErrorIs(t, err, ErrUpstreamUnavailable)
	require.ErrorIs(t, err, ErrUpstream)

	stored, err := h.attempts.GetByApplication(context.Background(), app.ID)
	require.NoError(t, err)
	require.False(t, stored.IsSubmitted())
	require.Nil(t, stored.Score)

	h.sandbox.err = nil
	resp, err := h.grading.Submit(context.Background(), candidateID, app.ID)
	require.NoError(t, err)
	require.Equal(t, 100.0, resp.CodeScore)
}

func TestSubmitRejectsHeldLock(t *testing.T) {
	h := newAssessmentHarness(t, nil)
	app := seedApplication(t, h.db, mixedAssessment)
	startWithAnswers(t, h, app, `{"q1": 1}`)

	stored, err := h.attempts.GetByApplication(context.Background(), app.ID)
	require.NoError(t, err)

	locker := NewSubmitLocker(nil, "", zerolog.Nop())
	release, err := locker.Acquire(context.Background(), stored.ID, time.Minute)
	require.NoError(t, err)
	defer release()

	svc := h.grading.(*gradingService)
	svc.locker = locker

	_, err = h.grading.Submit(context.Background(), candidateID, app.ID)
	require.ErrorIs(t, err, ErrSubmitInProgress)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestCodeRunnerMapsSandboxFailure(t *testing.T) {
	runner := NewCodeRunner(&echoSandbox{err: sandbox.ErrUnavailable}, zerolog.Nop())
	_, err := runner.Submit(context.Background(), "print(1)", 71, "", "1")
	require.ErrorIs(t, err, ErrUpstreamUnavailable)
}

func TestCodeRunnerNormalizesOutput(t *testing.T) {
	sb := sandboxFunc(func(ctx context.Context, submission sandbox.Submission) (sandbox.Result, error) {
		return sandbox.Result{Status: sandbox.StatusAccepted, Stdout: "4\r\n  "}, nil
	})
	runner := NewCodeRunner(sb, zerolog.Nop())

	verdict, err := runner.Submit(context.Background(), "print(4)", 71, "", "4\n")
	require.NoError(t, err)
	require.True(t, verdict.Passed)
	require.Equal(t, assessment.VerdictAccepted, verdict.Status)
}

func TestCodeRunnerKeepsHardFailureStatus(t *testing.T) {
	sb := sandboxFunc(func(ctx context.Context, submission sandbox.Submission) (sandbox.Result, error) {
		return sandbox.Result{Status: sandbox.StatusCompilationError, CompileOutput: "syntax error"}, nil
	})
	runner := NewCodeRunner(sb, zerolog.Nop())

	verdict, err := runner.Submit(context.Background(), "print(", 71, "", "4")
	require.NoError(t, err)
	require.False(t, verdict.Passed)
	require.Equal(t, sandbox.StatusCompilationError, verdict.Status)
}

func TestCodeRunnerStderrNeverPasses(t *testing.T) {
	sb := sandboxFunc(func(ctx context.Context, submission sandbox.Submission) (sandbox.Result, error) {
		return sandbox.Result{Status: sandbox.StatusAccepted, Stdout: "garbage\n", Stderr: "boom"}, nil
	})
	runner := NewCodeRunner(sb, zerolog.Nop())

	verdict, err := runner.Submit(context.Background(), "print(4)", 71, "", "4")
	require.NoError(t, err)
	require.False(t, verdict.Passed)
	require.Equal(t, assessment.VerdictRuntimeError, verdict.Status)

	matching := sandboxFunc(func(ctx context.Context, submission sandbox.Submission) (sandbox.Result, error) {
		return sandbox.Result{Status: sandbox.StatusAccepted, Stdout: "4\n", Stderr: "warning"}, nil
	})
	verdict, err = NewCodeRunner(matching, zerolog.Nop()).Submit(context.Background(), "print(4)", 71, "", "4")
	require.NoError(t, err)
	require.False(t, verdict.Passed)
}

type sandboxFunc func(ctx context.Context, submission sandbox.Submission) (sandbox.Result, error)

func (f sandboxFunc) Execute(ctx context.Context, submission sandbox.Submission) (sandbox.Result, error) {
	return f(ctx, submission)
}
