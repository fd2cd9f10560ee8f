package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/jobify-assessment-api/internal/assessment"
	"github.com/noah-isme/jobify-assessment-api/internal/dto"
	"github.com/noah-isme/jobify-assessment-api/pkg/sandbox"
)

// Verdict is the classified outcome of one sandbox run.
type Verdict struct {
	Status  string
	Passed  bool
	Outcome assessment.ExecutionOutcome
}

// CodeRunner executes candidate code and classifies the result.
type CodeRunner interface {
	Submit(ctx context.Context, source string, languageID int, stdin, expected string) (Verdict, error)
	RunPublic(ctx context.Context, question assessment.CodeQuestion, languageID int, source string, stdinOverride *string) (dto.RunResponse, error)
}

type codeRunner struct {
	sandbox sandbox.Sandbox
	logger  zerolog.Logger
}

// NewCodeRunner wraps a sandbox with output normalization and verdicts.
func NewCodeRunner(sb sandbox.Sandbox, logger zerolog.Logger) CodeRunner {
	return &codeRunner{
		sandbox: sb,
		logger:  logger.With().Str("component", "code_runner").Logger(),
	}
}

// Submit runs the code once. Sandbox failures are reported as
// ErrUpstreamUnavailable and never as a wrong answer.
func (r *codeRunner) Submit(ctx context.Context, source string, languageID int, stdin, expected string) (Verdict, error) {
	result, err := r.sandbox.Execute(ctx, sandbox.Submission{
		SourceCode: source,
		LanguageID: languageID,
		Stdin:      stdin,
	})
	if err != nil {
		r.logger.Warn().Err(err).Int("language_id", languageID).Msg("sandbox execution failed")
		return Verdict{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	outcome := assessment.ExecutionOutcome{
		Status:        result.Status,
		Stdout:        result.Stdout,
		Stderr:        result.Stderr,
		CompileOutput: result.CompileOutput,
		Message:       result.Message,
	}
	status := assessment.DeriveVerdict(outcome, expected)

	return Verdict{
		Status:  status,
		Passed:  status == assessment.VerdictAccepted && !assessment.HardFailure(outcome),
		Outcome: outcome,
	}, nil
}

func (r *codeRunner) RunPublic(ctx context.Context, question assessment.CodeQuestion, languageID int, source string, stdinOverride *string) (dto.RunResponse, error) {
	if stdinOverride != nil && strings.TrimSpace(*stdinOverride) != "" {
		verdict, err := r.Submit(ctx, source, languageID, *stdinOverride, "")
		if err != nil {
			return dto.RunResponse{}, err
		}
		return dto.RunResponse{
			Mode:    dto.RunModeCustom,
			Results: []dto.RunResult{runResult(0, *stdinOverride, "", verdict, false)},
		}, nil
	}

	results := make([]dto.RunResult, 0, len(question.PublicTests))
	for i, test := range question.PublicTests {
		verdict, err := r.Submit(ctx, source, languageID, test.Stdin, test.Expected)
		if err != nil {
			return dto.RunResponse{}, err
		}
		results = append(results, runResult(i, test.Stdin, test.Expected, verdict, true))
	}

	return dto.RunResponse{Mode: dto.RunModePublic, Results: results}, nil
}

func runResult(index int, stdin, expected string, verdict Verdict, graded bool) dto.RunResult {
	result := dto.RunResult{
		Index:         index,
		Stdin:         stdin,
		Expected:      expected,
		Status:        verdict.Status,
		Stdout:        verdict.Outcome.Stdout,
		Stderr:        verdict.Outcome.Stderr,
		CompileOutput: verdict.Outcome.CompileOutput,
		Message:       verdict.Outcome.Message,
	}
	if graded {
		passed := verdict.Passed
		result.Passed = &passed
	}
	return result
}
