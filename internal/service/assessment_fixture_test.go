package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/jobify-assessment-api/internal/assessment"
	"github.com/noah-isme/jobify-assessment-api/internal/database"
	"github.com/noah-isme/jobify-assessment-api/internal/models"
	"github.com/noah-isme/jobify-assessment-api/internal/repository"
	"github.com/noah-isme/jobify-assessment-api/pkg/sandbox"
)

const candidateID uint = 42

const mixedAssessment = `{
  "timeLimitSeconds": 600,
  "randomize": true,
  "questions": [
    {"id": "q1", "type": "mcq", "prompt": "2+2?", "options": ["3", "4"], "correctIndex": 1},
    {"id": "q2", "type": "mcq", "prompt": "Capital of France?", "options": ["Paris", "Rome"], "correctIndex": 0},
    {"id": "c1", "type": "code", "title": "Echo", "prompt": "Print the input",
     "languageIdsAllowed": [71],
     "publicTests": [{"stdin": "1", "expected": "1"}],
     "hiddenTests": [{"stdin": "2", "expected": "2"}, {"stdin": "3", "expected": "3"}]}
  ]
}`

const codeOnlyAssessment = `{
  "timeLimitSeconds": 900,
  "randomize": false,
  "questions": [
    {"id": "c1", "type": "code", "title": "Echo", "prompt": "Print the input",
     "hiddenTests": [
       {"stdin": "1", "expected": "1"},
       {"stdin": "2", "expected": "2"},
       {"stdin": "3", "expected": "3"},
       {"stdin": "4", "expected": "4"}
     ]}
  ]
}`

func setupAssessmentDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

func seedApplication(t *testing.T, db *gorm.DB, definition string) models.Application {
	t.Helper()
	opportunity := models.Opportunity{
		Title:          "Backend Engineer",
		CompanyName:    "Acme",
		AssessmentJSON: datatypes.JSON([]byte(definition)),
	}
	require.NoError(t, db.Create(&opportunity).Error)

	application := models.Application{
		OpportunityID: opportunity.ID,
		UserID:        candidateID,
		Status:        models.ApplicationStatusDraft,
	}
	require.NoError(t, db.Create(&application).Error)
	return application
}

// echoSandbox prints stdin back, except for inputs listed in wrong. Inputs
// listed in delay are held back before answering.
type echoSandbox struct {
	mu       sync.Mutex
	calls    int
	wrong    map[string]bool
	delay    map[string]time.Duration
	finished []string
	err      error
}

func (s *echoSandbox) Execute(ctx context.Context, submission sandbox.Submission) (sandbox.Result, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if s.err != nil {
		return sandbox.Result{}, s.err
	}
	input := strings.TrimSpace(submission.Stdin)
	if d := s.delay[input]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return sandbox.Result{}, ctx.Err()
		}
	}

	s.mu.Lock()
	s.finished = append(s.finished, input)
	s.mu.Unlock()

	stdout := submission.Stdin + "\n"
	if s.wrong[input] {
		stdout = "nope\n"
	}
	return sandbox.Result{Status: sandbox.StatusAccepted, Stdout: stdout}, nil
}

func (s *echoSandbox) completionOrder() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.finished...)
}

func (s *echoSandbox) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock() *fixedClock {
	return &fixedClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func sequentialSeeds(seeds ...int64) assessment.SeedSource {
	var mu sync.Mutex
	next := 0
	return assessment.SeedFunc(func() (int64, error) {
		mu.Lock()
		defer mu.Unlock()
		seed := seeds[next%len(seeds)]
		next++
		return seed, nil
	})
}

type assessmentHarness struct {
	db       *gorm.DB
	attempts repository.AttemptRepository
	sandbox  *echoSandbox
	clock    *fixedClock
	attempt  AttemptService
	proctor  ProctorService
	grading  GradingService
}

func newAssessmentHarness(t *testing.T, seeds assessment.SeedSource) *assessmentHarness {
	t.Helper()
	db := setupAssessmentDB(t)
	applications := repository.NewApplicationRepository(db)
	attempts := repository.NewAttemptRepository(db)
	sb := &echoSandbox{}
	clock := newFixedClock()
	logger := zerolog.Nop()
	runner := NewCodeRunner(sb, logger)

	attemptSvc := NewAttemptService(applications, attempts, runner, seeds, nil, validator.New(), logger)
	attemptSvc.(*attemptService).now = clock.Now

	gradingSvc := NewGradingService(applications, attempts, runner, nil, nil, GradingConfig{Workers: 2, SubmitTimeout: 5 * time.Second}, logger)
	gradingSvc.(*gradingService).now = clock.Now

	return &assessmentHarness{
		db:       db,
		attempts: attempts,
		sandbox:  sb,
		clock:    clock,
		attempt:  attemptSvc,
		proctor:  NewProctorService(applications, attempts, nil, validator.New(), logger),
		grading:  gradingSvc,
	}
}
