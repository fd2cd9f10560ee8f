package dto

import (
	"encoding/json"
	"time"

	"github.com/noah-isme/jobify-assessment-api/internal/assessment"
	"github.com/noah-isme/jobify-assessment-api/internal/models"
)

// StartAssessmentRequest opens or resumes the attempt.
type StartAssessmentRequest struct {
	WebcamConsent bool `json:"webcamConsent"`
}

// StartAssessmentResponse identifies the live (or finished) attempt.
type StartAssessmentResponse struct {
	AttemptID        uint      `json:"attemptId"`
	ExpiresAt        time.Time `json:"expiresAt"`
	AlreadySubmitted bool      `json:"alreadySubmitted"`
}

// SaveAnswersRequest carries the complete answer map.
type SaveAnswersRequest struct {
	Answers json.RawMessage `json:"answers" validate:"required"`
}

// ProctorEventRequest reports a behavioural signal from the client.
type ProctorEventRequest struct {
	Type    string          `json:"type" validate:"required,max=64"`
	Details json.RawMessage `json:"details,omitempty"`
}

// ProctorEventResponse always carries the current counters and flag state.
type ProctorEventResponse struct {
	Recorded   bool                `json:"recorded"`
	Flagged    bool                `json:"flagged"`
	FlagReason *string             `json:"flagReason"`
	Counters   assessment.Counters `json:"counters"`
	Message    string              `json:"message,omitempty"`
}

// ProctorEventItem is one entry of the audit log.
type ProctorEventItem struct {
	ID        uint            `json:"id"`
	Type      string          `json:"type"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// NewProctorEventItems maps stored events to the audit view.
func NewProctorEventItems(events []models.ProctorEvent) []ProctorEventItem {
	items := make([]ProctorEventItem, 0, len(events))
	for _, event := range events {
		item := ProctorEventItem{
			ID:        event.ID,
			Type:      event.Type,
			CreatedAt: event.CreatedAt,
		}
		if len(event.Details) > 0 {
			item.Details = json.RawMessage(event.Details)
		}
		items = append(items, item)
	}
	return items
}

// SnapshotRequest carries a base64 webcam frame, optionally as a data URL.
type SnapshotRequest struct {
	Base64Jpeg string `json:"base64Jpeg" validate:"required"`
}

// SnapshotResponse reports where the frame was stored.
type SnapshotResponse struct {
	Saved bool   `json:"saved"`
	File  string `json:"file,omitempty"`
}

// RunCodeRequest runs candidate code against public tests or custom input.
type RunCodeRequest struct {
	QuestionID    string  `json:"questionId" validate:"required"`
	LanguageID    int     `json:"languageId" validate:"required,gt=0"`
	SourceCode    string  `json:"sourceCode" validate:"required"`
	StdinOverride *string `json:"stdinOverride,omitempty"`
}

// Run modes.
const (
	RunModeCustom = "custom"
	RunModePublic = "public"
)

// RunResult is the outcome of one run.
type RunResult struct {
	Index         int    `json:"index"`
	Stdin         string `json:"stdin"`
	Expected      string `json:"expected,omitempty"`
	Status        string `json:"status"`
	Passed        *bool  `json:"passed,omitempty"`
	Stdout        string `json:"stdout"`
	Stderr        string `json:"stderr,omitempty"`
	CompileOutput string `json:"compileOutput,omitempty"`
	Message       string `json:"message,omitempty"`
}

// RunResponse lists run results in test order.
type RunResponse struct {
	Mode    string      `json:"mode"`
	Results []RunResult `json:"results"`
}

// SubmitResponse is returned once an attempt has been scored.
type SubmitResponse struct {
	Status      string                 `json:"status"`
	FinalScore  float64                `json:"finalScore"`
	MCQScore    float64                `json:"mcqScore"`
	CodeScore   float64                `json:"codeScore"`
	CodeDetails assessment.CodeDetails `json:"codeDetails"`
	Flagged     bool                   `json:"flagged"`
	FlagReason  *string                `json:"flagReason"`
}

// ResetResponse confirms an attempt was discarded.
type ResetResponse struct {
	Reset bool `json:"reset"`
}

// OpportunitySummary is the part of the posting shown next to the assessment.
type OpportunitySummary struct {
	ID          uint   `json:"id"`
	Title       string `json:"title"`
	CompanyName string `json:"companyName"`
}

// AttemptSummary describes the attempt without its hidden state.
type AttemptSummary struct {
	ID               uint                `json:"id"`
	StartedAt        time.Time           `json:"startedAt"`
	ExpiresAt        time.Time           `json:"expiresAt"`
	SubmittedAt      *time.Time          `json:"submittedAt"`
	TimeLimitSeconds int                 `json:"timeLimitSeconds"`
	Score            *float64            `json:"score"`
	MCQScore         *float64            `json:"mcqScore"`
	CodeScore        *float64            `json:"codeScore"`
	MCQCount         int                 `json:"mcqCount"`
	ChallengeCount   int                 `json:"challengeCount"`
	WebcamConsent    bool                `json:"webcamConsent"`
	Flagged          bool                `json:"flagged"`
	FlagReason       *string             `json:"flagReason"`
	Counters         assessment.Counters `json:"counters"`
	SavedAnswers     json.RawMessage     `json:"savedAnswers"`
}

// NewAttemptSummary builds the candidate view of an attempt.
func NewAttemptSummary(attempt models.AssessmentAttempt) AttemptSummary {
	answers := json.RawMessage(attempt.Answers)
	if len(answers) == 0 {
		answers = json.RawMessage("{}")
	}
	return AttemptSummary{
		ID:               attempt.ID,
		StartedAt:        attempt.StartedAt,
		ExpiresAt:        attempt.ExpiresAt,
		SubmittedAt:      attempt.SubmittedAt,
		TimeLimitSeconds: attempt.TimeLimitSeconds,
		Score:            attempt.Score,
		MCQScore:         attempt.MCQScore,
		CodeScore:        attempt.CodeScore,
		MCQCount:         attempt.MCQCountSnapshot,
		ChallengeCount:   attempt.ChallengeCountSnapshot,
		WebcamConsent:    attempt.WebcamConsent,
		Flagged:          attempt.Flagged,
		FlagReason:       attempt.FlagReason,
		Counters:         AttemptCounters(attempt),
		SavedAnswers:     answers,
	}
}

// AttemptCounters extracts the proctoring tallies.
func AttemptCounters(attempt models.AssessmentAttempt) assessment.Counters {
	return assessment.Counters{
		TabSwitch:  attempt.TabSwitchCount,
		CopyPaste:  attempt.CopyPasteCount,
		Suspicious: attempt.SuspiciousCount,
	}
}

// AssessmentView is what the candidate sees for an application.
type AssessmentView struct {
	ApplicationID     uint                   `json:"applicationId"`
	ApplicationStatus string                 `json:"applicationStatus"`
	Opportunity       OpportunitySummary     `json:"opportunity"`
	Assessment        *assessment.PublicView `json:"assessment"`
	Attempt           *AttemptSummary        `json:"attempt"`
}
