package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// AssessmentAttempt is the single timed attempt of an application.
type AssessmentAttempt struct {
	ID                     uint           `gorm:"primaryKey" json:"id"`
	ApplicationID          uint           `gorm:"not null;uniqueIndex" json:"application_id"`
	DefinitionSnapshot     datatypes.JSON `gorm:"type:json" json:"-"`
	Answers                datatypes.JSON `gorm:"type:json" json:"-"`
	QuestionOrder          datatypes.JSON `gorm:"type:json" json:"-"`
	StartedAt              time.Time      `gorm:"not null" json:"started_at"`
	ExpiresAt              time.Time      `gorm:"not null" json:"expires_at"`
	SubmittedAt            *time.Time     `json:"submitted_at"`
	Score                  *float64       `json:"score"`
	MCQScore               *float64       `gorm:"column:mcq_score" json:"mcq_score"`
	CodeScore              *float64       `json:"code_score"`
	CodeDetails            datatypes.JSON `gorm:"type:json" json:"-"`
	TimeLimitSeconds       int            `gorm:"not null" json:"time_limit_seconds"`
	RandomSeed             int64          `json:"random_seed"`
	MCQCountSnapshot       int            `gorm:"column:mcq_count_snapshot" json:"mcq_count_snapshot"`
	ChallengeCountSnapshot int            `json:"challenge_count_snapshot"`
	WebcamConsent          bool           `gorm:"not null;default:false" json:"webcam_consent"`
	TabSwitchCount         int            `gorm:"not null;default:0" json:"tab_switch_count"`
	CopyPasteCount         int            `gorm:"not null;default:0" json:"copy_paste_count"`
	SuspiciousCount        int            `gorm:"not null;default:0" json:"suspicious_count"`
	Flagged                bool           `gorm:"not null;default:false" json:"flagged"`
	FlagReason             *string        `gorm:"size:255" json:"flag_reason"`
	CreatedAt              time.Time      `json:"created_at"`
	UpdatedAt              time.Time      `json:"updated_at"`
	Events                 []ProctorEvent `gorm:"foreignKey:AttemptID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// IsSubmitted reports whether the attempt has been scored.
func (a AssessmentAttempt) IsSubmitted() bool {
	return a.SubmittedAt != nil
}

// IsExpired reports whether now is past the deadline.
func (a AssessmentAttempt) IsExpired(now time.Time) bool {
	return now.After(a.ExpiresAt)
}

// SetQuestionOrder serializes the order snapshot.
func (a *AssessmentAttempt) SetQuestionOrder(order []string) {
	if order == nil {
		order = []string{}
	}
	data, err := json.Marshal(order)
	if err != nil {
		a.QuestionOrder = datatypes.JSON([]byte("[]"))
		return
	}
	a.QuestionOrder = datatypes.JSON(data)
}

// QuestionOrderList deserializes the order snapshot.
func (a AssessmentAttempt) QuestionOrderList() []string {
	if len(a.QuestionOrder) == 0 {
		return nil
	}

	var order []string
	if err := json.Unmarshal(a.QuestionOrder, &order); err != nil {
		return nil
	}
	return order
}

// ProctorEvent is an append-only behavioural signal recorded for an attempt.
type ProctorEvent struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	AttemptID uint           `gorm:"not null;index" json:"attempt_id"`
	Type      string         `gorm:"size:64;not null" json:"type"`
	Details   datatypes.JSON `gorm:"type:json" json:"details,omitempty"`
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
}
