package models

import (
	"time"

	"gorm.io/datatypes"
)

// Application statuses touched by the assessment engine.
const (
	ApplicationStatusDraft        = "draft"
	ApplicationStatusInAssessment = "in_assessment"
	ApplicationStatusSubmitted    = "submitted"
	ApplicationStatusWithdrawn    = "withdrawn"
)

// Opportunity is a job posting. Only the assessment blob matters here.
type Opportunity struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	Title          string         `gorm:"size:255;not null" json:"title"`
	CompanyName    string         `gorm:"size:255" json:"company_name"`
	AssessmentJSON datatypes.JSON `gorm:"type:json" json:"-"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Application links a candidate to an opportunity.
type Application struct {
	ID            uint        `gorm:"primaryKey" json:"id"`
	OpportunityID uint        `gorm:"not null;index" json:"opportunity_id"`
	UserID        uint        `gorm:"not null;index" json:"user_id"`
	Status        string      `gorm:"size:32;not null;default:'draft'" json:"status"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
	Opportunity   Opportunity `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// IsWithdrawn reports whether the candidate pulled the application.
func (a Application) IsWithdrawn() bool {
	return a.Status == ApplicationStatusWithdrawn
}
