package model

import (
	"time"

	"gorm.io/datatypes"
)

// Psychologist is the public profile of a psychologist account
// @Description Psychologist profile information
type Psychologist struct {
	Entity
	UserID               uint                        `json:"user_id" gorm:"uniqueIndex;not null" example:"4"`
	Name                 string                      `json:"name" gorm:"not null" example:"Dr. Sarah Johnson"`
	Title                string                      `json:"title" gorm:"not null" example:"Child Psychologist"`
	Specializations      datatypes.JSONSlice[string] `json:"specializations"`
	Experience           string                      `json:"experience" example:"5+ years"`
	Rating               float64                     `json:"rating" example:"4.8"`
	CompletedAssessments int                         `json:"completed_assessments" example:"100"`
	Description          string                      `json:"description" gorm:"type:text"`
	Available            bool                        `json:"available"`
	Approved             bool                        `json:"approved" gorm:"index"`
	ApprovedBy           string                      `json:"approved_by,omitempty"`
	ApprovedAt           *time.Time                  `json:"approved_at,omitempty"`
	RejectedBy           string                      `json:"rejected_by,omitempty"`
	RejectedAt           *time.Time                  `json:"rejected_at,omitempty"`
}

// DefaultRating is the rating a freshly registered psychologist starts with.
const DefaultRating = 4.5
