package model

import "time"

// AssessmentRequest ties a child to the psychologist a parent selected
// @Description Assessment request information
type AssessmentRequest struct {
	Entity
	ChildID           string        `json:"child_id" gorm:"size:36;index;not null"`
	PsychologistID    string        `json:"psychologist_id" gorm:"size:36;index;not null"`
	ParentID          uint          `json:"parent_id" gorm:"index;not null"`
	Status            RequestStatus `json:"status" gorm:"type:varchar(20);not null;index" example:"pending"`
	Message           string        `json:"message" gorm:"type:text" example:"Assessment request for Aya (8 years old)"`
	ResponseReason    string        `json:"response_reason,omitempty" gorm:"type:text"`
	RespondedAt       *time.Time    `json:"responded_at,omitempty"`
	ReportGeneratedAt *time.Time    `json:"report_generated_at,omitempty"`
}
