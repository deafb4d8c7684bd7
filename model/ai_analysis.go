package model

import (
	"time"

	"gorm.io/datatypes"
)

// Scores are the scored attributes a psychologist records for a child.
type Scores struct {
	IQScore            int `json:"iq_score"`
	VerbalReasoning    int `json:"verbal_reasoning"`
	NumericalReasoning int `json:"numerical_reasoning"`
	SpatialReasoning   int `json:"spatial_reasoning"`
	MemoryScore        int `json:"memory_score"`
	ProcessingSpeed    int `json:"processing_speed"`
	Extroversion       int `json:"extroversion"`
	Conscientiousness  int `json:"conscientiousness"`
	Openness           int `json:"openness"`
	Creativity         int `json:"creativity"`
}

// AIAnalysis is the report closing an assessment
// @Description Assessment analysis and report
type AIAnalysis struct {
	Entity
	ChildID         string                      `json:"child_id" gorm:"size:36;index;not null"`
	RequestID       string                      `json:"request_id" gorm:"size:36;uniqueIndex;not null"`
	PsychologistID  string                      `json:"psychologist_id" gorm:"size:36;index;not null"`
	Grade           string                      `json:"grade"`
	Scores          Scores                      `json:"scores" gorm:"embedded"`
	Interests       datatypes.JSONSlice[string] `json:"interests"`
	Observations    string                      `json:"observations" gorm:"type:text"`
	Report          string                      `json:"report" gorm:"type:text"`
	ReportGenerated bool                        `json:"report_generated"`
	ArchiveKey      string                      `json:"archive_key,omitempty"`
	AssessmentDate  time.Time                   `json:"assessment_date"`
}

func (AIAnalysis) TableName() string {
	return "ai_analysis"
}
