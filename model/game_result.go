package model

import (
	"time"

	"gorm.io/datatypes"
)

// Answer is one answered question of the interactive test.
type Answer struct {
	GameTitle string    `json:"game_title,omitempty"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Category  string    `json:"category"`
	Timestamp time.Time `json:"timestamp"`
}

// GameResult is written once per completed interactive session and never edited.
type GameResult struct {
	Entity
	ChildID        string                      `json:"child_id" gorm:"size:36;index;not null"`
	RequestID      string                      `json:"request_id" gorm:"size:36;uniqueIndex;not null"`
	PsychologistID string                      `json:"psychologist_id" gorm:"size:36;index"`
	Answers        datatypes.JSONSlice[Answer] `json:"answers"`
	CompletedAt    time.Time                   `json:"completed_at"`
}
