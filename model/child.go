package model

import "gorm.io/datatypes"

// Child is owned by exactly one parent account
// @Description Child information
type Child struct {
	Entity
	ParentID       uint                        `json:"parent_id" gorm:"index;not null" example:"2"`
	PsychologistID *string                     `json:"psychologist_id" gorm:"size:36;index"`
	Name           string                      `json:"name" gorm:"not null" example:"Aya"`
	Age            int                         `json:"age" gorm:"not null" example:"8"`
	Gender         string                      `json:"gender" example:"female"`
	Interests      datatypes.JSONSlice[string] `json:"interests"`
	Notes          string                      `json:"notes" gorm:"type:text"`
	Status         ChildStatus                 `json:"status" gorm:"type:varchar(20);not null;index" example:"available"`
}
