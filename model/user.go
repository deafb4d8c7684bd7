package model

import "gorm.io/gorm"

// User represents an account of any role
// @Description User account information
type User struct {
	gorm.Model
	Email        string `json:"email" gorm:"uniqueIndex;size:191;not null" example:"parent@example.com"`
	PasswordHash string `json:"-" gorm:"column:password_hash;not null"`
	Name         string `json:"name" gorm:"not null" example:"Jane Doe"`
	Role         Role   `json:"role" gorm:"type:varchar(20);not null;index" example:"customer"`
	Phone        string `json:"phone" example:"+62812345678"`
	Approved     bool   `json:"approved" gorm:"default:false" example:"true"`
}
