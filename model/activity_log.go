package model

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ActivityLog represents a persisted account or workflow event
type ActivityLog struct {
	gorm.Model
	Event  string `json:"event" gorm:"column:event;type:varchar(64);index"`
	UserID uint   `json:"user_id" gorm:"column:user_id;index"`
	Role   string `json:"role" gorm:"column:role;type:varchar(20)"`
	IP     string `json:"ip" gorm:"column:ip;type:varchar(45)"`
	// Location stores city and country in the format "City/Country" when available.
	Location  string         `json:"location" gorm:"column:location;type:varchar(255)"`
	UserAgent string         `json:"user_agent" gorm:"column:user_agent;type:varchar(512)"`
	Message   string         `json:"message" gorm:"column:message;type:text"`
	Details   datatypes.JSON `json:"details" gorm:"column:details"`
}
