package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Entity is embedded by workflow records. Ids are UUID strings so that any
// store, including an offline client mirror, can mint them.
type Entity struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36" example:"3f1c2a9e-7d4b-4a51-9a57-1f0e9b8c2d11"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MaxIDLength is the width of the id columns.
const MaxIDLength = 36

// ValidID reports whether a caller supplied id fits the id columns: at most
// MaxIDLength letters, digits, '-' or '_'. Offline clients mint UUIDs; older
// offline data used numeric ids.
func ValidID(id string) bool {
	if id == "" || len(id) > MaxIDLength {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

// NewID returns a fresh entity id.
func NewID() string {
	return uuid.NewString()
}

// BeforeCreate keeps a caller supplied id and mints one otherwise.
func (e *Entity) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = NewID()
	}
	return nil
}
