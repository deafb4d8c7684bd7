package model

import (
	"fmt"

	"gorm.io/gorm"
)

type Role string

const (
	RoleCustomer     Role = "customer"
	RolePsychologist Role = "psychologist"
	RoleAdmin        Role = "admin"
)

// Valid reports whether r is one of the known account roles.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RolePsychologist, RoleAdmin:
		return true
	}
	return false
}

// ApprovedByDefault is false only for psychologists, who need an admin approval.
func (r Role) ApprovedByDefault() bool {
	return r != RolePsychologist
}

// SeedAdmin makes sure an admin account with the given email exists.
func SeedAdmin(db *gorm.DB, name, email, passwordHash string) error {
	if email == "" || passwordHash == "" {
		return nil
	}

	var existing User
	err := db.Where("email = ?", email).First(&existing).Error
	if err == nil {
		if existing.Role == RoleAdmin {
			return nil
		}
		return fmt.Errorf("seed admin: %s already registered with role %s", email, existing.Role)
	}
	if err != gorm.ErrRecordNotFound {
		return err
	}

	admin := User{Name: name, Email: email, PasswordHash: passwordHash, Role: RoleAdmin, Approved: true}
	if err := db.Create(&admin).Error; err != nil {
		return fmt.Errorf("failed to seed admin %s: %w", email, err)
	}
	return nil
}
