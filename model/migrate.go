package model

import "gorm.io/gorm"

// All returns every persisted model, in dependency order.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Psychologist{},
		&Child{},
		&AssessmentRequest{},
		&GameResult{},
		&AIAnalysis{},
		&ActivityLog{},
	}
}

// Migrate creates or updates the schema of every model.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(All()...)
}
