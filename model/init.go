package model

import "gorm.io/gorm"

// Migrate creates the tables used by the SQL store and local storage.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Conversation{},
		&Message{},
		&LocalItem{})
}
