package common

import (
	"log"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var db *gorm.DB

// Init opens the sqlite database holding session audit rows and API metrics.
func Init(path string) *gorm.DB {
	conn, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		log.Fatal("Failed to open database: ", err)
	}
	db = conn
	return db
}

// TestDBInit opens a shared in-memory database for tests and migrates it.
func TestDBInit() *gorm.DB {
	conn, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		log.Fatal("Failed to open test database: ", err)
	}
	db = conn
	AutoMigrate(db)
	return db
}

// GetDB returns the process-wide database handle set by Init.
func GetDB() *gorm.DB {
	return db
}
