package database

import "errors"

var (
	ErrMissingDatabaseURL = errors.New("database URL is required")
	ErrMigrationFailed    = errors.New("migration failed")
	ErrNotFound           = errors.New("poster record not found")
)

// ErrKeyConflict is returned when a new record's cache key is already used by another series
var ErrKeyConflict = errors.New("cache key already in use")
