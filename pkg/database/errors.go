package database

import "errors"

// Database configuration errors
var (
	ErrInvalidDatabasePath = errors.New("invalid database path")
)

// Database operation errors
var (
	ErrDatabaseNotConnected = errors.New("database not connected")
	ErrMigrationFailed      = errors.New("migration failed")
	ErrChecksumMismatch     = errors.New("applied migration does not match its checksum")
)
