package migration

import (
	"errors"
	"fmt"
)

var (
	ErrMigrationFailed      = errors.New("migration: execution failed")
	ErrInvalidMigrationFile = errors.New("migration: invalid file")
	ErrVersionConflict      = errors.New("migration: version conflict")
	ErrInvalidVersion       = errors.New("migration: invalid version")
	ErrDuplicateVersion     = errors.New("migration: duplicate version")
	// ErrChecksumMismatch means an applied file was edited after it ran.
	ErrChecksumMismatch = errors.New("migration: checksum mismatch")
)

// MigrationError ties a file-level failure to the migration it came from.
type MigrationError struct {
	Version   string
	FilePath  string
	Operation string
	Err       error
}

func (e *MigrationError) Error() string {
	subject := e.FilePath
	if e.Version != "" {
		subject = e.Version + " (" + e.FilePath + ")"
	}
	return fmt.Sprintf("migration %s: %s: %v", subject, e.Operation, e.Err)
}

func (e *MigrationError) Unwrap() error { return e.Err }

func NewMigrationError(version, filePath, operation string, err error) *MigrationError {
	return &MigrationError{Version: version, FilePath: filePath, Operation: operation, Err: err}
}

// DatabaseError is a driver failure while applying or recording migrations.
type DatabaseError struct {
	Version   string
	Operation string
	Err       error
}

func (e *DatabaseError) Error() string {
	if e.Version == "" {
		return fmt.Sprintf("migration database: %s: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("migration database %s: %s: %v", e.Version, e.Operation, e.Err)
}

func (e *DatabaseError) Unwrap() error { return e.Err }

func NewDatabaseError(version, operation string, err error) *DatabaseError {
	return &DatabaseError{Version: version, Operation: operation, Err: err}
}
