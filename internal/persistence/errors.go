package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when a unique constraint rejects a write.
	ErrDuplicate = errors.New("persistence: duplicate record")
	// ErrConstraintViolation is returned when a CHECK or NOT NULL constraint rejects a write.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
	// ErrNoCopiesAvailable is returned when the conditional copy decrement matched no row.
	ErrNoCopiesAvailable = errors.New("persistence: no copies available")
	// ErrActiveLoanExists is returned when the borrower already holds the book.
	ErrActiveLoanExists = errors.New("persistence: active loan exists")
)
