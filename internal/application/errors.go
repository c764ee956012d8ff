package application

import (
	"errors"
	"fmt"

	"github.com/example/library-lending/internal/notification"
)

var (
	// ErrNotFound is matched by every missing-resource error.
	ErrNotFound = errors.New("application: not found")
	// ErrUserNotEligible is returned when the borrower is not approved.
	ErrUserNotEligible = errors.New("application: user is not eligible to borrow")
	// ErrAlreadyBorrowed is the conflict reason for a second active loan of the same book.
	ErrAlreadyBorrowed = errors.New("application: book already borrowed by this user")
	// ErrOutOfCopies is the conflict reason for a book with no available copies.
	ErrOutOfCopies = errors.New("application: no copies available")
	// ErrUnauthorized is returned for trigger calls without the shared secret.
	ErrUnauthorized = errors.New("application: unauthorized")
)

var (
	ErrLoanNotFound = &NotFoundError{Resource: "loan"}
	ErrBookNotFound = &NotFoundError{Resource: "book"}
	ErrUserNotFound = &NotFoundError{Resource: "user"}
	ErrJobNotFound  = &NotFoundError{Resource: "job"}
)

// NotFoundError names the missing resource. It matches ErrNotFound.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("application: %s not found", e.Resource)
}

// Is reports ErrNotFound as a match.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ConflictError reports a borrow that was refused with state unchanged.
type ConflictError struct {
	Reason error
	UserID string
	BookID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict borrowing book %s for user %s: %v", e.BookID, e.UserID, e.Reason)
}

func (e *ConflictError) Unwrap() error { return e.Reason }

// DeliveryError is one recipient's failed notification.
type DeliveryError struct {
	Kind      notification.Kind
	Recipient string
	Attempts  int
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery of %s to %s failed after %d attempt(s): %v", e.Kind, e.Recipient, e.Attempts, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// ConfigurationError puts the dispatcher into log-only mode.
type ConfigurationError struct {
	Key string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("delivery is not configured: %s is empty", e.Key)
}

// StoreError wraps an unexpected persistence failure. It aborts the current
// pass only.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store failure during %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	var sErr *StoreError
	if errors.As(err, &sErr) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}
