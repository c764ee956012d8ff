package persistence

import "time"

// Loan status values stored in the loans table.
const (
	LoanStatusBorrowed = "BORROWED"
	LoanStatusReturned = "RETURNED"
)

// Delivery status values stored in the notification log.
const (
	DeliveryStatusSent    = "SENT"
	DeliveryStatusFailed  = "FAILED"
	DeliveryStatusPending = "PENDING"
)

// Approval status values mirrored from the user directory.
const (
	ApprovalApproved = "APPROVED"
	ApprovalPending  = "PENDING"
	ApprovalRejected = "REJECTED"
)

// ReminderFlag names one of the per-loan idempotency flags.
type ReminderFlag string

const (
	// FlagNone selects loans regardless of their reminder flags.
	FlagNone ReminderFlag = ""
	// FlagDueTomorrow marks loans that already received the due-tomorrow reminder.
	FlagDueTomorrow ReminderFlag = "reminder_sent"
	// FlagPenaltyNotice marks loans that already received the overdue penalty notice.
	FlagPenaltyNotice ReminderFlag = "penalty_notice_sent"
)

// Book is a catalog entry with its copy counters.
type Book struct {
	ID              string
	Title           string
	Author          string
	TotalCopies     int
	AvailableCopies int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Loan is a single borrow transaction. DueDate holds a calendar date at UTC midnight.
type Loan struct {
	ID                string
	UserID            string
	BookID            string
	BorrowedAt        time.Time
	DueDate           time.Time
	ReturnedAt        *time.Time
	Status            string
	ReminderSent      bool
	PenaltyNoticeSent bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// User mirrors the profile fields the lending core needs from the user directory.
type User struct {
	ID             string
	Email          string
	Name           string
	ApprovalStatus string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// LoanCandidate joins a borrowed loan with the recipient and book details used
// for rendering notifications.
type LoanCandidate struct {
	Loan      Loan
	UserEmail string
	UserName  string
	BookTitle string
}

// WindowFilter narrows loan candidate queries. Dates are calendar dates at UTC midnight.
type WindowFilter struct {
	DueOn     *time.Time
	DueBefore *time.Time
	Unflagged ReminderFlag
}

// NotificationLogEntry is one append-only audit row.
type NotificationLogEntry struct {
	ID             string
	RecipientEmail string
	RecipientName  string
	Kind           string
	Status         string
	Subject        string
	ErrorMessage   *string
	Attempts       int
	LoanID         *string
	CorrelationID  *string
	Metadata       map[string]any
	SentAt         time.Time
}

// NotificationLogFilter narrows audit log listings.
type NotificationLogFilter struct {
	Status        string
	Kind          string
	CorrelationID string
	Limit         int
}

// RunLock is an advisory lock row guarding one trigger category.
type RunLock struct {
	Name       string
	Holder     string
	AcquiredAt time.Time
	ExpiresAt  time.Time
}
