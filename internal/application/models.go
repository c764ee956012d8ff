package application

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/library-lending/internal/notification"
)

// Loan status values.
const (
	LoanBorrowed = "BORROWED"
	LoanReturned = "RETURNED"
)

// Approval status values reported by the user directory.
const (
	ApprovalApproved = "APPROVED"
	ApprovalPending  = "PENDING"
	ApprovalRejected = "REJECTED"
)

// Audit row status values.
const (
	AuditSent    = "SENT"
	AuditFailed  = "FAILED"
	AuditPending = "PENDING"
)

// Book is a catalog entry with its copy counters.
type Book struct {
	ID              string
	Title           string
	Author          string
	TotalCopies     int
	AvailableCopies int
}

// Loan is one borrow transaction. DueDate is a library calendar date at UTC midnight.
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
}

// User is the directory view of a library member.
type User struct {
	ID             string
	Email          string
	Name           string
	ApprovalStatus string
	CreatedAt      time.Time
}

// ReminderFlag selects one of the per-loan idempotency flags.
type ReminderFlag string

const (
	FlagNone          ReminderFlag = ""
	FlagDueTomorrow   ReminderFlag = "reminder_sent"
	FlagPenaltyNotice ReminderFlag = "penalty_notice_sent"
)

// flagFor returns the flag a successful delivery of kind must flip.
func flagFor(kind notification.Kind) ReminderFlag {
	switch kind {
	case notification.KindDueTomorrow:
		return FlagDueTomorrow
	case notification.KindOverduePenalty:
		return FlagPenaltyNotice
	default:
		return FlagNone
	}
}

// WindowQuery narrows candidate queries. Dates are library dates at UTC midnight.
type WindowQuery struct {
	DueOn     *time.Time
	DueBefore *time.Time
	Unflagged ReminderFlag
}

// Candidate is a borrowed loan joined with its borrower and book.
type Candidate struct {
	Loan        Loan
	Email       string
	Name        string
	BookTitle   string
	DaysOverdue int
	Penalty     decimal.Decimal
}

// Category names a trigger pass.
type Category string

const (
	CategoryDueToday    Category = "due_today"
	CategoryDueTomorrow Category = "due_tomorrow"
	CategoryOverdue     Category = "overdue"
	CategoryInactivity  Category = "inactivity"
)

// Kind returns the notification kind sent by the category's pass.
func (c Category) Kind() notification.Kind {
	switch c {
	case CategoryDueToday:
		return notification.KindDueToday
	case CategoryDueTomorrow:
		return notification.KindDueTomorrow
	case CategoryOverdue:
		return notification.KindOverduePenalty
	case CategoryInactivity:
		return notification.KindInactivity
	default:
		return ""
	}
}

// ParseCategory accepts both snake and kebab case.
func ParseCategory(s string) (Category, bool) {
	switch s {
	case "due_today", "due-today":
		return CategoryDueToday, true
	case "due_tomorrow", "due-tomorrow":
		return CategoryDueTomorrow, true
	case "overdue":
		return CategoryOverdue, true
	case "inactivity":
		return CategoryInactivity, true
	default:
		return "", false
	}
}

// Message is one notification to dispatch.
type Message struct {
	Kind          notification.Kind
	Recipient     User
	Loan          *Loan
	BookTitle     string
	DaysOverdue   int
	Penalty       *decimal.Decimal
	InactiveDays  int
	CorrelationID string
}

// OutcomeStatus is the result of one dispatch.
type OutcomeStatus string

const (
	OutcomeSent    OutcomeStatus = "sent"
	OutcomeFailed  OutcomeStatus = "failed"
	OutcomeSkipped OutcomeStatus = "skipped"
)

// Outcome describes one dispatch. AuditID is empty when no audit row was
// written.
type Outcome struct {
	Status    OutcomeStatus
	MessageID string
	AuditID   string
	Attempts  int
	Error     string
}

// Detail is one line of a trigger result.
type Detail struct {
	LoanID    string `json:"loanId,omitempty"`
	UserID    string `json:"userId,omitempty"`
	Email     string `json:"email,omitempty"`
	Kind      string `json:"kind"`
	Status    string `json:"status"`
	Attempts  int    `json:"attempts,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	AuditID   string `json:"auditId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// TriggerResult is the uniform envelope returned by every trigger.
type TriggerResult struct {
	Success        bool     `json:"success"`
	Message        string   `json:"message"`
	ProcessedCount int      `json:"processedCount"`
	SentCount      int      `json:"sentCount"`
	FailedCount    int      `json:"failedCount"`
	Details        []Detail `json:"details"`
	Category       Category `json:"category,omitempty"`
	Strategy       string   `json:"strategy,omitempty"`
	CorrelationID  string   `json:"correlationId,omitempty"`
}

// CategoryResults groups the three pass results of a consolidated run.
type CategoryResults struct {
	DueToday    TriggerResult `json:"dueToday"`
	DueTomorrow TriggerResult `json:"dueTomorrow"`
	Overdue     TriggerResult `json:"overdue"`
}

// ConsolidatedResult aggregates the three passes.
type ConsolidatedResult struct {
	Success        bool            `json:"success"`
	PartialSuccess bool            `json:"partialSuccess"`
	Message        string          `json:"message"`
	TotalSent      int             `json:"totalSent"`
	ProcessedCount int             `json:"processedCount"`
	SentCount      int             `json:"sentCount"`
	FailedCount    int             `json:"failedCount"`
	Details        []Detail        `json:"details"`
	PerCategory    CategoryResults `json:"perCategory"`
}

// PreviewCounts reports the recipients each pass would address.
type PreviewCounts struct {
	DueToday    int `json:"dueToday"`
	DueTomorrow int `json:"dueTomorrow"`
	Overdue     int `json:"overdue"`
	Total       int `json:"total"`
}

// BorrowInput identifies the borrower and the book.
type BorrowInput struct {
	UserID string
	BookID string
}

// ReturnResult is the outcome of a return request.
type ReturnResult struct {
	Loan            Loan
	AlreadyReturned bool
}

// AuditEntry is one append-only notification log row.
type AuditEntry struct {
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

// AuditFilter narrows audit listings.
type AuditFilter struct {
	Status        string
	Kind          string
	CorrelationID string
	Limit         int
}

// RunLock guards one trigger category against overlapping passes.
type RunLock struct {
	Name       string
	Holder     string
	AcquiredAt time.Time
	ExpiresAt  time.Time
}

func stringRef(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
