package persistence

import (
	"context"
	"time"
)

// BookRepository stores the catalog entries and their copy counters.
type BookRepository interface {
	CreateBook(ctx context.Context, book Book) error
	GetBook(ctx context.Context, id string) (Book, error)
	ListBooks(ctx context.Context) ([]Book, error)
}

// LoanRepository stores loan records and answers the notification window queries.
type LoanRepository interface {
	GetLoan(ctx context.Context, id string) (Loan, error)
	FindActiveLoan(ctx context.Context, userID, bookID string) (Loan, error)
	ListCandidates(ctx context.Context, filter WindowFilter) ([]LoanCandidate, error)
	CountCandidates(ctx context.Context, filter WindowFilter) (int, error)
	GetCandidate(ctx context.Context, loanID string) (LoanCandidate, error)
	MarkFlag(ctx context.Context, loanID string, flag ReminderFlag, at time.Time) (bool, error)
}

// LendingStore performs the multi-table borrow and return transitions atomically.
type LendingStore interface {
	// BorrowCopy decrements the book's available copies conditioned on a copy
	// being free and inserts the loan in the same transaction.
	BorrowCopy(ctx context.Context, loan Loan) error
	// CloseLoan marks a borrowed loan as returned and restores one copy. The
	// boolean reports whether the loan was already returned before the call.
	CloseLoan(ctx context.Context, loanID string, returnedAt time.Time) (Loan, bool, error)
}

// UserRepository stores the directory mirror used for eligibility and addressing.
type UserRepository interface {
	UpsertUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id string) (User, error)
	ListInactiveUsers(ctx context.Context, since time.Time, noticeKind string) ([]User, error)
}

// NotificationLogRepository appends and lists audit rows.
type NotificationLogRepository interface {
	AppendEntry(ctx context.Context, entry NotificationLogEntry) error
	ListEntries(ctx context.Context, filter NotificationLogFilter) ([]NotificationLogEntry, error)
}

// RunLockRepository manages advisory locks for trigger passes.
type RunLockRepository interface {
	AcquireLock(ctx context.Context, lock RunLock) (bool, error)
	ReleaseLock(ctx context.Context, name, holder string) error
}
