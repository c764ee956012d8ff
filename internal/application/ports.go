package application

import (
	"context"
	"time"
)

// LoanRepository reads loans and answers the window queries.
type LoanRepository interface {
	GetLoan(ctx context.Context, id string) (Loan, error)
	ListCandidates(ctx context.Context, query WindowQuery) ([]Candidate, error)
	CountCandidates(ctx context.Context, query WindowQuery) (int, error)
	GetCandidate(ctx context.Context, loanID string) (Candidate, error)
	// MarkFlag sets flag if it is still clear and reports whether it flipped.
	MarkFlag(ctx context.Context, loanID string, flag ReminderFlag, at time.Time) (bool, error)
}

// LendingStore applies the borrow and return transitions atomically.
type LendingStore interface {
	BorrowCopy(ctx context.Context, loan Loan) error
	CloseLoan(ctx context.Context, loanID string, returnedAt time.Time) (Loan, bool, error)
}

// UserDirectory resolves library members.
type UserDirectory interface {
	GetUser(ctx context.Context, id string) (User, error)
}

// InactiveUserFinder lists approved members without recent activity.
type InactiveUserFinder interface {
	ListInactiveUsers(ctx context.Context, since time.Time, noticeKind string) ([]User, error)
}

// AuditLog appends and lists notification log rows.
type AuditLog interface {
	Append(ctx context.Context, entry AuditEntry) error
	List(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

// RunLocker manages advisory locks for trigger passes.
type RunLocker interface {
	Acquire(ctx context.Context, lock RunLock) (bool, error)
	Release(ctx context.Context, name, holder string) error
}

// Enqueuer publishes a payload to the queue for delivery to endpoint.
type Enqueuer interface {
	Enqueue(ctx context.Context, endpoint string, payload []byte) (string, error)
}

// JobRunner executes work in the background and returns a job id.
type JobRunner interface {
	Submit(ctx context.Context, name string, fn func(ctx context.Context) (any, error)) (string, error)
}

// ErrorReporter receives pass level failures.
type ErrorReporter interface {
	Report(ctx context.Context, err error, tags map[string]string)
}

// Metrics records service level measurements.
type Metrics interface {
	ObserveDelivery(kind, status string, attempts int, duration time.Duration)
	ObservePass(category string, success bool, sent, failed int, duration time.Duration)
	ObserveLoan(operation, result string)
}

type noopMetrics struct{}

func (noopMetrics) ObserveDelivery(string, string, int, time.Duration) {}
func (noopMetrics) ObservePass(string, bool, int, int, time.Duration)  {}
func (noopMetrics) ObserveLoan(string, string)                         {}

type noopReporter struct{}

func (noopReporter) Report(context.Context, error, map[string]string) {}
