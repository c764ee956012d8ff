package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/library-lending/internal/notification"
	"github.com/example/library-lending/internal/persistence"
	"github.com/example/library-lending/internal/scheduler"
)

// LoanNotifier sends the confirmation for a loan event without affecting the
// caller's result.
type LoanNotifier interface {
	NotifyLoanEvent(ctx context.Context, kind notification.Kind, loanID string)
}

// LendingDeps wires a LendingService.
type LendingDeps struct {
	Users       UserDirectory
	Store       LendingStore
	Notifier    LoanNotifier
	Calendar    scheduler.Calendar
	PeriodDays  int
	IDGenerator func() string
	Now         func() time.Time
	Metrics     Metrics
	Logger      *slog.Logger
}

// LendingService coordinates borrow and return requests.
type LendingService struct {
	users       UserDirectory
	store       LendingStore
	notifier    LoanNotifier
	calendar    scheduler.Calendar
	periodDays  int
	idGenerator func() string
	now         func() time.Time
	metrics     Metrics
	logger      *slog.Logger
}

// NewLendingService constructs a lending service. The loan period defaults to 7 days.
func NewLendingService(deps LendingDeps) *LendingService {
	if deps.PeriodDays <= 0 {
		deps.PeriodDays = 7
	}
	if deps.IDGenerator == nil {
		deps.IDGenerator = func() string { return "" }
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Metrics == nil {
		deps.Metrics = noopMetrics{}
	}
	return &LendingService{
		users:       deps.Users,
		store:       deps.Store,
		notifier:    deps.Notifier,
		calendar:    deps.Calendar,
		periodDays:  deps.PeriodDays,
		idGenerator: deps.IDGenerator,
		now:         deps.Now,
		metrics:     deps.Metrics,
		logger:      defaultLogger(deps.Logger),
	}
}

func (s *LendingService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "LendingService", operation, attrs...)
}

// Borrow lends one copy of the book to the user. Refusals leave the book and
// loan records unchanged.
func (s *LendingService) Borrow(ctx context.Context, input BorrowInput) (loan Loan, err error) {
	if s == nil {
		err = fmt.Errorf("LendingService is nil")
		return
	}

	input.UserID = strings.TrimSpace(input.UserID)
	input.BookID = strings.TrimSpace(input.BookID)
	logger := s.loggerWith(ctx, "Borrow",
		"user_id", input.UserID,
		"book_id", input.BookID,
	)
	defer func() {
		s.metrics.ObserveLoan("borrow", resultLabel(err))
		if err != nil {
			logger.WarnContext(ctx, "borrow refused", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("loan_id", loan.ID, "due_date", loan.DueDate.Format(time.DateOnly)).InfoContext(ctx, "book borrowed")
	}()

	vErr := &ValidationError{}
	if input.UserID == "" {
		vErr.add("userId", "user id is required")
	}
	if input.BookID == "" {
		vErr.add("bookId", "book id is required")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}
	if s.users == nil || s.store == nil {
		err = fmt.Errorf("lending dependencies not configured")
		return
	}

	var user User
	user, err = s.users.GetUser(ctx, input.UserID)
	if err != nil {
		err = mapUserError(err)
		return
	}
	if user.ApprovalStatus != ApprovalApproved {
		err = ErrUserNotEligible
		return
	}

	now := s.now()
	candidate := Loan{
		ID:         s.idGenerator(),
		UserID:     input.UserID,
		BookID:     input.BookID,
		BorrowedAt: now.UTC(),
		DueDate:    s.calendar.DueDate(now, s.periodDays),
		Status:     LoanBorrowed,
	}
	if err = s.store.BorrowCopy(ctx, candidate); err != nil {
		err = mapBorrowError(err, input)
		return
	}

	loan = candidate
	if s.notifier != nil {
		s.notifier.NotifyLoanEvent(ctx, notification.KindBorrowConfirmation, loan.ID)
	}
	return
}

// ReturnLoan closes the loan and restores its copy. Returning an already
// returned loan succeeds without changing anything.
func (s *LendingService) ReturnLoan(ctx context.Context, loanID string) (result ReturnResult, err error) {
	if s == nil {
		err = fmt.Errorf("LendingService is nil")
		return
	}

	loanID = strings.TrimSpace(loanID)
	logger := s.loggerWith(ctx, "ReturnLoan", "loan_id", loanID)
	defer func() {
		s.metrics.ObserveLoan("return", resultLabel(err))
		if err != nil {
			logger.WarnContext(ctx, "return failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "loan returned", "already_returned", result.AlreadyReturned)
	}()

	if loanID == "" {
		vErr := &ValidationError{}
		vErr.add("loanId", "loan id is required")
		err = vErr
		return
	}
	if s.store == nil {
		err = fmt.Errorf("lending dependencies not configured")
		return
	}

	var (
		loan    Loan
		already bool
	)
	loan, already, err = s.store.CloseLoan(ctx, loanID, s.now().UTC())
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			err = ErrLoanNotFound
			return
		}
		err = storeError("close loan", err)
		return
	}

	result = ReturnResult{Loan: loan, AlreadyReturned: already}
	if !already && s.notifier != nil {
		s.notifier.NotifyLoanEvent(ctx, notification.KindReturnConfirmation, loan.ID)
	}
	return
}

func mapBorrowError(err error, input BorrowInput) error {
	switch {
	case errors.Is(err, persistence.ErrActiveLoanExists):
		return &ConflictError{Reason: ErrAlreadyBorrowed, UserID: input.UserID, BookID: input.BookID}
	case errors.Is(err, persistence.ErrNoCopiesAvailable):
		return &ConflictError{Reason: ErrOutOfCopies, UserID: input.UserID, BookID: input.BookID}
	case errors.Is(err, persistence.ErrNotFound):
		return ErrBookNotFound
	default:
		return storeError("borrow copy", err)
	}
}

func mapUserError(err error) error {
	if errors.Is(err, persistence.ErrNotFound) || errors.Is(err, ErrNotFound) {
		return ErrUserNotFound
	}
	return storeError("get user", err)
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return ErrorKind(err)
}
