package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/library-lending/internal/application"
	"github.com/example/library-lending/internal/persistence"
)

var (
	userCounter uint64
	bookCounter uint64
	loanCounter uint64
)

// Monday morning, so due dates a few days out stay within one week.
var referenceTime = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ReferenceDate returns ReferenceTime truncated to its UTC calendar date.
func ReferenceDate() time.Time {
	return time.Date(referenceTime.Year(), referenceTime.Month(), referenceTime.Day(), 0, 0, 0, 0, time.UTC)
}

// ----------------------------- User fixtures -----------------------------

// UserFixture represents a deterministic library member.
type UserFixture struct {
	ID             string
	Email          string
	Name           string
	ApprovalStatus string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// UserOption configures the generated user fixture.
type UserOption func(*UserFixture)

// NewUserFixture returns an approved member with optional overrides.
func NewUserFixture(opts ...UserOption) UserFixture {
	idx := atomic.AddUint64(&userCounter, 1)
	id := fmt.Sprintf("user-%03d", idx)
	created := referenceTime.AddDate(0, -1, 0).Add(time.Duration(idx) * time.Minute)
	fixture := UserFixture{
		ID:             id,
		Email:          fmt.Sprintf("%s@school.example", id),
		Name:           fmt.Sprintf("Student %03d", idx),
		ApprovalStatus: persistence.ApprovalApproved,
		CreatedAt:      created,
		UpdatedAt:      created,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithUserID overrides the generated user ID.
func WithUserID(id string) UserOption {
	return func(f *UserFixture) {
		f.ID = id
	}
}

// WithUserEmail overrides the generated email address.
func WithUserEmail(email string) UserOption {
	return func(f *UserFixture) {
		f.Email = email
	}
}

// WithUserName overrides the generated display name.
func WithUserName(name string) UserOption {
	return func(f *UserFixture) {
		f.Name = name
	}
}

// WithUserApproval sets the approval status (APPROVED, PENDING or REJECTED).
func WithUserApproval(status string) UserOption {
	return func(f *UserFixture) {
		f.ApprovalStatus = status
	}
}

// WithUserCreatedAt sets both timestamps, which drive inactivity selection.
func WithUserCreatedAt(at time.Time) UserOption {
	return func(f *UserFixture) {
		f.CreatedAt = at
		f.UpdatedAt = at
	}
}

// Persistence converts the fixture into a persistence.User.
func (f UserFixture) Persistence() persistence.User {
	return persistence.User{
		ID:             f.ID,
		Email:          f.Email,
		Name:           f.Name,
		ApprovalStatus: f.ApprovalStatus,
		CreatedAt:      f.CreatedAt,
		UpdatedAt:      f.UpdatedAt,
	}
}

// Application converts the fixture into an application.User.
func (f UserFixture) Application() application.User {
	return application.User{
		ID:             f.ID,
		Email:          f.Email,
		Name:           f.Name,
		ApprovalStatus: f.ApprovalStatus,
		CreatedAt:      f.CreatedAt,
	}
}

// ----------------------------- Book fixtures -----------------------------

// BookFixture represents a catalog entry and its copy counters.
type BookFixture struct {
	ID              string
	Title           string
	Author          string
	TotalCopies     int
	AvailableCopies int
	CreatedAt       time.Time
}

// BookOption configures the generated book fixture.
type BookOption func(*BookFixture)

// NewBookFixture returns a book with a single free copy unless overridden.
func NewBookFixture(opts ...BookOption) BookFixture {
	idx := atomic.AddUint64(&bookCounter, 1)
	fixture := BookFixture{
		ID:              fmt.Sprintf("book-%03d", idx),
		Title:           fmt.Sprintf("Field Guide Vol. %d", idx),
		Author:          "A. Librarian",
		TotalCopies:     1,
		AvailableCopies: 1,
		CreatedAt:       referenceTime.AddDate(0, -2, 0),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithBookID overrides the generated book ID.
func WithBookID(id string) BookOption {
	return func(f *BookFixture) {
		f.ID = id
	}
}

// WithBookTitle overrides the generated title.
func WithBookTitle(title string) BookOption {
	return func(f *BookFixture) {
		f.Title = title
	}
}

// WithBookCopies sets the total and available copy counters.
func WithBookCopies(total, available int) BookOption {
	return func(f *BookFixture) {
		f.TotalCopies = total
		f.AvailableCopies = available
	}
}

// Persistence converts the fixture into a persistence.Book.
func (f BookFixture) Persistence() persistence.Book {
	return persistence.Book{
		ID:              f.ID,
		Title:           f.Title,
		Author:          f.Author,
		TotalCopies:     f.TotalCopies,
		AvailableCopies: f.AvailableCopies,
		CreatedAt:       f.CreatedAt,
		UpdatedAt:       f.CreatedAt,
	}
}

// Application converts the fixture into an application.Book.
func (f BookFixture) Application() application.Book {
	return application.Book{
		ID:              f.ID,
		Title:           f.Title,
		Author:          f.Author,
		TotalCopies:     f.TotalCopies,
		AvailableCopies: f.AvailableCopies,
	}
}

// ----------------------------- Loan fixtures -----------------------------

// LoanFixture represents a loan with its reminder flags.
type LoanFixture struct {
	ID                string
	UserID            string
	BookID            string
	BorrowedAt        time.Time
	DueDate           time.Time
	ReturnedAt        *time.Time
	ReminderSent      bool
	PenaltyNoticeSent bool
}

// LoanOption configures the generated loan fixture.
type LoanOption func(*LoanFixture)

// NewLoanFixture returns an open loan for userID and bookID, borrowed a week
// before ReferenceTime and due on ReferenceDate.
func NewLoanFixture(userID, bookID string, opts ...LoanOption) LoanFixture {
	idx := atomic.AddUint64(&loanCounter, 1)
	fixture := LoanFixture{
		ID:         fmt.Sprintf("loan-%03d", idx),
		UserID:     userID,
		BookID:     bookID,
		BorrowedAt: referenceTime.AddDate(0, 0, -7),
		DueDate:    ReferenceDate(),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithLoanID overrides the generated loan ID.
func WithLoanID(id string) LoanOption {
	return func(f *LoanFixture) {
		f.ID = id
	}
}

// WithLoanDueInDays sets the due date relative to ReferenceDate. Negative
// values produce overdue loans.
func WithLoanDueInDays(days int) LoanOption {
	return func(f *LoanFixture) {
		f.DueDate = ReferenceDate().AddDate(0, 0, days)
	}
}

// WithLoanDueDate sets an absolute due date.
func WithLoanDueDate(due time.Time) LoanOption {
	return func(f *LoanFixture) {
		f.DueDate = due
	}
}

// WithLoanBorrowedAt overrides the borrow timestamp.
func WithLoanBorrowedAt(at time.Time) LoanOption {
	return func(f *LoanFixture) {
		f.BorrowedAt = at
	}
}

// WithLoanReturned marks the loan as returned at the supplied time.
func WithLoanReturned(at time.Time) LoanOption {
	return func(f *LoanFixture) {
		returned := at
		f.ReturnedAt = &returned
	}
}

// WithLoanReminderSent sets the due-tomorrow reminder flag.
func WithLoanReminderSent() LoanOption {
	return func(f *LoanFixture) {
		f.ReminderSent = true
	}
}

// WithLoanPenaltyNoticeSent sets the overdue notice flag.
func WithLoanPenaltyNoticeSent() LoanOption {
	return func(f *LoanFixture) {
		f.PenaltyNoticeSent = true
	}
}

// Status returns BORROWED or RETURNED depending on ReturnedAt.
func (f LoanFixture) Status() string {
	if f.ReturnedAt != nil {
		return persistence.LoanStatusReturned
	}
	return persistence.LoanStatusBorrowed
}

// Persistence converts the fixture into a persistence.Loan.
func (f LoanFixture) Persistence() persistence.Loan {
	return persistence.Loan{
		ID:                f.ID,
		UserID:            f.UserID,
		BookID:            f.BookID,
		BorrowedAt:        f.BorrowedAt,
		DueDate:           f.DueDate,
		ReturnedAt:        cloneTime(f.ReturnedAt),
		Status:            f.Status(),
		ReminderSent:      f.ReminderSent,
		PenaltyNoticeSent: f.PenaltyNoticeSent,
		CreatedAt:         f.BorrowedAt,
		UpdatedAt:         f.BorrowedAt,
	}
}

// Application converts the fixture into an application.Loan.
func (f LoanFixture) Application() application.Loan {
	return application.Loan{
		ID:                f.ID,
		UserID:            f.UserID,
		BookID:            f.BookID,
		BorrowedAt:        f.BorrowedAt,
		DueDate:           f.DueDate,
		ReturnedAt:        cloneTime(f.ReturnedAt),
		Status:            f.Status(),
		ReminderSent:      f.ReminderSent,
		PenaltyNoticeSent: f.PenaltyNoticeSent,
	}
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
