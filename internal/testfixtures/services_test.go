package testfixtures

import (
	"context"
	"testing"
	"time"

	"github.com/example/library-lending/internal/application"
)

type fixedUsers struct {
	user application.User
}

func (f fixedUsers) GetUser(ctx context.Context, id string) (application.User, error) {
	if id != f.user.ID {
		return application.User{}, application.ErrUserNotFound
	}
	return f.user, nil
}

type capturingStore struct {
	borrowed []application.Loan
}

func (c *capturingStore) BorrowCopy(ctx context.Context, loan application.Loan) error {
	c.borrowed = append(c.borrowed, loan)
	return nil
}

func (c *capturingStore) CloseLoan(ctx context.Context, loanID string, returnedAt time.Time) (application.Loan, bool, error) {
	return application.Loan{}, false, application.ErrLoanNotFound
}

func TestServiceFactoryNewLendingService(t *testing.T) {
	factory := NewServiceFactory()
	member := NewUserFixture().Application()
	store := &capturingStore{}

	svc := factory.NewLendingService(application.LendingDeps{
		Users:      fixedUsers{user: member},
		Store:      store,
		PeriodDays: 14,
	})

	loan, err := svc.Borrow(context.Background(), application.BorrowInput{UserID: member.ID, BookID: "book-x"})
	if err != nil {
		t.Fatalf("Borrow returned error: %v", err)
	}

	if loan.ID != "id-1" {
		t.Fatalf("expected generated ID id-1, got %q", loan.ID)
	}
	if len(store.borrowed) != 1 || store.borrowed[0].ID != loan.ID {
		t.Fatalf("store received unexpected loans: %+v", store.borrowed)
	}
	if !loan.BorrowedAt.Equal(factory.Clock.Now()) {
		t.Fatalf("expected borrow time %v, got %v", factory.Clock.Now(), loan.BorrowedAt)
	}
	wantDue := factory.Clock.Today().AddDate(0, 0, 14)
	if !loan.DueDate.Equal(wantDue) {
		t.Fatalf("expected due date %v, got %v", wantDue, loan.DueDate)
	}
}

func TestServiceFactoryWindowSelectorFollowsClock(t *testing.T) {
	factory := NewServiceFactory()
	selector := factory.NewWindowSelector(nil, nil)

	query, err := selector.Query(application.CategoryDueTomorrow)
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	if query.DueOn == nil || !query.DueOn.Equal(ReferenceDate().AddDate(0, 0, 1)) {
		t.Fatalf("unexpected due-tomorrow window: %+v", query)
	}

	factory.Clock.AdvanceDays(2)
	query, err = selector.Query(application.CategoryDueTomorrow)
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	if !query.DueOn.Equal(ReferenceDate().AddDate(0, 0, 3)) {
		t.Fatalf("window did not follow clock: %v", query.DueOn)
	}
}

func TestFixturesConvertConsistently(t *testing.T) {
	loan := NewLoanFixture("user-a", "book-a",
		WithLoanDueInDays(-3),
		WithLoanPenaltyNoticeSent(),
	)

	p := loan.Persistence()
	a := loan.Application()
	if p.Status != "BORROWED" || a.Status != application.LoanBorrowed {
		t.Fatalf("unexpected status: %q / %q", p.Status, a.Status)
	}
	if !p.DueDate.Equal(ReferenceDate().AddDate(0, 0, -3)) || !a.DueDate.Equal(p.DueDate) {
		t.Fatalf("due dates differ: %v / %v", p.DueDate, a.DueDate)
	}
	if !p.PenaltyNoticeSent || p.ReminderSent {
		t.Fatalf("unexpected flags: %+v", p)
	}

	returned := NewLoanFixture("user-a", "book-a", WithLoanReturned(ReferenceTime()))
	if returned.Status() != "RETURNED" || returned.Persistence().ReturnedAt == nil {
		t.Fatalf("returned fixture not marked: %+v", returned)
	}
}
