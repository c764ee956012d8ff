package application

import (
	"context"
	"errors"
	"testing"

	"github.com/example/library-lending/internal/scheduler"
)

func newTestSelector(t *testing.T, loans LoanRepository) *WindowSelector {
	t.Helper()
	return NewWindowSelector(loans, scheduler.NewCalendar(nil), testPenalty(t), fixedNow, discardLogger())
}

func TestWindowSelector_Select(t *testing.T) {
	returned := candidate("returned", "r@school.test", day(-1))
	returned.Loan.Status = LoanReturned
	flagged := candidate("flagged", "f@school.test", day(1))
	flagged.Loan.ReminderSent = true
	noticed := candidate("noticed", "n@school.test", day(-5))
	noticed.Loan.PenaltyNoticeSent = true

	loans := newLoanRepoStub(
		candidate("today", "t@school.test", day(0)),
		candidate("tomorrow", "m@school.test", day(1)),
		candidate("late3", "a@school.test", day(-3)),
		candidate("late1", "b@school.test", day(-1)),
		candidate("later", "c@school.test", day(5)),
		returned, flagged, noticed,
	)
	selector := newTestSelector(t, loans)

	tests := []struct {
		name     string
		category Category
		want     []string
	}{
		{name: "due today", category: CategoryDueToday, want: []string{"today"}},
		{name: "due tomorrow skips flagged", category: CategoryDueTomorrow, want: []string{"tomorrow"}},
		{name: "overdue ordered by due date", category: CategoryOverdue, want: []string{"late3", "late1"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := selector.Select(context.Background(), tc.category)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("expected %v, got %d candidates", tc.want, len(got))
			}
			for i, id := range tc.want {
				if got[i].Loan.ID != id {
					t.Fatalf("position %d: expected %s, got %s", i, id, got[i].Loan.ID)
				}
			}
		})
	}

	t.Run("overdue carries days and penalty", func(t *testing.T) {
		got, err := selector.Select(context.Background(), CategoryOverdue)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got[0].DaysOverdue != 3 || got[0].Penalty.StringFixed(2) != "1.50" {
			t.Fatalf("expected 3 days and 1.50, got %d and %s", got[0].DaysOverdue, got[0].Penalty)
		}
		if got[1].DaysOverdue != 1 || got[1].Penalty.StringFixed(2) != "0.50" {
			t.Fatalf("expected 1 day and 0.50, got %d and %s", got[1].DaysOverdue, got[1].Penalty)
		}
	})

	t.Run("unknown category", func(t *testing.T) {
		if _, err := selector.Select(context.Background(), Category("weekly")); err == nil {
			t.Fatalf("expected an error for unknown category")
		}
	})

	t.Run("store failure", func(t *testing.T) {
		broken := newLoanRepoStub()
		broken.listErr = errors.New("unable to open database file")
		_, err := newTestSelector(t, broken).Select(context.Background(), CategoryDueToday)

		var sErr *StoreError
		if !errors.As(err, &sErr) {
			t.Fatalf("expected StoreError, got %v", err)
		}
	})
}

func TestWindowSelector_CountWindows(t *testing.T) {
	loans := newLoanRepoStub(
		candidate("a", "a@school.test", day(0)),
		candidate("b", "b@school.test", day(0)),
		candidate("c", "c@school.test", day(1)),
		candidate("d", "d@school.test", day(-2)),
	)

	counts, err := newTestSelector(t, loans).CountWindows(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := PreviewCounts{DueToday: 2, DueTomorrow: 1, Overdue: 1, Total: 4}
	if counts != want {
		t.Fatalf("expected %+v, got %+v", want, counts)
	}
	if len(loans.marks) != 0 {
		t.Fatalf("preview must not touch flags")
	}
}
