package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/example/library-lending/internal/scheduler"
)

// WindowSelector answers which borrowed loans fall in each reminder window.
// Every query reads the store; nothing is cached between calls.
type WindowSelector struct {
	loans    LoanRepository
	calendar scheduler.Calendar
	penalty  scheduler.PenaltyPolicy
	now      func() time.Time
	logger   *slog.Logger
}

// NewWindowSelector constructs a selector.
func NewWindowSelector(loans LoanRepository, calendar scheduler.Calendar, penalty scheduler.PenaltyPolicy, now func() time.Time, logger *slog.Logger) *WindowSelector {
	if now == nil {
		now = time.Now
	}
	return &WindowSelector{
		loans:    loans,
		calendar: calendar,
		penalty:  penalty,
		now:      now,
		logger:   defaultLogger(logger),
	}
}

// Query returns the repository query for category relative to now.
func (w *WindowSelector) Query(category Category) (WindowQuery, error) {
	now := w.now()
	switch category {
	case CategoryDueToday:
		today := w.calendar.Today(now)
		return WindowQuery{DueOn: &today}, nil
	case CategoryDueTomorrow:
		tomorrow := w.calendar.Tomorrow(now)
		return WindowQuery{DueOn: &tomorrow, Unflagged: FlagDueTomorrow}, nil
	case CategoryOverdue:
		today := w.calendar.Today(now)
		return WindowQuery{DueBefore: &today, Unflagged: FlagPenaltyNotice}, nil
	default:
		return WindowQuery{}, fmt.Errorf("unknown window %q", category)
	}
}

// Select lists the candidates of category. Overdue candidates carry their
// days overdue and penalty, ordered by due date ascending.
func (w *WindowSelector) Select(ctx context.Context, category Category) (candidates []Candidate, err error) {
	logger := serviceLogger(ctx, w.logger, "WindowSelector", "Select", "category", category)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to select window", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.DebugContext(ctx, "window selected", "count", len(candidates))
	}()

	query, err := w.Query(category)
	if err != nil {
		return nil, err
	}
	listed, err := w.loans.ListCandidates(ctx, query)
	if err != nil {
		return nil, storeError("list candidates", err)
	}
	if category != CategoryOverdue {
		return listed, nil
	}

	today := w.calendar.Today(w.now())
	candidates = listed[:0]
	for _, c := range listed {
		if w.annotateOverdue(&c, today) {
			candidates = append(candidates, c)
		}
	}
	return candidates, nil
}

// annotateOverdue fills the overdue fields and reports whether the loan is
// at least one day overdue.
func (w *WindowSelector) annotateOverdue(c *Candidate, today time.Time) bool {
	days := scheduler.DaysOverdue(c.Loan.DueDate, today)
	if days < 1 {
		return false
	}
	c.DaysOverdue = days
	c.Penalty = w.penalty.Amount(days)
	return true
}

// Count returns the size of the category window.
func (w *WindowSelector) Count(ctx context.Context, category Category) (int, error) {
	query, err := w.Query(category)
	if err != nil {
		return 0, err
	}
	n, err := w.loans.CountCandidates(ctx, query)
	if err != nil {
		return 0, storeError("count candidates", err)
	}
	return n, nil
}

// CountWindows counts the three windows concurrently. It has no side effects.
func (w *WindowSelector) CountWindows(ctx context.Context) (PreviewCounts, error) {
	var counts PreviewCounts
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		counts.DueToday, err = w.Count(gctx, CategoryDueToday)
		return err
	})
	g.Go(func() (err error) {
		counts.DueTomorrow, err = w.Count(gctx, CategoryDueTomorrow)
		return err
	})
	g.Go(func() (err error) {
		counts.Overdue, err = w.Count(gctx, CategoryOverdue)
		return err
	})
	if err := g.Wait(); err != nil {
		return PreviewCounts{}, err
	}
	counts.Total = counts.DueToday + counts.DueTomorrow + counts.Overdue
	return counts, nil
}
