package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/library-lending/internal/notification"
	"github.com/example/library-lending/internal/persistence"
)

// Confirmations sends borrow and return confirmations through a JobRunner so
// the lending request never waits on delivery.
type Confirmations struct {
	runner     JobRunner
	loans      LoanRepository
	dispatcher *Dispatcher
	logger     *slog.Logger
}

// NewConfirmations constructs the notifier. A nil runner sends inline.
func NewConfirmations(runner JobRunner, loans LoanRepository, dispatcher *Dispatcher, logger *slog.Logger) *Confirmations {
	return &Confirmations{runner: runner, loans: loans, dispatcher: dispatcher, logger: defaultLogger(logger)}
}

// NotifyLoanEvent implements LoanNotifier.
func (c *Confirmations) NotifyLoanEvent(ctx context.Context, kind notification.Kind, loanID string) {
	if c == nil || c.dispatcher == nil || c.loans == nil {
		return
	}
	logger := serviceLogger(ctx, c.logger, "Confirmations", "NotifyLoanEvent", "kind", kind, "loan_id", loanID)

	job := func(ctx context.Context) (any, error) {
		candidate, err := c.loans.GetCandidate(ctx, loanID)
		if err != nil {
			if errors.Is(err, persistence.ErrNotFound) {
				return nil, ErrLoanNotFound
			}
			return nil, storeError("load loan", err)
		}
		return c.dispatcher.Dispatch(ctx, candidateMessage(kind, candidate, ""))
	}

	if c.runner == nil {
		if _, err := job(context.WithoutCancel(ctx)); err != nil {
			logger.WarnContext(ctx, "confirmation not delivered", "error", err, "error_kind", ErrorKind(err))
		}
		return
	}
	if _, err := c.runner.Submit(ctx, "confirmation:"+string(kind), job); err != nil {
		logger.WarnContext(ctx, "failed to schedule confirmation", "error", err)
	}
}
