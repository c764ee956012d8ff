package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/library-lending/internal/notification"
	"github.com/example/library-lending/internal/persistence"
	"github.com/example/library-lending/internal/queue"
	"github.com/example/library-lending/internal/scheduler"
)

// BatchWorkerDeps wires a BatchWorker.
type BatchWorkerDeps struct {
	Signer   *queue.Signer
	Loans    LoanRepository
	Direct   *DirectExecutor
	Calendar scheduler.Calendar
	Penalty  scheduler.PenaltyPolicy
	Now      func() time.Time
	Logger   *slog.Logger
}

// BatchWorker delivers batches handed back by the queue. Every item is
// checked again before sending because the loan may have changed since the
// batch was built.
type BatchWorker struct {
	signer   *queue.Signer
	loans    LoanRepository
	direct   *DirectExecutor
	calendar scheduler.Calendar
	penalty  scheduler.PenaltyPolicy
	now      func() time.Time
	logger   *slog.Logger
}

// NewBatchWorker constructs a worker.
func NewBatchWorker(deps BatchWorkerDeps) *BatchWorker {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &BatchWorker{
		signer:   deps.Signer,
		loans:    deps.Loans,
		direct:   deps.Direct,
		calendar: deps.Calendar,
		penalty:  deps.Penalty,
		now:      deps.Now,
		logger:   defaultLogger(deps.Logger),
	}
}

// HandleSealed verifies and decodes body, then processes the batch.
func (w *BatchWorker) HandleSealed(ctx context.Context, body []byte) (BatchReport, error) {
	if w.signer == nil {
		return BatchReport{}, &ConfigurationError{Key: "queue.signing_key"}
	}
	batch, err := w.signer.Open(body)
	if err != nil {
		if errors.Is(err, queue.ErrInvalidSignature) {
			return BatchReport{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
		vErr := &ValidationError{}
		vErr.add("body", err.Error())
		return BatchReport{}, vErr
	}
	return w.Process(ctx, batch)
}

// Process delivers each still-eligible item of batch.
func (w *BatchWorker) Process(ctx context.Context, batch queue.Batch) (report BatchReport, err error) {
	logger := serviceLogger(ctx, w.logger, "BatchWorker", "Process",
		"correlation_id", batch.CorrelationID,
		"sequence", batch.Sequence,
		"total", batch.Total,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "batch aborted", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "batch processed",
			"processed", report.Processed,
			"sent", report.Sent,
			"failed", report.Failed,
			"skipped", report.Skipped,
		)
	}()

	report.CorrelationID = batch.CorrelationID
	today := w.calendar.Today(w.now())
	for _, item := range batch.Items {
		if err = ctx.Err(); err != nil {
			return report, err
		}

		kind, kindErr := notification.ParseKind(item.Kind)
		if kindErr != nil {
			report.record(Detail{LoanID: item.LoanID, Kind: item.Kind, Status: string(OutcomeSkipped), Error: kindErr.Error()}, OutcomeSkipped)
			continue
		}

		candidate, getErr := w.loans.GetCandidate(ctx, item.LoanID)
		if getErr != nil {
			if errors.Is(getErr, persistence.ErrNotFound) {
				report.record(Detail{LoanID: item.LoanID, Kind: item.Kind, Status: string(OutcomeSkipped), Error: "loan not found"}, OutcomeSkipped)
				continue
			}
			return report, storeError("load loan", getErr)
		}

		if reason := w.ineligible(kind, &candidate, today); reason != "" {
			report.record(Detail{
				LoanID: item.LoanID,
				UserID: candidate.Loan.UserID,
				Email:  candidate.Email,
				Kind:   item.Kind,
				Status: string(OutcomeSkipped),
				Error:  reason,
			}, OutcomeSkipped)
			continue
		}

		if err = w.direct.dispatchOne(ctx, kind, candidate, batch.CorrelationID, &report); err != nil {
			return report, err
		}
	}
	return report, nil
}

// ineligible returns why the candidate should no longer receive kind, or ""
// when it should. Overdue candidates are annotated with today's figures.
func (w *BatchWorker) ineligible(kind notification.Kind, c *Candidate, today time.Time) string {
	if c.Loan.Status != LoanBorrowed {
		return "loan is no longer borrowed"
	}
	switch kind {
	case notification.KindDueTomorrow:
		if c.Loan.ReminderSent {
			return "reminder already sent"
		}
	case notification.KindOverduePenalty:
		if c.Loan.PenaltyNoticeSent {
			return "penalty notice already sent"
		}
		days := scheduler.DaysOverdue(c.Loan.DueDate, today)
		if days < 1 {
			return "loan is not overdue"
		}
		c.DaysOverdue = days
		c.Penalty = w.penalty.Amount(days)
	}
	return ""
}
