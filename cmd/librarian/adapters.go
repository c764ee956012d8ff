package main

import (
	"context"
	"time"

	"github.com/example/library-lending/internal/application"
	"github.com/example/library-lending/internal/persistence"
)

// The adapters below translate between the application ports and the
// persistence repositories. Errors pass through untouched; the application
// layer matches the persistence sentinels itself.

type loanRepositoryAdapter struct {
	repo persistence.LoanRepository
}

func newLoanRepositoryAdapter(repo persistence.LoanRepository) *loanRepositoryAdapter {
	return &loanRepositoryAdapter{repo: repo}
}

func (a *loanRepositoryAdapter) GetLoan(ctx context.Context, id string) (application.Loan, error) {
	loan, err := a.repo.GetLoan(ctx, id)
	if err != nil {
		return application.Loan{}, err
	}
	return toApplicationLoan(loan), nil
}

func (a *loanRepositoryAdapter) ListCandidates(ctx context.Context, query application.WindowQuery) ([]application.Candidate, error) {
	rows, err := a.repo.ListCandidates(ctx, toWindowFilter(query))
	if err != nil {
		return nil, err
	}
	candidates := make([]application.Candidate, 0, len(rows))
	for _, row := range rows {
		candidates = append(candidates, toApplicationCandidate(row))
	}
	return candidates, nil
}

func (a *loanRepositoryAdapter) CountCandidates(ctx context.Context, query application.WindowQuery) (int, error) {
	return a.repo.CountCandidates(ctx, toWindowFilter(query))
}

func (a *loanRepositoryAdapter) GetCandidate(ctx context.Context, loanID string) (application.Candidate, error) {
	row, err := a.repo.GetCandidate(ctx, loanID)
	if err != nil {
		return application.Candidate{}, err
	}
	return toApplicationCandidate(row), nil
}

func (a *loanRepositoryAdapter) MarkFlag(ctx context.Context, loanID string, flag application.ReminderFlag, at time.Time) (bool, error) {
	return a.repo.MarkFlag(ctx, loanID, persistence.ReminderFlag(flag), at)
}

type lendingStoreAdapter struct {
	store persistence.LendingStore
}

func newLendingStoreAdapter(store persistence.LendingStore) *lendingStoreAdapter {
	return &lendingStoreAdapter{store: store}
}

func (a *lendingStoreAdapter) BorrowCopy(ctx context.Context, loan application.Loan) error {
	return a.store.BorrowCopy(ctx, toPersistenceLoan(loan))
}

func (a *lendingStoreAdapter) CloseLoan(ctx context.Context, loanID string, returnedAt time.Time) (application.Loan, bool, error) {
	loan, already, err := a.store.CloseLoan(ctx, loanID, returnedAt)
	if err != nil {
		return application.Loan{}, false, err
	}
	return toApplicationLoan(loan), already, nil
}

// userDirectoryAdapter serves both the member lookups and the inactivity query.
type userDirectoryAdapter struct {
	repo persistence.UserRepository
}

func newUserDirectoryAdapter(repo persistence.UserRepository) *userDirectoryAdapter {
	return &userDirectoryAdapter{repo: repo}
}

func (a *userDirectoryAdapter) GetUser(ctx context.Context, id string) (application.User, error) {
	user, err := a.repo.GetUser(ctx, id)
	if err != nil {
		return application.User{}, err
	}
	return toApplicationUser(user), nil
}

func (a *userDirectoryAdapter) ListInactiveUsers(ctx context.Context, since time.Time, noticeKind string) ([]application.User, error) {
	rows, err := a.repo.ListInactiveUsers(ctx, since, noticeKind)
	if err != nil {
		return nil, err
	}
	users := make([]application.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, toApplicationUser(row))
	}
	return users, nil
}

type auditLogAdapter struct {
	repo persistence.NotificationLogRepository
}

func newAuditLogAdapter(repo persistence.NotificationLogRepository) *auditLogAdapter {
	return &auditLogAdapter{repo: repo}
}

func (a *auditLogAdapter) Append(ctx context.Context, entry application.AuditEntry) error {
	return a.repo.AppendEntry(ctx, persistence.NotificationLogEntry{
		ID:             entry.ID,
		RecipientEmail: entry.RecipientEmail,
		RecipientName:  entry.RecipientName,
		Kind:           entry.Kind,
		Status:         entry.Status,
		Subject:        entry.Subject,
		ErrorMessage:   cloneString(entry.ErrorMessage),
		Attempts:       entry.Attempts,
		LoanID:         cloneString(entry.LoanID),
		CorrelationID:  cloneString(entry.CorrelationID),
		Metadata:       entry.Metadata,
		SentAt:         entry.SentAt,
	})
}

func (a *auditLogAdapter) List(ctx context.Context, filter application.AuditFilter) ([]application.AuditEntry, error) {
	rows, err := a.repo.ListEntries(ctx, persistence.NotificationLogFilter{
		Status:        filter.Status,
		Kind:          filter.Kind,
		CorrelationID: filter.CorrelationID,
		Limit:         filter.Limit,
	})
	if err != nil {
		return nil, err
	}
	entries := make([]application.AuditEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, application.AuditEntry{
			ID:             row.ID,
			RecipientEmail: row.RecipientEmail,
			RecipientName:  row.RecipientName,
			Kind:           row.Kind,
			Status:         row.Status,
			Subject:        row.Subject,
			ErrorMessage:   cloneString(row.ErrorMessage),
			Attempts:       row.Attempts,
			LoanID:         cloneString(row.LoanID),
			CorrelationID:  cloneString(row.CorrelationID),
			Metadata:       row.Metadata,
			SentAt:         row.SentAt,
		})
	}
	return entries, nil
}

type runLockAdapter struct {
	repo persistence.RunLockRepository
}

func newRunLockAdapter(repo persistence.RunLockRepository) *runLockAdapter {
	return &runLockAdapter{repo: repo}
}

func (a *runLockAdapter) Acquire(ctx context.Context, lock application.RunLock) (bool, error) {
	return a.repo.AcquireLock(ctx, persistence.RunLock{
		Name:       lock.Name,
		Holder:     lock.Holder,
		AcquiredAt: lock.AcquiredAt,
		ExpiresAt:  lock.ExpiresAt,
	})
}

func (a *runLockAdapter) Release(ctx context.Context, name, holder string) error {
	return a.repo.ReleaseLock(ctx, name, holder)
}

func toWindowFilter(query application.WindowQuery) persistence.WindowFilter {
	return persistence.WindowFilter{
		DueOn:     cloneTime(query.DueOn),
		DueBefore: cloneTime(query.DueBefore),
		Unflagged: persistence.ReminderFlag(query.Unflagged),
	}
}

func toApplicationCandidate(row persistence.LoanCandidate) application.Candidate {
	return application.Candidate{
		Loan:      toApplicationLoan(row.Loan),
		Email:     row.UserEmail,
		Name:      row.UserName,
		BookTitle: row.BookTitle,
	}
}

func toApplicationLoan(model persistence.Loan) application.Loan {
	return application.Loan{
		ID:                model.ID,
		UserID:            model.UserID,
		BookID:            model.BookID,
		BorrowedAt:        model.BorrowedAt,
		DueDate:           model.DueDate,
		ReturnedAt:        cloneTime(model.ReturnedAt),
		Status:            model.Status,
		ReminderSent:      model.ReminderSent,
		PenaltyNoticeSent: model.PenaltyNoticeSent,
	}
}

func toPersistenceLoan(loan application.Loan) persistence.Loan {
	return persistence.Loan{
		ID:                loan.ID,
		UserID:            loan.UserID,
		BookID:            loan.BookID,
		BorrowedAt:        loan.BorrowedAt,
		DueDate:           loan.DueDate,
		ReturnedAt:        cloneTime(loan.ReturnedAt),
		Status:            loan.Status,
		ReminderSent:      loan.ReminderSent,
		PenaltyNoticeSent: loan.PenaltyNoticeSent,
	}
}

func toApplicationUser(model persistence.User) application.User {
	return application.User{
		ID:             model.ID,
		Email:          model.Email,
		Name:           model.Name,
		ApprovalStatus: model.ApprovalStatus,
		CreatedAt:      model.CreatedAt,
	}
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	v := *value
	return &v
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	v := *value
	return &v
}
