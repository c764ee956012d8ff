package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/library-lending/internal/persistence"
)

// LendingStore implements persistence.LendingStore. Copy counters are only
// ever changed with conditional updates inside the same transaction as the
// loan row they belong to.
type LendingStore struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
	retry  *RetryHelper
}

// NewLendingStore creates a lending store retrying on lock contention.
func NewLendingStore(pool *ConnectionPool, retry RetryConfig) *LendingStore {
	return &LendingStore{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
		retry:  NewRetryHelper(retry),
	}
}

// BorrowCopy implements persistence.LendingStore.
func (s *LendingStore) BorrowCopy(ctx context.Context, loan persistence.Loan) error {
	if loan.ID == "" || loan.UserID == "" || loan.BookID == "" {
		return persistence.ErrConstraintViolation
	}
	now := loan.BorrowedAt.UTC()
	if loan.CreatedAt.IsZero() {
		loan.CreatedAt = now
	}
	loan.UpdatedAt = loan.CreatedAt

	return s.retry.WithRetry(ctx, func() error {
		return s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			var existing string
			err := s.helper.QueryRowTx(ctx, tx,
				`SELECT id FROM loans WHERE user_id = ? AND book_id = ? AND status = ?`,
				loan.UserID, loan.BookID, persistence.LoanStatusBorrowed,
			).Scan(&existing)
			switch {
			case err == nil:
				return persistence.ErrActiveLoanExists
			case !errors.Is(err, sql.ErrNoRows):
				return s.mapper.MapError(err)
			}

			result, err := s.helper.ExecTx(ctx, tx, `
				UPDATE books
				SET available_copies = available_copies - 1, updated_at = ?
				WHERE id = ? AND available_copies > 0
			`, formatTimestamp(now), loan.BookID)
			if err != nil {
				return s.mapper.MapError(err)
			}
			rowsAffected, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to get rows affected: %w", err)
			}
			if rowsAffected == 0 {
				var one int
				err := s.helper.QueryRowTx(ctx, tx, `SELECT 1 FROM books WHERE id = ?`, loan.BookID).Scan(&one)
				if errors.Is(err, sql.ErrNoRows) {
					return persistence.ErrNotFound
				}
				if err != nil {
					return s.mapper.MapError(err)
				}
				return persistence.ErrNoCopiesAvailable
			}

			_, err = s.helper.ExecTx(ctx, tx, `
				INSERT INTO loans (id, user_id, book_id, borrowed_at, due_date, returned_at, status,
					reminder_sent, penalty_notice_sent, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, NULL, ?, 0, 0, ?, ?)
			`,
				loan.ID,
				loan.UserID,
				loan.BookID,
				formatTimestamp(loan.BorrowedAt),
				formatDate(loan.DueDate),
				persistence.LoanStatusBorrowed,
				formatTimestamp(loan.CreatedAt),
				formatTimestamp(loan.UpdatedAt),
			)
			if err != nil {
				mapped := s.mapper.MapError(err)
				if errors.Is(mapped, persistence.ErrDuplicate) && containsAny(err.Error(), "loans.user_id", "loans.book_id") {
					return persistence.ErrActiveLoanExists
				}
				return mapped
			}
			return nil
		})
	})
}

// CloseLoan implements persistence.LendingStore.
func (s *LendingStore) CloseLoan(ctx context.Context, loanID string, returnedAt time.Time) (persistence.Loan, bool, error) {
	if loanID == "" {
		return persistence.Loan{}, false, persistence.ErrNotFound
	}

	var (
		loan            persistence.Loan
		alreadyReturned bool
	)
	err := s.retry.WithRetry(ctx, func() error {
		return s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			stamp := formatTimestamp(returnedAt)
			result, err := s.helper.ExecTx(ctx, tx, `
				UPDATE loans
				SET status = ?, returned_at = ?, updated_at = ?
				WHERE id = ? AND status = ?
			`, persistence.LoanStatusReturned, stamp, stamp, loanID, persistence.LoanStatusBorrowed)
			if err != nil {
				return s.mapper.MapError(err)
			}
			rowsAffected, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to get rows affected: %w", err)
			}

			if rowsAffected == 1 {
				_, err = s.helper.ExecTx(ctx, tx, `
					UPDATE books
					SET available_copies = available_copies + 1, updated_at = ?
					WHERE id = (SELECT book_id FROM loans WHERE id = ?)
						AND available_copies < total_copies
				`, stamp, loanID)
				if err != nil {
					return s.mapper.MapError(err)
				}
			}

			loan, err = scanLoan(s.helper.QueryRowTx(ctx, tx, `SELECT `+loanColumns+` FROM loans WHERE id = ?`, loanID))
			if err != nil {
				return s.mapper.MapError(err)
			}
			alreadyReturned = rowsAffected == 0
			return nil
		})
	})
	if err != nil {
		return persistence.Loan{}, false, err
	}
	return loan, alreadyReturned, nil
}
