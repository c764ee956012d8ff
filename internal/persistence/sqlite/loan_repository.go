package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/example/library-lending/internal/persistence"
)

const loanColumns = `id, user_id, book_id, borrowed_at, due_date, returned_at, status,
	reminder_sent, penalty_notice_sent, created_at, updated_at`

// LoanRepository implements persistence.LoanRepository using SQLite
type LoanRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewLoanRepository creates a new SQLite loan repository
func NewLoanRepository(pool *ConnectionPool) *LoanRepository {
	return &LoanRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// GetLoan retrieves a loan by ID
func (r *LoanRepository) GetLoan(ctx context.Context, id string) (persistence.Loan, error) {
	if id == "" {
		return persistence.Loan{}, persistence.ErrNotFound
	}
	loan, err := scanLoan(r.helper.QueryRow(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = ?`, id))
	if err != nil {
		return persistence.Loan{}, r.mapper.MapError(err)
	}
	return loan, nil
}

// FindActiveLoan returns the borrowed loan for the pair, if any.
func (r *LoanRepository) FindActiveLoan(ctx context.Context, userID, bookID string) (persistence.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE user_id = ? AND book_id = ? AND status = ?`
	loan, err := scanLoan(r.helper.QueryRow(ctx, query, userID, bookID, persistence.LoanStatusBorrowed))
	if err != nil {
		return persistence.Loan{}, r.mapper.MapError(err)
	}
	return loan, nil
}

// ListCandidates returns borrowed loans matching the window filter, joined with
// the borrower and book, ordered by due date then loan ID.
func (r *LoanRepository) ListCandidates(ctx context.Context, filter persistence.WindowFilter) ([]persistence.LoanCandidate, error) {
	ds, err := windowDataset(filter)
	if err != nil {
		return nil, err
	}
	ds = ds.Select(candidateColumns()...).Order(goqu.I("l.due_date").Asc(), goqu.I("l.id").Asc())

	var rows []candidateRow
	if err := r.helper.Select(ctx, &rows, ds); err != nil {
		return nil, r.mapper.MapError(err)
	}

	candidates := make([]persistence.LoanCandidate, 0, len(rows))
	for _, row := range rows {
		candidate, err := row.toCandidate()
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

// CountCandidates counts the loans ListCandidates would return.
func (r *LoanRepository) CountCandidates(ctx context.Context, filter persistence.WindowFilter) (int, error) {
	ds, err := windowDataset(filter)
	if err != nil {
		return 0, err
	}
	var count int
	if err := r.helper.Get(ctx, &count, ds.Select(goqu.COUNT(goqu.Star()))); err != nil {
		return 0, r.mapper.MapError(err)
	}
	return count, nil
}

// GetCandidate loads one loan with its borrower and book regardless of status.
func (r *LoanRepository) GetCandidate(ctx context.Context, loanID string) (persistence.LoanCandidate, error) {
	ds := candidateDataset().Select(candidateColumns()...).Where(goqu.I("l.id").Eq(loanID))

	var row candidateRow
	if err := r.helper.Get(ctx, &row, ds); err != nil {
		return persistence.LoanCandidate{}, r.mapper.MapError(err)
	}
	return row.toCandidate()
}

// MarkFlag sets the reminder flag if it is still clear. It reports whether this
// call flipped the flag.
func (r *LoanRepository) MarkFlag(ctx context.Context, loanID string, flag persistence.ReminderFlag, at time.Time) (bool, error) {
	column, err := flagColumn(flag)
	if err != nil {
		return false, err
	}

	query := fmt.Sprintf(`UPDATE loans SET %s = 1, updated_at = ? WHERE id = ? AND %s = 0`, column, column)
	result, err := r.helper.Exec(ctx, query, formatTimestamp(at), loanID)
	if err != nil {
		return false, r.mapper.MapError(err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 1 {
		return true, nil
	}

	if _, err := r.GetLoan(ctx, loanID); err != nil {
		return false, err
	}
	return false, nil
}

func flagColumn(flag persistence.ReminderFlag) (string, error) {
	switch flag {
	case persistence.FlagDueTomorrow:
		return "reminder_sent", nil
	case persistence.FlagPenaltyNotice:
		return "penalty_notice_sent", nil
	default:
		return "", fmt.Errorf("unknown reminder flag %q", flag)
	}
}

func candidateDataset() *goqu.SelectDataset {
	return dialect.From(goqu.T("loans").As("l")).
		Join(goqu.T("users").As("u"), goqu.On(goqu.I("u.id").Eq(goqu.I("l.user_id")))).
		Join(goqu.T("books").As("b"), goqu.On(goqu.I("b.id").Eq(goqu.I("l.book_id"))))
}

func windowDataset(filter persistence.WindowFilter) (*goqu.SelectDataset, error) {
	ds := candidateDataset().Where(goqu.I("l.status").Eq(persistence.LoanStatusBorrowed))
	if filter.DueOn != nil {
		ds = ds.Where(goqu.I("l.due_date").Eq(formatDate(*filter.DueOn)))
	}
	if filter.DueBefore != nil {
		ds = ds.Where(
			goqu.I("l.due_date").Lt(formatDate(*filter.DueBefore)),
			goqu.I("l.returned_at").IsNull(),
		)
	}
	if filter.Unflagged != persistence.FlagNone {
		column, err := flagColumn(filter.Unflagged)
		if err != nil {
			return nil, err
		}
		ds = ds.Where(goqu.I("l." + column).Eq(0))
	}
	return ds, nil
}

func candidateColumns() []any {
	return []any{
		goqu.I("l.id").As("id"),
		goqu.I("l.user_id").As("user_id"),
		goqu.I("l.book_id").As("book_id"),
		goqu.I("l.borrowed_at").As("borrowed_at"),
		goqu.I("l.due_date").As("due_date"),
		goqu.I("l.returned_at").As("returned_at"),
		goqu.I("l.status").As("status"),
		goqu.I("l.reminder_sent").As("reminder_sent"),
		goqu.I("l.penalty_notice_sent").As("penalty_notice_sent"),
		goqu.I("l.created_at").As("created_at"),
		goqu.I("l.updated_at").As("updated_at"),
		goqu.I("u.email").As("user_email"),
		goqu.I("u.name").As("user_name"),
		goqu.I("b.title").As("book_title"),
	}
}

type candidateRow struct {
	ID                string         `db:"id"`
	UserID            string         `db:"user_id"`
	BookID            string         `db:"book_id"`
	BorrowedAt        string         `db:"borrowed_at"`
	DueDate           string         `db:"due_date"`
	ReturnedAt        sql.NullString `db:"returned_at"`
	Status            string         `db:"status"`
	ReminderSent      bool           `db:"reminder_sent"`
	PenaltyNoticeSent bool           `db:"penalty_notice_sent"`
	CreatedAt         string         `db:"created_at"`
	UpdatedAt         string         `db:"updated_at"`
	UserEmail         string         `db:"user_email"`
	UserName          string         `db:"user_name"`
	BookTitle         string         `db:"book_title"`
}

func (row candidateRow) toCandidate() (persistence.LoanCandidate, error) {
	loan := persistence.Loan{
		ID:                row.ID,
		UserID:            row.UserID,
		BookID:            row.BookID,
		Status:            row.Status,
		ReminderSent:      row.ReminderSent,
		PenaltyNoticeSent: row.PenaltyNoticeSent,
	}
	if err := fillLoanDates(&loan, row.BorrowedAt, row.DueDate, row.ReturnedAt, row.CreatedAt, row.UpdatedAt); err != nil {
		return persistence.LoanCandidate{}, err
	}
	return persistence.LoanCandidate{
		Loan:      loan,
		UserEmail: row.UserEmail,
		UserName:  row.UserName,
		BookTitle: row.BookTitle,
	}, nil
}

func scanLoan(row rowScanner) (persistence.Loan, error) {
	var loan persistence.Loan
	var borrowedAt, dueDate, createdAt, updatedAt string
	var returnedAt sql.NullString

	err := row.Scan(
		&loan.ID,
		&loan.UserID,
		&loan.BookID,
		&borrowedAt,
		&dueDate,
		&returnedAt,
		&loan.Status,
		&loan.ReminderSent,
		&loan.PenaltyNoticeSent,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Loan{}, persistence.ErrNotFound
		}
		return persistence.Loan{}, err
	}
	if err := fillLoanDates(&loan, borrowedAt, dueDate, returnedAt, createdAt, updatedAt); err != nil {
		return persistence.Loan{}, err
	}
	return loan, nil
}

func fillLoanDates(loan *persistence.Loan, borrowedAt, dueDate string, returnedAt sql.NullString, createdAt, updatedAt string) error {
	var err error
	if loan.BorrowedAt, err = parseTimestamp("borrowed_at", borrowedAt); err != nil {
		return err
	}
	if loan.DueDate, err = parseDate("due_date", dueDate); err != nil {
		return err
	}
	if returnedAt.Valid {
		t, err := parseTimestamp("returned_at", returnedAt.String)
		if err != nil {
			return err
		}
		loan.ReturnedAt = &t
	}
	if loan.CreatedAt, err = parseTimestamp("created_at", createdAt); err != nil {
		return err
	}
	if loan.UpdatedAt, err = parseTimestamp("updated_at", updatedAt); err != nil {
		return err
	}
	return nil
}
