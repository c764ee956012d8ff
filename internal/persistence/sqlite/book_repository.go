package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/example/library-lending/internal/persistence"
)

// BookRepository implements persistence.BookRepository using SQLite
type BookRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewBookRepository creates a new SQLite book repository
func NewBookRepository(pool *ConnectionPool) *BookRepository {
	return &BookRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// CreateBook inserts a catalog entry. When AvailableCopies is zero on a new
// book it defaults to TotalCopies.
func (r *BookRepository) CreateBook(ctx context.Context, book persistence.Book) error {
	if book.ID == "" || book.TotalCopies < 1 {
		return persistence.ErrConstraintViolation
	}
	if book.AvailableCopies == 0 {
		book.AvailableCopies = book.TotalCopies
	}
	if book.AvailableCopies < 0 || book.AvailableCopies > book.TotalCopies {
		return persistence.ErrConstraintViolation
	}

	now := time.Now().UTC()
	if book.CreatedAt.IsZero() {
		book.CreatedAt = now
	}
	book.UpdatedAt = now

	query := `
		INSERT INTO books (id, title, author, total_copies, available_copies, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.helper.Exec(ctx, query,
		book.ID,
		book.Title,
		book.Author,
		book.TotalCopies,
		book.AvailableCopies,
		formatTimestamp(book.CreatedAt),
		formatTimestamp(book.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// GetBook retrieves a book by ID
func (r *BookRepository) GetBook(ctx context.Context, id string) (persistence.Book, error) {
	if id == "" {
		return persistence.Book{}, persistence.ErrNotFound
	}

	query := `
		SELECT id, title, author, total_copies, available_copies, created_at, updated_at
		FROM books
		WHERE id = ?
	`
	book, err := scanBook(r.helper.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Book{}, persistence.ErrNotFound
		}
		return persistence.Book{}, r.mapper.MapError(err)
	}
	return book, nil
}

// ListBooks returns all books ordered by title then ID
func (r *BookRepository) ListBooks(ctx context.Context) ([]persistence.Book, error) {
	query := `
		SELECT id, title, author, total_copies, available_copies, created_at, updated_at
		FROM books
		ORDER BY title ASC, id ASC
	`
	rows, err := r.helper.Query(ctx, query)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var books []persistence.Book
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		books = append(books, book)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return books, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(row rowScanner) (persistence.Book, error) {
	var book persistence.Book
	var createdAtStr, updatedAtStr string
	if err := row.Scan(
		&book.ID,
		&book.Title,
		&book.Author,
		&book.TotalCopies,
		&book.AvailableCopies,
		&createdAtStr,
		&updatedAtStr,
	); err != nil {
		return persistence.Book{}, err
	}

	var err error
	if book.CreatedAt, err = parseTimestamp("created_at", createdAtStr); err != nil {
		return persistence.Book{}, err
	}
	if book.UpdatedAt, err = parseTimestamp("updated_at", updatedAtStr); err != nil {
		return persistence.Book{}, err
	}
	return book, nil
}
