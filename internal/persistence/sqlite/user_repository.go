package sqlite

import (
	"context"
	"time"

	"github.com/example/library-lending/internal/persistence"
)

// UserRepository implements persistence.UserRepository using SQLite
type UserRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewUserRepository creates a new SQLite user repository
func NewUserRepository(pool *ConnectionPool) *UserRepository {
	return &UserRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// UpsertUser inserts the user or refreshes the mirrored profile fields.
func (r *UserRepository) UpsertUser(ctx context.Context, user persistence.User) error {
	if user.ID == "" || user.Email == "" {
		return persistence.ErrConstraintViolation
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = now
	}

	query := `
		INSERT INTO users (id, email, name, approval_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = excluded.email,
			name = excluded.name,
			approval_status = excluded.approval_status,
			updated_at = excluded.updated_at
	`
	_, err := r.helper.Exec(ctx, query,
		user.ID,
		user.Email,
		user.Name,
		user.ApprovalStatus,
		formatTimestamp(user.CreatedAt),
		formatTimestamp(user.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// GetUser retrieves a user by ID
func (r *UserRepository) GetUser(ctx context.Context, id string) (persistence.User, error) {
	if id == "" {
		return persistence.User{}, persistence.ErrNotFound
	}
	query := `
		SELECT id, email, name, approval_status, created_at, updated_at
		FROM users
		WHERE id = ?
	`
	user, err := scanUser(r.helper.QueryRow(ctx, query, id))
	if err != nil {
		return persistence.User{}, r.mapper.MapError(err)
	}
	return user, nil
}

// ListInactiveUsers returns approved users registered before since who have
// no active loan, have not borrowed since, and have not been sent a noticeKind
// notification since.
func (r *UserRepository) ListInactiveUsers(ctx context.Context, since time.Time, noticeKind string) ([]persistence.User, error) {
	cutoff := formatTimestamp(since)
	query := `
		SELECT u.id, u.email, u.name, u.approval_status, u.created_at, u.updated_at
		FROM users u
		WHERE u.approval_status = ?
			AND u.created_at < ?
			AND NOT EXISTS (
				SELECT 1 FROM loans l
				WHERE l.user_id = u.id AND (l.status = ? OR l.borrowed_at >= ?)
			)
			AND NOT EXISTS (
				SELECT 1 FROM notification_log n
				WHERE n.recipient_email = u.email AND n.kind = ? AND n.status = ? AND n.sent_at >= ?
			)
		ORDER BY u.id ASC
	`
	rows, err := r.helper.Query(ctx, query,
		persistence.ApprovalApproved,
		cutoff,
		persistence.LoanStatusBorrowed,
		cutoff,
		noticeKind,
		persistence.DeliveryStatusSent,
		cutoff,
	)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var users []persistence.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return users, nil
}

func scanUser(row rowScanner) (persistence.User, error) {
	var user persistence.User
	var createdAt, updatedAt string
	if err := row.Scan(&user.ID, &user.Email, &user.Name, &user.ApprovalStatus, &createdAt, &updatedAt); err != nil {
		return persistence.User{}, err
	}
	var err error
	if user.CreatedAt, err = parseTimestamp("created_at", createdAt); err != nil {
		return persistence.User{}, err
	}
	if user.UpdatedAt, err = parseTimestamp("updated_at", updatedAt); err != nil {
		return persistence.User{}, err
	}
	return user, nil
}
