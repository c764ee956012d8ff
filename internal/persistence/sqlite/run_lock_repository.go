package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/library-lending/internal/persistence"
)

// RunLockRepository implements persistence.RunLockRepository with one row per
// lock name. Expired rows are replaced on the next acquisition.
type RunLockRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewRunLockRepository creates a new SQLite run lock repository
func NewRunLockRepository(pool *ConnectionPool) *RunLockRepository {
	return &RunLockRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// AcquireLock takes the named lock unless another holder owns an unexpired row.
func (r *RunLockRepository) AcquireLock(ctx context.Context, lock persistence.RunLock) (bool, error) {
	if lock.Name == "" || lock.Holder == "" || !lock.ExpiresAt.After(lock.AcquiredAt) {
		return false, persistence.ErrConstraintViolation
	}

	acquired := false
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := r.helper.ExecTx(ctx, tx,
			`DELETE FROM run_locks WHERE name = ? AND expires_at <= ?`,
			lock.Name, formatTimestamp(lock.AcquiredAt),
		); err != nil {
			return r.mapper.MapError(err)
		}

		result, err := r.helper.ExecTx(ctx, tx, `
			INSERT INTO run_locks (name, holder, acquired_at, expires_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(name) DO NOTHING
		`, lock.Name, lock.Holder, formatTimestamp(lock.AcquiredAt), formatTimestamp(lock.ExpiresAt))
		if err != nil {
			return r.mapper.MapError(err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		acquired = rowsAffected == 1
		return nil
	})
	if err != nil {
		return false, err
	}
	return acquired, nil
}

// ReleaseLock deletes the lock if it is still owned by holder.
func (r *RunLockRepository) ReleaseLock(ctx context.Context, name, holder string) error {
	_, err := r.helper.Exec(ctx, `DELETE FROM run_locks WHERE name = ? AND holder = ?`, name, holder)
	return r.mapper.MapError(err)
}
