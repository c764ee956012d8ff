package sqlite

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/example/library-lending/internal/persistence/sqlite/migration"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Storage bundles the SQLite backed repositories sharing one connection pool.
type Storage struct {
	pool   *ConnectionPool
	logger *slog.Logger

	Books           *BookRepository
	Loans           *LoanRepository
	Lending         *LendingStore
	Users           *UserRepository
	NotificationLog *NotificationLogRepository
	RunLocks        *RunLockRepository
}

// Open connects to the database described by config. Call Migrate before use.
func Open(config migration.SQLiteConfig, logger *slog.Logger) (*Storage, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := NewConnectionPool(config)
	if err != nil {
		return nil, err
	}
	return &Storage{
		pool:            pool,
		logger:          logger,
		Books:           NewBookRepository(pool),
		Loans:           NewLoanRepository(pool),
		Lending:         NewLendingStore(pool, DefaultRetryConfig()),
		Users:           NewUserRepository(pool),
		NotificationLog: NewNotificationLogRepository(pool),
		RunLocks:        NewRunLockRepository(pool),
	}, nil
}

// Migrate applies the embedded schema migrations.
func (s *Storage) Migrate(ctx context.Context) error {
	files, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	manager := migration.NewMigrationManager(
		migration.NewFileScanner(),
		migration.NewSQLiteExecutor(s.pool.DB()),
		files,
		s.logger,
	)
	return manager.RunMigrations(ctx)
}

// Ping checks that the database is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Storage) Close() error {
	return s.pool.Close()
}
