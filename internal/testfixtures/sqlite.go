package testfixtures

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/example/library-lending/internal/persistence"
	"github.com/example/library-lending/internal/persistence/sqlite"
	"github.com/example/library-lending/internal/persistence/sqlite/migration"
)

// SQLiteHarness provides repository access backed by a temporary SQLite storage
// instance for integration-style persistence tests.
type SQLiteHarness struct {
	Storage *sqlite.Storage

	Books           persistence.BookRepository
	Loans           persistence.LoanRepository
	Lending         persistence.LendingStore
	Users           persistence.UserRepository
	NotificationLog persistence.NotificationLogRepository
	RunLocks        persistence.RunLockRepository

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness constructs a SQLiteHarness using a temporary file that is
// migrated automatically. Callers may optionally invoke Close, but the helper
// will also register a cleanup callback with the provided testing.TB.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "library.db")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	storage, err := sqlite.Open(migration.TempFileTestSQLiteConfig(path), logger)
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}

	if err := storage.Migrate(context.Background()); err != nil {
		_ = storage.Close()
		tb.Fatalf("failed to migrate storage: %v", err)
	}

	harness := &SQLiteHarness{
		Storage:         storage,
		Books:           storage.Books,
		Loans:           storage.Loans,
		Lending:         storage.Lending,
		Users:           storage.Users,
		NotificationLog: storage.NotificationLog,
		RunLocks:        storage.RunLocks,
		cleanup: func() {
			_ = storage.Close()
		},
	}

	tb.Cleanup(harness.Close)
	return harness
}

// SeedUser stores the member and returns the fixture unchanged.
func (h *SQLiteHarness) SeedUser(tb testing.TB, fixture UserFixture) UserFixture {
	tb.Helper()
	if err := h.Users.UpsertUser(context.Background(), fixture.Persistence()); err != nil {
		tb.Fatalf("UpsertUser(%s) failed: %v", fixture.ID, err)
	}
	return fixture
}

// SeedBook stores the catalog entry and returns the fixture unchanged.
func (h *SQLiteHarness) SeedBook(tb testing.TB, fixture BookFixture) BookFixture {
	tb.Helper()
	if err := h.Books.CreateBook(context.Background(), fixture.Persistence()); err != nil {
		tb.Fatalf("CreateBook(%s) failed: %v", fixture.ID, err)
	}
	return fixture
}

// SeedLoan inserts the loan through the lending store, so the book must have a
// free copy. Flags and the return are applied afterwards in the same order
// production code would apply them.
func (h *SQLiteHarness) SeedLoan(tb testing.TB, fixture LoanFixture) LoanFixture {
	tb.Helper()
	ctx := context.Background()

	if err := h.Lending.BorrowCopy(ctx, fixture.Persistence()); err != nil {
		tb.Fatalf("BorrowCopy(%s) failed: %v", fixture.ID, err)
	}
	if fixture.ReminderSent {
		h.markFlag(tb, fixture.ID, persistence.FlagDueTomorrow)
	}
	if fixture.PenaltyNoticeSent {
		h.markFlag(tb, fixture.ID, persistence.FlagPenaltyNotice)
	}
	if fixture.ReturnedAt != nil {
		if _, _, err := h.Lending.CloseLoan(ctx, fixture.ID, *fixture.ReturnedAt); err != nil {
			tb.Fatalf("CloseLoan(%s) failed: %v", fixture.ID, err)
		}
	}
	return fixture
}

func (h *SQLiteHarness) markFlag(tb testing.TB, loanID string, flag persistence.ReminderFlag) {
	tb.Helper()
	if _, err := h.Loans.MarkFlag(context.Background(), loanID, flag, referenceTime); err != nil {
		tb.Fatalf("MarkFlag(%s, %s) failed: %v", loanID, flag, err)
	}
}
