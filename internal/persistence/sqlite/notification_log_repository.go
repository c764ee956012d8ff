package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	jsoniter "github.com/json-iterator/go"

	"github.com/example/library-lending/internal/persistence"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const defaultLogLimit = 100

// NotificationLogRepository implements persistence.NotificationLogRepository.
// Rows are only ever inserted.
type NotificationLogRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewNotificationLogRepository creates a new SQLite audit log repository
func NewNotificationLogRepository(pool *ConnectionPool) *NotificationLogRepository {
	return &NotificationLogRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// AppendEntry inserts one audit row.
func (r *NotificationLogRepository) AppendEntry(ctx context.Context, entry persistence.NotificationLogEntry) error {
	if entry.ID == "" || entry.Kind == "" || entry.Status == "" {
		return persistence.ErrConstraintViolation
	}

	metadata := entry.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	query := `
		INSERT INTO notification_log (id, recipient_email, recipient_name, kind, status, subject,
			error_message, attempts, loan_id, correlation_id, metadata, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.helper.Exec(ctx, query,
		entry.ID,
		entry.RecipientEmail,
		entry.RecipientName,
		entry.Kind,
		entry.Status,
		entry.Subject,
		nullableString(entry.ErrorMessage),
		entry.Attempts,
		nullableString(entry.LoanID),
		nullableString(entry.CorrelationID),
		string(encoded),
		formatTimestamp(entry.SentAt),
	)
	return r.mapper.MapError(err)
}

// ListEntries returns the newest audit rows matching filter.
func (r *NotificationLogRepository) ListEntries(ctx context.Context, filter persistence.NotificationLogFilter) ([]persistence.NotificationLogEntry, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = defaultLogLimit
	}

	ds := dialect.From("notification_log").Select(
		"id", "recipient_email", "recipient_name", "kind", "status", "subject",
		"error_message", "attempts", "loan_id", "correlation_id", "metadata", "sent_at",
	)
	if filter.Status != "" {
		ds = ds.Where(goqu.C("status").Eq(filter.Status))
	}
	if filter.Kind != "" {
		ds = ds.Where(goqu.C("kind").Eq(filter.Kind))
	}
	if filter.CorrelationID != "" {
		ds = ds.Where(goqu.C("correlation_id").Eq(filter.CorrelationID))
	}
	ds = ds.Order(goqu.C("sent_at").Desc(), goqu.C("id").Desc()).Limit(uint(limit))

	var rows []logRow
	if err := r.helper.Select(ctx, &rows, ds); err != nil {
		return nil, r.mapper.MapError(err)
	}

	entries := make([]persistence.NotificationLogEntry, 0, len(rows))
	for _, row := range rows {
		entry, err := row.toEntry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

type logRow struct {
	ID             string         `db:"id"`
	RecipientEmail string         `db:"recipient_email"`
	RecipientName  string         `db:"recipient_name"`
	Kind           string         `db:"kind"`
	Status         string         `db:"status"`
	Subject        string         `db:"subject"`
	ErrorMessage   sql.NullString `db:"error_message"`
	Attempts       int            `db:"attempts"`
	LoanID         sql.NullString `db:"loan_id"`
	CorrelationID  sql.NullString `db:"correlation_id"`
	Metadata       string         `db:"metadata"`
	SentAt         string         `db:"sent_at"`
}

func (row logRow) toEntry() (persistence.NotificationLogEntry, error) {
	entry := persistence.NotificationLogEntry{
		ID:             row.ID,
		RecipientEmail: row.RecipientEmail,
		RecipientName:  row.RecipientName,
		Kind:           row.Kind,
		Status:         row.Status,
		Subject:        row.Subject,
		ErrorMessage:   stringPointer(row.ErrorMessage),
		Attempts:       row.Attempts,
		LoanID:         stringPointer(row.LoanID),
		CorrelationID:  stringPointer(row.CorrelationID),
	}
	if row.Metadata != "" {
		if err := json.Unmarshal([]byte(row.Metadata), &entry.Metadata); err != nil {
			return persistence.NotificationLogEntry{}, fmt.Errorf("failed to decode metadata: %w", err)
		}
	}
	var err error
	if entry.SentAt, err = parseTimestamp("sent_at", row.SentAt); err != nil {
		return persistence.NotificationLogEntry{}, err
	}
	return entry, nil
}

func nullableString(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}

func stringPointer(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	s := value.String
	return &s
}
