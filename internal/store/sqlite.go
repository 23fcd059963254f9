package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"enrollment-sync/internal/model"
	"enrollment-sync/pkg/errors"
)

// SQLiteConfig configures the sqlite backend.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// SQLiteStore is the default backend, a single sqlite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens dbPath and creates the tables if they do not exist.
// ":memory:" gives a private in-memory database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "enrollment.db"
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, errors.NewStoreError("sqlite", "open", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	// Create tables if not exists
	recordTable := `
	CREATE TABLE IF NOT EXISTS records (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		department TEXT NOT NULL DEFAULT '',
		hiring_manager TEXT NOT NULL DEFAULT '',
		course_name TEXT NOT NULL DEFAULT '',
		prepared_to_pass TEXT NOT NULL DEFAULT '',
		time_spent TEXT NOT NULL DEFAULT '',
		date_enrolled DATETIME,
		last_login DATETIME,
		date_completed DATETIME,
		percent_complete REAL,
		percent_prep REAL,
		percent_sim REAL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_records_email ON records (email);
	`
	queueTable := `
	CREATE TABLE IF NOT EXISTS queue_items (
		id TEXT PRIMARY KEY,
		filename TEXT NOT NULL DEFAULT '',
		csv_url TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		file_size INTEGER NOT NULL DEFAULT 0,
		total_records INTEGER NOT NULL DEFAULT 0,
		imo TEXT NOT NULL DEFAULT '',
		source_email TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		priority INTEGER NOT NULL DEFAULT 1,
		processed_records INTEGER NOT NULL DEFAULT 0,
		new_records INTEGER NOT NULL DEFAULT 0,
		updated_records INTEGER NOT NULL DEFAULT 0,
		error_message TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		started_at DATETIME,
		processed_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_queue_items_next ON queue_items (status, priority, created_at);
	`

	if _, err := s.db.Exec(recordTable); err != nil {
		return errors.NewStoreError("sqlite", "migrate", err)
	}
	if _, err := s.db.Exec(queueTable); err != nil {
		return errors.NewStoreError("sqlite", "migrate", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// FindByEmails implements RecordStore.
func (s *SQLiteStore) FindByEmails(ctx context.Context, emails []string, limit int) ([]model.ExistingRecord, error) {
	emails = normalizeEmails(emails)
	if len(emails) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultLookupLimit
	}

	args := make([]any, 0, len(emails)+1)
	for _, e := range emails {
		args = append(args, e)
	}
	args = append(args, limit)

	query := `SELECT id, email FROM records WHERE email IN (?` + strings.Repeat(",?", len(emails)-1) + `) ORDER BY rowid LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewStoreError("sqlite", "find records", err)
	}
	defer rows.Close()

	var out []model.ExistingRecord
	for rows.Next() {
		var rec model.ExistingRecord
		if err := rows.Scan(&rec.ID, &rec.Email); err != nil {
			return nil, errors.NewStoreError("sqlite", "find records", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreError("sqlite", "find records", err)
	}
	return out, nil
}

// CreateRecord implements RecordStore.
func (s *SQLiteStore) CreateRecord(ctx context.Context, rec model.CanonicalRecord) (string, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	args := append([]any{id}, recordArgs(rec)...)
	args = append(args, now, now)
	_, err := s.db.ExecContext(ctx, `INSERT INTO records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		return "", errors.NewStoreError("sqlite", "create record", err)
	}
	return id, nil
}

// UpdateRecord implements RecordStore.
func (s *SQLiteStore) UpdateRecord(ctx context.Context, id string, rec model.CanonicalRecord) error {
	args := append(recordArgs(rec), time.Now().UTC(), id)
	res, err := s.db.ExecContext(ctx, `UPDATE records SET
		email = ?, first_name = ?, last_name = ?, phone = ?, department = ?, hiring_manager = ?,
		course_name = ?, prepared_to_pass = ?, time_spent = ?, date_enrolled = ?, last_login = ?,
		date_completed = ?, percent_complete = ?, percent_prep = ?, percent_sim = ?, updated_at = ?
		WHERE id = ?`, args...)
	if err != nil {
		return errors.NewStoreError("sqlite", "update record", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFoundError("record", id)
	}
	return nil
}

// GetRecord implements RecordStore.
func (s *SQLiteStore) GetRecord(ctx context.Context, id string) (*model.StoredRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("record", id)
	}
	if err != nil {
		return nil, errors.NewStoreError("sqlite", "get record", err)
	}
	return rec, nil
}

// ListRecords implements RecordStore.
func (s *SQLiteStore) ListRecords(ctx context.Context, limit int) ([]model.StoredRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM records ORDER BY created_at, rowid`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewStoreError("sqlite", "list records", err)
	}
	defer rows.Close()

	var out []model.StoredRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, errors.NewStoreError("sqlite", "list records", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreError("sqlite", "list records", err)
	}
	return out, nil
}

// CreateQueueItem implements QueueStore.
func (s *SQLiteStore) CreateQueueItem(ctx context.Context, item *model.QueueItem) (string, error) {
	cp := *item
	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}
	if cp.Status == "" {
		cp.Status = model.StatusQueued
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO queue_items (`+queueColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, queueArgs(&cp)...)
	if err != nil {
		return "", errors.NewStoreError("sqlite", "create queue item", err)
	}
	return cp.ID, nil
}

// GetQueueItem implements QueueStore.
func (s *SQLiteStore) GetQueueItem(ctx context.Context, id string) (*model.QueueItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+queueColumns+` FROM queue_items WHERE id = ?`, id)
	item, err := scanQueueItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("queue item", id)
	}
	if err != nil {
		return nil, errors.NewStoreError("sqlite", "get queue item", err)
	}
	return item, nil
}

// ListQueueItems implements QueueStore.
func (s *SQLiteStore) ListQueueItems(ctx context.Context, limit int) ([]model.QueueItem, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+queueColumns+` FROM queue_items
		ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.NewStoreError("sqlite", "list queue items", err)
	}
	defer rows.Close()

	var out []model.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, errors.NewStoreError("sqlite", "list queue items", err)
		}
		out = append(out, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreError("sqlite", "list queue items", err)
	}
	return out, nil
}

// NextQueueItem implements QueueStore.
func (s *SQLiteStore) NextQueueItem(ctx context.Context) (*model.QueueItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+queueColumns+` FROM queue_items
		WHERE status = ? ORDER BY priority DESC, created_at ASC, rowid ASC LIMIT 1`, string(model.StatusQueued))
	item, err := scanQueueItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.ErrQueueEmpty
	}
	if err != nil {
		return nil, errors.NewStoreError("sqlite", "next queue item", err)
	}
	return item, nil
}

// ClaimQueueItem implements QueueStore.
func (s *SQLiteStore) ClaimQueueItem(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE queue_items SET status = ?, started_at = ?
		WHERE id = ? AND status = ?`,
		string(model.StatusProcessing), time.Now().UTC(), id, string(model.StatusQueued))
	if err != nil {
		return false, errors.NewStoreError("sqlite", "claim queue item", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.NewStoreError("sqlite", "claim queue item", err)
	}
	if n == 0 {
		if _, err := s.GetQueueItem(ctx, id); err != nil {
			return false, err
		}
	}
	return n == 1, nil
}

// CompleteQueueItem implements QueueStore.
func (s *SQLiteStore) CompleteQueueItem(ctx context.Context, id string, result model.ReconcileResult) error {
	return s.finish(ctx, id, "complete queue item", `UPDATE queue_items SET
		status = ?, processed_records = ?, new_records = ?, updated_records = ?,
		error_message = ?, processed_at = ?
		WHERE id = ? AND status = ?`,
		string(model.StatusCompleted), result.Processed, result.New, result.Updated,
		result.Summary(), time.Now().UTC(), id, string(model.StatusProcessing))
}

// FailQueueItem implements QueueStore.
func (s *SQLiteStore) FailQueueItem(ctx context.Context, id string, message string) error {
	return s.finish(ctx, id, "fail queue item", `UPDATE queue_items SET
		status = ?, error_message = ?, processed_at = ?
		WHERE id = ? AND status = ?`,
		string(model.StatusError), message, time.Now().UTC(), id, string(model.StatusProcessing))
}

func (s *SQLiteStore) finish(ctx context.Context, id, op, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.NewStoreError("sqlite", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.NewStoreError("sqlite", op, err)
	}
	if n == 0 {
		if _, err := s.GetQueueItem(ctx, id); err != nil {
			return err
		}
		return conflictError(id)
	}
	return nil
}
