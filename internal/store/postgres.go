package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"enrollment-sync/internal/model"
	"enrollment-sync/pkg/errors"
)

// PostgresConfig configures the postgres backend.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
	// SimpleProtocol is required behind transaction-mode poolers such as pgbouncer.
	SimpleProtocol bool `mapstructure:"simple_protocol"`
}

// PostgresStore keeps records and queue items in postgres.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to cfg.DSN and creates the schema.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, errors.NewValidationError("store.postgres.dsn", "dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, errors.NewStoreError("postgres", "parse dsn", err)
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 4
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)
	if cfg.SimpleProtocol {
		poolCfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errors.NewStoreError("postgres", "connect", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS records (
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
			date_enrolled TIMESTAMPTZ,
			last_login TIMESTAMPTZ,
			date_completed TIMESTAMPTZ,
			percent_complete DOUBLE PRECISION,
			percent_prep DOUBLE PRECISION,
			percent_sim DOUBLE PRECISION,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_email ON records (email)`,
		`CREATE TABLE IF NOT EXISTS queue_items (
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
			created_at TIMESTAMPTZ NOT NULL,
			started_at TIMESTAMPTZ,
			processed_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_queue_items_next ON queue_items (status, priority DESC, created_at)`,
	}

	b := &pgx.Batch{}
	for _, stmt := range stmts {
		b.Queue(stmt)
	}
	br := s.pool.SendBatch(ctx, b)
	for range stmts {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return errors.NewStoreError("postgres", "migrate", err)
		}
	}
	if err := br.Close(); err != nil {
		return errors.NewStoreError("postgres", "migrate", err)
	}
	return nil
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// FindByEmails implements RecordStore.
func (s *PostgresStore) FindByEmails(ctx context.Context, emails []string, limit int) ([]model.ExistingRecord, error) {
	emails = normalizeEmails(emails)
	if len(emails) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultLookupLimit
	}

	rows, err := s.pool.Query(ctx, `SELECT id, email FROM records WHERE email = ANY($1) ORDER BY created_at LIMIT $2`, emails, limit)
	if err != nil {
		return nil, errors.NewStoreError("postgres", "find records", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.ExistingRecord, error) {
		var rec model.ExistingRecord
		err := row.Scan(&rec.ID, &rec.Email)
		return rec, err
	})
	if err != nil {
		return nil, errors.NewStoreError("postgres", "find records", err)
	}
	return out, nil
}

// CreateRecord implements RecordStore.
func (s *PostgresStore) CreateRecord(ctx context.Context, rec model.CanonicalRecord) (string, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	args := append([]any{id}, recordArgs(rec)...)
	args = append(args, now, now)
	_, err := s.pool.Exec(ctx, `INSERT INTO records (`+recordColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`, args...)
	if err != nil {
		return "", errors.NewStoreError("postgres", "create record", err)
	}
	return id, nil
}

// UpdateRecord implements RecordStore.
func (s *PostgresStore) UpdateRecord(ctx context.Context, id string, rec model.CanonicalRecord) error {
	args := append(recordArgs(rec), time.Now().UTC(), id)
	tag, err := s.pool.Exec(ctx, `UPDATE records SET
		email = $1, first_name = $2, last_name = $3, phone = $4, department = $5, hiring_manager = $6,
		course_name = $7, prepared_to_pass = $8, time_spent = $9, date_enrolled = $10, last_login = $11,
		date_completed = $12, percent_complete = $13, percent_prep = $14, percent_sim = $15, updated_at = $16
		WHERE id = $17`, args...)
	if err != nil {
		return errors.NewStoreError("postgres", "update record", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NewNotFoundError("record", id)
	}
	return nil
}

// GetRecord implements RecordStore.
func (s *PostgresStore) GetRecord(ctx context.Context, id string) (*model.StoredRecord, error) {
	rec, err := scanRecord(s.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM records WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NewNotFoundError("record", id)
	}
	if err != nil {
		return nil, errors.NewStoreError("postgres", "get record", err)
	}
	return rec, nil
}

// ListRecords implements RecordStore.
func (s *PostgresStore) ListRecords(ctx context.Context, limit int) ([]model.StoredRecord, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	rows, err := s.pool.Query(ctx, `SELECT `+recordColumns+` FROM records ORDER BY created_at, id LIMIT $1`, lim)
	if err != nil {
		return nil, errors.NewStoreError("postgres", "list records", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.StoredRecord, error) {
		rec, err := scanRecord(row)
		if err != nil {
			return model.StoredRecord{}, err
		}
		return *rec, nil
	})
	if err != nil {
		return nil, errors.NewStoreError("postgres", "list records", err)
	}
	return out, nil
}

// CreateQueueItem implements QueueStore.
func (s *PostgresStore) CreateQueueItem(ctx context.Context, item *model.QueueItem) (string, error) {
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

	_, err := s.pool.Exec(ctx, `INSERT INTO queue_items (`+queueColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`, queueArgs(&cp)...)
	if err != nil {
		return "", errors.NewStoreError("postgres", "create queue item", err)
	}
	return cp.ID, nil
}

// GetQueueItem implements QueueStore.
func (s *PostgresStore) GetQueueItem(ctx context.Context, id string) (*model.QueueItem, error) {
	item, err := scanQueueItem(s.pool.QueryRow(ctx, `SELECT `+queueColumns+` FROM queue_items WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NewNotFoundError("queue item", id)
	}
	if err != nil {
		return nil, errors.NewStoreError("postgres", "get queue item", err)
	}
	return item, nil
}

// ListQueueItems implements QueueStore.
func (s *PostgresStore) ListQueueItems(ctx context.Context, limit int) ([]model.QueueItem, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	rows, err := s.pool.Query(ctx, `SELECT `+queueColumns+` FROM queue_items ORDER BY created_at DESC LIMIT $1`, lim)
	if err != nil {
		return nil, errors.NewStoreError("postgres", "list queue items", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.QueueItem, error) {
		item, err := scanQueueItem(row)
		if err != nil {
			return model.QueueItem{}, err
		}
		return *item, nil
	})
	if err != nil {
		return nil, errors.NewStoreError("postgres", "list queue items", err)
	}
	return out, nil
}

// NextQueueItem implements QueueStore.
func (s *PostgresStore) NextQueueItem(ctx context.Context) (*model.QueueItem, error) {
	item, err := scanQueueItem(s.pool.QueryRow(ctx, `SELECT `+queueColumns+` FROM queue_items
		WHERE status = $1 ORDER BY priority DESC, created_at ASC LIMIT 1`, string(model.StatusQueued)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.ErrQueueEmpty
	}
	if err != nil {
		return nil, errors.NewStoreError("postgres", "next queue item", err)
	}
	return item, nil
}

// ClaimQueueItem implements QueueStore.
func (s *PostgresStore) ClaimQueueItem(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE queue_items SET status = $1, started_at = $2
		WHERE id = $3 AND status = $4`,
		string(model.StatusProcessing), time.Now().UTC(), id, string(model.StatusQueued))
	if err != nil {
		return false, errors.NewStoreError("postgres", "claim queue item", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetQueueItem(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// CompleteQueueItem implements QueueStore.
func (s *PostgresStore) CompleteQueueItem(ctx context.Context, id string, result model.ReconcileResult) error {
	return s.finish(ctx, id, "complete queue item", `UPDATE queue_items SET
		status = $1, processed_records = $2, new_records = $3, updated_records = $4,
		error_message = $5, processed_at = $6
		WHERE id = $7 AND status = $8`,
		string(model.StatusCompleted), result.Processed, result.New, result.Updated,
		result.Summary(), time.Now().UTC(), id, string(model.StatusProcessing))
}

// FailQueueItem implements QueueStore.
func (s *PostgresStore) FailQueueItem(ctx context.Context, id string, message string) error {
	return s.finish(ctx, id, "fail queue item", `UPDATE queue_items SET
		status = $1, error_message = $2, processed_at = $3
		WHERE id = $4 AND status = $5`,
		string(model.StatusError), message, time.Now().UTC(), id, string(model.StatusProcessing))
}

func (s *PostgresStore) finish(ctx context.Context, id, op, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return errors.NewStoreError("postgres", op, err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetQueueItem(ctx, id); err != nil {
			return err
		}
		return conflictError(id)
	}
	return nil
}
