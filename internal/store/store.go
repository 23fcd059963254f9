// Package store persists enrollment records and queue items. Backends:
// sqlite (default), postgres, parse (Parse Server REST) and memory.
package store

import (
	"context"
	"fmt"
	"strings"

	"enrollment-sync/internal/model"
	"enrollment-sync/pkg/errors"
)

// DefaultLookupLimit caps the rows returned by one FindByEmails call.
const DefaultLookupLimit = 1000

// RecordStore persists canonical records keyed by email.
type RecordStore interface {
	// FindByEmails returns records whose email equals any of emails.
	FindByEmails(ctx context.Context, emails []string, limit int) ([]model.ExistingRecord, error)
	CreateRecord(ctx context.Context, rec model.CanonicalRecord) (string, error)
	UpdateRecord(ctx context.Context, id string, rec model.CanonicalRecord) error
	// GetRecord returns ErrNotFound when id does not exist.
	GetRecord(ctx context.Context, id string) (*model.StoredRecord, error)
	ListRecords(ctx context.Context, limit int) ([]model.StoredRecord, error)
}

// QueueStore persists queue items and their lifecycle.
type QueueStore interface {
	CreateQueueItem(ctx context.Context, item *model.QueueItem) (string, error)
	// GetQueueItem returns ErrNotFound when id does not exist.
	GetQueueItem(ctx context.Context, id string) (*model.QueueItem, error)
	// ListQueueItems returns the most recent items first.
	ListQueueItems(ctx context.Context, limit int) ([]model.QueueItem, error)
	// NextQueueItem returns the queued item with the highest priority,
	// oldest first, or ErrQueueEmpty.
	NextQueueItem(ctx context.Context) (*model.QueueItem, error)
	// ClaimQueueItem moves id from queued to processing. It reports false
	// when the item was not queued, so only one caller wins.
	ClaimQueueItem(ctx context.Context, id string) (bool, error)
	// CompleteQueueItem and FailQueueItem require the item to be processing
	// and return ErrConflict otherwise.
	CompleteQueueItem(ctx context.Context, id string, result model.ReconcileResult) error
	FailQueueItem(ctx context.Context, id string, message string) error
}

// Store is a backend implementing both record and queue persistence.
type Store interface {
	RecordStore
	QueueStore
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Backend  string         `mapstructure:"backend"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Parse    ParseConfig    `mapstructure:"parse"`
}

// Open creates the backend named by cfg.Backend.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "sqlite", "sqlite3":
		return NewSQLiteStore(cfg.SQLite.Path)
	case "postgres", "postgresql", "pg":
		return NewPostgresStore(ctx, cfg.Postgres)
	case "parse", "back4app":
		return NewParseStore(cfg.Parse)
	case "memory", "mem":
		return NewMemoryStore(), nil
	default:
		return nil, errors.NewValidationError("store.backend", fmt.Sprintf("unknown backend %q", cfg.Backend))
	}
}

func conflictError(id string) error {
	return fmt.Errorf("%w: queue item %s is not processing", errors.ErrConflict, id)
}
