package pipeline

import (
	"context"

	"enrollment-sync/internal/model"
	"enrollment-sync/internal/store"
	"enrollment-sync/pkg/logging"
)

// DefaultChunkSize is the number of rows looked up per batch.
const DefaultChunkSize = 25

// ReconcileConfig tunes a Reconciler.
type ReconcileConfig struct {
	ChunkSize   int `mapstructure:"chunk_size"`
	LookupLimit int `mapstructure:"lookup_limit"`
}

// Reconciler upserts rows into a RecordStore keyed by email.
type Reconciler struct {
	store       store.RecordStore
	normalizer  *Normalizer
	chunkSize   int
	lookupLimit int
}

// NewReconciler creates a reconciler. Zero config values take defaults.
func NewReconciler(rs store.RecordStore, normalizer *Normalizer, cfg ReconcileConfig) *Reconciler {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.LookupLimit <= 0 {
		cfg.LookupLimit = store.DefaultLookupLimit
	}
	if normalizer == nil {
		normalizer = NewNormalizer(model.DefaultFieldMapping())
	}
	return &Reconciler{
		store:       rs,
		normalizer:  normalizer,
		chunkSize:   cfg.ChunkSize,
		lookupLimit: cfg.LookupLimit,
	}
}

// Reconcile processes rows chunk by chunk in input order. Each chunk does
// one batched lookup before any write, so duplicate emails inside a chunk
// are decided against that snapshot. Row write failures are logged and
// counted as failed; a failed lookup makes every row of its chunk a create.
// The only error returned is ctx's, checked between chunks.
func (r *Reconciler) Reconcile(ctx context.Context, rows []model.SourceRow) (model.ReconcileResult, error) {
	log := logging.FromContext(ctx)
	tracker := NewRunTracker()

	log.Info().
		Int("rows", len(rows)).
		Int("chunk_size", r.chunkSize).
		Msg("Starting reconciliation")

	for index, start := 0, 0; start < len(rows); index, start = index+1, start+r.chunkSize {
		if err := ctx.Err(); err != nil {
			tracker.LogSummary(log)
			return tracker.Result(), err
		}
		end := min(start+r.chunkSize, len(rows))
		r.reconcileChunk(ctx, index, rows[start:end], tracker)
	}

	tracker.LogSummary(log)
	return tracker.Result(), nil
}

func (r *Reconciler) reconcileChunk(ctx context.Context, index int, chunk []model.SourceRow, tracker *RunTracker) {
	log := logging.FromContext(ctx).With().Int("chunk", index).Logger()

	emails := r.chunkEmails(chunk)
	done := tracker.StartChunk(index, len(chunk), len(emails))

	existing := make(map[string]string, len(emails))
	if len(emails) > 0 {
		found, err := r.store.FindByEmails(ctx, emails, r.lookupLimit)
		if err != nil {
			log.Warn().Err(err).Int("emails", len(emails)).Msg("Lookup failed, treating chunk as new records")
			tracker.LookupFailed(index, err)
		}
		for _, rec := range found {
			email := NormalizeEmail(rec.Email)
			if _, dup := existing[email]; !dup {
				existing[email] = rec.ID
			}
		}
	}
	defer done(len(existing))

	for _, row := range chunk {
		email := r.normalizer.Email(row)
		if email == "" {
			tracker.Skipped()
			continue
		}
		rec := r.normalizer.Normalize(row)

		if id, ok := existing[email]; ok {
			if err := r.store.UpdateRecord(ctx, id, rec); err != nil {
				log.Error().Err(err).Str("email", email).Str("record_id", id).Interface("row", row).Msg("Failed to update record")
				tracker.Failed(index, StageUpdate, email, row, err)
				continue
			}
			tracker.Updated(index)
			continue
		}

		if _, err := r.store.CreateRecord(ctx, rec); err != nil {
			log.Error().Err(err).Str("email", email).Interface("row", row).Msg("Failed to create record")
			tracker.Failed(index, StageCreate, email, row, err)
			continue
		}
		tracker.Created(index)
	}

	log.Debug().Int("rows", len(chunk)).Int("existing", len(existing)).Msg("Chunk reconciled")
}

// chunkEmails returns the distinct non-empty emails of chunk in order.
func (r *Reconciler) chunkEmails(chunk []model.SourceRow) []string {
	seen := make(map[string]bool, len(chunk))
	emails := make([]string, 0, len(chunk))
	for _, row := range chunk {
		email := r.normalizer.Email(row)
		if email == "" || seen[email] {
			continue
		}
		seen[email] = true
		emails = append(emails, email)
	}
	return emails
}
