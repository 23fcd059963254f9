// Package pipeline implements CSV enrollment ingestion: parsing, field
// normalization, chunked reconciliation by email, and the dispatcher that
// picks immediate or queued processing.
package pipeline

import (
	"context"
	"fmt"

	"enrollment-sync/internal/model"
	"enrollment-sync/internal/store"
	"enrollment-sync/pkg/errors"
	"enrollment-sync/pkg/logging"
	"enrollment-sync/pkg/utils"
)

// Dispatcher defaults
const (
	DefaultSizeThreshold = 100_000
	DefaultPriority      = 1
	DefaultStatusLimit   = 10
	DefaultQueueWorkers  = 2
	DefaultQueueBuffer   = 100
	maxClaimAttempts     = 5
)

// Config tunes a Dispatcher.
type Config struct {
	// SizeThreshold is the CSV length in bytes above which work is queued.
	SizeThreshold   int `mapstructure:"size_threshold"`
	DefaultPriority int `mapstructure:"default_priority"`
	Workers         int `mapstructure:"workers"`
	QueueBuffer     int `mapstructure:"queue_buffer"`
	StatusLimit     int `mapstructure:"status_limit"`
}

func (c Config) withDefaults() Config {
	if c.SizeThreshold <= 0 {
		c.SizeThreshold = DefaultSizeThreshold
	}
	if c.DefaultPriority <= 0 {
		c.DefaultPriority = DefaultPriority
	}
	if c.Workers <= 0 {
		c.Workers = DefaultQueueWorkers
	}
	if c.QueueBuffer <= 0 {
		c.QueueBuffer = DefaultQueueBuffer
	}
	if c.StatusLimit <= 0 {
		c.StatusLimit = DefaultStatusLimit
	}
	return c
}

// IngestMeta describes where CSV text came from.
type IngestMeta struct {
	CSVURL      string
	Filename    string
	Priority    int
	SourceEmail string
}

// Dispatcher decides between immediate and queued processing and drives
// the queue item lifecycle.
type Dispatcher struct {
	fetcher    Fetcher
	queue      store.QueueStore
	reconciler *Reconciler
	cfg        Config
	pool       *WorkerPool
}

// NewDispatcher wires a dispatcher. Call Start to run queued work in the
// background; without it queued items wait for ProcessNext.
func NewDispatcher(fetcher Fetcher, queue store.QueueStore, reconciler *Reconciler, cfg Config) *Dispatcher {
	d := &Dispatcher{
		fetcher:    fetcher,
		queue:      queue,
		reconciler: reconciler,
		cfg:        cfg.withDefaults(),
	}
	d.pool = NewWorkerPool(d.cfg.Workers, d.cfg.QueueBuffer, d.handleQueued)
	return d
}

// Start launches the queue workers on ctx.
func (d *Dispatcher) Start(ctx context.Context) {
	d.pool.Start(ctx)
}

// Stop drains the queue workers.
func (d *Dispatcher) Stop() {
	d.pool.Stop()
}

// Submit validates req, fetches the CSV and ingests it.
func (d *Dispatcher) Submit(ctx context.Context, req model.SubmitRequest) (*model.SubmitResult, error) {
	if err := ValidateSubmitRequest(req); err != nil {
		return nil, err
	}
	req = normalizeSubmitRequest(req, d.cfg.DefaultPriority)

	ctx = logging.WithSource(ctx, req.CSVURL)
	text, err := d.fetcher.Fetch(ctx, req.CSVURL)
	if err != nil {
		logging.FromContext(ctx).Error().Err(err).Msg("Failed to fetch CSV")
		return nil, err
	}

	return d.Ingest(ctx, text, IngestMeta{
		CSVURL:      req.CSVURL,
		Filename:    req.CSVFilename,
		Priority:    req.Priority,
		SourceEmail: req.SourceEmail,
	})
}

// Ingest processes text immediately when it fits the size threshold, and
// otherwise records a queue item and hands it to the workers.
func (d *Dispatcher) Ingest(ctx context.Context, text string, meta IngestMeta) (*model.SubmitResult, error) {
	log := logging.FromContext(ctx)
	if meta.Filename == "" {
		meta.Filename = DefaultFilename
	}
	if meta.Priority == 0 {
		meta.Priority = d.cfg.DefaultPriority
	}

	if len(text) > d.cfg.SizeThreshold {
		return d.enqueue(ctx, text, meta)
	}

	log.Info().Int("bytes", len(text)).Str("filename", meta.Filename).Msg("Processing CSV immediately")
	// A dispatched run is not aborted by the caller going away.
	res, err := d.reconciler.Reconcile(context.WithoutCancel(ctx), ParseCSV(text))
	if err != nil {
		return nil, err
	}

	return &model.SubmitResult{
		Success:        true,
		Mode:           model.ModeImmediate,
		Status:         string(model.StatusCompleted),
		Message:        "Processing completed",
		CSVURL:         meta.CSVURL,
		TotalProcessed: &res.Processed,
		TotalNew:       &res.New,
		TotalUpdated:   &res.Updated,
		TotalSkipped:   &res.Skipped,
		TotalFailed:    &res.Failed,
		Errors:         res.Errors,
	}, nil
}

func (d *Dispatcher) enqueue(ctx context.Context, text string, meta IngestMeta) (*model.SubmitResult, error) {
	item := &model.QueueItem{
		Filename:     meta.Filename,
		CSVURL:       meta.CSVURL,
		Content:      text,
		FileSize:     len(text),
		TotalRecords: utils.CountLines(text),
		IMO:          ExtractIMO(text),
		SourceEmail:  meta.SourceEmail,
		Status:       model.StatusQueued,
		Priority:     meta.Priority,
	}
	id, err := d.queue.CreateQueueItem(ctx, item)
	if err != nil {
		return nil, fmt.Errorf("queue CSV: %w", err)
	}

	log := logging.FromContext(logging.WithQueueItem(ctx, id))
	if d.pool.Submit(id) {
		log.Info().Int("bytes", len(text)).Msg("CSV queued for background processing")
	} else {
		log.Warn().Int("bytes", len(text)).Msg("Workers unavailable, CSV left queued for process-next")
	}

	return &model.SubmitResult{
		Success: true,
		Mode:    model.ModeQueued,
		Status:  string(model.StatusQueued),
		Message: "Processing started in background",
		QueueID: id,
		CSVURL:  meta.CSVURL,
	}, nil
}

// QueueStatus returns the item with id, or the most recent items when id
// is empty. An unknown id yields an empty list.
func (d *Dispatcher) QueueStatus(ctx context.Context, id string) ([]model.QueueItem, error) {
	if id == "" {
		return d.queue.ListQueueItems(ctx, d.cfg.StatusLimit)
	}
	item, err := d.queue.GetQueueItem(ctx, id)
	if errors.Is(err, errors.ErrNotFound) {
		return []model.QueueItem{}, nil
	}
	if err != nil {
		return nil, err
	}
	return []model.QueueItem{*item}, nil
}

// ProcessNext claims the next queued item by priority and age and
// processes it synchronously. It returns ErrQueueEmpty when nothing is
// queued.
func (d *Dispatcher) ProcessNext(ctx context.Context) (*model.QueueItem, error) {
	for attempt := 0; attempt < maxClaimAttempts; attempt++ {
		next, err := d.queue.NextQueueItem(ctx)
		if err != nil {
			return nil, err
		}

		item, err := d.ProcessQueueItem(ctx, next.ID)
		if errors.Is(err, errors.ErrConflict) {
			// Another worker claimed it first.
			continue
		}
		return item, err
	}
	return nil, errors.ErrQueueEmpty
}

// ProcessQueueItem claims id and runs it to a terminal state. It returns
// ErrConflict when the item was not queued. Processing failures are
// recorded on the item, not returned.
func (d *Dispatcher) ProcessQueueItem(ctx context.Context, id string) (*model.QueueItem, error) {
	ctx = logging.WithQueueItem(ctx, id)
	log := logging.FromContext(ctx)

	claimed, err := d.queue.ClaimQueueItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if !claimed {
		log.Debug().Msg("Queue item already claimed")
		return nil, fmt.Errorf("%w: queue item %s is not queued", errors.ErrConflict, id)
	}

	// Once claimed, the item runs to a terminal state even if ctx ends.
	finishCtx := context.WithoutCancel(ctx)
	item, err := d.queue.GetQueueItem(finishCtx, id)
	if err != nil {
		d.fail(finishCtx, id, err)
		return nil, err
	}

	res, runErr := d.run(finishCtx, item)
	if runErr != nil {
		d.fail(finishCtx, id, runErr)
	} else if err := d.queue.CompleteQueueItem(finishCtx, id, res); err != nil {
		log.Error().Err(err).Msg("Failed to mark queue item completed")
		return nil, err
	} else {
		log.Info().
			Int("processed", res.Processed).
			Int("new", res.New).
			Int("updated", res.Updated).
			Msg("Queue item completed")
	}

	return d.queue.GetQueueItem(finishCtx, id)
}

func (d *Dispatcher) run(ctx context.Context, item *model.QueueItem) (model.ReconcileResult, error) {
	text := item.Content
	if text == "" {
		if item.CSVURL == "" {
			return model.ReconcileResult{}, errors.NewValidationError("csv_url", "queue item has neither content nor csv_url")
		}
		var err error
		if text, err = d.fetcher.Fetch(logging.WithSource(ctx, item.CSVURL), item.CSVURL); err != nil {
			return model.ReconcileResult{}, err
		}
	}
	return d.reconciler.Reconcile(ctx, ParseCSV(text))
}

func (d *Dispatcher) fail(ctx context.Context, id string, cause error) {
	log := logging.FromContext(ctx)
	log.Error().Err(cause).Msg("Queue item failed")
	if err := d.queue.FailQueueItem(ctx, id, cause.Error()); err != nil {
		log.Error().Err(err).Msg("Failed to mark queue item as error")
	}
}

// handleQueued is the worker pool entry point. Losing the claim is a no-op.
func (d *Dispatcher) handleQueued(ctx context.Context, id string) {
	if _, err := d.ProcessQueueItem(ctx, id); err != nil && !errors.Is(err, errors.ErrConflict) {
		logging.FromContext(ctx).Error().Err(err).Msg("Queue worker failed")
	}
}
