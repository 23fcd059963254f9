package pipeline

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"enrollment-sync/internal/model"
	"enrollment-sync/pkg/errors"
)

// maxErrorDetails bounds the number of row errors kept per run.
const maxErrorDetails = 100

// Error stages
const (
	StageLookup = "lookup"
	StageCreate = "create"
	StageUpdate = "update"
)

// RunTracker accumulates counts and errors of a reconciliation run.
type RunTracker struct {
	mu      sync.RWMutex
	start   time.Time
	result  model.ReconcileResult
	chunks  []model.ChunkMetrics
	errors  []model.ErrorDetail
	dropped int
}

// NewRunTracker creates a tracker starting now.
func NewRunTracker() *RunTracker {
	return &RunTracker{start: time.Now()}
}

// StartChunk records the beginning of chunk index and returns a func that
// closes it.
func (t *RunTracker) StartChunk(index, rows, emails int) func(existing int) {
	started := time.Now()

	t.mu.Lock()
	t.result.Chunks++
	t.chunks = append(t.chunks, model.ChunkMetrics{Index: index, Rows: rows, Emails: emails})
	pos := len(t.chunks) - 1
	t.mu.Unlock()

	return func(existing int) {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.chunks[pos].Existing = existing
		t.chunks[pos].Duration = time.Since(started)
	}
}

// Created records a successful create.
func (t *RunTracker) Created(chunk int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.result.New++
	t.result.Processed++
	t.chunkLocked(chunk).Processed++
}

// Updated records a successful update.
func (t *RunTracker) Updated(chunk int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.result.Updated++
	t.result.Processed++
	t.chunkLocked(chunk).Processed++
}

// Skipped records a row without an email.
func (t *RunTracker) Skipped() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.result.Skipped++
}

// Failed records a row whose write failed.
func (t *RunTracker) Failed(chunk int, stage, email string, row model.SourceRow, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.result.Failed++
	t.chunkLocked(chunk).Failed++
	t.addErrorLocked(model.ErrorDetail{
		Timestamp:    time.Now(),
		Stage:        stage,
		Chunk:        chunk,
		Email:        email,
		ErrorMessage: err.Error(),
		RecordData:   row,
		Retryable:    errors.IsRetryable(err),
	})
}

// LookupFailed records a chunk whose batched lookup failed.
func (t *RunTracker) LookupFailed(chunk int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.result.LookupFailures++
	t.addErrorLocked(model.ErrorDetail{
		Timestamp:    time.Now(),
		Stage:        StageLookup,
		Chunk:        chunk,
		ErrorMessage: err.Error(),
		Retryable:    errors.IsRetryable(err),
	})
}

// Result returns the counts so far with the elapsed duration, the chunk
// metrics and the recorded errors.
func (t *RunTracker) Result() model.ReconcileResult {
	t.mu.RLock()
	defer t.mu.RUnlock()
	res := t.result
	res.Duration = time.Since(t.start)
	res.ChunkDetails = append([]model.ChunkMetrics(nil), t.chunks...)
	res.Errors = append([]model.ErrorDetail(nil), t.errors...)
	res.ErrorsDropped = t.dropped
	return res
}

// Chunks returns a copy of the per-chunk metrics.
func (t *RunTracker) Chunks() []model.ChunkMetrics {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]model.ChunkMetrics(nil), t.chunks...)
}

// Errors returns a copy of the recorded error details.
func (t *RunTracker) Errors() []model.ErrorDetail {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]model.ErrorDetail(nil), t.errors...)
}

// LogSummary writes the run summary to log.
func (t *RunTracker) LogSummary(log *zerolog.Logger) {
	res := t.Result()

	event := log.Info()
	if res.Failed > 0 || res.LookupFailures > 0 {
		event = log.Warn()
	}
	event.
		Int("processed", res.Processed).
		Int("new", res.New).
		Int("updated", res.Updated).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Int("chunks", res.Chunks).
		Int("lookup_failures", res.LookupFailures).
		Int("errors_dropped", res.ErrorsDropped).
		Dur("duration", res.Duration).
		Msg("Reconciliation finished")
}

func (t *RunTracker) chunkLocked(index int) *model.ChunkMetrics {
	for i := len(t.chunks) - 1; i >= 0; i-- {
		if t.chunks[i].Index == index {
			return &t.chunks[i]
		}
	}
	t.chunks = append(t.chunks, model.ChunkMetrics{Index: index})
	return &t.chunks[len(t.chunks)-1]
}

func (t *RunTracker) addErrorLocked(detail model.ErrorDetail) {
	if len(t.errors) >= maxErrorDetails {
		t.dropped++
		return
	}
	t.errors = append(t.errors, detail)
}
