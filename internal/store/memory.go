package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"enrollment-sync/internal/model"
	"enrollment-sync/pkg/errors"
)

// MemoryStore keeps records and queue items in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*model.StoredRecord
	order   []string
	queue   map[string]*model.QueueItem
	seq     map[string]int
	nextSeq int
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*model.StoredRecord),
		queue:   make(map[string]*model.QueueItem),
		seq:     make(map[string]int),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// FindByEmails implements RecordStore.
func (m *MemoryStore) FindByEmails(ctx context.Context, emails []string, limit int) ([]model.ExistingRecord, error) {
	if limit <= 0 {
		limit = DefaultLookupLimit
	}
	want := make(map[string]bool, len(emails))
	for _, e := range emails {
		want[strings.ToLower(e)] = true
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.ExistingRecord
	for _, id := range m.order {
		rec := m.records[id]
		if want[strings.ToLower(rec.Record.Email)] {
			out = append(out, model.ExistingRecord{ID: rec.ID, Email: rec.Record.Email})
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// CreateRecord implements RecordStore.
func (m *MemoryStore) CreateRecord(ctx context.Context, rec model.CanonicalRecord) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	now := m.now()
	m.records[id] = &model.StoredRecord{ID: id, Record: rec, CreatedAt: now, UpdatedAt: now}
	m.order = append(m.order, id)
	return id, nil
}

// UpdateRecord implements RecordStore.
func (m *MemoryStore) UpdateRecord(ctx context.Context, id string, rec model.CanonicalRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.records[id]
	if !ok {
		return errors.NewNotFoundError("record", id)
	}
	stored.Record = rec
	stored.UpdatedAt = m.now()
	return nil
}

// GetRecord implements RecordStore.
func (m *MemoryStore) GetRecord(ctx context.Context, id string) (*model.StoredRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.records[id]
	if !ok {
		return nil, errors.NewNotFoundError("record", id)
	}
	cp := *stored
	return &cp, nil
}

// ListRecords implements RecordStore.
func (m *MemoryStore) ListRecords(ctx context.Context, limit int) ([]model.StoredRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.StoredRecord, 0, len(m.order))
	for _, id := range m.order {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, *m.records[id])
	}
	return out, nil
}

// CreateQueueItem implements QueueStore.
func (m *MemoryStore) CreateQueueItem(ctx context.Context, item *model.QueueItem) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *item
	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}
	if cp.Status == "" {
		cp.Status = model.StatusQueued
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = m.now()
	}
	m.queue[cp.ID] = &cp
	m.nextSeq++
	m.seq[cp.ID] = m.nextSeq
	return cp.ID, nil
}

// GetQueueItem implements QueueStore.
func (m *MemoryStore) GetQueueItem(ctx context.Context, id string) (*model.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.queue[id]
	if !ok {
		return nil, errors.NewNotFoundError("queue item", id)
	}
	cp := *item
	return &cp, nil
}

// ListQueueItems implements QueueStore.
func (m *MemoryStore) ListQueueItems(ctx context.Context, limit int) ([]model.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	items := m.sortedLocked(func(a, b *model.QueueItem) bool {
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return m.seq[a.ID] > m.seq[b.ID]
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// NextQueueItem implements QueueStore.
func (m *MemoryStore) NextQueueItem(ctx context.Context) (*model.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	items := m.sortedLocked(func(a, b *model.QueueItem) bool {
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return m.seq[a.ID] < m.seq[b.ID]
	})
	for _, item := range items {
		if item.Status == model.StatusQueued {
			cp := item
			return &cp, nil
		}
	}
	return nil, errors.ErrQueueEmpty
}

// ClaimQueueItem implements QueueStore.
func (m *MemoryStore) ClaimQueueItem(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.queue[id]
	if !ok {
		return false, errors.NewNotFoundError("queue item", id)
	}
	if item.Status != model.StatusQueued {
		return false, nil
	}
	now := m.now()
	item.Status = model.StatusProcessing
	item.StartedAt = &now
	return true, nil
}

// CompleteQueueItem implements QueueStore.
func (m *MemoryStore) CompleteQueueItem(ctx context.Context, id string, result model.ReconcileResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.queue[id]
	if !ok {
		return errors.NewNotFoundError("queue item", id)
	}
	if item.Status != model.StatusProcessing {
		return conflictError(id)
	}
	now := m.now()
	item.Status = model.StatusCompleted
	item.ProcessedRecords = result.Processed
	item.NewRecords = result.New
	item.UpdatedRecords = result.Updated
	item.ErrorMessage = result.Summary()
	item.ProcessedAt = &now
	return nil
}

// FailQueueItem implements QueueStore.
func (m *MemoryStore) FailQueueItem(ctx context.Context, id string, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.queue[id]
	if !ok {
		return errors.NewNotFoundError("queue item", id)
	}
	if item.Status != model.StatusProcessing {
		return conflictError(id)
	}
	now := m.now()
	item.Status = model.StatusError
	item.ErrorMessage = message
	item.ProcessedAt = &now
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) sortedLocked(less func(a, b *model.QueueItem) bool) []model.QueueItem {
	ptrs := make([]*model.QueueItem, 0, len(m.queue))
	for _, item := range m.queue {
		ptrs = append(ptrs, item)
	}
	sort.Slice(ptrs, func(i, j int) bool { return less(ptrs[i], ptrs[j]) })

	out := make([]model.QueueItem, len(ptrs))
	for i, p := range ptrs {
		out[i] = *p
	}
	return out
}
