package pipeline

import (
	"context"
	"sync"
	"testing"

	"enrollment-sync/internal/model"
	"enrollment-sync/internal/store"
	"enrollment-sync/pkg/errors"
	"enrollment-sync/pkg/logging"
)

func pct(f float64) *float64 { return &f }

// quietContext carries a logger that discards output.
func quietContext() context.Context {
	return logging.WithLogger(context.Background(), logging.NewNopLogger())
}

// countingStore wraps a MemoryStore, records lookup sizes and injects
// failures.
type countingStore struct {
	*store.MemoryStore

	mu         sync.Mutex
	lookups    [][]string
	lookupErr  error
	onLookup   func()
	failCreate map[string]bool
	failUpdate map[string]bool
}

func newCountingStore() *countingStore {
	return &countingStore{
		MemoryStore: store.NewMemoryStore(),
		failCreate:  map[string]bool{},
		failUpdate:  map[string]bool{},
	}
}

func (s *countingStore) FindByEmails(ctx context.Context, emails []string, limit int) ([]model.ExistingRecord, error) {
	s.mu.Lock()
	s.lookups = append(s.lookups, append([]string(nil), emails...))
	err := s.lookupErr
	hook := s.onLookup
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	return s.MemoryStore.FindByEmails(ctx, emails, limit)
}

func (s *countingStore) CreateRecord(ctx context.Context, rec model.CanonicalRecord) (string, error) {
	s.mu.Lock()
	fail := s.failCreate[rec.Email]
	s.mu.Unlock()
	if fail {
		return "", errors.NewStoreError("memory", "create", errors.New("disk full"))
	}
	return s.MemoryStore.CreateRecord(ctx, rec)
}

func (s *countingStore) UpdateRecord(ctx context.Context, id string, rec model.CanonicalRecord) error {
	s.mu.Lock()
	fail := s.failUpdate[rec.Email]
	s.mu.Unlock()
	if fail {
		return errors.NewStoreError("memory", "update", errors.New("row locked"))
	}
	return s.MemoryStore.UpdateRecord(ctx, id, rec)
}

func (s *countingStore) lookupSizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	sizes := make([]int, len(s.lookups))
	for i, l := range s.lookups {
		sizes[i] = len(l)
	}
	return sizes
}

func (s *countingStore) count(t *testing.T) int {
	t.Helper()
	all, err := s.ListRecords(context.Background(), 0)
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	return len(all)
}

// fakeFetcher serves CSV text by URL.
type fakeFetcher struct {
	mu    sync.Mutex
	texts map[string]string
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	text, ok := f.texts[url]
	if !ok {
		return "", errors.NewNetworkError(url, 404, nil)
	}
	return text, nil
}

func (f *fakeFetcher) fetchCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
