package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enrollment-sync/internal/model"
	"enrollment-sync/internal/store"
	"enrollment-sync/pkg/errors"
	"enrollment-sync/pkg/logging"
)

const (
	smallURL = "https://files.example.com/small.csv"
	bigURL   = "https://files.example.com/big.csv"
)

var (
	smallCSV = "EmailAddress,FirstName\na@x.com,Ann\n"
	bigCSV   = "Department,EmailAddress,FirstName\nAcme IMO,b@x.com,Bob\nAcme IMO,c@x.com,Cy\n"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *store.MemoryStore, *fakeFetcher) {
	t.Helper()
	st := store.NewMemoryStore()
	fetcher := &fakeFetcher{texts: map[string]string{smallURL: smallCSV, bigURL: bigCSV}}
	d := NewDispatcher(fetcher, st, NewReconciler(st, nil, ReconcileConfig{}), Config{
		SizeThreshold: len(smallCSV),
		Workers:       1,
	})
	t.Cleanup(d.Stop)
	return d, st, fetcher
}

func TestSubmitImmediate(t *testing.T) {
	d, st, _ := newTestDispatcher(t)

	res, err := d.Submit(quietContext(), model.SubmitRequest{CSVURL: smallURL})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, model.ModeImmediate, res.Mode)
	assert.Equal(t, string(model.StatusCompleted), res.Status)
	assert.Empty(t, res.QueueID)
	require.NotNil(t, res.TotalProcessed)
	assert.Equal(t, 1, *res.TotalProcessed)
	assert.Equal(t, 1, *res.TotalNew)
	assert.Equal(t, 0, *res.TotalUpdated)
	require.NotNil(t, res.TotalFailed)
	assert.Equal(t, 0, *res.TotalFailed)
	assert.Empty(t, res.Errors)

	items, err := st.ListQueueItems(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestSubmitQueuedWithoutWorkers(t *testing.T) {
	d, st, _ := newTestDispatcher(t)

	res, err := d.Submit(quietContext(), model.SubmitRequest{CSVURL: bigURL, CSVFilename: " big.csv ", Priority: 3})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, model.ModeQueued, res.Mode)
	assert.Equal(t, string(model.StatusQueued), res.Status)
	assert.Nil(t, res.TotalProcessed)
	require.NotEmpty(t, res.QueueID)

	item, err := st.GetQueueItem(context.Background(), res.QueueID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusQueued, item.Status)
	assert.Equal(t, "big.csv", item.Filename)
	assert.Equal(t, bigURL, item.CSVURL)
	assert.Equal(t, bigCSV, item.Content)
	assert.Equal(t, len(bigCSV), item.FileSize)
	assert.Equal(t, 3, item.TotalRecords)
	assert.Equal(t, "Acme IMO", item.IMO)
	assert.Equal(t, "api", item.SourceEmail)
	assert.Equal(t, 3, item.Priority)
}

func TestSubmitQueuedRunsOnWorkers(t *testing.T) {
	d, st, _ := newTestDispatcher(t)
	d.Start(quietContext())

	res, err := d.Submit(quietContext(), model.SubmitRequest{CSVURL: bigURL})
	require.NoError(t, err)
	require.Equal(t, model.ModeQueued, res.Mode)

	require.Eventually(t, func() bool {
		item, err := st.GetQueueItem(context.Background(), res.QueueID)
		return err == nil && item.Status == model.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	item, err := st.GetQueueItem(context.Background(), res.QueueID)
	require.NoError(t, err)
	assert.Equal(t, 2, item.ProcessedRecords)
	assert.Equal(t, 2, item.NewRecords)
	assert.NotNil(t, item.StartedAt)
	assert.NotNil(t, item.ProcessedAt)

	_, err = d.ProcessNext(quietContext())
	assert.ErrorIs(t, err, errors.ErrQueueEmpty)
}

func TestSubmitValidationAndFetchErrors(t *testing.T) {
	d, _, fetcher := newTestDispatcher(t)

	_, err := d.Submit(quietContext(), model.SubmitRequest{})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
	assert.Equal(t, 0, fetcher.fetchCalls())

	_, err = d.Submit(quietContext(), model.SubmitRequest{CSVURL: "https://files.example.com/missing.csv"})
	assert.ErrorIs(t, err, errors.ErrNetwork)
}

func TestIngestThresholdBoundary(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	res, err := d.Ingest(quietContext(), smallCSV, IngestMeta{})
	require.NoError(t, err)
	assert.Equal(t, model.ModeImmediate, res.Mode, "text of exactly the threshold is immediate")

	res, err = d.Ingest(quietContext(), smallCSV+"\n", IngestMeta{})
	require.NoError(t, err)
	assert.Equal(t, model.ModeQueued, res.Mode)
}

func TestProcessNextOrdering(t *testing.T) {
	d, st, _ := newTestDispatcher(t)
	ctx := quietContext()

	low, err := d.Ingest(ctx, bigCSV, IngestMeta{Filename: "low.csv", Priority: 1})
	require.NoError(t, err)
	high, err := d.Ingest(ctx, bigCSV, IngestMeta{Filename: "high.csv", Priority: 9})
	require.NoError(t, err)

	item, err := d.ProcessNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, high.QueueID, item.ID)
	assert.Equal(t, model.StatusCompleted, item.Status)
	assert.Equal(t, 2, item.NewRecords)

	item, err = d.ProcessNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, low.QueueID, item.ID)
	assert.Equal(t, 2, item.UpdatedRecords)

	_, err = d.ProcessNext(ctx)
	assert.ErrorIs(t, err, errors.ErrQueueEmpty)

	records, err := st.ListRecords(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestProcessQueueItemRefetchesMissingContent(t *testing.T) {
	d, st, fetcher := newTestDispatcher(t)
	ctx := quietContext()

	id, err := st.CreateQueueItem(ctx, &model.QueueItem{Filename: "big.csv", CSVURL: bigURL, Priority: 1})
	require.NoError(t, err)

	item, err := d.ProcessQueueItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, item.Status)
	assert.Equal(t, 2, item.ProcessedRecords)
	assert.Equal(t, 1, fetcher.fetchCalls())
}

func TestProcessQueueItemRecordsFailure(t *testing.T) {
	d, st, fetcher := newTestDispatcher(t)
	ctx := quietContext()
	fetcher.err = errors.NewNetworkError(bigURL, 500, nil)

	id, err := st.CreateQueueItem(ctx, &model.QueueItem{Filename: "big.csv", CSVURL: bigURL, Priority: 1})
	require.NoError(t, err)

	item, err := d.ProcessQueueItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusError, item.Status)
	assert.Contains(t, item.ErrorMessage, "500")

	orphan, err := st.CreateQueueItem(ctx, &model.QueueItem{Filename: "empty.csv", Priority: 1})
	require.NoError(t, err)
	item, err = d.ProcessQueueItem(ctx, orphan)
	require.NoError(t, err)
	assert.Equal(t, model.StatusError, item.Status)
	assert.Contains(t, item.ErrorMessage, "csv_url")
}

func rosterCSV(n int) string {
	var b strings.Builder
	b.WriteString("EmailAddress,FirstName\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "user%02d@x.com,U\n", i)
	}
	return b.String()
}

func TestQueuedRunSurvivesShutdown(t *testing.T) {
	st := newCountingStore()
	fetcher := &fakeFetcher{texts: map[string]string{bigURL: rosterCSV(60)}}
	d := NewDispatcher(fetcher, st, NewReconciler(st, nil, ReconcileConfig{}), Config{SizeThreshold: 10, Workers: 1})

	ctx, cancel := context.WithCancel(quietContext())
	defer cancel()
	var once sync.Once
	st.onLookup = func() { once.Do(cancel) }

	d.Start(ctx)
	res, err := d.Submit(quietContext(), model.SubmitRequest{CSVURL: bigURL})
	require.NoError(t, err)
	require.Equal(t, model.ModeQueued, res.Mode)
	d.Stop()

	item, err := st.GetQueueItem(context.Background(), res.QueueID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, item.Status)
	assert.Equal(t, 60, item.ProcessedRecords)
	assert.Equal(t, []int{25, 25, 10}, st.lookupSizes())
}

func TestProcessQueueItemOutlivesCaller(t *testing.T) {
	st := newCountingStore()
	d := NewDispatcher(&fakeFetcher{}, st, NewReconciler(st, nil, ReconcileConfig{}), Config{})
	t.Cleanup(d.Stop)

	ctx, cancel := context.WithCancel(quietContext())
	defer cancel()
	st.onLookup = cancel

	id, err := st.CreateQueueItem(ctx, &model.QueueItem{Filename: "r.csv", Content: rosterCSV(30), Priority: 1})
	require.NoError(t, err)

	item, err := d.ProcessQueueItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, item.Status)
	assert.Equal(t, 30, item.ProcessedRecords)
}

func TestQueuedRunRecordsRowFailures(t *testing.T) {
	st := newCountingStore()
	st.failCreate["user01@x.com"] = true
	d := NewDispatcher(&fakeFetcher{}, st, NewReconciler(st, nil, ReconcileConfig{}), Config{})
	t.Cleanup(d.Stop)
	ctx := quietContext()

	id, err := st.CreateQueueItem(ctx, &model.QueueItem{Filename: "r.csv", Content: rosterCSV(3), Priority: 1})
	require.NoError(t, err)

	item, err := d.ProcessQueueItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, item.Status)
	assert.Equal(t, 2, item.ProcessedRecords)
	assert.Equal(t, "1 row writes failed; first: create user01@x.com: memory store: create failed: disk full", item.ErrorMessage)
}

func TestProcessQueueItemRequiresQueued(t *testing.T) {
	d, st, _ := newTestDispatcher(t)
	ctx := quietContext()

	id, err := st.CreateQueueItem(ctx, &model.QueueItem{Filename: "x.csv", Content: smallCSV, Priority: 1})
	require.NoError(t, err)
	_, err = d.ProcessQueueItem(ctx, id)
	require.NoError(t, err)

	_, err = d.ProcessQueueItem(ctx, id)
	assert.ErrorIs(t, err, errors.ErrConflict)

	_, err = d.ProcessQueueItem(ctx, "missing")
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestQueueStatus(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	ctx := quietContext()

	empty, err := d.QueueStatus(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, empty)

	res, err := d.Ingest(ctx, bigCSV, IngestMeta{Filename: "one.csv"})
	require.NoError(t, err)
	_, err = d.Ingest(ctx, bigCSV, IngestMeta{Filename: "two.csv"})
	require.NoError(t, err)

	all, err := d.QueueStatus(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	one, err := d.QueueStatus(ctx, res.QueueID)
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "one.csv", one[0].Filename)

	unknown, err := d.QueueStatus(ctx, "does-not-exist")
	require.NoError(t, err)
	assert.NotNil(t, unknown)
	assert.Empty(t, unknown)
}

func TestQueueStatusRespectsLimit(t *testing.T) {
	st := store.NewMemoryStore()
	d := NewDispatcher(&fakeFetcher{}, st, NewReconciler(st, nil, ReconcileConfig{}), Config{SizeThreshold: 1, StatusLimit: 2})
	ctx := quietContext()
	for i := 0; i < 4; i++ {
		_, err := d.Ingest(ctx, smallCSV, IngestMeta{})
		require.NoError(t, err)
	}

	items, err := d.QueueStatus(ctx, "")
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestWorkerPool(t *testing.T) {
	handled := make(chan string, 4)
	p := NewWorkerPool(2, 4, func(ctx context.Context, id string) {
		handled <- id
	})

	assert.False(t, p.Submit("early"), "not started")

	p.Start(quietContext())
	p.Start(quietContext())
	assert.True(t, p.Submit("a"))
	assert.True(t, p.Submit("b"))
	p.Stop()
	p.Stop()

	close(handled)
	var got []string
	for id := range handled {
		got = append(got, id)
	}
	assert.ElementsMatch(t, []string{"a", "b"}, got)
	assert.False(t, p.Submit("late"), "stopped")
}

func TestWorkerPoolFullBuffer(t *testing.T) {
	release := make(chan struct{})
	p := NewWorkerPool(1, 1, func(ctx context.Context, id string) { <-release })
	p.Start(quietContext())

	accepted := 0
	for i := 0; i < 3; i++ {
		if p.Submit("x") {
			accepted++
		}
	}
	assert.Less(t, accepted, 3)
	close(release)
	p.Stop()
}

func TestWorkerLogsCarryQueueID(t *testing.T) {
	tl := logging.NewTestLogger(t)
	ctx := logging.WithLogger(context.Background(), tl.Logger)

	p := NewWorkerPool(1, 1, func(ctx context.Context, id string) {
		logging.FromContext(ctx).Info().Msg("handling")
	})
	p.Start(ctx)
	require.True(t, p.Submit("q-7"))
	p.Stop()

	tl.AssertContains(t, `"queue_id":"q-7"`)
	tl.AssertContains(t, `"worker":0`)
}

func TestValidateSubmitRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     model.SubmitRequest
		wantErr string
	}{
		{"valid", model.SubmitRequest{CSVURL: "https://files.example.com/a.csv"}, ""},
		{"padded", model.SubmitRequest{CSVURL: "  http://files.example.com/a.csv  "}, ""},
		{"missing", model.SubmitRequest{}, "csv_url is required"},
		{"blank", model.SubmitRequest{CSVURL: "   "}, "csv_url is required"},
		{"scheme", model.SubmitRequest{CSVURL: "ftp://files.example.com/a.csv"}, "http or https"},
		{"relative", model.SubmitRequest{CSVURL: "/a.csv"}, "http or https"},
		{"no host", model.SubmitRequest{CSVURL: "https:///a.csv"}, "host"},
		{"negative priority", model.SubmitRequest{CSVURL: "https://x.com/a.csv", Priority: -1}, "priority"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSubmitRequest(tt.req)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, errors.ErrInvalidInput)
			assert.True(t, strings.Contains(err.Error(), tt.wantErr), err.Error())
		})
	}
}

func TestNormalizeSubmitRequest(t *testing.T) {
	req := normalizeSubmitRequest(model.SubmitRequest{CSVURL: " https://x.com/a.csv "}, 4)
	assert.Equal(t, "https://x.com/a.csv", req.CSVURL)
	assert.Equal(t, DefaultFilename, req.CSVFilename)
	assert.Equal(t, 4, req.Priority)
	assert.Equal(t, "api", req.SourceEmail)

	req = normalizeSubmitRequest(model.SubmitRequest{CSVURL: "https://x.com/a.csv", Priority: 2, SourceEmail: "cli"}, 4)
	assert.Equal(t, 2, req.Priority)
	assert.Equal(t, "cli", req.SourceEmail)
}
