package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enrollment-sync/internal/config"
	"enrollment-sync/internal/model"
	"enrollment-sync/internal/pipeline"
	"enrollment-sync/internal/store"
	"enrollment-sync/internal/transport"
	"enrollment-sync/pkg/logging"
)

func testConfig(threshold int) *config.Config {
	return &config.Config{
		Store: store.Config{Backend: "memory"},
		Ingest: config.IngestConfig{
			Config: pipeline.Config{SizeThreshold: threshold, Workers: 1},
		},
		Retry: transport.RetryConfig{MaxAttempts: 1},
	}
}

func TestEndToEnd(t *testing.T) {
	csvServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("EmailAddress,FirstName,Phone\nann@x.com,Ann,+1 (555) 123-4567\n,NoEmail,\nbob@x.com,Bob,\n"))
	}))
	defer csvServer.Close()

	ctx := logging.WithLogger(context.Background(), logging.NewNopLogger())
	a, err := New(ctx, testConfig(1<<20))
	require.NoError(t, err)
	defer a.Close()

	api := httptest.NewServer(a.Router().Handler())
	defer api.Close()

	resp, err := http.Post(api.URL+"/api/v1/csv", "application/json",
		strings.NewReader(`{"csv_url":"`+csvServer.URL+`/roster.csv"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	var res model.SubmitResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.True(t, res.Success, res.Error)
	assert.Equal(t, model.ModeImmediate, res.Mode)
	require.NotNil(t, res.TotalProcessed)
	assert.Equal(t, 2, *res.TotalProcessed)
	assert.Equal(t, 2, *res.TotalNew)

	records, err := a.Store.ListRecords(ctx, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "5551234567", records[0].Record.Phone)
}

func TestQueuedThroughProcessNext(t *testing.T) {
	csvServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Department,EmailAddress\nAcme IMO,ann@x.com\n"))
	}))
	defer csvServer.Close()

	ctx := logging.WithLogger(context.Background(), logging.NewNopLogger())
	a, err := New(ctx, testConfig(10))
	require.NoError(t, err)
	defer a.Close()
	h := a.Router().Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/csv",
		strings.NewReader(`{"csv_url":"`+csvServer.URL+`/big.csv","csv_filename":"big.csv"}`)))
	var submitted model.SubmitResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &submitted))
	require.Equal(t, model.ModeQueued, submitted.Mode)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/queue/next", nil))
	var next model.ProcessNextResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &next))
	require.True(t, next.Success)
	require.NotNil(t, next.QueueItem)
	assert.Equal(t, submitted.QueueID, next.QueueItem.ID)
	assert.Equal(t, model.StatusCompleted, next.QueueItem.Status)
	assert.Equal(t, "Acme IMO", next.QueueItem.IMO)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/queue/"+submitted.QueueID, nil))
	var status model.QueueStatusResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.Len(t, status.QueueItems, 1)
	assert.Equal(t, 1, status.QueueItems[0].ProcessedRecords)
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	cfg := testConfig(0)
	cfg.Store.Backend = "redis"
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}
