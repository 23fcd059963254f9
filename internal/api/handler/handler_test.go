package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enrollment-sync/internal/api"
	"enrollment-sync/internal/api/handler"
	"enrollment-sync/internal/model"
	"enrollment-sync/internal/store"
	"enrollment-sync/pkg/errors"
	"enrollment-sync/pkg/router"
)

type fakeIngestor struct {
	submitted   []model.SubmitRequest
	submitErr   error
	items       map[string]model.QueueItem
	statusErr   error
	next        *model.QueueItem
	nextErr     error
	lastQueueID string
}

func (f *fakeIngestor) Submit(ctx context.Context, req model.SubmitRequest) (*model.SubmitResult, error) {
	f.submitted = append(f.submitted, req)
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	processed := 2
	return &model.SubmitResult{
		Success:        true,
		Mode:           model.ModeImmediate,
		Status:         string(model.StatusCompleted),
		CSVURL:         req.CSVURL,
		TotalProcessed: &processed,
	}, nil
}

func (f *fakeIngestor) QueueStatus(ctx context.Context, id string) ([]model.QueueItem, error) {
	f.lastQueueID = id
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	if id == "" {
		var out []model.QueueItem
		for _, item := range f.items {
			out = append(out, item)
		}
		return out, nil
	}
	item, ok := f.items[id]
	if !ok {
		return []model.QueueItem{}, nil
	}
	return []model.QueueItem{item}, nil
}

func (f *fakeIngestor) ProcessNext(ctx context.Context) (*model.QueueItem, error) {
	return f.next, f.nextErr
}

func newServer(t *testing.T, ing *fakeIngestor, records store.RecordStore) http.Handler {
	t.Helper()
	if records == nil {
		records = store.NewMemoryStore()
	}
	r := router.New()
	r.Use(router.Recover)
	api.RegisterRoutes(r, handler.New(ing, records))
	return r.Handler()
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestHealth(t *testing.T) {
	rec := do(newServer(t, &fakeIngestor{}, nil), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestSubmitCSV(t *testing.T) {
	ing := &fakeIngestor{}
	h := newServer(t, ing, nil)

	rec := do(h, http.MethodPost, "/api/v1/csv", `{"csv_url":"https://x.com/a.csv","csv_filename":"a.csv"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "immediate", body["mode"])
	assert.Equal(t, float64(2), body["total_processed"])
	require.Len(t, ing.submitted, 1)
	assert.Equal(t, "a.csv", ing.submitted[0].CSVFilename)
}

func TestSubmitCSVBadJSON(t *testing.T) {
	ing := &fakeIngestor{}
	rec := do(newServer(t, ing, nil), http.MethodPost, "/api/v1/csv", `{"csv_url":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["error"], "invalid JSON payload")
	assert.Empty(t, ing.submitted)
}

func TestSubmitCSVFailureIsReported(t *testing.T) {
	ing := &fakeIngestor{submitErr: errors.NewNetworkError("https://x.com/a.csv", 404, nil)}
	rec := do(newServer(t, ing, nil), http.MethodPost, "/api/v1/csv", `{"csv_url":"https://x.com/a.csv"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "https://x.com/a.csv", body["csv_url"])
	assert.Contains(t, body["error"], "404")
}

func TestSubmitCSVWrongMethod(t *testing.T) {
	rec := do(newServer(t, &fakeIngestor{}, nil), http.MethodGet, "/api/v1/csv", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestQueueStatus(t *testing.T) {
	ing := &fakeIngestor{items: map[string]model.QueueItem{
		"q1": {ID: "q1", Filename: "big.csv", Status: model.StatusQueued, Priority: 1},
	}}
	h := newServer(t, ing, nil)

	rec := do(h, http.MethodGet, "/api/v1/queue", "")
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Len(t, body["queue_items"], 1)
	assert.Equal(t, "", ing.lastQueueID)

	rec = do(h, http.MethodGet, "/api/v1/queue?queue_id=q1", "")
	body = decode(t, rec)
	items := body["queue_items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "queued", items[0].(map[string]any)["processing_status"])
	assert.Equal(t, "q1", ing.lastQueueID)

	rec = do(h, http.MethodGet, "/api/v1/queue/q1", "")
	assert.Len(t, decode(t, rec)["queue_items"], 1)
	assert.Equal(t, "q1", ing.lastQueueID)

	rec = do(h, http.MethodGet, "/api/v1/queue/missing", "")
	body = decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, []any{}, body["queue_items"])
}

func TestQueueStatusEmptyListIsArray(t *testing.T) {
	rec := do(newServer(t, &fakeIngestor{}, nil), http.MethodGet, "/api/v1/queue", "")
	assert.JSONEq(t, `{"success":true,"queue_items":[]}`, rec.Body.String())
}

func TestQueueStatusFailure(t *testing.T) {
	ing := &fakeIngestor{statusErr: errors.NewStoreError("parse", "list queue", errors.New("unreachable"))}
	rec := do(newServer(t, ing, nil), http.MethodGet, "/api/v1/queue", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["error"], "unreachable")
}

func TestProcessNext(t *testing.T) {
	t.Run("empty queue", func(t *testing.T) {
		rec := do(newServer(t, &fakeIngestor{nextErr: errors.ErrQueueEmpty}, nil), http.MethodPost, "/api/v1/queue/next", "")
		assert.JSONEq(t, `{"success":true,"message":"No items in queue","queue_item":null}`, rec.Body.String())
	})

	t.Run("processed", func(t *testing.T) {
		item := &model.QueueItem{ID: "q1", Status: model.StatusCompleted, ProcessedRecords: 4}
		rec := do(newServer(t, &fakeIngestor{next: item}, nil), http.MethodPost, "/api/v1/queue/next", "")
		body := decode(t, rec)
		assert.Equal(t, true, body["success"])
		qi := body["queue_item"].(map[string]any)
		assert.Equal(t, "q1", qi["id"])
		assert.Equal(t, float64(4), qi["processed_records"])
	})

	t.Run("store failure", func(t *testing.T) {
		ing := &fakeIngestor{nextErr: errors.NewStoreError("sqlite", "next", errors.New("locked"))}
		rec := do(newServer(t, ing, nil), http.MethodPost, "/api/v1/queue/next", "")
		body := decode(t, rec)
		assert.Equal(t, false, body["success"])
		assert.Nil(t, body["queue_item"])
	})

	t.Run("wrong method", func(t *testing.T) {
		ing := &fakeIngestor{}
		rec := do(newServer(t, ing, nil), http.MethodGet, "/api/v1/queue/next", "")
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
		assert.Empty(t, ing.lastQueueID)
	})
}

func TestExportRecords(t *testing.T) {
	records := store.NewMemoryStore()
	for _, email := range []string{"a@x.com", "b@x.com"} {
		_, err := records.CreateRecord(context.Background(), model.CanonicalRecord{Email: email})
		require.NoError(t, err)
	}
	h := newServer(t, &fakeIngestor{}, records)

	rec := do(h, http.MethodGet, "/api/v1/records/export", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=records.csv", rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "2", rec.Header().Get("X-Record-Count"))
	assert.Equal(t, 3, strings.Count(rec.Body.String(), "\n"))

	rec = do(h, http.MethodGet, "/api/v1/records/export?format=json&limit=1", "")
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "1", rec.Header().Get("X-Record-Count"))
	var out []model.StoredRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Len(t, out, 1)
}

func TestExportRecordsBadInput(t *testing.T) {
	h := newServer(t, &fakeIngestor{}, nil)

	for _, path := range []string{
		"/api/v1/records/export?limit=-1",
		"/api/v1/records/export?limit=ten",
		"/api/v1/records/export?format=xml",
	} {
		rec := do(h, http.MethodGet, path, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
		assert.Equal(t, false, decode(t, rec)["success"], path)
	}
}
