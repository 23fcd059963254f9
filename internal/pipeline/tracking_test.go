package pipeline

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enrollment-sync/internal/model"
	"enrollment-sync/pkg/errors"
	"enrollment-sync/pkg/logging"
)

func TestRunTracker(t *testing.T) {
	tr := NewRunTracker()

	done := tr.StartChunk(0, 3, 2)
	tr.Created(0)
	tr.Updated(0)
	tr.Skipped()
	done(1)

	done = tr.StartChunk(1, 2, 2)
	tr.LookupFailed(1, errors.NewNetworkError("u", 503, nil))
	tr.Created(1)
	tr.Failed(1, StageCreate, "x@x.com", model.SourceRow{"EmailAddress": "x@x.com"}, errors.New("boom"))
	done(0)

	res := tr.Result()
	assert.Equal(t, 3, res.Processed)
	assert.Equal(t, 2, res.New)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 2, res.Chunks)
	assert.Equal(t, 1, res.LookupFailures)

	chunks := tr.Chunks()
	require.Len(t, chunks, 2)
	assert.Equal(t, model.ChunkMetrics{Index: 0, Rows: 3, Emails: 2, Existing: 1, Processed: 2, Duration: chunks[0].Duration}, chunks[0])
	assert.Equal(t, 1, chunks[1].Failed)

	errs := tr.Errors()
	require.Len(t, errs, 2)
	assert.Equal(t, StageLookup, errs[0].Stage)
	assert.True(t, errs[0].Retryable)
	assert.Equal(t, StageCreate, errs[1].Stage)
	assert.Equal(t, "x@x.com", errs[1].Email)
	assert.False(t, errs[1].Retryable)

	assert.Equal(t, chunks, res.ChunkDetails)
	assert.Equal(t, errs, res.Errors)
	assert.Equal(t, "1 row writes failed, 1 chunk lookups failed; first: lookup: "+errs[0].ErrorMessage, res.Summary())
}

func TestRunTrackerCapsErrors(t *testing.T) {
	tr := NewRunTracker()
	for i := 0; i < maxErrorDetails+5; i++ {
		tr.Failed(0, StageUpdate, fmt.Sprintf("u%d@x.com", i), nil, errors.New("nope"))
	}
	assert.Len(t, tr.Errors(), maxErrorDetails)
	assert.Equal(t, maxErrorDetails+5, tr.Result().Failed)
	assert.Equal(t, 5, tr.Result().ErrorsDropped)

	tl := logging.NewTestLogger(t)
	tr.LogSummary(tl.Logger)
	tl.AssertContains(t, `"level":"warn"`)
	tl.AssertContains(t, `"errors_dropped":5`)
}

func TestReconcileResultSummary(t *testing.T) {
	assert.Empty(t, model.ReconcileResult{Processed: 3, New: 3}.Summary())

	res := model.ReconcileResult{
		Failed: 2,
		Errors: []model.ErrorDetail{{Stage: StageUpdate, Email: "a@x.com", ErrorMessage: "locked"}},
	}
	assert.Equal(t, "2 row writes failed; first: update a@x.com: locked", res.Summary())
}
