package handler

import (
	"net/http"

	"enrollment-sync/internal/model"
	"enrollment-sync/pkg/errors"
	"enrollment-sync/pkg/logging"
	"enrollment-sync/pkg/router"
)

// QueueItemPattern is the route of a single queue item.
const QueueItemPattern = "/api/v1/queue/*"

// GetQueueStatus lists recent queue items or a single one
// @Summary Queue status
// @Description Without an id, returns the most recent queue items newest first. With an id, returns that item, or an empty list if it does not exist.
// @Tags queue
// @Produce json
// @Param queue_id query string false "Queue item ID"
// @Success 200 {object} model.QueueStatusResult
// @Router /queue [get]
func (h *Handler) GetQueueStatus(w http.ResponseWriter, r *http.Request) {
	h.queueStatus(w, r, r.URL.Query().Get("queue_id"))
}

// GetQueueItem returns a single queue item
// @Summary Queue item status
// @Tags queue
// @Produce json
// @Param id path string true "Queue item ID"
// @Success 200 {object} model.QueueStatusResult
// @Router /queue/{id} [get]
func (h *Handler) GetQueueItem(w http.ResponseWriter, r *http.Request) {
	h.queueStatus(w, r, router.Wildcard(r.URL.Path, QueueItemPattern))
}

func (h *Handler) queueStatus(w http.ResponseWriter, r *http.Request, id string) {
	ctx := logging.WithOperation(r.Context(), "queue_status")
	items, err := h.ingest.QueueStatus(ctx, id)
	if err != nil {
		writeJSON(w, r, http.StatusOK, model.QueueStatusResult{Success: false, Error: err.Error()})
		return
	}
	if items == nil {
		items = []model.QueueItem{}
	}
	writeJSON(w, r, http.StatusOK, model.QueueStatusResult{Success: true, QueueItems: items})
}

// ProcessNext claims and processes the next queued item
// @Summary Process next queue item
// @Description Claims the highest priority, oldest queued item and processes it synchronously.
// @Tags queue
// @Produce json
// @Success 200 {object} model.ProcessNextResult
// @Router /queue/next [post]
func (h *Handler) ProcessNext(w http.ResponseWriter, r *http.Request) {
	ctx := logging.WithOperation(r.Context(), "process_next")
	item, err := h.ingest.ProcessNext(ctx)
	switch {
	case errors.Is(err, errors.ErrQueueEmpty):
		writeJSON(w, r, http.StatusOK, model.ProcessNextResult{Success: true, Message: "No items in queue"})
	case err != nil:
		writeJSON(w, r, http.StatusOK, model.ProcessNextResult{Success: false, Error: err.Error()})
	default:
		writeJSON(w, r, http.StatusOK, model.ProcessNextResult{
			Success:   true,
			Message:   "Queue item processed",
			QueueItem: item,
		})
	}
}
