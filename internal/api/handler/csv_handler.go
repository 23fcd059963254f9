package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"enrollment-sync/internal/model"
	"enrollment-sync/pkg/logging"
)

// SubmitCSV fetches a CSV and reconciles it now or queues it by size
// @Summary Submit a CSV
// @Description Fetch the CSV at csv_url and upsert its rows by email. Small files are processed immediately, large ones are queued.
// @Tags csv
// @Accept json
// @Produce json
// @Param request body model.SubmitRequest true "CSV location"
// @Success 200 {object} model.SubmitResult "Processed or queued"
// @Failure 400 {object} errorResponse "Invalid JSON payload"
// @Router /csv [post]
func (h *Handler) SubmitCSV(w http.ResponseWriter, r *http.Request) {
	var req model.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid JSON payload: %w", err))
		return
	}

	ctx := logging.WithOperation(r.Context(), "submit_csv")
	res, err := h.ingest.Submit(ctx, req)
	if err != nil {
		writeJSON(w, r, http.StatusOK, model.SubmitResult{Success: false, CSVURL: req.CSVURL, Error: err.Error()})
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}
