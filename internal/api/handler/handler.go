// Package handler implements the HTTP endpoints of the enrollment sync API.
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"enrollment-sync/internal/model"
	"enrollment-sync/internal/store"
	"enrollment-sync/pkg/logging"
)

// Ingestor is the part of the dispatcher the handlers drive.
type Ingestor interface {
	Submit(ctx context.Context, req model.SubmitRequest) (*model.SubmitResult, error)
	QueueStatus(ctx context.Context, id string) ([]model.QueueItem, error)
	ProcessNext(ctx context.Context) (*model.QueueItem, error)
}

// Handler holds the dependencies of the API endpoints.
type Handler struct {
	ingest  Ingestor
	records store.RecordStore
}

// New creates a Handler.
func New(ingest Ingestor, records store.RecordStore) *Handler {
	return &Handler{ingest: ingest, records: records}
}

// errorResponse is the body of every failed operation.
type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.FromContext(r.Context()).Error().Err(err).Msg("Failed to write response")
	}
}

// writeError reports err as {success:false}. Operations that were reached
// answer 200; only undecodable requests use a 4xx status.
func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	logging.FromContext(r.Context()).Warn().Err(err).Msg("Request failed")
	writeJSON(w, r, status, errorResponse{Success: false, Error: err.Error()})
}

// Health reports liveness.
// @Summary Health check
// @Tags system
// @Produce json
// @Success 200 {object} map[string]string
// @Router /healthz [get]
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}
