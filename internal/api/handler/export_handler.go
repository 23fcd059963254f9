package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"enrollment-sync/internal/pipeline"
	"enrollment-sync/pkg/errors"
	"enrollment-sync/pkg/logging"
)

// ExportRecords streams stored records as CSV or JSON
// @Summary Export records
// @Description Download the reconciled records in creation order.
// @Tags records
// @Produce text/csv
// @Produce json
// @Param format query string false "csv or json" default(csv)
// @Param limit query int false "Maximum records, 0 for all"
// @Success 200 {file} file "Exported records"
// @Failure 400 {object} errorResponse "Invalid format or limit"
// @Router /records/export [get]
func (h *Handler) ExportRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format := q.Get("format")
	if format == "" {
		format = pipeline.FormatCSV
	}

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, r, http.StatusBadRequest, errors.NewValidationError("limit", "limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	ctx := logging.WithOperation(r.Context(), "export_records")
	var buf bytes.Buffer
	res, err := pipeline.ExportRecords(ctx, h.records, &buf, format, limit)
	if errors.Is(err, errors.ErrInvalidInput) {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if err != nil {
		writeError(w, r, http.StatusOK, err)
		return
	}

	contentType := "text/csv; charset=utf-8"
	if res.Format == pipeline.FormatJSON {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=records.%s", res.Format))
	w.Header().Set("X-Record-Count", strconv.Itoa(res.RecordCount))
	if _, err := w.Write(buf.Bytes()); err != nil {
		logging.FromContext(ctx).Error().Err(err).Msg("Failed to write export")
	}
}
