package pipeline

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"enrollment-sync/internal/model"
	"enrollment-sync/internal/store"
	"enrollment-sync/pkg/errors"
	"enrollment-sync/pkg/logging"
)

// Export formats
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

var exportHeader = []string{
	"id", "email", "first_name", "last_name", "phone", "department", "hiring_manager",
	"course_name", "prepared_to_pass", "time_spent", "date_enrolled", "last_login",
	"date_completed", "percent_complete", "percent_prep", "percent_sim", "updated_at",
}

// ExportRecords writes up to limit stored records to w as CSV or JSON.
func ExportRecords(ctx context.Context, rs store.RecordStore, w io.Writer, format string, limit int) (model.ExportResult, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = FormatCSV
	}
	if format != FormatCSV && format != FormatJSON {
		return model.ExportResult{}, errors.NewValidationError("format", fmt.Sprintf("unsupported export format %q", format))
	}

	records, err := rs.ListRecords(ctx, limit)
	if err != nil {
		return model.ExportResult{}, err
	}

	var count int
	switch format {
	case FormatJSON:
		count, err = exportJSON(w, records)
	default:
		count, err = exportCSV(w, records)
	}
	if err != nil {
		return model.ExportResult{}, err
	}

	logging.FromContext(ctx).Info().Str("format", format).Int("records", count).Msg("Records exported")
	return model.ExportResult{Format: format, RecordCount: count, ExportedAt: time.Now().UTC()}, nil
}

func exportCSV(w io.Writer, records []model.StoredRecord) (int, error) {
	writer := csv.NewWriter(w)

	if err := writer.Write(exportHeader); err != nil {
		return 0, fmt.Errorf("failed to write header: %w", err)
	}

	recordCount := 0
	for _, stored := range records {
		r := stored.Record
		row := []string{
			stored.ID,
			r.Email,
			r.FirstName,
			r.LastName,
			r.Phone,
			r.Department,
			r.HiringManager,
			r.CourseName,
			r.PreparedToPass,
			r.TimeSpent,
			formatTime(r.DateEnrolled),
			formatTime(r.LastLogin),
			formatTime(r.DateCompleted),
			formatFloat(r.PercentComplete),
			formatFloat(r.PercentPrep),
			formatFloat(r.PercentSim),
			formatTime(&stored.UpdatedAt),
		}
		if err := writer.Write(row); err != nil {
			return recordCount, fmt.Errorf("failed to write row: %w", err)
		}
		recordCount++
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return recordCount, fmt.Errorf("failed to flush csv: %w", err)
	}
	return recordCount, nil
}

func exportJSON(w io.Writer, records []model.StoredRecord) (int, error) {
	if records == nil {
		records = []model.StoredRecord{}
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(records); err != nil {
		return 0, fmt.Errorf("failed to encode JSON: %w", err)
	}
	return len(records), nil
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}
