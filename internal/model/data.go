package model

import (
	"fmt"
	"strings"
	"time"
)

// ExistingRecord is the lookup projection returned by a batched email search.
type ExistingRecord struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// StoredRecord is a canonical record together with its store identity.
type StoredRecord struct {
	ID        string          `json:"id"`
	Record    CanonicalRecord `json:"record"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ReconcileResult summarizes one reconciliation run.
// Processed always equals New + Updated.
type ReconcileResult struct {
	Processed      int           `json:"total_processed"`
	New            int           `json:"total_new"`
	Updated        int           `json:"total_updated"`
	Skipped        int           `json:"total_skipped"`
	Failed         int           `json:"total_failed"`
	Chunks         int           `json:"chunks"`
	LookupFailures int           `json:"lookup_failures"`
	Duration       time.Duration `json:"duration"`

	ChunkDetails  []ChunkMetrics `json:"chunk_details,omitempty"`
	Errors        []ErrorDetail  `json:"errors,omitempty"`
	ErrorsDropped int            `json:"errors_dropped,omitempty"`
}

// Summary describes the failures of the run in one line, or returns "" for
// a clean run.
func (r ReconcileResult) Summary() string {
	if r.Failed == 0 && r.LookupFailures == 0 {
		return ""
	}
	var parts []string
	if r.Failed > 0 {
		parts = append(parts, fmt.Sprintf("%d row writes failed", r.Failed))
	}
	if r.LookupFailures > 0 {
		parts = append(parts, fmt.Sprintf("%d chunk lookups failed", r.LookupFailures))
	}
	out := strings.Join(parts, ", ")
	if len(r.Errors) > 0 {
		first := r.Errors[0]
		out += "; first: " + first.Stage
		if first.Email != "" {
			out += " " + first.Email
		}
		out += ": " + first.ErrorMessage
	}
	return out
}

// ErrorDetail is one recorded failure of a reconciliation run.
type ErrorDetail struct {
	Timestamp    time.Time `json:"timestamp"`
	Stage        string    `json:"stage"`
	Chunk        int       `json:"chunk"`
	Email        string    `json:"email,omitempty"`
	ErrorMessage string    `json:"error_message"`
	RecordData   SourceRow `json:"record_data,omitempty"`
	Retryable    bool      `json:"retryable"`
}

// ChunkMetrics tracks one chunk of a reconciliation run
type ChunkMetrics struct {
	Index     int           `json:"index"`
	Rows      int           `json:"rows"`
	Emails    int           `json:"emails"`
	Existing  int           `json:"existing"`
	Processed int           `json:"processed"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

// Submission modes
const (
	ModeImmediate = "immediate"
	ModeQueued    = "queued"
)

// SubmitRequest is the input of a CSV submission.
type SubmitRequest struct {
	CSVURL      string `json:"csv_url"`
	CSVFilename string `json:"csv_filename"`
	Priority    int    `json:"priority,omitempty"`
	SourceEmail string `json:"source_email,omitempty"`
}

// SubmitResult is the acknowledgement or final outcome of a submission.
// Counts are only set in immediate mode.
type SubmitResult struct {
	Success bool   `json:"success"`
	Mode    string `json:"mode,omitempty"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
	QueueID string `json:"queue_id,omitempty"`
	CSVURL  string `json:"csv_url,omitempty"`

	TotalProcessed *int `json:"total_processed,omitempty"`
	TotalNew       *int `json:"total_new,omitempty"`
	TotalUpdated   *int `json:"total_updated,omitempty"`
	TotalSkipped   *int `json:"total_skipped,omitempty"`
	TotalFailed    *int `json:"total_failed,omitempty"`

	Errors []ErrorDetail `json:"errors,omitempty"`

	Error string `json:"error,omitempty"`
}

// ExportResult describes one record export.
type ExportResult struct {
	Format      string    `json:"format"`
	RecordCount int       `json:"record_count"`
	ExportedAt  time.Time `json:"exported_at"`
}
